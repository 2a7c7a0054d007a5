package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"classhub/internal/chat"
	"classhub/internal/identity"
	"classhub/internal/metrics"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Authenticator resolves a bearer token
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*identity.Session, error)
}

// Config holds socket timings
type Config struct {
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	OperationTimeout time.Duration
	HistoryTimeout   time.Duration
	LookupTimeout    time.Duration
	MaxFrameBytes    int64
}

// DefaultConfig matches the heartbeat the handler was tuned for
func DefaultConfig() Config {
	return Config{
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     5 * time.Second,
		OperationTimeout: 10 * time.Second,
		HistoryTimeout:   10 * time.Second,
		LookupTimeout:    5 * time.Second,
		MaxFrameBytes:    16 * 1024,
	}
}

// Deps are the collaborators a socket's chat view is built from
type Deps struct {
	Auth       Authenticator
	Access     interfaces.AccessChecker
	Subscriber interfaces.Subscriber
	History    interfaces.HistoryLoader
	Sender     interfaces.MessageSender
	Authors    interfaces.AuthorLookup
}

// Frame types a client may send
const (
	FrameSelect = "select"
	FrameSend   = "send"
	FrameReload = "reload"
	FrameLeave  = "leave"
)

// ClientFrame is one message from the browser
type ClientFrame struct {
	Type    string `json:"type"`
	ClassID string `json:"class_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// Handler upgrades authenticated requests and drives one chat view per socket
// ARCHITECTURAL DISCOVERY: Multi-stage validation (token -> class access -> upgrade -> registration)
// ensures invalid requests get proper HTTP errors and never consume a socket
type Handler struct {
	registry *Registry
	deps     Deps
	config   Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, deps Deps, config Config, logger *zap.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		deps:     deps,
		config:   config,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Allow all origins; the bearer token is the credential
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		logger:  logger,
		metrics: m,
	}
}

// HandleWebSocket authenticates ?token= (or a bearer header), optionally
// pre-selects ?class_id=, then upgrades
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout)
	defer cancel()

	session, err := h.deps.Auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, types.ErrAuth) {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		} else {
			h.logger.Error("Token check failed", zap.Error(err))
			http.Error(w, "Authentication unavailable", http.StatusInternalServerError)
		}
		return
	}

	classID := r.URL.Query().Get("class_id")
	if classID != "" {
		if _, err := h.deps.Access.CanAccess(ctx, classID, session.User.ID); err != nil {
			switch {
			case errors.Is(err, types.ErrNotFound):
				http.Error(w, "Class not found", http.StatusNotFound)
			case errors.Is(err, types.ErrInvalidOperation):
				http.Error(w, "Not a member of this class", http.StatusForbidden)
			default:
				http.Error(w, "Class validation failed", http.StatusInternalServerError)
			}
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(conn, h.config.WriteTimeout)
	if err := wsConn.SetCredentials(session.User.ID, string(session.User.Role)); err != nil {
		h.logger.Error("Failed to set credentials", zap.Error(err))
		_ = wsConn.Close()
		return
	}
	if err := h.registry.RegisterConnection(wsConn); err != nil {
		h.logger.Error("Failed to register connection", zap.Error(err))
		_ = wsConn.Close()
		return
	}

	view := h.newView(wsConn)
	if classID != "" {
		h.selectClass(wsConn, view, classID)
	}

	// TECHNICAL DISCOVERY: Separate goroutine for connection lifecycle management
	// enables clean resource cleanup and heartbeat monitoring
	go h.handleConnection(wsConn, view)
}

func (h *Handler) newView(conn *Connection) *chat.View {
	userID := conn.GetUserID()
	logger := h.logger.With(zap.String("user_id", userID))
	return chat.NewView(chat.Config{
		UserID:         userID,
		Subscriber:     h.deps.Subscriber,
		History:        &memberHistory{access: h.deps.Access, history: h.deps.History, userID: userID},
		Sender:         h.deps.Sender,
		Authors:        chat.NewAuthorCache(h.deps.Authors, h.config.LookupTimeout, logger, h.metrics),
		HistoryTimeout: h.config.HistoryTimeout,
		OnUpdate: func(u chat.Update) {
			if err := conn.WriteJSON(u); err != nil && !errors.Is(err, ErrConnectionClosed) {
				logger.Warn("Failed to deliver chat update",
					zap.String("type", string(u.Kind)),
					zap.Error(err))
			}
		},
		Logger:  logger,
		Metrics: h.metrics,
	})
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
func (h *Handler) handleConnection(conn *Connection, view *chat.View) {
	defer func() {
		// FUNCTIONAL DISCOVERY: The view is closed first so its subscription
		// is released before the socket disappears from the registry
		view.Close()
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
	}()

	if h.config.MaxFrameBytes > 0 {
		conn.conn.SetReadLimit(h.config.MaxFrameBytes)
	}
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		h.logger.Warn("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket closed", zap.String("user_id", conn.GetUserID()), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, view, data)
	}
}

// pingLoop keeps the read deadline alive through pongs
func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) handleFrame(conn *Connection, view *chat.View, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.reply(conn, chat.ErrorUpdate(view.ClassID(), ErrInvalidFrame))
		return
	}

	switch frame.Type {
	case FrameSelect:
		h.selectClass(conn, view, frame.ClassID)

	case FrameSend:
		ctx, cancel := context.WithTimeout(context.Background(), h.config.OperationTimeout)
		defer cancel()
		if _, err := view.Send(ctx, frame.Content); err != nil {
			h.reply(conn, chat.ErrorUpdate(view.ClassID(), err))
		}

	case FrameReload:
		if err := view.Reload(); err != nil {
			h.reply(conn, chat.ErrorUpdate(view.ClassID(), err))
		}

	case FrameLeave:
		if err := view.Leave(); err != nil {
			h.reply(conn, chat.ErrorUpdate("", err))
			return
		}
		h.registry.MoveConnection(conn, "")

	default:
		h.reply(conn, chat.ErrorUpdate(view.ClassID(), ErrInvalidFrame))
	}
}

// selectClass checks membership before the view subscribes
func (h *Handler) selectClass(conn *Connection, view *chat.View, classID string) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		h.reply(conn, chat.ErrorUpdate("", ErrMissingClass))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.OperationTimeout)
	defer cancel()
	if _, err := h.deps.Access.CanAccess(ctx, classID, conn.GetUserID()); err != nil {
		h.reply(conn, chat.ErrorUpdate(classID, err))
		return
	}

	if err := view.Select(classID); err != nil {
		// The view already reported subscription failures itself
		if errors.Is(err, chat.ErrViewClosed) {
			return
		}
		if !errors.Is(err, types.ErrFetch) {
			h.reply(conn, chat.ErrorUpdate(classID, err))
		}
		return
	}
	h.registry.MoveConnection(conn, classID)
}

func (h *Handler) reply(conn *Connection, u chat.Update) {
	if err := conn.WriteJSON(u); err != nil && !errors.Is(err, ErrConnectionClosed) {
		h.logger.Warn("Failed to send reply", zap.String("user_id", conn.GetUserID()), zap.Error(err))
	}
}

// memberHistory re-checks membership on every history read, including reloads
type memberHistory struct {
	access  interfaces.AccessChecker
	history interfaces.HistoryLoader
	userID  string
}

func (m *memberHistory) GetClassHistory(ctx context.Context, classID string) ([]*types.ChatMessage, error) {
	if _, err := m.access.CanAccess(ctx, classID, m.userID); err != nil {
		return nil, err
	}
	return m.history.GetClassHistory(ctx, classID)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
