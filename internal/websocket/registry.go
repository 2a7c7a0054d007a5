package websocket

import (
	"sync"

	"go.uber.org/zap"

	"classhub/internal/chat"
	"classhub/internal/identity"
	"classhub/internal/metrics"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

var _ interfaces.StatusNotifier = (*Registry)(nil)

// Registry manages WebSocket connections with thread-safe operations
// ARCHITECTURAL DISCOVERY: Pure connection management without chat logic;
// each socket's chat view owns its own subscription, the registry only
// indexes sockets by user and by the class they are viewing
type Registry struct {
	mu           sync.RWMutex                      // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	connections  map[string]*Connection            // userID -> Connection
	classViewers map[string]map[string]*Connection // classID -> userID -> Connection
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewRegistry creates a new connection registry
func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connections:  make(map[string]*Connection),
		classViewers: make(map[string]map[string]*Connection),
		logger:       logger,
		metrics:      m,
	}
}

// RegisterConnection adds an authenticated connection, replacing any earlier
// socket of the same user
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	userID := conn.GetUserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	// FUNCTIONAL DISCOVERY: Close the replaced connection asynchronously so
	// registration never waits on a slow socket
	existing, exists := r.connections[userID]
	if exists && existing == conn {
		return nil
	}
	if exists {
		r.removeLocked(existing)
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Debug("Failed to close replaced connection", zap.Error(err))
			}
		}()
	}

	r.connections[userID] = conn
	r.metrics.ConnectionOpened()
	if classID := conn.GetClassID(); classID != "" {
		r.addViewerLocked(classID, conn)
	}
	return nil
}

// UnregisterConnection removes a specific connection.
// RACE CONDITION FIX: Only removes the connection if it matches the one currently registered
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.GetUserID()]; !exists || registered != conn {
		return
	}
	r.removeLocked(conn)
}

// MoveConnection records that conn's view now shows classID ("" for none)
func (r *Registry) MoveConnection(conn *Connection, classID string) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.GetUserID()]; !exists || registered != conn {
		conn.setClassID(classID)
		return
	}
	r.removeViewerLocked(conn)
	conn.setClassID(classID)
	if classID != "" {
		r.addViewerLocked(classID, conn)
	}
}

func (r *Registry) removeLocked(conn *Connection) {
	delete(r.connections, conn.GetUserID())
	r.removeViewerLocked(conn)
	r.metrics.ConnectionClosed()
}

func (r *Registry) addViewerLocked(classID string, conn *Connection) {
	if r.classViewers[classID] == nil {
		r.classViewers[classID] = make(map[string]*Connection)
	}
	r.classViewers[classID][conn.GetUserID()] = conn
}

// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
func (r *Registry) removeViewerLocked(conn *Connection) {
	classID := conn.GetClassID()
	if classID == "" {
		return
	}
	if viewers, exists := r.classViewers[classID]; exists {
		if viewers[conn.GetUserID()] == conn {
			delete(viewers, conn.GetUserID())
		}
		if len(viewers) == 0 {
			delete(r.classViewers, classID)
		}
	}
}

// GetUserConnection returns the current connection for a user
func (r *Registry) GetUserConnection(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[userID]
	return conn, exists
}

// GetClassConnections returns the sockets currently viewing classID
func (r *Registry) GetClassConnections(classID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	viewers := r.classViewers[classID]
	connections := make([]*Connection, 0, len(viewers))
	for _, conn := range viewers {
		connections = append(connections, conn)
	}
	return connections
}

// ViewerCount returns how many sockets are viewing classID
func (r *Registry) ViewerCount(classID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classViewers[classID])
}

// NotifyStatus pushes a lifecycle change to everyone viewing the class
func (r *Registry) NotifyStatus(class *types.ClassSession) {
	if class == nil {
		return
	}
	update := chat.StatusUpdate(class)
	for _, conn := range r.GetClassConnections(class.ID) {
		if err := conn.WriteJSON(update); err != nil {
			r.logger.Warn("Failed to deliver status update",
				zap.String("class_id", class.ID),
				zap.String("user_id", conn.GetUserID()),
				zap.Error(err))
		}
	}
}

// CloseUser closes the user's socket, if any
func (r *Registry) CloseUser(userID string) bool {
	r.mu.Lock()
	conn, exists := r.connections[userID]
	if exists {
		r.removeLocked(conn)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}
	if err := conn.Close(); err != nil {
		r.logger.Debug("Failed to close connection", zap.String("user_id", userID), zap.Error(err))
	}
	return true
}

// HandleSessionEvent closes sockets of users who signed out
func (r *Registry) HandleSessionEvent(event identity.SessionEvent) {
	if event.Kind != identity.EventSignedOut {
		return
	}
	if r.CloseUser(event.UserID) {
		r.logger.Info("Closed socket after sign-out", zap.String("user_id", event.UserID))
	}
}

// CloseAll closes every registered socket
func (r *Registry) CloseAll() {
	r.mu.Lock()
	connections := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
		r.removeLocked(conn)
	}
	r.mu.Unlock()

	for _, conn := range connections {
		_ = conn.Close()
	}
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_classes":    len(r.classViewers),
	}
}
