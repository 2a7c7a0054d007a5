package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classhub/internal/chat"
	"classhub/internal/hub"
	"classhub/internal/identity"
	"classhub/pkg/types"
)

// Mock implementations for testing

type mockAuth struct {
	sessions map[string]*identity.Session
	err      error
}

func (m *mockAuth) Authenticate(ctx context.Context, token string) (*identity.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sessions[token]
	if !ok {
		return nil, types.ErrInvalidToken
	}
	return s, nil
}

type mockAccess struct {
	mu      sync.Mutex
	members map[string]map[string]bool // classID -> userID
}

func (m *mockAccess) CanAccess(ctx context.Context, classID, userID string) (*types.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.members[classID]
	if !ok {
		return nil, types.ErrClassNotFound
	}
	if !members[userID] {
		return nil, types.ErrNoAccess
	}
	return &types.ClassSession{ID: classID, Status: types.StatusInProgress}, nil
}

func (m *mockAccess) revoke(classID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[classID], userID)
}

// mockStore keeps messages in memory; Send persists then publishes like the router
type mockStore struct {
	mu       sync.Mutex
	messages map[string][]*types.ChatMessage
	authors  map[string]types.Author
	bus      *hub.Hub
}

func (m *mockStore) GetClassHistory(ctx context.Context, classID string) ([]*types.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.ChatMessage, len(m.messages[classID]))
	copy(out, m.messages[classID])
	return out, nil
}

func (m *mockStore) GetAuthor(ctx context.Context, userID string) (*types.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.authors[userID]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	return &a, nil
}

func (m *mockStore) Send(ctx context.Context, classID, userID, content string) (*types.Message, error) {
	content, err := types.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	msg := &types.Message{
		ID:        uuid.New().String(),
		ClassID:   classID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.messages[classID] = append(m.messages[classID], &types.ChatMessage{Message: *msg, Author: m.authors[userID]})
	m.mu.Unlock()
	return msg, m.bus.Publish(msg)
}

type handlerFixture struct {
	server   *httptest.Server
	registry *Registry
	access   *mockAccess
	store    *mockStore
}

func setupHandler(t *testing.T) *handlerFixture {
	t.Helper()

	bus := hub.NewHub(nil, nil)
	if err := bus.Start(context.Background()); err != nil {
		t.Fatalf("Hub start failed: %v", err)
	}
	t.Cleanup(func() { _ = bus.Stop() })

	auth := &mockAuth{sessions: map[string]*identity.Session{
		"token-mentor":  {Token: "token-mentor", User: types.User{ID: "mentor-1", Role: types.RoleMentor}},
		"token-student": {Token: "token-student", User: types.User{ID: "student-1", Role: types.RoleParticipant}},
	}}
	access := &mockAccess{members: map[string]map[string]bool{
		"class-1": {"mentor-1": true, "student-1": true},
		"class-2": {"mentor-1": true},
	}}
	store := &mockStore{
		messages: map[string][]*types.ChatMessage{},
		authors: map[string]types.Author{
			"mentor-1":  {UserID: "mentor-1", FirstName: "Grace", LastName: "Hopper", Role: types.RoleMentor},
			"student-1": {UserID: "student-1", FirstName: "Alan", LastName: "Turing", Role: types.RoleParticipant},
		},
		bus: bus,
	}

	registry := NewRegistry(nil, nil)
	config := DefaultConfig()
	config.OperationTimeout = 2 * time.Second
	handler := NewHandler(registry, Deps{
		Auth:       auth,
		Access:     access,
		Subscriber: bus,
		History:    store,
		Sender:     store,
		Authors:    store,
	}, config, nil, nil)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)
	t.Cleanup(registry.CloseAll)

	return &handlerFixture{server: server, registry: registry, access: access, store: store}
}

func (f *handlerFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *handlerFixture) dialStatus(t *testing.T, query string) int {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatalf("Expected dial to fail for %q", query)
	}
	if resp == nil {
		t.Fatalf("Expected an HTTP response for %q: %v", query, err)
	}
	return resp.StatusCode
}

// readUntil reads frames until one of kind arrives
func readUntil(t *testing.T, conn *websocket.Conn, kind chat.UpdateKind) chat.Update {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("SetReadDeadline failed: %v", err)
		}
		var update chat.Update
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("Waiting for %s frame: %v", kind, err)
		}
		if update.Kind == kind {
			return update
		}
	}
}

func TestHandler_RejectsBeforeUpgrade(t *testing.T) {
	f := setupHandler(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"unknown token", "token=nope", http.StatusUnauthorized},
		{"unknown class", "token=token-student&class_id=missing", http.StatusNotFound},
		{"not a member", "token=token-student&class_id=class-2", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.dialStatus(t, tt.query); got != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHandler_AuthUnavailable(t *testing.T) {
	f := setupHandler(t)
	handler := NewHandler(f.registry, Deps{Auth: &mockAuth{err: errors.New("db down")}}, DefaultConfig(), nil, nil)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=x"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500 when token checks fail, got %v", err)
	}
}

func TestHandler_BearerHeader(t *testing.T) {
	f := setupHandler(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?class_id=class-1"
	header := http.Header{"Authorization": []string{"Bearer token-student"}}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial with bearer header failed: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, chat.UpdateSnapshot)
}

func TestHandler_HistoryThenLiveEcho(t *testing.T) {
	f := setupHandler(t)
	f.store.messages["class-1"] = []*types.ChatMessage{{
		Message: types.Message{ID: "m1", ClassID: "class-1", UserID: "mentor-1", Content: "Welcome", CreatedAt: time.Now().Add(-time.Minute)},
		Author:  f.store.authors["mentor-1"],
	}}

	mentor := f.dial(t, "token=token-mentor&class_id=class-1")
	student := f.dial(t, "token=token-student&class_id=class-1")

	snapshot := readUntil(t, student, chat.UpdateSnapshot)
	if len(snapshot.Messages) != 1 || snapshot.Messages[0].Content != "Welcome" {
		t.Fatalf("Unexpected snapshot %+v", snapshot.Messages)
	}
	readUntil(t, mentor, chat.UpdateSnapshot)

	if err := student.WriteJSON(ClientFrame{Type: FrameSend, Content: "  Hello!  "}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"student": student, "mentor": mentor} {
		update := readUntil(t, conn, chat.UpdateAppend)
		if update.Message == nil || update.Message.Content != "Hello!" {
			t.Fatalf("%s: unexpected append %+v", name, update)
		}
		if update.Message.Author.FirstName != "Alan" {
			t.Errorf("%s: expected resolved author, got %+v", name, update.Message.Author)
		}
		if update.Index != 1 {
			t.Errorf("%s: expected index 1, got %d", name, update.Index)
		}
	}
}

func TestHandler_EmptySendRejected(t *testing.T) {
	f := setupHandler(t)
	conn := f.dial(t, "token=token-student&class_id=class-1")
	readUntil(t, conn, chat.UpdateSnapshot)

	if err := conn.WriteJSON(ClientFrame{Type: FrameSend, Content: "   "}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	update := readUntil(t, conn, chat.UpdateError)
	if !strings.Contains(update.Error, "empty") {
		t.Errorf("Expected empty message error, got %q", update.Error)
	}
	if len(f.store.messages["class-1"]) != 0 {
		t.Error("Empty message must not be stored")
	}
}

func TestHandler_SelectRequiresMembership(t *testing.T) {
	f := setupHandler(t)
	conn := f.dial(t, "token=token-student")

	if err := conn.WriteJSON(ClientFrame{Type: FrameSelect, ClassID: "class-2"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	update := readUntil(t, conn, chat.UpdateError)
	if update.ClassID != "class-2" {
		t.Errorf("Expected error for class-2, got %+v", update)
	}
	if got := len(f.registry.GetClassConnections("class-2")); got != 0 {
		t.Errorf("Rejected select must not register a viewer, got %d", got)
	}

	if err := conn.WriteJSON(ClientFrame{Type: FrameSelect}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if update := readUntil(t, conn, chat.UpdateError); !strings.Contains(update.Error, "class_id") {
		t.Errorf("Expected missing class error, got %q", update.Error)
	}
}

func TestHandler_ReloadRechecksMembership(t *testing.T) {
	f := setupHandler(t)
	conn := f.dial(t, "token=token-student&class_id=class-1")
	readUntil(t, conn, chat.UpdateSnapshot)

	f.access.revoke("class-1", "student-1")
	if err := conn.WriteJSON(ClientFrame{Type: FrameReload}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	update := readUntil(t, conn, chat.UpdateError)
	if !strings.Contains(update.Error, "not a member") {
		t.Errorf("Expected membership error, got %q", update.Error)
	}
}

func TestHandler_SwitchAndLeave(t *testing.T) {
	f := setupHandler(t)
	conn := f.dial(t, "token=token-mentor&class_id=class-1")
	readUntil(t, conn, chat.UpdateSnapshot)

	if err := conn.WriteJSON(ClientFrame{Type: FrameSelect, ClassID: "class-2"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if update := readUntil(t, conn, chat.UpdateSnapshot); update.ClassID != "class-2" {
		t.Errorf("Expected class-2 snapshot, got %+v", update)
	}
	if len(f.registry.GetClassConnections("class-1")) != 0 || len(f.registry.GetClassConnections("class-2")) != 1 {
		t.Error("Registry should follow the selected class")
	}

	if err := conn.WriteJSON(ClientFrame{Type: FrameLeave}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if update := readUntil(t, conn, chat.UpdateLeft); update.ClassID != "class-2" {
		t.Errorf("Expected left for class-2, got %+v", update)
	}
}

func TestHandler_StatusPushedToViewers(t *testing.T) {
	f := setupHandler(t)
	conn := f.dial(t, "token=token-student&class_id=class-1")
	readUntil(t, conn, chat.UpdateSnapshot)

	f.registry.NotifyStatus(&types.ClassSession{ID: "class-1", Status: types.StatusCompleted})
	update := readUntil(t, conn, chat.UpdateStatus)
	if update.Class == nil || update.Class.Status != types.StatusCompleted {
		t.Errorf("Unexpected status frame %+v", update)
	}
}

func TestHandler_InvalidFrame(t *testing.T) {
	f := setupHandler(t)
	conn := f.dial(t, "token=token-student")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	readUntil(t, conn, chat.UpdateError)

	if err := conn.WriteJSON(ClientFrame{Type: "dance"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	readUntil(t, conn, chat.UpdateError)
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	f := setupHandler(t)
	conn := f.dial(t, "token=token-student&class_id=class-1")
	readUntil(t, conn, chat.UpdateSnapshot)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.registry.GetUserConnection("student-1"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Closed socket should be unregistered")
}
