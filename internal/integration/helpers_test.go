package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classhub/internal/app"
	"classhub/internal/chat"
	"classhub/internal/config"
	"classhub/internal/identity"
	"classhub/pkg/types"
)

// startApplication boots the full service on an ephemeral port over a sqlite file
func startApplication(t *testing.T) string {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "integration.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Auth.Secret = "integration-secret"
	cfg.Auth.BcryptCost = 4
	cfg.Video.Tenant = "vpaas-integration"

	application, err := app.NewApplication(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Logf("Failed to stop application: %v", err)
		}
	})
	return application.GetAddr()
}

type client struct {
	t     *testing.T
	addr  string
	token string
}

func (c *client) call(method, path string, body interface{}, out interface{}) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, "http://"+c.addr+path, reader)
	if err != nil {
		c.t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("Failed to decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func signUp(t *testing.T, addr, email string, role types.Role) *client {
	t.Helper()
	c := &client{t: t, addr: addr}
	var session identity.Session
	status := c.call("POST", "/api/auth/signup", identity.SignUpRequest{
		Email:     email,
		Password:  "integration-pass",
		FirstName: strings.Split(email, "@")[0],
		LastName:  "Integration",
		Role:      role,
	}, &session)
	if status != http.StatusCreated {
		t.Fatalf("Sign up %s: expected 201, got %d", email, status)
	}
	c.token = session.Token
	return c
}

func (c *client) dial(classID string) *websocket.Conn {
	c.t.Helper()
	url := "ws://" + c.addr + "/ws?token=" + c.token + "&class_id=" + classID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		c.t.Fatalf("Dial failed: %v", err)
	}
	c.t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, kind chat.UpdateKind) chat.Update {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("Failed to set deadline: %v", err)
	}
	for {
		var update chat.Update
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("Waiting for %s: %v", kind, err)
		}
		if update.Kind == kind {
			return update
		}
	}
}
