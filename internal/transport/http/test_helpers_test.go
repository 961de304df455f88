package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/auth"
	"github.com/vovakirdan/fitroom-server/internal/config"
	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/fanout"
	"github.com/vovakirdan/fitroom-server/internal/proto"
	"github.com/vovakirdan/fitroom-server/internal/store/memory"
)

const testSecret = "test-secret"

type testEnv struct {
	server  *http.Server
	ts      *httptest.Server
	manager *core.Manager
	auth    *auth.Service
}

// newTestEnv wires a server on top of an in-memory store.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	st := memory.New(fanout.NewLocal())
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	authService := createTestAuthService(t, testSecret)
	manager := core.NewManager(st, nil, core.Options{MaxCapacity: cfg.Rooms.MaxCapacity}, nil)

	disabledLogger := zerolog.Nop()
	server := NewServer(manager, authService, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{server: server, ts: ts, manager: manager, auth: authService}
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, jwtSecret string) *auth.Service {
	t.Helper()

	cfg := config.Default()
	return auth.NewService(&auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
}

// guest issues an identity and returns its token and user ID.
func (e *testEnv) guest(t *testing.T, name string) (string, string) {
	t.Helper()

	g, err := e.auth.IssueGuest(name)
	if err != nil {
		t.Fatalf("issue guest: %v", err)
	}
	return g.Token, g.UserID
}

// do runs a request through the router and decodes a JSON response into out.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(resp, req)

	if out != nil && resp.Body.Len() > 0 {
		if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, resp.Body.String(), err)
		}
	}
	return resp.Code
}

// createRoom opens a room as token's holder.
func (e *testEnv) createRoom(t *testing.T, token string, capacity int) proto.Room {
	t.Helper()

	var room proto.Room
	status := e.do(t, http.MethodPost, "/api/rooms", token, map[string]any{
		"capacity": capacity,
		"activity": "Push-ups",
	}, &room)
	if status != http.StatusCreated {
		t.Fatalf("create room: expected 201, got %d", status)
	}
	return room
}

// joinRoom adds token's holder to the room owning code.
func (e *testEnv) joinRoom(t *testing.T, token, code, name string) proto.Room {
	t.Helper()

	var room proto.Room
	status := e.do(t, http.MethodPost, "/api/rooms/join", token, map[string]any{
		"code":         code,
		"display_name": name,
	}, &room)
	if status != http.StatusOK {
		t.Fatalf("join room: expected 200, got %d", status)
	}
	return room
}
