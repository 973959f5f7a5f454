package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"flickpick/internal/database"
	"flickpick/internal/websocket"
	dbconfig "flickpick/pkg/database"
	"flickpick/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *database.Store, *websocket.Registry) {
	t.Helper()

	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "api.db")

	store, err := database.NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	registry := websocket.NewRegistry()
	return NewServer(store, registry), store, registry
}

func createSession(t *testing.T, server *Server, name string) *types.Session {
	t.Helper()

	body, _ := json.Marshal(CreateSessionRequest{Name: name})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CreateSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Session
}

func TestServer_CreateSession(t *testing.T) {
	server, store, _ := newTestServer(t)

	sess := createSession(t, server, "  alice  ")

	if sess.CreatedBy != "alice" {
		t.Errorf("creator name should be normalized, got %q", sess.CreatedBy)
	}
	if len(sess.Participants) != 1 || sess.Participants[0] != "alice" {
		t.Errorf("roster should seed with the creator, got %v", sess.Participants)
	}
	if _, err := types.NormalizeCode(sess.Code); err != nil {
		t.Errorf("generated code %q has the wrong shape", sess.Code)
	}
	if !sess.Active {
		t.Error("new session should be active")
	}

	persisted, err := store.GetSessionByCode(context.Background(), sess.Code)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if persisted.ID != sess.ID {
		t.Error("persisted session differs from response")
	}
}

func TestServer_CreateSessionRejectsEmptyName(t *testing.T) {
	server, _, _ := newTestServer(t)

	body, _ := json.Marshal(CreateSessionRequest{Name: "   "})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_CreateSessionRejectsBadJSON(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader([]byte("{oops")))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_GetSession(t *testing.T) {
	server, _, registry := newTestServer(t)
	sess := createSession(t, server, "alice")

	conn := websocket.NewConnection(nil)
	t.Cleanup(func() { _ = conn.Close() })
	registry.Register(sess.Code, "alice", conn)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.Code, nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Session.Code != sess.Code {
		t.Errorf("unexpected session: %+v", resp.Session)
	}
	if resp.ConnectionCount != 1 {
		t.Errorf("expected 1 live connection, got %d", resp.ConnectionCount)
	}
}

func TestServer_GetSessionNormalizesCode(t *testing.T) {
	server, _, _ := newTestServer(t)
	sess := createSession(t, server, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.Code, nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("canonical code lookup failed: %d", rec.Code)
	}
}

func TestServer_GetSessionNotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/ZZZ99", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_GetSessionInvalidCode(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/nope!", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestServer_HealthCheck(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Database != "healthy" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers")
	}
}
