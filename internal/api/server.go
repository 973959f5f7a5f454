package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flickpick/internal/websocket"
	"flickpick/pkg/interfaces"
	"flickpick/pkg/types"
)

// codeRetries bounds the short-code collision retry loop on session
// creation. Five attempts over a 36^5 space is already overkill.
const codeRetries = 5

// Registry exposes the presence queries the API needs without coupling
// to the full registry implementation.
type Registry interface {
	Connections(code string) []*websocket.Connection
	Stats() map[string]int
}

// Server is the HTTP interface: session creation and lookup plus health.
// No business logic lives here, only HTTP handling and JSON serialization.
type Server struct {
	store    interfaces.Store
	registry Registry
	router   *http.ServeMux
	log      zerolog.Logger
}

// NewServer wires the REST routes.
func NewServer(store interfaces.Store, registry Registry) *Server {
	s := &Server{
		store:    store,
		registry: registry,
		router:   http.NewServeMux(),
		log:      log.With().Str("module", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByCode))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionByCode(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	code := strings.Split(path, "/")[0]
	if code == "" {
		s.sendError(w, "Session code required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSession(w, r, code)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type CreateSessionRequest struct {
	Name string `json:"name"`
}

type CreateSessionResponse struct {
	Session *types.Session `json:"session"`
}

type SessionResponse struct {
	Session         *types.Session `json:"session"`
	ConnectionCount int            `json:"connection_count"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// createSession handles POST /api/sessions. The creator names themselves;
// the server mints a fresh session code and seeds the roster with the
// creator, who becomes the initial group leader.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	name, err := types.NormalizeName(req.Name)
	if err != nil {
		s.sendError(w, "A display name is required", http.StatusBadRequest)
		return
	}

	var session *types.Session
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := types.GenerateCode()
		if err != nil {
			s.sendError(w, "Failed to create session", http.StatusInternalServerError)
			return
		}

		session = &types.Session{
			ID:           uuid.New().String(),
			Code:         code,
			CreatedBy:    name,
			Participants: []string{name},
			Active:       true,
			CreatedAt:    time.Now(),
		}

		err = s.store.CreateSession(r.Context(), session)
		if err == nil {
			break
		}
		session = nil
		s.log.Warn().Err(err).Str("code", code).Msg("session create retry")
	}
	if session == nil {
		s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	s.log.Info().Str("code", session.Code).Str("creator", name).Msg("session created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateSessionResponse{Session: session})
}

// getSession handles GET /api/sessions/{code}, returning the persisted
// session with the live connection count from the registry.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request, rawCode string) {
	code, err := types.NormalizeCode(rawCode)
	if err != nil {
		s.sendError(w, "Invalid session code", http.StatusBadRequest)
		return
	}

	session, err := s.store.GetSessionByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{
		Session:         session,
		ConnectionCount: len(s.registry.Connections(code)),
	})
}

// healthCheck handles GET /health. Returns 503 when the store is
// unreachable.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = "error: " + err.Error()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
