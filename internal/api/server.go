// Package api exposes the platform over HTTP: authentication, chat
// session CRUD, the conversational turn endpoint, plan and policy reads
// and document ingestion. Everything except health probes and the auth
// endpoints requires a bearer token.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverline/coverline/internal/log"
)

// ServerConfig contains the dependencies of the HTTP server.
type ServerConfig struct {
	Logger    log.Logger
	Auth      AuthService
	Tokens    TokenVerifier
	Chats     ChatService
	Insurance InsuranceService
	Documents DocumentIndex
	Pool      *pgxpool.Pool // optional, used by /ready
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Auth == nil:
		return nil, errors.New("auth service is required")
	case cfg.Tokens == nil:
		return nil, errors.New("token verifier is required")
	case cfg.Chats == nil:
		return nil, errors.New("chat service is required")
	case cfg.Insurance == nil:
		return nil, errors.New("insurance service is required")
	case cfg.Documents == nil:
		return nil, errors.New("document index is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ah := &authHandler{service: cfg.Auth, logger: logger}
	ch := &chatHandler{service: cfg.Chats, logger: logger}
	ih := &insuranceHandler{service: cfg.Insurance, logger: logger}
	kh := &knowledgeHandler{index: cfg.Documents, logger: logger}

	protected := http.NewServeMux()

	// Chat sessions
	protected.HandleFunc("GET /api/v1/chats", ch.list)
	protected.HandleFunc("POST /api/v1/chats", ch.create)
	protected.HandleFunc("GET /api/v1/chats/{id}", ch.get)
	protected.HandleFunc("GET /api/v1/chats/{id}/messages", ch.messages)
	protected.HandleFunc("PATCH /api/v1/chats/{id}", ch.rename)
	protected.HandleFunc("DELETE /api/v1/chats/{id}", ch.delete)

	// Conversational turn
	protected.HandleFunc("POST /api/v1/chat", ch.converse)

	// Plan catalog and policy reads
	protected.HandleFunc("GET /api/v1/plans", ih.listPlans)
	protected.HandleFunc("GET /api/v1/plans/{id}", ih.getPlan)
	protected.HandleFunc("GET /api/v1/policies", ih.listPolicies)
	protected.HandleFunc("GET /api/v1/policies/{policyNumber}", ih.getPolicy)

	// Document ingestion
	protected.HandleFunc("POST /api/v1/documents", kh.ingest)

	var guarded http.Handler = protected
	guarded = authMiddleware(cfg.Tokens, logger)(guarded)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health(logger))
	mux.HandleFunc("GET /ready", readiness(cfg.Pool, logger))
	mux.HandleFunc("POST /api/v1/auth/register", ah.register)
	mux.HandleFunc("POST /api/v1/auth/login", ah.login)
	mux.Handle("/api/v1/", guarded)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	top := http.NewServeMux()
	top.Handle("/", handler)

	return &Server{mux: top}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
