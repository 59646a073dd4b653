package api

import (
	"context"
	"net/http"

	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/log"
)

// AuthService is the account surface the handlers need.
type AuthService interface {
	Register(ctx context.Context, email, username, password string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

type authHandler struct {
	service AuthService
	logger  log.Logger
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func sessionBody(s auth.Session) sessionResponse {
	return sessionResponse{
		Token: s.Token,
		User: userResponse{
			ID:    s.Principal.UserID.String(),
			Email: s.Principal.Email,
			Role:  s.Principal.Role,
		},
	}
}

func (h *authHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	session, err := h.service.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, sessionBody(session))
}

func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sessionBody(session))
}
