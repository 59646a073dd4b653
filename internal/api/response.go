package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/coverline/coverline/internal/agent"
	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/chat"
	"github.com/coverline/coverline/internal/insurance"
	"github.com/coverline/coverline/internal/log"
)

// writeJSON writes a JSON response with the given status code. Encoding
// happens into a buffer first so headers are only sent after a
// successful encode.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, logger log.Logger, status int, code, message string) {
	writeJSON(w, logger, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps domain sentinel errors onto HTTP statuses.
// Unrecognized errors become a generic 500 so internals never leak.
func writeDomainError(w http.ResponseWriter, logger log.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, logger, http.StatusConflict, "email_taken", "an account with this email already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, logger, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrNoPrincipal):
		writeError(w, logger, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, insurance.ErrForbidden), errors.Is(err, chat.ErrForbidden):
		writeError(w, logger, http.StatusForbidden, "forbidden", "access denied")
	case errors.Is(err, insurance.ErrNotFound), errors.Is(err, chat.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, auth.ErrValidation), errors.Is(err, insurance.ErrValidation), errors.Is(err, chat.ErrValidation):
		writeError(w, logger, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, agent.ErrExecutionFailed):
		logger.Error("turn execution failed", "error", err)
		writeError(w, logger, http.StatusBadGateway, "agent_unavailable", "the assistant could not complete this request")
	default:
		logger.Error("unhandled error", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeBody reads a JSON request body into dst with a size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
