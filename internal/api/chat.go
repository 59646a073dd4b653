package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/chat"
	"github.com/coverline/coverline/internal/log"
)

// ChatService is the conversation surface the handlers need.
type ChatService interface {
	Create(ctx context.Context, p auth.Principal, title string) (chat.Chat, error)
	List(ctx context.Context, p auth.Principal) ([]chat.Chat, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (chat.Chat, error)
	Messages(ctx context.Context, p auth.Principal, id uuid.UUID) ([]chat.ChatMessage, error)
	Rename(ctx context.Context, p auth.Principal, id uuid.UUID, title string) (chat.Chat, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
	Converse(ctx context.Context, p auth.Principal, chatID *uuid.UUID, utterance string) (chat.TurnResult, error)
}

type chatHandler struct {
	service ChatService
	logger  log.Logger
}

func (h *chatHandler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return auth.Principal{}, false
	}
	return p, true
}

func (h *chatHandler) chatID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_id", "chat id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

type createChatRequest struct {
	Title string `json:"title"`
}

func (h *chatHandler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req createChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	c, err := h.service.Create(r.Context(), p, req.Title)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, c)
}

func (h *chatHandler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	chats, err := h.service.List(r.Context(), p)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	writeJSON(w, h.logger, http.StatusOK, chats)
}

func (h *chatHandler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c)
}

func (h *chatHandler) messages(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.Messages(r.Context(), p, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []chat.ChatMessage{}
	}
	writeJSON(w, h.logger, http.StatusOK, msgs)
}

type renameChatRequest struct {
	Title string `json:"title"`
}

func (h *chatHandler) rename(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}

	var req renameChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	c, err := h.service.Rename(r.Context(), p, id, req.Title)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c)
}

func (h *chatHandler) delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), p, id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type converseRequest struct {
	ChatID  *uuid.UUID `json:"chatId"`
	Message string     `json:"message"`
}

// converse runs one conversational turn. Omitting chatId starts a new
// chat titled from the message.
func (h *chatHandler) converse(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req converseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	result, err := h.service.Converse(r.Context(), p, req.ChatID, req.Message)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}
