// Package chat persists conversation sessions and drives conversational
// turns through the agent orchestrator.
//
// Ownership enforcement is deliberately asymmetric: lookups are
// owner-scoped queries that report a foreign chat as not found, so
// existence never leaks, while mutations first resolve the chat and then
// raise an explicit forbidden error on an owner mismatch.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coverline/coverline/internal/agent"
	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/log"
)

// Sentinel errors.
var (
	ErrNotFound   = errors.New("chat not found")
	ErrForbidden  = errors.New("access to chat denied")
	ErrValidation = errors.New("invalid chat input")
)

// Message roles persisted to the session log. Tool chatter is never
// persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat is one conversation session.
type Chat struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"ownerId"`
	Title         string    `json:"title"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ChatMessage is one persisted session log entry.
type ChatMessage struct {
	ID             uuid.UUID `json:"id"`
	ChatID         uuid.UUID `json:"chatId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SequenceNumber int       `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Turner produces one assistant reply from an utterance and prior
// history. Implemented by the agent orchestrator.
type Turner interface {
	RunTurn(ctx context.Context, p auth.Principal, utterance string, history []agent.Message) (string, error)
}

// Querier is the persistence surface the service needs.
type Querier interface {
	CreateChat(ctx context.Context, ownerID uuid.UUID, title string) (Chat, error)
	ChatByID(ctx context.Context, id uuid.UUID) (Chat, error)
	ChatForOwner(ctx context.Context, id, ownerID uuid.UUID) (Chat, error)
	ChatsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Chat, error)
	RenameChat(ctx context.Context, id uuid.UUID, title string) (Chat, error)
	DeleteChat(ctx context.Context, id uuid.UUID) error
	AppendMessage(ctx context.Context, chatID uuid.UUID, role, content string) (ChatMessage, error)
	MessagesByChat(ctx context.Context, chatID uuid.UUID) ([]ChatMessage, error)
}

// Service manages chats for authenticated principals.
type Service struct {
	store  Querier
	turner Turner
	logger log.Logger
}

// NewService creates a chat service. turner may be nil for deployments
// that only expose session CRUD, in which case Converse fails.
func NewService(store Querier, turner Turner, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{store: store, turner: turner, logger: logger}
}

// titleLimit caps titles derived from the first utterance.
const titleLimit = 50

// Create starts a new chat. An empty title gets a timestamp-derived
// label.
func (s *Service) Create(ctx context.Context, p auth.Principal, title string) (Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Chat " + time.Now().Format("2006-01-02 15:04")
	}
	return s.store.CreateChat(ctx, p.UserID, title)
}

// Get returns the chat if it exists and belongs to the principal. A chat
// owned by someone else is reported as not found.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (Chat, error) {
	return s.store.ChatForOwner(ctx, id, p.UserID)
}

// List returns the principal's chats, most recently active first.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]Chat, error) {
	return s.store.ChatsByOwner(ctx, p.UserID)
}

// Messages returns the session log of an owned chat in sequence order.
func (s *Service) Messages(ctx context.Context, p auth.Principal, id uuid.UUID) ([]ChatMessage, error) {
	chat, err := s.store.ChatForOwner(ctx, id, p.UserID)
	if err != nil {
		return nil, err
	}
	return s.store.MessagesByChat(ctx, chat.ID)
}

// Rename changes the chat title after an explicit ownership check.
func (s *Service) Rename(ctx context.Context, p auth.Principal, id uuid.UUID, title string) (Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Chat{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if err := s.requireOwner(ctx, p, id); err != nil {
		return Chat{}, err
	}
	return s.store.RenameChat(ctx, id, title)
}

// Delete removes the chat and its messages after an explicit ownership
// check.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.requireOwner(ctx, p, id); err != nil {
		return err
	}
	return s.store.DeleteChat(ctx, id)
}

// requireOwner resolves the chat and raises ErrForbidden on an owner
// mismatch. Mutations report denial explicitly instead of collapsing it
// into not-found the way lookups do.
func (s *Service) requireOwner(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	chat, err := s.store.ChatByID(ctx, id)
	if err != nil {
		return err
	}
	if chat.OwnerID != p.UserID {
		return ErrForbidden
	}
	return nil
}

// TurnResult is the outcome of one conversational turn.
type TurnResult struct {
	ChatID uuid.UUID `json:"chatId"`
	Title  string    `json:"title"`
	Reply  string    `json:"reply"`
}

// Converse runs one conversational turn. When chatID is nil a new chat
// is created, titled from the utterance. The turn persists exactly two
// session entries: the inbound user message and the final assistant
// reply. Intermediate tool traffic stays inside the orchestrator.
func (s *Service) Converse(ctx context.Context, p auth.Principal, chatID *uuid.UUID, utterance string) (TurnResult, error) {
	if strings.TrimSpace(utterance) == "" {
		return TurnResult{}, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if s.turner == nil {
		return TurnResult{}, errors.New("conversational turns are not configured")
	}

	chat, history, err := s.loadOrCreate(ctx, p, chatID, utterance)
	if err != nil {
		return TurnResult{}, err
	}

	if _, err := s.store.AppendMessage(ctx, chat.ID, RoleUser, utterance); err != nil {
		return TurnResult{}, fmt.Errorf("appending user message: %w", err)
	}

	reply, err := s.turner.RunTurn(ctx, p, utterance, history)
	if err != nil {
		return TurnResult{}, err
	}

	if _, err := s.store.AppendMessage(ctx, chat.ID, RoleAssistant, reply); err != nil {
		return TurnResult{}, fmt.Errorf("appending assistant reply: %w", err)
	}

	s.logger.Debug("turn persisted", "chat_id", chat.ID, "user_id", p.UserID)
	return TurnResult{ChatID: chat.ID, Title: chat.Title, Reply: reply}, nil
}

func (s *Service) loadOrCreate(ctx context.Context, p auth.Principal, chatID *uuid.UUID, utterance string) (Chat, []agent.Message, error) {
	if chatID == nil {
		chat, err := s.store.CreateChat(ctx, p.UserID, titleFromUtterance(utterance))
		if err != nil {
			return Chat{}, nil, fmt.Errorf("creating chat: %w", err)
		}
		return chat, nil, nil
	}

	chat, err := s.store.ChatForOwner(ctx, *chatID, p.UserID)
	if err != nil {
		return Chat{}, nil, err
	}
	stored, err := s.store.MessagesByChat(ctx, chat.ID)
	if err != nil {
		return Chat{}, nil, fmt.Errorf("loading history: %w", err)
	}
	history := make([]agent.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, agent.Message{Role: m.Role, Content: m.Content})
	}
	return chat, history, nil
}

// titleFromUtterance derives a chat title from the first message,
// truncated at 50 characters.
func titleFromUtterance(utterance string) string {
	runes := []rune(strings.TrimSpace(utterance))
	if len(runes) <= titleLimit {
		return string(runes)
	}
	return string(runes[:titleLimit]) + "..."
}
