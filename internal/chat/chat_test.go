package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coverline/coverline/internal/agent"
	"github.com/coverline/coverline/internal/auth"
)

type memStore struct {
	chats    map[uuid.UUID]Chat
	messages map[uuid.UUID][]ChatMessage

	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		chats:    make(map[uuid.UUID]Chat),
		messages: make(map[uuid.UUID][]ChatMessage),
	}
}

func (m *memStore) CreateChat(_ context.Context, ownerID uuid.UUID, title string) (Chat, error) {
	c := Chat{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		Title:         title,
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	m.chats[c.ID] = c
	return c, nil
}

func (m *memStore) ChatByID(_ context.Context, id uuid.UUID) (Chat, error) {
	c, ok := m.chats[id]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) ChatForOwner(_ context.Context, id, ownerID uuid.UUID) (Chat, error) {
	c, ok := m.chats[id]
	if !ok || c.OwnerID != ownerID {
		return Chat{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) ChatsByOwner(_ context.Context, ownerID uuid.UUID) ([]Chat, error) {
	var out []Chat
	for _, c := range m.chats {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) RenameChat(_ context.Context, id uuid.UUID, title string) (Chat, error) {
	c, ok := m.chats[id]
	if !ok {
		return Chat{}, ErrNotFound
	}
	c.Title = title
	m.chats[id] = c
	return c, nil
}

func (m *memStore) DeleteChat(_ context.Context, id uuid.UUID) error {
	if _, ok := m.chats[id]; !ok {
		return ErrNotFound
	}
	delete(m.chats, id)
	delete(m.messages, id)
	return nil
}

func (m *memStore) AppendMessage(_ context.Context, chatID uuid.UUID, role, content string) (ChatMessage, error) {
	if m.appendErr != nil {
		return ChatMessage{}, m.appendErr
	}
	msg := ChatMessage{
		ID:             uuid.New(),
		ChatID:         chatID,
		Role:           role,
		Content:        content,
		SequenceNumber: len(m.messages[chatID]) + 1,
		CreatedAt:      time.Now(),
	}
	m.messages[chatID] = append(m.messages[chatID], msg)
	return msg, nil
}

func (m *memStore) MessagesByChat(_ context.Context, chatID uuid.UUID) ([]ChatMessage, error) {
	return m.messages[chatID], nil
}

// scriptedTurner returns canned replies and records what it was given.
type scriptedTurner struct {
	reply   string
	err     error
	history []agent.Message
	calls   int
}

func (s *scriptedTurner) RunTurn(_ context.Context, _ auth.Principal, _ string, history []agent.Message) (string, error) {
	s.calls++
	s.history = history
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func principalFor(id string) auth.Principal {
	return auth.Principal{
		UserID: uuid.MustParse(id),
		Email:  id[:8] + "@example.com",
		Role:   "user",
	}
}

var (
	alice = principalFor("11111111-1111-1111-1111-111111111111")
	mary  = principalFor("22222222-2222-2222-2222-222222222222")
)

func TestConverseCreatesChatTitledFromUtterance(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	turner := &scriptedTurner{reply: "Hello!"}
	svc := NewService(store, turner, nil)

	long := strings.Repeat("a", 60)
	res, err := svc.Converse(context.Background(), alice, nil, long)
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}

	want := strings.Repeat("a", 50) + "..."
	if res.Title != want {
		t.Errorf("title = %q, want %q", res.Title, want)
	}
	if res.Reply != "Hello!" {
		t.Errorf("reply = %q", res.Reply)
	}

	short, err := svc.Converse(context.Background(), alice, nil, "hi there")
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if short.Title != "hi there" {
		t.Errorf("short title = %q", short.Title)
	}
}

func TestConverseAppendsExactlyUserAndReply(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	turner := &scriptedTurner{reply: "You have 2 policies."}
	svc := NewService(store, turner, nil)

	res, err := svc.Converse(context.Background(), alice, nil, "list my policies")
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}

	msgs := store.messages[res.ChatID]
	if len(msgs) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "list my policies" {
		t.Errorf("first entry = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "You have 2 policies." {
		t.Errorf("second entry = %+v", msgs[1])
	}
	if msgs[0].SequenceNumber != 1 || msgs[1].SequenceNumber != 2 {
		t.Errorf("sequence numbers = %d, %d", msgs[0].SequenceNumber, msgs[1].SequenceNumber)
	}
}

func TestConverseSecondTurnReplaysHistory(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	turner := &scriptedTurner{reply: "Sure."}
	svc := NewService(store, turner, nil)

	first, err := svc.Converse(context.Background(), alice, nil, "what plans do you have?")
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}

	turner.reply = "Renewed."
	if _, err := svc.Converse(context.Background(), alice, &first.ChatID, "renew the first one"); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	if len(turner.history) != 2 {
		t.Fatalf("history length = %d, want 2", len(turner.history))
	}
	if turner.history[0].Role != agent.RoleUser || turner.history[0].Content != "what plans do you have?" {
		t.Errorf("history[0] = %+v", turner.history[0])
	}
	if turner.history[1].Role != agent.RoleAssistant || turner.history[1].Content != "Sure." {
		t.Errorf("history[1] = %+v", turner.history[1])
	}

	if got := len(store.messages[first.ChatID]); got != 4 {
		t.Errorf("persisted messages = %d, want 4", got)
	}
}

func TestConverseForeignChatIsNotFound(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(store, &scriptedTurner{reply: "x"}, nil)

	owned, err := store.CreateChat(context.Background(), alice.UserID, "alice's chat")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Converse(context.Background(), mary, &owned.ID, "hello")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound (existence must not leak)", err)
	}
}

func TestConverseRejectsEmptyUtterance(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore(), &scriptedTurner{}, nil)

	_, err := svc.Converse(context.Background(), alice, nil, "   ")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestConverseTurnFailureSkipsAssistantAppend(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	turner := &scriptedTurner{err: agent.ErrExecutionFailed}
	svc := NewService(store, turner, nil)

	first, err := store.CreateChat(context.Background(), alice.UserID, "t")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Converse(context.Background(), alice, &first.ID, "hello")
	if !errors.Is(err, agent.ErrExecutionFailed) {
		t.Fatalf("error = %v", err)
	}

	msgs := store.messages[first.ID]
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Errorf("persisted messages = %+v, want only the user entry", msgs)
	}
}

func TestGetCollapsesForeignChatIntoNotFound(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(store, nil, nil)

	owned, _ := store.CreateChat(context.Background(), alice.UserID, "t")

	if _, err := svc.Get(context.Background(), mary, owned.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Messages(context.Background(), mary, owned.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("messages error = %v, want ErrNotFound", err)
	}
}

func TestMutationsReportForbiddenExplicitly(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := NewService(store, nil, nil)

	owned, _ := store.CreateChat(context.Background(), alice.UserID, "t")

	if _, err := svc.Rename(context.Background(), mary, owned.ID, "mine now"); !errors.Is(err, ErrForbidden) {
		t.Errorf("rename error = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(context.Background(), mary, owned.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete error = %v, want ErrForbidden", err)
	}

	// The owner can still mutate.
	renamed, err := svc.Rename(context.Background(), alice, owned.ID, "mine")
	if err != nil {
		t.Fatalf("owner rename: %v", err)
	}
	if renamed.Title != "mine" {
		t.Errorf("title = %q", renamed.Title)
	}
	if err := svc.Delete(context.Background(), alice, owned.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestCreateDefaultsToTimestampTitle(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore(), nil, nil)

	c, err := svc.Create(context.Background(), alice, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(c.Title, "Chat ") {
		t.Errorf("default title = %q", c.Title)
	}

	named, err := svc.Create(context.Background(), alice, "claims questions")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if named.Title != "claims questions" {
		t.Errorf("title = %q", named.Title)
	}
}
