package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/coverline/coverline/internal/chat"
	"github.com/coverline/coverline/internal/testutil"
)

func TestStoreChatCRUDAgainstPostgres(t *testing.T) {
	t.Parallel()

	pool := testutil.StartPostgres(t)
	ctx := context.Background()
	store := chat.NewStore(pool)

	aliceID := testutil.CreateUser(t, pool, "alice@example.com", "alice")
	maryID := testutil.CreateUser(t, pool, "mary@example.com", "mary")

	created, err := store.CreateChat(ctx, aliceID, "Health plans")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if created.OwnerID != aliceID || created.Title != "Health plans" {
		t.Fatalf("created chat = %+v", created)
	}

	// Owner-scoped lookup only matches the owner.
	if _, err := store.ChatForOwner(ctx, created.ID, aliceID); err != nil {
		t.Errorf("ChatForOwner as owner: %v", err)
	}
	if _, err := store.ChatForOwner(ctx, created.ID, maryID); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("ChatForOwner as stranger error = %v, want ErrNotFound", err)
	}

	renamed, err := store.RenameChat(ctx, created.ID, "Comparing health plans")
	if err != nil {
		t.Fatalf("RenameChat: %v", err)
	}
	if renamed.Title != "Comparing health plans" {
		t.Errorf("renamed title = %q", renamed.Title)
	}

	second, err := store.CreateChat(ctx, aliceID, "Motor claim")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, err := store.AppendMessage(ctx, second.ID, chat.RoleUser, "hello"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	// Appending touches last_message_at, so the second chat lists first.
	chats, err := store.ChatsByOwner(ctx, aliceID)
	if err != nil {
		t.Fatalf("ChatsByOwner: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("ChatsByOwner returned %d chats, want 2", len(chats))
	}
	if chats[0].ID != second.ID {
		t.Errorf("most recently active chat should list first, got %q", chats[0].Title)
	}

	if err := store.DeleteChat(ctx, created.ID); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if err := store.DeleteChat(ctx, created.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("deleting twice error = %v, want ErrNotFound", err)
	}
}

// TestStoreAppendAssignsDenseSequencesUnderContention exercises the
// sequence-number retry: concurrent appends to one chat must come out
// with contiguous sequence numbers and no gaps.
func TestStoreAppendAssignsDenseSequencesUnderContention(t *testing.T) {
	t.Parallel()

	pool := testutil.StartPostgres(t)
	ctx := context.Background()
	store := chat.NewStore(pool)

	ownerID := testutil.CreateUser(t, pool, "owner@example.com", "owner")
	c, err := store.CreateChat(ctx, ownerID, "contention")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, c.ID, chat.RoleUser, "concurrent message")
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	messages, err := store.MessagesByChat(ctx, c.ID)
	if err != nil {
		t.Fatalf("MessagesByChat: %v", err)
	}
	if len(messages) != writers {
		t.Fatalf("got %d messages, want %d", len(messages), writers)
	}
	for i, m := range messages {
		if m.SequenceNumber != i+1 {
			t.Errorf("message %d has sequence %d, want %d", i, m.SequenceNumber, i+1)
		}
	}
}
