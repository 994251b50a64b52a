package transcript

import (
	"context"
	"fmt"
	"testing"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	store, err := NewMemory()
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return store
}

func TestAppendPreservesOrderAndContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Timestamps deliberately out of order: read-back order must follow
	// insertion, not time.
	entries := []ChatMessage{
		{ID: "user-1", Text: "first", Sender: SenderUser, Timestamp: 300},
		{ID: "agent-1", Text: "second", Sender: SenderAgent, Timestamp: 100},
		{ID: "user-2", Text: "third", Sender: SenderUser, Timestamp: 200},
	}
	for _, m := range entries {
		if err := store.Append(ctx, "conn-1", m); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.Messages(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("Expected %d messages, got %d", len(entries), len(got))
	}
	for i, want := range entries {
		if got[i] != want {
			t.Errorf("Message %d: expected %+v, got %+v", i, want, got[i])
		}
	}
}

func TestTranscriptsIsolatedPerConnection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		connID := fmt.Sprintf("conn-%d", i)
		msg := NewChatMessage(SenderUser, fmt.Sprintf("hello from %s", connID))
		if err := store.Append(ctx, connID, msg); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.Messages(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 message for conn-1, got %d", len(got))
	}
	if got[0].Text != "hello from conn-1" {
		t.Errorf("Unexpected message: %+v", got[0])
	}
}

func TestMessagesUnknownConnection(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Messages(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty transcript, got %d messages", len(got))
	}
}

func TestNewChatMessage(t *testing.T) {
	msg := NewChatMessage(SenderAgent, "hi there")

	if msg.Sender != SenderAgent {
		t.Errorf("Expected agent sender, got %s", msg.Sender)
	}
	if msg.Text != "hi there" {
		t.Errorf("Text changed: %q", msg.Text)
	}
	if msg.ID == "" || msg.Timestamp == 0 {
		t.Errorf("Expected generated id and timestamp, got %+v", msg)
	}

	other := NewChatMessage(SenderAgent, "hi there")
	if other.ID == msg.ID {
		t.Error("Expected unique ids")
	}
}
