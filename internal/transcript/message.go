// Package transcript stores per-connection chat transcripts. Entries are
// append-only and keep their insertion order; nothing survives a process
// restart (the backing store is in-memory).
package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a chat message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// ChatMessage is one immutable transcript entry.
type ChatMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// NewChatMessage creates a transcript entry with a generated id.
func NewChatMessage(sender Sender, text string) ChatMessage {
	return ChatMessage{
		ID:        string(sender) + "-" + uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
	}
}
