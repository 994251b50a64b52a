package transcript

import "context"

// Repository defines the interface for recording and reading transcripts.
type Repository interface {
	// Append records one message on a connection's transcript.
	Append(ctx context.Context, connID string, msg ChatMessage) error

	// Messages returns a connection's transcript in insertion order.
	Messages(ctx context.Context, connID string) ([]ChatMessage, error)

	// Close closes the store.
	Close() error
}
