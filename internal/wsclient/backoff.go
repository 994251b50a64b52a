package wsclient

import "time"

const (
	// MaxAttempts is the reconnect budget: after this many failed or closed
	// attempts the client stops for good and must be restarted manually.
	MaxAttempts = 5

	baseDelay = 1 * time.Second
	maxDelay  = 30 * time.Second
)

// Backoff returns the reconnect delay for the given attempt count:
// min(1s << attempt, 30s). Attempts 0..4 map to 1s, 2s, 4s, 8s, 16s.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxDelay
	}
	d := baseDelay << uint(attempt)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
