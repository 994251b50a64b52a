package relay

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Credentials caches the process-wide vendor auth state and session id for
// the stateless relay: lazily populated, created at most once per process
// lifetime, never invalidated or refreshed. singleflight collapses concurrent
// first requests into a single vendor call instead of racing duplicate
// session creates.
type Credentials struct {
	client AgentClient
	group  singleflight.Group

	mu        sync.Mutex
	authed    bool
	sessionID string
}

// NewCredentials creates an empty credential cache over the given client.
func NewCredentials(client AgentClient) *Credentials {
	return &Credentials{client: client}
}

// Session returns the cached vendor session id, authenticating and creating
// the session on first use.
func (c *Credentials) Session(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.sessionID != "" {
		id := c.sessionID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("session", func() (any, error) {
		c.mu.Lock()
		cached := c.sessionID
		c.mu.Unlock()
		if cached != "" {
			return cached, nil
		}

		if err := c.ensureAuth(ctx); err != nil {
			return "", err
		}

		id, err := c.client.CreateSession(ctx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.sessionID = id
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Credentials) ensureAuth(ctx context.Context) error {
	c.mu.Lock()
	authed := c.authed
	c.mu.Unlock()
	if authed {
		return nil
	}

	if err := c.client.Authenticate(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.authed = true
	c.mu.Unlock()
	return nil
}
