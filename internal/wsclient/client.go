// Package wsclient is a reconnecting client for the WebSocket proxy. It
// implements the widget's reconnection protocol in Go: capped exponential
// backoff, a fixed retry budget, and send-only-while-connected semantics.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

var (
	// ErrNotConnected is returned by Send while the socket is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrRetriesExhausted is returned by Run once the reconnect budget is
	// spent. The client will not dial again.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrReplyTimeout is returned by Ask when no agent frame arrives before
	// the deadline.
	ErrReplyTimeout = errors.New("timed out waiting for reply")
)

// Options configures a Client.
type Options struct {
	// OnMessage is invoked for every agent frame. Optional.
	OnMessage func(text string)

	// OnState is invoked on every connection state transition. Optional.
	OnState func(state ConnState)

	// MaxAttempts overrides the reconnect budget. Zero means MaxAttempts.
	MaxAttempts int

	Logger *slog.Logger
}

// frame is the canonical wire frame, both directions.
type frame struct {
	Message string `json:"message"`
}

// Client maintains one logical connection to the proxy across reconnects.
type Client struct {
	url         string
	maxAttempts int
	onMessage   func(string)
	onState     func(ConnState)
	logger      *slog.Logger

	mu      sync.Mutex
	state   ConnState
	conn    *websocket.Conn
	pending chan string // one-shot reply channel for Ask
}

// New creates a client for the given ws:// URL.
func New(url string, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = MaxAttempts
	}
	return &Client{
		url:         url,
		maxAttempts: maxAttempts,
		onMessage:   opts.OnMessage,
		onState:     opts.OnState,
		logger:      logger,
		state:       StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run dials and reads until the context is cancelled or the reconnect budget
// is exhausted. The attempt counter resets to zero on every successful
// connect; each failed dial or closed connection consumes one attempt.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		c.setState(StateConnecting)
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err == nil {
			attempt = 0
			c.setConn(conn)
			c.setState(StateConnected)
			c.readLoop(ctx, conn)
			c.setConn(nil)
		} else {
			c.logger.Warn("Dial failed", "url", c.url, "error", err)
		}
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= c.maxAttempts {
			c.logger.Error("Reconnect budget exhausted", "attempts", attempt)
			return ErrRetriesExhausted
		}

		delay := Backoff(attempt)
		attempt++
		c.logger.Info("Reconnecting", "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			c.logger.Debug("Connection closed", "error", err)
			return
		}

		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			c.logger.Warn("Malformed frame, ignoring", "error", err)
			continue
		}
		if f.Message == "" {
			continue
		}
		c.deliver(f.Message)
	}
}

func (c *Client) deliver(text string) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	// A frame answers at most one waiter; unsolicited frames (welcome,
	// notifications) go to the message callback instead.
	if pending != nil {
		pending <- text
		return
	}
	if c.onMessage != nil {
		c.onMessage(text)
	}
}

// Send transmits one chat message. Only valid while connected.
func (c *Client) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(frame{Message: text})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

// Ask sends a message and waits for the next agent frame. A reply that never
// arrives surfaces as ErrReplyTimeout rather than hanging forever.
func (c *Client) Ask(ctx context.Context, text string, timeout time.Duration) (string, error) {
	replyCh := make(chan string, 1)
	c.mu.Lock()
	c.pending = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pending == replyCh {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	if err := c.Send(ctx, text); err != nil {
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return "", ErrReplyTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setState(state ConnState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if changed && c.onState != nil {
		c.onState(state)
	}
}
