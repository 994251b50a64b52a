// Package proxy implements the stateful WebSocket bridge: one vendor session
// per browser connection, streaming vendor events relayed as chat frames.
package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/agentbridge/internal/agentforce"
	"github.com/ashureev/agentbridge/internal/transcript"
)

// AgentClient is the vendor API surface one connection needs.
type AgentClient interface {
	Authenticate(ctx context.Context) error
	CreateSession(ctx context.Context) (string, error)
	CloseSession(ctx context.Context, sessionID string) error
	SendStreamingMessage(ctx context.Context, sessionID, text string) (<-chan agentforce.StreamEvent, error)
}

// Frame is the canonical wire frame, both directions.
type Frame struct {
	Message string `json:"message"`
}

// FrameSender delivers frames to the browser.
type FrameSender interface {
	SendFrame(ctx context.Context, f Frame) error
}

const (
	welcomeText    = `🤖 Connected to Salesforce Agentforce! Try: "Article #123"`
	authFailedText = "❌ Failed to connect to Agentforce. Check server credentials."
)

// Session owns one connection's vendor session lifecycle.
//
// After a failed Open the session is degraded, not dead: the socket stays
// open so the widget can show a persistent error state without tripping its
// reconnect loop, and inbound messages are silently dropped. This is a
// documented contract, not a bug.
type Session struct {
	id       string
	client   AgentClient
	out      FrameSender
	recorder transcript.Repository // nil disables transcript recording
	logger   *slog.Logger

	sessionID string // vendor session id; empty when degraded

	mu     sync.Mutex
	closed bool

	queue chan string
	done  chan struct{}
}

// NewSession creates a session for one accepted connection. recorder may be
// nil.
func NewSession(id string, client AgentClient, out FrameSender, recorder transcript.Repository, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:       id,
		client:   client,
		out:      out,
		recorder: recorder,
		logger:   logger.With("conn_id", id),
		queue:    make(chan string, 32),
		done:     make(chan struct{}),
	}
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// Open authenticates and creates the vendor session, then sends either the
// welcome frame or a single error notification. It never returns an error:
// failure leaves the session degraded with the socket open.
func (s *Session) Open(ctx context.Context) {
	if err := s.client.Authenticate(ctx); err != nil {
		s.degrade(ctx, err)
		return
	}

	sessionID, err := s.client.CreateSession(ctx)
	if err != nil {
		s.degrade(ctx, err)
		return
	}
	s.sessionID = sessionID

	s.logger.Info("Vendor session ready", "session_id", sessionID)
	s.send(ctx, Frame{Message: welcomeText})
}

func (s *Session) degrade(ctx context.Context, err error) {
	s.logger.Error("Vendor connection failed", "error", err)
	s.send(ctx, Frame{Message: authFailedText})
}

// Enqueue decodes an inbound payload and queues it for the message worker.
// Enqueueing blocks when the queue is full, which backpressures the read
// loop. Payloads are `{"message": "..."}` frames; a bare text payload is
// accepted for legacy clients.
func (s *Session) Enqueue(ctx context.Context, payload []byte) {
	text := decodeInbound(payload)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.queue <- text:
	case <-s.done:
	case <-ctx.Done():
	}
}

// Run processes queued messages one at a time until Close. The per-session
// FIFO guarantees at most one in-flight vendor exchange per session.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case text := <-s.queue:
			// The select can race a concurrent Close; nothing runs after
			// CLOSING begins.
			if s.isClosed() {
				return
			}
			s.handleMessage(ctx, text)
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, text string) {
	if s.sessionID == "" {
		// Degraded connection: drop silently, no error frame.
		s.logger.Warn("No vendor session, dropping message")
		return
	}

	s.logger.Info("Forwarding message", "session_id", s.sessionID, "chars", len(text))
	s.record(ctx, transcript.SenderUser, text)

	events, err := s.client.SendStreamingMessage(ctx, s.sessionID, text)
	if err != nil {
		s.logger.Error("Vendor send failed", "error", err)
		s.send(ctx, Frame{Message: "Error: " + err.Error()})
		return
	}

	for ev := range events {
		switch ev.Event {
		case agentforce.EventInform:
			reply, err := ev.InformText()
			if err != nil {
				s.logger.Warn("Malformed INFORM payload, skipping", "error", err)
				continue
			}
			if reply == "" {
				continue
			}
			s.record(ctx, transcript.SenderAgent, reply)
			s.send(ctx, Frame{Message: reply})
		case agentforce.EventEndOfTurn:
			s.logger.Debug("Agent turn complete")
		default:
			s.logger.Debug("Ignoring stream event", "event", ev.Event)
		}
	}
}

// Close releases the vendor session. It is idempotent: the vendor close call
// runs at most once no matter how many close paths fire, and its errors are
// logged, never propagated (the socket is already gone).
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	if s.sessionID == "" {
		return
	}

	s.logger.Info("Closing vendor session", "session_id", s.sessionID)
	if err := s.client.CloseSession(ctx, s.sessionID); err != nil {
		s.logger.Error("Vendor session close failed", "session_id", s.sessionID, "error", err)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) send(ctx context.Context, f Frame) {
	if err := s.out.SendFrame(ctx, f); err != nil {
		s.logger.Debug("Frame send failed", "error", err)
	}
}

func (s *Session) record(ctx context.Context, sender transcript.Sender, text string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Append(ctx, s.id, transcript.NewChatMessage(sender, text)); err != nil {
		s.logger.Warn("Transcript append failed", "error", err)
	}
}

// decodeInbound extracts the chat message from an inbound payload. The
// canonical framing is {"message": "..."}; raw text is the legacy fallback.
func decodeInbound(payload []byte) string {
	var f Frame
	if err := json.Unmarshal(payload, &f); err == nil {
		return strings.TrimSpace(f.Message)
	}
	return strings.TrimSpace(string(payload))
}
