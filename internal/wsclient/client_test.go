package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// echoServer answers every {"message": X} frame with {"message": "re: " + X}.
// A raw (non-JSON) control payload "silence" makes it stop replying, and
// "garbage" makes it emit one malformed frame first.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		silent := false
		for {
			_, payload, err := conn.Read(ctx)
			if err != nil {
				return
			}

			var f frame
			if err := json.Unmarshal(payload, &f); err != nil {
				continue
			}
			switch f.Message {
			case "silence":
				silent = true
				continue
			case "garbage":
				if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
					return
				}
			}
			if silent {
				continue
			}
			reply, _ := json.Marshal(frame{Message: "re: " + f.Message})
			if err := conn.Write(ctx, websocket.MessageText, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startClient(t *testing.T, ctx context.Context, client *Client, connected <-chan struct{}) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case <-connected:
	case err := <-done:
		t.Fatalf("Run exited before connecting: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for connection")
	}
	return done
}

func newConnectedClient(t *testing.T, ctx context.Context, url string, opts Options) (*Client, <-chan error) {
	t.Helper()
	connected := make(chan struct{}, 1)
	userOnState := opts.OnState
	opts.OnState = func(state ConnState) {
		if state == StateConnected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
		if userOnState != nil {
			userOnState(state)
		}
	}
	client := New(url, opts)
	done := startClient(t, ctx, client, connected)
	return client, done
}

func TestSendWhileDisconnected(t *testing.T) {
	client := New("ws://localhost:1/ws", Options{})
	if err := client.Send(context.Background(), "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestAskRoundTrip(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, done := newConnectedClient(t, ctx, wsURL(srv), Options{})

	reply, err := client.Ask(ctx, "hello", 5*time.Second)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply != "re: hello" {
		t.Errorf("Unexpected reply: %q", reply)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestAskTimesOutWithoutReply(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, _ := newConnectedClient(t, ctx, wsURL(srv), Options{})

	// Tell the server to go quiet, then wait on a reply that never comes.
	if _, err := client.Ask(ctx, "silence", 200*time.Millisecond); !errors.Is(err, ErrReplyTimeout) {
		t.Errorf("Expected ErrReplyTimeout, got %v", err)
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, _ := newConnectedClient(t, ctx, wsURL(srv), Options{})

	// The server emits one malformed frame before the real reply; the client
	// must skip it and still deliver the reply.
	reply, err := client.Ask(ctx, "garbage", 5*time.Second)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply != "re: garbage" {
		t.Errorf("Unexpected reply: %q", reply)
	}
}

func TestRunStopsAfterRetryBudget(t *testing.T) {
	// A server that is already gone: every dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := wsURL(srv)
	srv.Close()

	var states []ConnState
	client := New(url, Options{
		MaxAttempts: 1,
		OnState: func(state ConnState) {
			states = append(states, state)
		},
	})

	start := time.Now()
	err := client.Run(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Expected ErrRetriesExhausted, got %v", err)
	}
	// One retry means exactly one backoff delay of 1s.
	if elapsed < 1*time.Second || elapsed > 3*time.Second {
		t.Errorf("Unexpected retry timing: %v", elapsed)
	}
	if client.State() != StateDisconnected {
		t.Errorf("Expected terminal disconnected state, got %v", client.State())
	}

	// Two dial attempts: initial + one retry, never a third.
	var connecting int
	for _, s := range states {
		if s == StateConnecting {
			connecting++
		}
	}
	if connecting != 2 {
		t.Errorf("Expected 2 dial attempts, got %d (states %v)", connecting, states)
	}
}

func TestConnStateString(t *testing.T) {
	cases := map[ConnState]string{
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateDisconnected: "disconnected",
		ConnState(99):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, expected %q", state, got, want)
		}
	}
}
