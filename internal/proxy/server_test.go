package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/agentbridge/internal/agentforce"
	"github.com/coder/websocket"
)

func dialTestServer(t *testing.T, ctx context.Context, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) Frame {
	t.Helper()
	_, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		t.Fatalf("Unmarshal frame failed: %v (payload %q)", err, payload)
	}
	return f
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestServerRoundTrip(t *testing.T) {
	agent := &fakeAgent{batches: [][]agentforce.StreamEvent{
		{informEvent("Here is Article #123."), endOfTurn()},
	}}
	srv := NewServer(func() (AgentClient, error) { return agent, nil }, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestServer(t, ctx, srv)

	welcome := readFrame(t, ctx, conn)
	if welcome.Message != welcomeText {
		t.Fatalf("Expected welcome frame, got %q", welcome.Message)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"message": "Article #123"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reply := readFrame(t, ctx, conn)
	if reply.Message != "Here is Article #123." {
		t.Errorf("Unexpected reply: %q", reply.Message)
	}

	if err := conn.Close(websocket.StatusNormalClosure, "done"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Vendor session must be closed exactly once after the socket drops.
	waitFor(t, 2*time.Second, func() bool {
		agent.mu.Lock()
		defer agent.mu.Unlock()
		return agent.closeCalls == 1
	})
}

func TestServerClientSetupFailure(t *testing.T) {
	srv := NewServer(func() (AgentClient, error) {
		return nil, errors.New("missing credentials")
	}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestServer(t, ctx, srv)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	notice := readFrame(t, ctx, conn)
	if notice.Message != authFailedText {
		t.Errorf("Expected failure notification, got %q", notice.Message)
	}
}

func TestServerDegradedConnectionStaysOpen(t *testing.T) {
	agent := &fakeAgent{authErr: errors.New("bad credentials")}
	srv := NewServer(func() (AgentClient, error) { return agent, nil }, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestServer(t, ctx, srv)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	notice := readFrame(t, ctx, conn)
	if notice.Message != authFailedText {
		t.Fatalf("Expected failure notification, got %q", notice.Message)
	}

	// Message on a degraded connection: dropped, no reply, socket still open.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"message": "hello"}`)); err != nil {
		t.Fatalf("Write on degraded connection failed: %v", err)
	}

	readCtx, readCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer readCancel()
	if _, _, err := conn.Read(readCtx); err == nil {
		t.Error("Expected no frame on degraded connection")
	}

	agent.mu.Lock()
	sends := agent.sendCalls
	agent.mu.Unlock()
	if sends != 0 {
		t.Errorf("Expected no forwarded calls, got %d", sends)
	}
}
