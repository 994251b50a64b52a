// Package agentforce is a client for the Salesforce Agent API: OAuth2
// client-credentials auth, session lifecycle, and synchronous or streaming
// (SSE) message delivery.
package agentforce

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultAPIBase = "https://api.salesforce.com/einstein/ai-agent/v1"

// ReplyPlaceholder is returned when a synchronous response carries no
// recognizable reply field.
const ReplyPlaceholder = "Agentforce processed your request"

var (
	ErrNotAuthenticated = errors.New("client not authenticated")
	ErrNoSessionID      = errors.New("session response carried no id")
)

// Config holds credentials and endpoints for the Agent API.
type Config struct {
	InstanceURL  string // My Domain URL, e.g. https://example.my.salesforce.com
	ClientID     string
	ClientSecret string
	AgentID      string
	APIBase      string // empty = production Agent API host
}

// Client talks to the Agent API. Authenticate must succeed before any
// session or message call; the bearer token is fetched once and reused for
// the client's lifetime.
type Client struct {
	cfg    Config
	logger *slog.Logger
	seq    atomic.Int64

	mu    sync.Mutex
	httpc *http.Client // bearer-injecting client, set by Authenticate
}

// NewClient creates a new Agent API client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InstanceURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.AgentID == "" {
		return nil, fmt.Errorf("agentforce: incomplete credentials (instanceUrl/clientId/clientSecret/agentId are all required)")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	cfg.InstanceURL = strings.TrimRight(cfg.InstanceURL, "/")
	return &Client{cfg: cfg, logger: logger}, nil
}

// Authenticate obtains a bearer token via the OAuth2 client-credentials flow.
// It performs the token request immediately so bad credentials fail fast.
func (c *Client) Authenticate(ctx context.Context) error {
	cc := &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.InstanceURL + "/services/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	if _, err := cc.Token(ctx); err != nil {
		return fmt.Errorf("authenticate against %s: %w", c.cfg.InstanceURL, err)
	}

	// No client-wide timeout: streaming responses stay open for the life of
	// a reply, and per-call deadlines come in via ctx.
	httpc := cc.Client(context.Background())

	c.mu.Lock()
	c.httpc = httpc
	c.mu.Unlock()

	c.logger.Info("Salesforce authenticated", "instance", c.cfg.InstanceURL)
	return nil
}

func (c *Client) client() (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpc == nil {
		return nil, ErrNotAuthenticated
	}
	return c.httpc, nil
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	ID        string `json:"id"`
}

// CreateSession opens a new conversation session with the configured agent.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	body := map[string]any{
		"externalSessionKey": uuid.NewString(),
		"instanceConfig": map[string]string{
			"endpoint": c.cfg.InstanceURL,
		},
		"streamingCapabilities": map[string]any{
			"chunkTypes": []string{"Text"},
		},
	}

	var resp sessionResponse
	url := fmt.Sprintf("%s/agents/%s/sessions", c.cfg.APIBase, c.cfg.AgentID)
	if err := c.doJSON(ctx, http.MethodPost, url, body, &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	// The Agent API returns sessionId; older deployments returned id.
	id := resp.SessionID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", ErrNoSessionID
	}

	c.logger.Info("Agentforce session created", "session_id", id)
	return id, nil
}

// CloseSession ends a conversation session.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	httpc, err := c.client()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/sessions/%s", c.cfg.APIBase, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	req.Header.Set("x-session-end-reason", "UserRequest")

	resp, err := httpc.Do(req)
	if err != nil {
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("close session %s: %s", sessionID, readErrorBody(resp))
	}
	return nil
}

type messageResponse struct {
	Output  string `json:"output"`
	Message string `json:"message"`
}

// SendMessage delivers one message on the synchronous endpoint and returns
// the agent reply. Responses without a recognizable reply field yield
// ReplyPlaceholder rather than an error.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	var resp messageResponse
	url := fmt.Sprintf("%s/sessions/%s/messages", c.cfg.APIBase, sessionID)
	if err := c.doJSON(ctx, http.MethodPost, url, c.messageBody(text), &resp); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	switch {
	case resp.Output != "":
		return resp.Output, nil
	case resp.Message != "":
		return resp.Message, nil
	default:
		return ReplyPlaceholder, nil
	}
}

// SendStreamingMessage delivers one message on the streaming endpoint and
// returns a channel of tagged events. The channel is closed when the vendor
// ends the stream, the context is cancelled, or the connection drops; stream
// consumption happens on a background goroutine owned by the client.
func (c *Client) SendStreamingMessage(ctx context.Context, sessionID, text string) (<-chan StreamEvent, error) {
	httpc, err := c.client()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(c.messageBody(text))
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/sessions/%s/messages/stream", c.cfg.APIBase, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("stream message: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream message: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("stream message: %s", readErrorBody(resp))
	}

	events := make(chan StreamEvent, 8)
	go c.consumeStream(resp.Body, events)
	return events, nil
}

// consumeStream parses SSE frames ("event:" / "data:" lines, blank-line
// delimited) into StreamEvents and closes the channel at end of stream.
func (c *Client) consumeStream(body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	var (
		event string
		data  []string
	)
	flush := func() {
		if event == "" && len(data) == 0 {
			return
		}
		events <- StreamEvent{Event: event, Data: strings.Join(data, "\n")}
		event, data = "", nil
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// SSE comment / keepalive.
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("event stream ended with error", "error", err)
	}
	flush()
}

func (c *Client) messageBody(text string) map[string]any {
	return map[string]any{
		"message": map[string]any{
			"sequenceId": c.seq.Add(1),
			"type":       "Text",
			"text":       text,
		},
	}
}

func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	httpc, err := c.client()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.New(readErrorBody(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)
}
