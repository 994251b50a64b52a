package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/agentbridge/internal/transcript"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// closeTimeout bounds vendor session cleanup after the socket is gone.
const closeTimeout = 10 * time.Second

// Server accepts WebSocket connections and runs one Session per socket.
type Server struct {
	newClient func() (AgentClient, error)
	recorder  transcript.Repository
	logger    *slog.Logger
}

// NewServer creates a WebSocket proxy server. newClient builds one vendor
// client per accepted connection; recorder may be nil.
func NewServer(newClient func() (AgentClient, error), recorder transcript.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		newClient: newClient,
		recorder:  recorder,
		logger:    logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade. Upgrades are
// accepted from any origin: the widget is meant to be embeddable.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			s.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	connID := uuid.NewString()
	s.logger.Info("Client connected", "conn_id", connID, "ip", r.RemoteAddr, "origin", r.Header.Get("Origin"))

	client, err := s.newClient()
	if err != nil {
		// Configuration error: surface once and drop the connection.
		s.logger.Error("Vendor client setup failed", "conn_id", connID, "error", err)
		sender := &wsFrameSender{ws: ws}
		if sendErr := sender.SendFrame(r.Context(), Frame{Message: authFailedText}); sendErr != nil {
			s.logger.Debug("Failed to send setup error frame", "error", sendErr)
		}
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := NewSession(connID, client, &wsFrameSender{ws: ws}, s.recorder, s.logger)
	sess.Open(ctx)

	go sess.Run(ctx)

	// Read loop: socket -> session queue.
	for {
		_, payload, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.logger.Info("Client disconnected", "conn_id", connID)
			} else {
				s.logger.Warn("WebSocket read error", "conn_id", connID, "error", err)
			}
			break
		}
		sess.Enqueue(ctx, payload)
	}

	// The request context dies with the socket; cleanup gets its own one.
	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	sess.Close(closeCtx)
}

// wsFrameSender adapts websocket.Conn to FrameSender with mutex-guarded
// writes so the session worker and lifecycle notifications cannot interleave.
type wsFrameSender struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (w *wsFrameSender) SendFrame(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.Write(ctx, websocket.MessageText, data)
}
