// Package relay implements the stateless REST deployment shape: each request
// forwards one message to the vendor and returns the reply, sharing only the
// process-wide cached credentials.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/agentbridge/internal/api"
	"github.com/go-chi/chi/v5"
)

// AgentClient is the vendor API surface the relay needs.
type AgentClient interface {
	Authenticate(ctx context.Context) error
	CreateSession(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, sessionID, text string) (string, error)
}

// Handler serves the relay endpoint.
type Handler struct {
	client AgentClient
	creds  *Credentials
	logger *slog.Logger
}

// NewHandler creates a relay handler with an empty credential cache.
func NewHandler(client AgentClient, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: client,
		creds:  NewCredentials(client),
		logger: logger,
	}
}

// RegisterRoutes registers relay routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.status)
	r.Post("/chat", h.chat)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "No message provided")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		api.Error(w, http.StatusBadRequest, "No message provided")
		return
	}

	sessionID, err := h.creds.Session(r.Context())
	if err != nil {
		h.logger.Error("Vendor session unavailable", "error", err)
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	reply, err := h.client.SendMessage(r.Context(), sessionID, message)
	if err != nil {
		h.logger.Error("Vendor send failed", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("Relayed message", "session_id", sessionID, "chars", len(message))
	api.JSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// status lets the widget probe whether the backend is live.
func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
