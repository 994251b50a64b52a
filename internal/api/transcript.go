package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/agentbridge/internal/transcript"
	"github.com/go-chi/chi/v5"
)

// TranscriptHandler exposes per-connection transcripts for debugging.
type TranscriptHandler struct {
	repo transcript.Repository
}

// NewTranscriptHandler creates a transcript handler.
func NewTranscriptHandler(repo transcript.Repository) *TranscriptHandler {
	return &TranscriptHandler{repo: repo}
}

// RegisterRoutes registers transcript routes on the router.
func (h *TranscriptHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/transcript/{connID}", h.getTranscript)
}

func (h *TranscriptHandler) getTranscript(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "connID")
	if connID == "" {
		Error(w, http.StatusBadRequest, "missing connection id")
		return
	}

	msgs, err := h.repo.Messages(r.Context(), connID)
	if err != nil {
		slog.Error("Failed to read transcript", "conn_id", connID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to read transcript")
		return
	}
	if msgs == nil {
		msgs = []transcript.ChatMessage{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"connId":   connID,
		"messages": msgs,
	})
}
