package agentforce

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Stream event tags emitted by the Agent API. Only these two carry meaning
// for the bridge; anything else is logged and skipped by consumers.
const (
	EventInform    = "INFORM"
	EventEndOfTurn = "END_OF_TURN"
)

var errNotInform = errors.New("not an INFORM event")

// StreamEvent is one tagged chunk of a streaming vendor response.
type StreamEvent struct {
	Event string
	Data  string
}

// informPayload mirrors the nested shape the Agent API uses for INFORM
// events: the reply text lives at message.message.
type informPayload struct {
	Message struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"message"`
}

// InformText extracts the agent reply text from an INFORM event.
// Returns an empty string (no error) when the payload parses but carries no
// text; returns an error for non-INFORM events and malformed payloads.
func (e StreamEvent) InformText() (string, error) {
	if e.Event != EventInform {
		return "", errNotInform
	}
	var p informPayload
	if err := json.Unmarshal([]byte(e.Data), &p); err != nil {
		return "", fmt.Errorf("parse INFORM payload: %w", err)
	}
	return p.Message.Message, nil
}
