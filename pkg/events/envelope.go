package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Metadata is attached to every outbound envelope.
type Metadata struct {
	Timestamp string `json:"timestamp"` // RFC3339Nano
	Source    string `json:"source"`
	Route     Route  `json:"route"`

	// RefreshContext asks the relay to refresh engine context alongside the
	// request. Omitted when nil.
	RefreshContext *bool `json:"refresh_context,omitempty"`

	// Recovering marks a client_ready sent from the engine-lost recovery path.
	Recovering bool `json:"recovering,omitempty"`

	// SyncReason is set on context-sync requests (initial or resume).
	SyncReason string `json:"sync_reason,omitempty"`
}

// Envelope is the outbound wire message. Sends are fire-and-forget; MessageID
// is only used for traceability (ledger, logs).
type Envelope struct {
	MessageID string   `json:"message_id"`
	Type      string   `json:"type"`
	Payload   any      `json:"payload"`
	Metadata  Metadata `json:"metadata"`
}

// NewEnvelope builds an envelope with a fresh UUID and the current timestamp.
// A nil payload is sent as an empty object so the relay always sees the
// standard shape.
func NewEnvelope(msgType string, payload any, route Route, source string) *Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	if !route.Valid() {
		route = RouteDirect
	}
	return &Envelope{
		MessageID: uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Metadata: Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Source:    source,
			Route:     route,
		},
	}
}

// WithRefreshContext sets metadata.refresh_context and returns e.
func (e *Envelope) WithRefreshContext(refresh bool) *Envelope {
	e.Metadata.RefreshContext = &refresh
	return e
}

// Marshal encodes the envelope as JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// CommandPayload is the payload of a command_sent envelope.
type CommandPayload struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// AgentRequestPayload is the payload of an agent_request envelope.
type AgentRequestPayload struct {
	Text string `json:"text"`
}

// ReadyPayload is the payload of a client_ready envelope.
type ReadyPayload struct {
	SessionID  string `json:"session_id,omitempty"`
	Recovering bool   `json:"recovering"`
}

// SceneInfoPayload is the payload of a get_scene_info envelope.
type SceneInfoPayload struct {
	Resumed bool `json:"resumed"`
}
