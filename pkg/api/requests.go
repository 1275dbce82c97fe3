package api

import (
	"encoding/json"

	"github.com/codeready-toolchain/relaylink/pkg/events"
)

// SendCommandRequest is the body of POST /api/v1/commands.
type SendCommandRequest struct {
	// Type defaults to command_sent.
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// Route defaults to direct.
	Route events.Route `json:"route"`
}

// AgentRequest is the body of POST /api/v1/agent.
type AgentRequest struct {
	Text string `json:"text"`
}
