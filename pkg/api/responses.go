package api

import (
	"github.com/codeready-toolchain/relaylink/pkg/connection"
	"github.com/codeready-toolchain/relaylink/pkg/health"
	"github.com/codeready-toolchain/relaylink/pkg/inbox"
	"github.com/codeready-toolchain/relaylink/pkg/ledger"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck is the result of a single component check.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ConnectionResponse is returned by GET /api/v1/connection.
type ConnectionResponse struct {
	connection.Status
	Linked bool               `json:"linked"`
	Outage health.WatchStatus `json:"outage_watch"`
}

// ActionResponse is returned by the connection action endpoints. The action
// is queued; State is the state at the time it was accepted.
type ActionResponse struct {
	Action string           `json:"action"`
	State  connection.State `json:"state"`
}

// SendCommandResponse is returned by POST /api/v1/commands and /api/v1/agent.
type SendCommandResponse struct {
	MessageID string `json:"message_id"`
}

// TransitionsResponse is returned by GET /api/v1/transitions.
type TransitionsResponse struct {
	Transitions []ledger.Transition `json:"transitions"`
}

// NoticesResponse is returned by GET /api/v1/notices.
type NoticesResponse struct {
	Notices []notices.Notice `json:"notices"`
}

// MessagesResponse is returned by GET /api/v1/messages.
type MessagesResponse struct {
	Messages []inbox.Entry `json:"messages"`
}
