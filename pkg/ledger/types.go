// Package ledger records what the client sent, what came back for it and
// every connection state transition, keyed by message_id so a command can
// be traced end to end.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCommandNotFound is returned by GetCommand for an unknown message_id.
var ErrCommandNotFound = errors.New("command not found")

// Command is an outbound envelope as it was sent.
type Command struct {
	MessageID string          `json:"message_id"`
	Type      string          `json:"type"`
	Route     string          `json:"route"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SentAt    time.Time       `json:"sent_at"`
}

// Outcome is the relay's answer for a command. Text holds the agent's reply
// for agent_response_ready outcomes.
type Outcome struct {
	MessageID  string          `json:"message_id"`
	Kind       string          `json:"kind"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Text       string          `json:"text,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Transition is one committed state change.
type Transition struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Trigger   string    `json:"trigger"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// CommandRecord is a command together with its outcome, if one arrived.
type CommandRecord struct {
	Command
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Store persists ledger entries.
type Store interface {
	RecordCommand(ctx context.Context, cmd Command) error
	RecordOutcome(ctx context.Context, out Outcome) error
	RecordTransition(ctx context.Context, tr Transition) error
	GetCommand(ctx context.Context, messageID string) (*CommandRecord, error)
	// ListTransitions returns the newest transitions first, at most limit.
	ListTransitions(ctx context.Context, limit int) ([]Transition, error)
}

// Pruner deletes entries older than a cutoff. Both stores implement it; the
// cleanup service drives it.
type Pruner interface {
	PruneCommands(ctx context.Context, before time.Time) (int64, error)
	PruneTransitions(ctx context.Context, before time.Time) (int64, error)
}
