package events

import "encoding/json"

// Message is a classified inbound frame. The concrete type is one of the
// pointer types in this file; switch on it or on Kind().
type Message interface {
	Kind() Kind
	// ID returns the relay-assigned message_id (empty for *Unrecognized).
	ID() string
	// RawJSON returns the frame exactly as received.
	RawJSON() json.RawMessage
}

// Failure is implemented by messages that report a message-level failure.
// They are surfaced as transient notices, never as state transitions.
type Failure interface {
	Message
	// Summary is the short user-facing text.
	Summary() string
	// Detail is the technical detail for the diagnostics channel.
	Detail() string
}

// Header holds the standard envelope members shared by every recognized
// message.
type Header struct {
	MessageID string          `json:"message_id"`
	Raw       json.RawMessage `json:"-"`
}

func (h Header) ID() string               { return h.MessageID }
func (h Header) RawJSON() json.RawMessage { return h.Raw }

// SessionCreated is sent once the relay has accepted the transport.
type SessionCreated struct {
	Header
	SessionID string
	Text      string
}

func (*SessionCreated) Kind() Kind { return KindSessionCreated }

// EngineLinked reports that the relay is bridged to a running engine.
// Resumed is true when the relay re-attached to an engine instance that was
// already running.
type EngineLinked struct {
	Header
	Text    string
	Resumed bool
}

func (*EngineLinked) Kind() Kind { return KindEngineLinked }

// EngineLost reports that the engine behind the relay went away while the
// transport stayed up.
type EngineLost struct {
	Header
	Text   string
	Reason string
}

func (*EngineLost) Kind() Kind { return KindEngineLost }

// CommandCompleted carries the outcome of a command_sent. A completed command
// may still carry an error payload, in which case Success is false.
type CommandCompleted struct {
	Header
	CommandID string
	Command   string
	Success   bool
	Result    json.RawMessage
	Error     string
}

func (*CommandCompleted) Kind() Kind { return KindCommandCompleted }

func (m *CommandCompleted) Summary() string {
	if m.Command != "" {
		return "Command " + m.Command + " failed: " + m.Error
	}
	return "Command failed: " + m.Error
}

func (m *CommandCompleted) Detail() string { return string(m.Result) }

// CommandFailed reports that a command could not be executed.
type CommandFailed struct {
	Header
	CommandID string
	Command   string
	Error     string
	Details   string
}

func (*CommandFailed) Kind() Kind { return KindCommandFailed }

func (m *CommandFailed) Summary() string {
	if m.Command != "" {
		return "Command " + m.Command + " failed: " + m.Error
	}
	return "Command failed: " + m.Error
}

func (m *CommandFailed) Detail() string { return m.Details }

// AgentResponse carries the agent's answer to an agent_request.
type AgentResponse struct {
	Header
	RequestID string
	Text      string
	Data      json.RawMessage
}

func (*AgentResponse) Kind() Kind { return KindAgentResponse }

// AgentError reports an agent failure.
type AgentError struct {
	Header
	RequestID string
	Error     string
	Details   string
}

func (*AgentError) Kind() Kind { return KindAgentError }

func (m *AgentError) Summary() string { return "Agent error: " + m.Error }
func (m *AgentError) Detail() string  { return m.Details }

// ExecutionError reports an error raised inside the engine.
type ExecutionError struct {
	Header
	Error   string
	Details string
}

func (*ExecutionError) Kind() Kind { return KindExecutionError }

func (m *ExecutionError) Summary() string { return "Execution error: " + m.Error }
func (m *ExecutionError) Detail() string  { return m.Details }

// InboxCleared reports that the pending agent inbox was emptied.
type InboxCleared struct {
	Header
	Count int
}

func (*InboxCleared) Kind() Kind { return KindInboxCleared }

// Unrecognized wraps any frame the classifier could not map. Raw is the
// original frame, byte for byte.
type Unrecognized struct {
	Raw    json.RawMessage
	Reason string
}

func (*Unrecognized) Kind() Kind                 { return KindUnrecognized }
func (*Unrecognized) ID() string                 { return "" }
func (m *Unrecognized) RawJSON() json.RawMessage { return m.Raw }

// AsFailure returns the message as a Failure when it reports a message-level
// failure. A CommandCompleted only counts when it carries an error payload.
func AsFailure(msg Message) (Failure, bool) {
	switch m := msg.(type) {
	case *CommandCompleted:
		if m.Success {
			return nil, false
		}
		return m, true
	case Failure:
		return m, true
	}
	return nil, false
}
