package connection

import (
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/events"
)

// Event is an input to Transition. Every transition is caused by exactly one
// event: a transport event, a classified message, a health result, a user
// or recovery action, or one of the machine's own timers.
type Event interface {
	// Trigger names the event for logs and the transition ledger.
	Trigger() string
}

// TransportOpened: the transport finished dialing.
type TransportOpened struct{}

// TransportClosed: the transport went down. Unexpected is false when the
// client asked for the close.
type TransportClosed struct {
	Unexpected bool
	Err        error
	At         time.Time
}

// DialFailed: the dial started by Dial{Seq} gave up.
type DialFailed struct {
	Seq uint64
	Err error
	At  time.Time
}

// MessageReceived: a classified inbound message.
type MessageReceived struct {
	Message events.Message
}

// ProbeCompleted: result of the probe started by Probe{Seq}.
type ProbeCompleted struct {
	Seq     uint64
	Healthy bool
	Detail  string
	At      time.Time
}

// BackendHealthy: the outage watch of generation Gen saw the relay answer
// again.
type BackendHealthy struct{ Gen uint64 }

// OutageDeclared: the outage watch of generation Gen saw the relay down for
// the full threshold.
type OutageDeclared struct{ Gen uint64 }

// ConnectRequested: user asked to connect.
type ConnectRequested struct{}

// RecoverRequested: user asked to recover (engine or relay).
type RecoverRequested struct{}

// DisconnectRequested: user asked to disconnect.
type DisconnectRequested struct{}

// LogoutRequested: the process-wide logout signal fired.
type LogoutRequested struct{}

// TimerFired: a timer scheduled by ScheduleTimer elapsed.
type TimerFired struct {
	Key TimerKey
	Gen uint64
}

// SendPurpose tags a machine-initiated send.
type SendPurpose string

const (
	PurposeReady         SendPurpose = "ready"
	PurposeRecoveryReady SendPurpose = "recovery_ready"
	PurposeContextSync   SendPurpose = "context_sync"
)

// SendCompleted: a machine-initiated send finished. Err is nil on success.
type SendCompleted struct {
	Purpose SendPurpose
	Err     error
}

func (TransportOpened) Trigger() string { return "transport_opened" }
func (e TransportClosed) Trigger() string {
	if e.Unexpected {
		return "transport_lost"
	}
	return "transport_closed"
}
func (DialFailed) Trigger() string          { return "dial_failed" }
func (e MessageReceived) Trigger() string   { return "message:" + string(e.Message.Kind()) }
func (ProbeCompleted) Trigger() string      { return "probe_completed" }
func (BackendHealthy) Trigger() string      { return "backend_healthy" }
func (OutageDeclared) Trigger() string      { return "outage_declared" }
func (ConnectRequested) Trigger() string    { return "connect" }
func (RecoverRequested) Trigger() string    { return "recover" }
func (DisconnectRequested) Trigger() string { return "disconnect" }
func (LogoutRequested) Trigger() string     { return "logout" }
func (e TimerFired) Trigger() string        { return "timer:" + string(e.Key) }
func (e SendCompleted) Trigger() string     { return "sent:" + string(e.Purpose) }
