// Package connection reconciles the two links behind a relay session (client
// to relay, relay to engine) into one connection state.
//
// The rules live in Transition, a pure function from (Status, Event) to the
// next Status plus a list of Effects. Manager runs Transition on a single
// event loop and executes the effects: dialing, probing, sending the
// handshake messages, scheduling timers, clearing caches and raising notices.
//
// States:
//
//	disconnected         no session; the resting state after disconnect or logout
//	client_linked        relay accepted the transport; engine not linked yet
//	fully_linked         relay and engine both linked
//	engine_lost          transport up, engine gone; waits for a recovery action
//	reconnecting         a reconnect or recovery attempt is in progress
//	backend_unavailable  relay unreachable beyond the outage threshold; session discarded
package connection

import (
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/handshake"
)

// State is the composite connection state.
type State string

const (
	Disconnected       State = "disconnected"
	ClientLinked       State = "client_linked"
	FullyLinked        State = "fully_linked"
	EngineLost         State = "engine_lost"
	Reconnecting       State = "reconnecting"
	BackendUnavailable State = "backend_unavailable"
)

// States returns every state.
func States() []State {
	return []State{Disconnected, ClientLinked, FullyLinked, EngineLost, Reconnecting, BackendUnavailable}
}

// Valid reports whether s is one of the six states.
func (s State) Valid() bool {
	switch s {
	case Disconnected, ClientLinked, FullyLinked, EngineLost, Reconnecting, BackendUnavailable:
		return true
	}
	return false
}

// Status is everything the state machine owns. Transition takes and returns
// it by value.
type Status struct {
	State State           `json:"state"`
	Flags handshake.Flags `json:"flags"`

	// TransportOpen mirrors the transport's opened/closed events.
	TransportOpen bool `json:"transport_open"`

	// SessionID is the relay-assigned client session identity.
	SessionID string `json:"session_id,omitempty"`

	// RecoverFrom is the state a reconnect or recovery attempt started from.
	// It picks the state to fall back to when the attempt fails.
	RecoverFrom State `json:"recover_from,omitempty"`

	// ProbeSeq identifies the latest health probe; older results are stale.
	ProbeSeq uint64 `json:"probe_seq"`

	// ReadyGen identifies the latest ready timer; older firings are stale.
	ReadyGen uint64 `json:"ready_gen"`

	// DialSeq identifies the latest dial; failures of older dials are stale.
	DialSeq uint64 `json:"dial_seq"`

	// WatchGen identifies the running outage watch. It moves on every stop,
	// so reports from a stopped watch are stale.
	WatchGen uint64 `json:"watch_gen"`

	// LostAt is when the relay link was lost without the user asking.
	// Zero after an explicit disconnect or once the link is back.
	LostAt time.Time `json:"lost_at,omitzero"`
}

// Initial returns the status of a fresh manager.
func Initial() Status {
	return Status{State: Disconnected}
}

// Linked reports whether the relay session is established.
func (s Status) Linked() bool {
	return s.State == ClientLinked || s.State == FullyLinked || s.State == EngineLost
}
