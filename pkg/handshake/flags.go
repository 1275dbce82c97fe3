// Package handshake owns the per-session flags and the one-shot guards for
// the two handshake actions: the ready signal and the context-sync request.
//
// Both actions fire at most once per session lifetime, the ready signal is
// skipped for resumed sessions, and nothing is re-armed until Reset, which
// the connection state machine calls only on entry to disconnected through
// an explicit disconnect, a logout or the outage hard reset.
//
// Flags is a plain value owned by the connection state machine. It is not
// safe for concurrent use; the machine mutates it only on its event loop.
package handshake

import "github.com/codeready-toolchain/relaylink/pkg/events"

// Flags is the session flag set.
type Flags struct {
	// SessionCreated is set by the first session_created of a session.
	SessionCreated bool `json:"session_created"`

	// ResumedSession is set when the relay re-attached to an engine instance
	// that was already running.
	ResumedSession bool `json:"resumed_session"`

	// ContextSyncSent guards the context-sync request.
	ContextSyncSent bool `json:"context_sync_sent"`

	// ReadySignalPending is true while the deferred ready signal is armed.
	ReadySignalPending bool `json:"ready_signal_pending"`

	// Reconnection is set once the transport was lost unexpectedly. A
	// session_created seen afterwards must not re-arm the ready signal.
	Reconnection bool `json:"reconnection"`

	// ReadySignalSent records that the ready signal already went out.
	ReadySignalSent bool `json:"ready_signal_sent"`
}

// Reset clears every flag. Only valid on entry to disconnected.
func (f *Flags) Reset() {
	*f = Flags{}
}

// IsZero reports whether every flag is cleared.
func (f Flags) IsZero() bool {
	return f == Flags{}
}

// MarkResumed records a resumption. It must run before any other flag logic
// for the message that carried the marker. Returns true if a pending ready
// signal was suppressed.
func (f *Flags) MarkResumed() bool {
	f.ResumedSession = true
	return f.CancelReady()
}

// MarkSessionCreated records session creation. Returns false for duplicates.
func (f *Flags) MarkSessionCreated() bool {
	if f.SessionCreated {
		return false
	}
	f.SessionCreated = true
	return true
}

// ArmReady arms the deferred ready signal. It refuses for resumed sessions,
// after a reconnection, when a signal is already pending and when one was
// already sent this session.
func (f *Flags) ArmReady() bool {
	if f.ResumedSession || f.Reconnection || f.ReadySignalPending || f.ReadySignalSent {
		return false
	}
	f.ReadySignalPending = true
	return true
}

// CancelReady disarms a pending ready signal. Returns true if one was pending.
func (f *Flags) CancelReady() bool {
	was := f.ReadySignalPending
	f.ReadySignalPending = false
	return was
}

// ConsumeReady is called when the ready delay elapses. It returns true
// exactly once per session, and never for a resumed session.
func (f *Flags) ConsumeReady() bool {
	if !f.ReadySignalPending {
		return false
	}
	f.ReadySignalPending = false
	if f.ResumedSession || f.ReadySignalSent {
		return false
	}
	f.ReadySignalSent = true
	return true
}

// ClaimContextSync returns true if the context-sync request should be sent
// now and marks it sent.
func (f *Flags) ClaimContextSync() bool {
	if f.ContextSyncSent {
		return false
	}
	f.ContextSyncSent = true
	return true
}

// ReleaseContextSync allows the next engine link to resync. Used when the
// request could not be delivered and when the engine link is lost.
func (f *Flags) ReleaseContextSync() {
	f.ContextSyncSent = false
}

// ContextSyncReason tags the context-sync request for observability only.
func (f Flags) ContextSyncReason() string {
	if f.ResumedSession {
		return events.SyncReasonResume
	}
	return events.SyncReasonInitial
}
