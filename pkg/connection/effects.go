package connection

import (
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
)

// Effect is a side effect requested by Transition. Manager executes effects
// in order after the new status is committed.
type Effect interface {
	isEffect()
}

// Dial starts a transport connect tagged with Seq.
type Dial struct{ Seq uint64 }

// CloseTransport closes the transport and cancels any in-flight dial.
type CloseTransport struct{}

// Probe starts a bounded health probe tagged with Seq.
type Probe struct{ Seq uint64 }

// SendReady sends client_ready. Recovering marks the engine recovery path.
type SendReady struct{ Recovering bool }

// SendContextSync sends the context-sync request.
type SendContextSync struct{ Reason string }

// ScheduleTimer (re)arms the timer for Key. The delay is a property of the
// key and is supplied by the manager's configuration.
type ScheduleTimer struct {
	Key TimerKey
	Gen uint64
}

// CancelTimer cancels the timer for Key.
type CancelTimer struct{ Key TimerKey }

// CancelAllTimers cancels every timer and any in-flight probe.
type CancelAllTimers struct{}

// StartOutageWatch starts polling the relay, counting unavailability from
// Since. Deferred delays the first probe by one poll interval. A watch that
// is already running keeps running; Gen is always the generation it was
// started with.
type StartOutageWatch struct {
	Since    time.Time
	Deferred bool
	Gen      uint64
}

// StopOutageWatch stops the outage watch.
type StopOutageWatch struct{}

// ClearCaches clears the derived caches (the ContextCache).
type ClearCaches struct{}

// Notify raises a user-facing notice.
type Notify struct{ Notice notices.Notice }

// ClearNotices removes notices of the given categories, or all notices.
type ClearNotices struct {
	Categories []string
	All        bool
}

// Dispatch hands a classified message to the router.
type Dispatch struct{ Message events.Message }

func (Dial) isEffect()             {}
func (CloseTransport) isEffect()   {}
func (Probe) isEffect()            {}
func (SendReady) isEffect()        {}
func (SendContextSync) isEffect()  {}
func (ScheduleTimer) isEffect()    {}
func (CancelTimer) isEffect()      {}
func (CancelAllTimers) isEffect()  {}
func (StartOutageWatch) isEffect() {}
func (StopOutageWatch) isEffect()  {}
func (ClearCaches) isEffect()      {}
func (Notify) isEffect()           {}
func (ClearNotices) isEffect()     {}
func (Dispatch) isEffect()         {}
