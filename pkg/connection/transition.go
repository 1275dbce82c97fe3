package connection

import (
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
)

// Transition computes the next status and the effects for ev. It is pure:
// no clocks, no I/O, no shared state. Events that do not apply to the
// current status return it unchanged with no effects (or only a Dispatch for
// messages, which are always forwarded).
//
// Context-sync policy: contextSyncSent is released when the engine link is
// lost and when the transport drops unexpectedly, so every re-established
// engine link resyncs exactly once.
func Transition(s Status, ev Event) (Status, []Effect) {
	switch e := ev.(type) {
	case TransportOpened:
		return onTransportOpened(s)
	case TransportClosed:
		return onTransportClosed(s, e)
	case DialFailed:
		return onDialFailed(s, e)
	case MessageReceived:
		return onMessage(s, e.Message)
	case ProbeCompleted:
		return onProbeCompleted(s, e)
	case BackendHealthy:
		return onBackendHealthy(s, e)
	case OutageDeclared:
		return onOutageDeclared(s, e)
	case ConnectRequested:
		return onConnect(s)
	case RecoverRequested:
		return onRecover(s)
	case DisconnectRequested:
		return resetToDisconnected(s, false)
	case LogoutRequested:
		return resetToDisconnected(s, true)
	case TimerFired:
		return onTimer(s, e)
	case SendCompleted:
		return onSendCompleted(s, e)
	}
	return s, nil
}

func onTransportOpened(s Status) (Status, []Effect) {
	s.TransportOpen = true
	if s.Linked() {
		return s, nil
	}
	stop := stopWatch(&s)
	return s, []Effect{stop}
}

func onTransportClosed(s Status, e TransportClosed) (Status, []Effect) {
	wasOpen := s.TransportOpen
	s.TransportOpen = false
	if !e.Unexpected {
		// Closes the machine asks for land in disconnected or
		// backend_unavailable, or come from a link that is already gone.
		// Any other close loses a live link like an unexpected one.
		if !wasOpen || s.State == Disconnected || s.State == BackendUnavailable {
			return s, nil
		}
	}

	switch s.State {
	case BackendUnavailable:
		return s, nil
	case Disconnected:
		// Dropped before the relay created a session: wait for the relay
		// to come back.
		if s.LostAt.IsZero() {
			s.LostAt = e.At
		}
		return s, []Effect{
			StartOutageWatch{Since: s.LostAt, Gen: s.WatchGen},
			notify(notices.LevelWarning, notices.CategoryConnection, "Connection to the relay was lost", errText(e.Err), false),
		}
	}

	var effects []Effect
	if s.State != Reconnecting {
		s.RecoverFrom = s.State
	}
	s.State = Reconnecting
	s.Flags.Reconnection = true
	s.Flags.ReleaseContextSync()
	if s.Flags.CancelReady() {
		effects = append(effects, CancelTimer{Key: TimerReady})
	}
	if s.LostAt.IsZero() {
		s.LostAt = e.At
	}
	s.ProbeSeq++
	effects = append(effects,
		Probe{Seq: s.ProbeSeq},
		notify(notices.LevelWarning, notices.CategoryConnection, "Connection to the relay was lost, reconnecting", errText(e.Err), false),
	)
	return s, effects
}

func onDialFailed(s Status, e DialFailed) (Status, []Effect) {
	if e.Seq != s.DialSeq || s.State != Reconnecting || s.TransportOpen {
		return s, nil
	}
	return fallBack(s, e.At, "Could not reach the relay", errText(e.Err))
}

func onProbeCompleted(s Status, e ProbeCompleted) (Status, []Effect) {
	if e.Seq != s.ProbeSeq || s.State != Reconnecting || s.TransportOpen {
		return s, nil
	}
	if e.Healthy {
		d := dial(&s)
		return s, []Effect{d}
	}
	return fallBack(s, e.At, "Relay is unreachable; will reconnect when it is back", e.Detail)
}

// fallBack ends a failed reconnect attempt in the state it started from:
// backend_unavailable stays backend_unavailable, everything else rests in
// disconnected with the outage watch running.
func fallBack(s Status, at time.Time, message, detail string) (Status, []Effect) {
	next := Disconnected
	if s.RecoverFrom == BackendUnavailable {
		next = BackendUnavailable
	}
	s.State = next
	s.RecoverFrom = ""
	if s.LostAt.IsZero() {
		s.LostAt = at
	}
	return s, []Effect{
		StartOutageWatch{Since: s.LostAt, Deferred: true, Gen: s.WatchGen},
		notify(notices.LevelWarning, notices.CategoryConnection, message, detail, false),
	}
}

func onBackendHealthy(s Status, e BackendHealthy) (Status, []Effect) {
	if e.Gen != s.WatchGen || s.TransportOpen {
		return s, nil
	}
	lost := s.State == Disconnected && !s.LostAt.IsZero()
	if !lost && s.State != BackendUnavailable {
		return s, nil
	}
	s.RecoverFrom = s.State
	s.State = Reconnecting
	s.ProbeSeq++ // a fresh healthy result supersedes any probe in flight
	d := dial(&s)
	return s, []Effect{d}
}

func onOutageDeclared(s Status, e OutageDeclared) (Status, []Effect) {
	if e.Gen != s.WatchGen || s.TransportOpen {
		return s, nil
	}
	switch {
	case s.State == Reconnecting:
	case s.State == Disconnected && !s.LostAt.IsZero():
	default:
		return s, nil
	}

	// Hard reset: unlike engine_lost this also discards the client session.
	s.State = BackendUnavailable
	s.Flags.Reset()
	s.SessionID = ""
	s.RecoverFrom = ""
	s.ProbeSeq++
	s.ReadyGen++
	s.DialSeq++
	return s, []Effect{
		CloseTransport{},
		CancelAllTimers{},
		ClearCaches{},
		ClearNotices{Categories: []string{notices.CategoryConnection, notices.CategoryEngine, notices.CategoryResume}},
		notify(notices.LevelError, notices.CategoryOutage,
			"The relay has been unreachable for too long. The session was reset; it will reconnect when the relay is back.",
			"", true),
	}
}

func onConnect(s Status) (Status, []Effect) {
	switch {
	case s.State == BackendUnavailable:
	case s.State == Disconnected && !s.TransportOpen:
	default:
		return s, nil
	}
	return startReconnect(s)
}

func onRecover(s Status) (Status, []Effect) {
	if s.State == EngineLost && s.TransportOpen {
		s.RecoverFrom = EngineLost
		s.State = Reconnecting
		return s, []Effect{SendReady{Recovering: true}}
	}
	return onConnect(s)
}

// startReconnect probes before any dial from disconnected or
// backend_unavailable.
func startReconnect(s Status) (Status, []Effect) {
	s.RecoverFrom = s.State
	s.State = Reconnecting
	s.ProbeSeq++
	return s, []Effect{Probe{Seq: s.ProbeSeq}}
}

// resetToDisconnected is the explicit disconnect and logout path. It is
// valid from every state and leaves every flag cleared.
func resetToDisconnected(s Status, logout bool) (Status, []Effect) {
	next := Status{
		State:    Disconnected,
		ProbeSeq: s.ProbeSeq + 1,
		ReadyGen: s.ReadyGen + 1,
		DialSeq:  s.DialSeq + 1,
		WatchGen: s.WatchGen,
	}
	cleared := ClearNotices{Categories: []string{
		notices.CategoryConnection, notices.CategoryEngine, notices.CategoryOutage, notices.CategoryResume,
	}}
	if logout {
		cleared = ClearNotices{All: true}
	}
	stop := stopWatch(&next)
	return next, []Effect{
		CloseTransport{},
		CancelAllTimers{},
		stop,
		ClearCaches{},
		cleared,
	}
}

func onTimer(s Status, e TimerFired) (Status, []Effect) {
	if e.Key != TimerReady || e.Gen != s.ReadyGen || s.State != ClientLinked {
		return s, nil
	}
	if !s.Flags.ConsumeReady() {
		return s, nil
	}
	return s, []Effect{SendReady{Recovering: false}}
}

func onSendCompleted(s Status, e SendCompleted) (Status, []Effect) {
	switch e.Purpose {
	case PurposeRecoveryReady:
		if s.State != Reconnecting || s.RecoverFrom != EngineLost || !s.TransportOpen {
			return s, nil
		}
		s.RecoverFrom = ""
		if e.Err != nil {
			s.State = EngineLost
			return s, []Effect{notify(notices.LevelError, notices.CategoryEngine,
				"Engine recovery failed. Try again.", e.Err.Error(), true)}
		}
		s.State = ClientLinked
		return s, nil
	case PurposeContextSync:
		if e.Err == nil {
			return s, nil
		}
		// Not delivered, so not sent: the next engine link retries.
		s.Flags.ReleaseContextSync()
		return s, []Effect{notify(notices.LevelWarning, notices.CategoryMessage,
			"Could not request the scene context", e.Err.Error(), false)}
	case PurposeReady:
		if e.Err == nil {
			return s, nil
		}
		return s, []Effect{notify(notices.LevelWarning, notices.CategoryConnection,
			"Could not send the ready signal", e.Err.Error(), false)}
	}
	return s, nil
}

func onMessage(s Status, msg events.Message) (Status, []Effect) {
	var effects []Effect
	switch m := msg.(type) {
	case *events.SessionCreated:
		s, effects = onSessionCreated(s, m)
	case *events.EngineLinked:
		s, effects = onEngineLinked(s, m)
	case *events.EngineLost:
		s, effects = onEngineLost(s, m)
	default:
		if f, ok := events.AsFailure(msg); ok {
			effects = append(effects, notify(notices.LevelError, notices.CategoryMessage, f.Summary(), f.Detail(), false))
		}
	}
	return s, append(effects, Dispatch{Message: msg})
}

func onSessionCreated(s Status, m *events.SessionCreated) (Status, []Effect) {
	if !s.TransportOpen {
		return s, nil
	}
	switch s.State {
	case Disconnected, Reconnecting, BackendUnavailable:
	default:
		// Duplicate connect event on an established session.
		if s.SessionID == "" {
			s.SessionID = m.SessionID
		}
		s.Flags.MarkSessionCreated()
		return s, nil
	}
	if m.SessionID != "" {
		s.SessionID = m.SessionID
	}

	effects := []Effect{
		stopWatch(&s),
		ClearNotices{Categories: []string{notices.CategoryConnection, notices.CategoryOutage}},
	}
	s.State = ClientLinked
	s.RecoverFrom = ""
	s.LostAt = time.Time{}
	s.Flags.MarkSessionCreated()
	if s.Flags.ArmReady() {
		s.ReadyGen++
		effects = append(effects, ScheduleTimer{Key: TimerReady, Gen: s.ReadyGen})
	}
	return s, effects
}

func onEngineLinked(s Status, m *events.EngineLinked) (Status, []Effect) {
	var effects []Effect

	// The resumed marker is recorded before any other flag logic runs.
	if m.Resumed && !s.Flags.ResumedSession {
		if s.Flags.MarkResumed() {
			effects = append(effects, CancelTimer{Key: TimerReady})
		}
		effects = append(effects, notify(notices.LevelInfo, notices.CategoryResume,
			"Resumed the existing engine session", m.Text, false))
	}

	if !s.TransportOpen || s.State == FullyLinked {
		return s, effects
	}

	if s.State == ClientLinked && s.Flags.CancelReady() {
		effects = append(effects, CancelTimer{Key: TimerReady})
	}
	if !s.Flags.SessionCreated {
		// Engine linked without a session_created first: the relay
		// attached us to a session implicitly.
		s.Flags.MarkSessionCreated()
	}
	s.State = FullyLinked
	s.RecoverFrom = ""
	s.LostAt = time.Time{}
	effects = append(effects,
		stopWatch(&s),
		ClearNotices{Categories: []string{notices.CategoryConnection, notices.CategoryEngine, notices.CategoryOutage}},
	)
	if s.Flags.ClaimContextSync() {
		effects = append(effects, SendContextSync{Reason: s.Flags.ContextSyncReason()})
	}
	return s, effects
}

func onEngineLost(s Status, m *events.EngineLost) (Status, []Effect) {
	switch {
	case s.State == FullyLinked:
	case s.State == Reconnecting && s.RecoverFrom == EngineLost && s.TransportOpen:
	default:
		return s, nil
	}

	var effects []Effect
	s.State = EngineLost
	s.RecoverFrom = ""
	s.Flags.ReleaseContextSync()
	if s.Flags.CancelReady() {
		effects = append(effects, CancelTimer{Key: TimerReady})
	}
	detail := m.Reason
	if detail == "" {
		detail = m.Text
	}
	effects = append(effects,
		ClearCaches{},
		notify(notices.LevelWarning, notices.CategoryEngine,
			"The engine disconnected. Use recover to restart it.", detail, true),
	)
	return s, effects
}

func dial(s *Status) Dial {
	s.DialSeq++
	return Dial{Seq: s.DialSeq}
}

// stopWatch moves WatchGen on so reports from the stopped watch are ignored.
func stopWatch(s *Status) StopOutageWatch {
	s.WatchGen++
	return StopOutageWatch{}
}

func notify(level notices.Level, category, message, details string, persistent bool) Notify {
	return Notify{Notice: notices.Notice{
		Level:      level,
		Category:   category,
		Message:    message,
		Details:    details,
		Persistent: persistent,
	}}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
