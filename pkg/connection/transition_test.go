package connection

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func sessionCreated() MessageReceived {
	return MessageReceived{Message: &events.SessionCreated{Header: events.Header{MessageID: "sc"}, SessionID: "sess-1"}}
}

func engineLinked(resumed bool) MessageReceived {
	return MessageReceived{Message: &events.EngineLinked{Header: events.Header{MessageID: "el"}, Resumed: resumed}}
}

func engineLost() MessageReceived {
	return MessageReceived{Message: &events.EngineLost{Header: events.Header{MessageID: "lost"}, Reason: "engine exited"}}
}

// run applies evs in order and returns the final status plus every effect.
func run(s Status, evs ...Event) (Status, []Effect) {
	var all []Effect
	for _, ev := range evs {
		var effs []Effect
		s, effs = Transition(s, ev)
		all = append(all, effs...)
	}
	return s, all
}

func effectsOf[T Effect](effs []Effect) []T {
	var out []T
	for _, e := range effs {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func notifiesIn(effs []Effect, category string) []notices.Notice {
	var out []notices.Notice
	for _, n := range effectsOf[Notify](effs) {
		if n.Notice.Category == category {
			out = append(out, n.Notice)
		}
	}
	return out
}

// fullyLinked drives a fresh status through the normal handshake.
func fullyLinked(t *testing.T) Status {
	t.Helper()
	s, _ := run(Initial(),
		ConnectRequested{},
		ProbeCompleted{Seq: 1, Healthy: true, At: t0},
		TransportOpened{},
		sessionCreated(),
		TimerFired{Key: TimerReady, Gen: 1},
		engineLinked(false),
	)
	require.Equal(t, FullyLinked, s.State)
	return s
}

func TestTransition_InitialHandshake(t *testing.T) {
	s, effs := Transition(Initial(), ConnectRequested{})
	assert.Equal(t, Reconnecting, s.State)
	assert.Equal(t, Disconnected, s.RecoverFrom)
	assert.Equal(t, []Effect{Probe{Seq: 1}}, effs)

	s, effs = Transition(s, ProbeCompleted{Seq: 1, Healthy: true, At: t0})
	assert.Equal(t, Reconnecting, s.State)
	assert.Equal(t, []Effect{Dial{Seq: 1}}, effs)

	s, effs = Transition(s, TransportOpened{})
	assert.True(t, s.TransportOpen)
	assert.Equal(t, Reconnecting, s.State)
	assert.Equal(t, []Effect{StopOutageWatch{}}, effs)

	s, effs = Transition(s, sessionCreated())
	assert.Equal(t, ClientLinked, s.State)
	assert.Equal(t, "sess-1", s.SessionID)
	assert.True(t, s.Flags.SessionCreated)
	assert.True(t, s.Flags.ReadySignalPending)
	assert.Equal(t, []ScheduleTimer{{Key: TimerReady, Gen: 1}}, effectsOf[ScheduleTimer](effs))
	assert.Len(t, effectsOf[Dispatch](effs), 1)

	s, effs = Transition(s, TimerFired{Key: TimerReady, Gen: 1})
	assert.Equal(t, []Effect{SendReady{Recovering: false}}, effs)
	assert.True(t, s.Flags.ReadySignalSent)
	assert.False(t, s.Flags.ReadySignalPending)

	s, effs = Transition(s, engineLinked(false))
	assert.Equal(t, FullyLinked, s.State)
	assert.Equal(t, []SendContextSync{{Reason: events.SyncReasonInitial}}, effectsOf[SendContextSync](effs))
	assert.True(t, s.Flags.ContextSyncSent)
	assert.Empty(t, effectsOf[CancelTimer](effs))
}

func TestTransition_EngineLinkedBeforeReadyDelayCancelsTimer(t *testing.T) {
	s, _ := run(Initial(), ConnectRequested{}, ProbeCompleted{Seq: 1, Healthy: true}, TransportOpened{}, sessionCreated())
	require.True(t, s.Flags.ReadySignalPending)

	s, effs := Transition(s, engineLinked(false))
	assert.Equal(t, FullyLinked, s.State)
	assert.Contains(t, effs, Effect(CancelTimer{Key: TimerReady}))
	assert.False(t, s.Flags.ReadySignalPending)

	// The timer was already in flight: it must not produce a send.
	_, effs = Transition(s, TimerFired{Key: TimerReady, Gen: 1})
	assert.Empty(t, effs)
}

func TestTransition_ResumedSessionNeverSendsReady(t *testing.T) {
	s, _ := run(Initial(), ConnectRequested{}, ProbeCompleted{Seq: 1, Healthy: true}, TransportOpened{}, sessionCreated())

	s, effs := Transition(s, engineLinked(true))
	assert.True(t, s.Flags.ResumedSession)
	assert.Equal(t, FullyLinked, s.State)
	assert.Contains(t, effs, Effect(CancelTimer{Key: TimerReady}))
	assert.Len(t, notifiesIn(effs, notices.CategoryResume), 1)
	assert.Equal(t, []SendContextSync{{Reason: events.SyncReasonResume}}, effectsOf[SendContextSync](effs))

	_, effs = run(s, TimerFired{Key: TimerReady, Gen: s.ReadyGen}, sessionCreated(), engineLinked(true))
	assert.Empty(t, effectsOf[SendReady](effs))
	assert.Empty(t, effectsOf[SendContextSync](effs))
}

func TestTransition_ResumedMarkerBeforeSessionCreated(t *testing.T) {
	s, _ := run(Initial(), ConnectRequested{}, ProbeCompleted{Seq: 1, Healthy: true}, TransportOpened{})

	s, _ = Transition(s, engineLinked(true))
	assert.Equal(t, FullyLinked, s.State)
	assert.True(t, s.Flags.SessionCreated, "engine link implies a session")

	_, effs := run(s, sessionCreated(), TimerFired{Key: TimerReady, Gen: s.ReadyGen})
	assert.Empty(t, effectsOf[ScheduleTimer](effs))
	assert.Empty(t, effectsOf[SendReady](effs))
}

func TestTransition_DuplicateConnectEventsAreIdempotent(t *testing.T) {
	s, effs := run(Initial(),
		ConnectRequested{},
		ProbeCompleted{Seq: 1, Healthy: true},
		TransportOpened{},
		sessionCreated(),
		sessionCreated(),
		TimerFired{Key: TimerReady, Gen: 1},
		TimerFired{Key: TimerReady, Gen: 1},
		engineLinked(false),
		engineLinked(false),
		sessionCreated(),
	)
	assert.Equal(t, FullyLinked, s.State)
	assert.Len(t, effectsOf[ScheduleTimer](effs), 1)
	assert.Len(t, effectsOf[SendReady](effs), 1)
	assert.Len(t, effectsOf[SendContextSync](effs), 1)
	// Every message is still forwarded.
	assert.Len(t, effectsOf[Dispatch](effs), 5)
}

func TestTransition_EngineLostAndRecovery(t *testing.T) {
	s := fullyLinked(t)

	s, effs := Transition(s, engineLost())
	assert.Equal(t, EngineLost, s.State)
	assert.True(t, s.TransportOpen)
	assert.False(t, s.Flags.ContextSyncSent)
	assert.Len(t, effectsOf[ClearCaches](effs), 1)
	lost := notifiesIn(effs, notices.CategoryEngine)
	require.Len(t, lost, 1)
	assert.True(t, lost[0].Persistent)
	assert.Equal(t, "engine exited", lost[0].Details)

	s, effs = Transition(s, RecoverRequested{})
	assert.Equal(t, Reconnecting, s.State)
	assert.Equal(t, EngineLost, s.RecoverFrom)
	assert.Equal(t, []Effect{SendReady{Recovering: true}}, effs)

	s, effs = Transition(s, SendCompleted{Purpose: PurposeRecoveryReady})
	assert.Equal(t, ClientLinked, s.State)
	assert.Empty(t, effs)

	s, effs = Transition(s, engineLinked(false))
	assert.Equal(t, FullyLinked, s.State)
	assert.Equal(t, []SendContextSync{{Reason: events.SyncReasonInitial}}, effectsOf[SendContextSync](effs),
		"context sync is released on engine loss and sent again")
	assert.Contains(t, effs, Effect(ClearNotices{Categories: []string{
		notices.CategoryConnection, notices.CategoryEngine, notices.CategoryOutage,
	}}))
}

func TestTransition_EngineLinkedBeforeRecoveryAck(t *testing.T) {
	s, _ := run(fullyLinked(t), engineLost(), RecoverRequested{})

	s, effs := Transition(s, engineLinked(false))
	assert.Equal(t, FullyLinked, s.State)
	assert.Len(t, effectsOf[SendContextSync](effs), 1)

	s, effs = Transition(s, SendCompleted{Purpose: PurposeRecoveryReady})
	assert.Equal(t, FullyLinked, s.State)
	assert.Empty(t, effs)
}

func TestTransition_RecoveryFailureReturnsToEngineLost(t *testing.T) {
	s, _ := run(fullyLinked(t), engineLost(), RecoverRequested{})

	s, effs := Transition(s, SendCompleted{Purpose: PurposeRecoveryReady, Err: errors.New("write failed")})
	assert.Equal(t, EngineLost, s.State)
	failed := notifiesIn(effs, notices.CategoryEngine)
	require.Len(t, failed, 1)
	assert.Equal(t, notices.LevelError, failed[0].Level)
	assert.Equal(t, "write failed", failed[0].Details)
}

func TestTransition_EngineLostDuringRecovery(t *testing.T) {
	s, _ := run(fullyLinked(t), engineLost(), RecoverRequested{})

	s, effs := Transition(s, engineLost())
	assert.Equal(t, EngineLost, s.State)
	assert.Len(t, effectsOf[ClearCaches](effs), 1)
}

func TestTransition_EngineLostIgnoredOutsideLinkedStates(t *testing.T) {
	for _, s := range []Status{
		Initial(),
		{State: ClientLinked, TransportOpen: true},
		{State: BackendUnavailable},
	} {
		next, effs := Transition(s, engineLost())
		assert.Equal(t, s.State, next.State)
		assert.Empty(t, effectsOf[ClearCaches](effs))
		assert.Len(t, effectsOf[Dispatch](effs), 1)
	}
}

func TestTransition_UnexpectedTransportLoss(t *testing.T) {
	linked := fullyLinked(t)

	s, effs := Transition(linked, TransportClosed{Unexpected: true, Err: errors.New("reset"), At: t0})
	assert.Equal(t, Reconnecting, s.State)
	assert.Equal(t, FullyLinked, s.RecoverFrom)
	assert.False(t, s.TransportOpen)
	assert.True(t, s.Flags.Reconnection)
	assert.False(t, s.Flags.ContextSyncSent)
	assert.Equal(t, t0, s.LostAt)
	assert.Equal(t, []Probe{{Seq: linked.ProbeSeq + 1}}, effectsOf[Probe](effs))
	assert.Len(t, notifiesIn(effs, notices.CategoryConnection), 1)

	// Healthy probe dials; the relay recreates the session without a new
	// ready signal, and the engine link resyncs context.
	s, effs = run(s,
		ProbeCompleted{Seq: s.ProbeSeq, Healthy: true, At: t0},
		TransportOpened{},
		sessionCreated(),
		engineLinked(false),
	)
	assert.Equal(t, FullyLinked, s.State)
	assert.Empty(t, effectsOf[ScheduleTimer](effs))
	assert.Len(t, effectsOf[SendContextSync](effs), 1)
	assert.True(t, s.LostAt.IsZero())
}

func TestTransition_CloseOfLiveLinkReconnects(t *testing.T) {
	starts := map[string]Status{
		"client linked": func() Status {
			s, _ := run(Initial(), ConnectRequested{}, ProbeCompleted{Seq: 1, Healthy: true}, TransportOpened{}, sessionCreated())
			return s
		}(),
		"fully linked": fullyLinked(t),
		"engine lost":  func() Status { s, _ := run(fullyLinked(t), engineLost()); return s }(),
	}
	for name, start := range starts {
		t.Run(name, func(t *testing.T) {
			s, effs := Transition(start, TransportClosed{Unexpected: false, At: t0})
			assert.Equal(t, Reconnecting, s.State)
			assert.Equal(t, start.State, s.RecoverFrom)
			assert.False(t, s.TransportOpen)
			assert.False(t, s.Flags.ReadySignalPending)
			assert.Equal(t, []Probe{{Seq: start.ProbeSeq + 1}}, effectsOf[Probe](effs))

			// Nothing can enter a linked state until a new transport opens.
			next, _ := Transition(s, engineLost())
			assert.Equal(t, Reconnecting, next.State)
			next, _ = Transition(s, engineLinked(false))
			assert.Equal(t, Reconnecting, next.State)
		})
	}
}

func TestTransition_CloseOfDeadLinkIgnored(t *testing.T) {
	// The close reported for a disconnect lands after the next connect.
	s, _ := run(fullyLinked(t), DisconnectRequested{}, ConnectRequested{})
	require.Equal(t, Reconnecting, s.State)
	require.False(t, s.TransportOpen)

	next, effs := Transition(s, TransportClosed{Unexpected: false, At: t0})
	assert.Equal(t, s, next)
	assert.Empty(t, effs)

	for _, st := range []Status{Initial(), {State: BackendUnavailable, LostAt: t0}} {
		next, effs := Transition(st, TransportClosed{Unexpected: false})
		assert.Equal(t, st.State, next.State)
		assert.Empty(t, effs)
	}
}

func TestTransition_UnhealthyProbeFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		start  Status
		expect State
	}{
		{name: "from disconnected", start: Initial(), expect: Disconnected},
		{name: "from backend unavailable", start: Status{State: BackendUnavailable, LostAt: t0}, expect: BackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := Transition(tt.start, ConnectRequested{})
			require.Equal(t, Reconnecting, s.State)

			s, effs := Transition(s, ProbeCompleted{Seq: s.ProbeSeq, Healthy: false, Detail: "connection refused", At: t0.Add(time.Minute)})
			assert.Equal(t, tt.expect, s.State)
			assert.Empty(t, s.RecoverFrom)
			watch := effectsOf[StartOutageWatch](effs)
			require.Len(t, watch, 1)
			assert.Equal(t, s.LostAt, watch[0].Since)
			assert.Empty(t, effectsOf[Dial](effs), "no dial without a healthy probe")
		})
	}
}

func TestTransition_DialFailureFallsBack(t *testing.T) {
	s, _ := run(Initial(), ConnectRequested{}, ProbeCompleted{Seq: 1, Healthy: true})

	s, effs := Transition(s, DialFailed{Seq: 1, Err: errors.New("refused"), At: t0})
	assert.Equal(t, Disconnected, s.State)
	assert.Equal(t, t0, s.LostAt)
	assert.Len(t, effectsOf[StartOutageWatch](effs), 1)
	assert.Empty(t, effectsOf[Dial](effs), "a failed dial is never retried without a probe")
}

func TestTransition_StaleDialFailureIgnored(t *testing.T) {
	// A dial is in flight when the user disconnects and connects again; the
	// cancelled dial reports its failure into the new attempt.
	s, effs := run(Initial(), ConnectRequested{}, ProbeCompleted{Seq: 1, Healthy: true})
	require.Equal(t, []Dial{{Seq: 1}}, effectsOf[Dial](effs))
	s, _ = run(s, DisconnectRequested{}, ConnectRequested{})

	next, effs := Transition(s, DialFailed{Seq: 1, Err: context.Canceled, At: t0})
	assert.Equal(t, s, next)
	assert.Empty(t, effs)

	// The fresh attempt is unaffected.
	s, effs = Transition(next, ProbeCompleted{Seq: next.ProbeSeq, Healthy: true, At: t0})
	assert.Equal(t, Reconnecting, s.State)
	require.Equal(t, []Dial{{Seq: s.DialSeq}}, effectsOf[Dial](effs))
	assert.Greater(t, s.DialSeq, uint64(1))

	s, _ = run(s, TransportOpened{}, sessionCreated())
	assert.Equal(t, ClientLinked, s.State)
}

func TestTransition_StaleProbeAndTimerIgnored(t *testing.T) {
	s, _ := run(Initial(), ConnectRequested{})
	stale := ProbeCompleted{Seq: s.ProbeSeq, Healthy: true}
	s, _ = run(s, DisconnectRequested{}, ConnectRequested{})

	next, effs := Transition(s, stale)
	assert.Equal(t, s, next)
	assert.Empty(t, effs)

	s, _ = run(Initial(), ConnectRequested{}, ProbeCompleted{Seq: 1, Healthy: true}, TransportOpened{}, sessionCreated())
	next, effs = Transition(s, TimerFired{Key: TimerReady, Gen: s.ReadyGen - 1})
	assert.Equal(t, s, next)
	assert.Empty(t, effs)
}

func TestTransition_OutageResetsSession(t *testing.T) {
	s, _ := run(fullyLinked(t),
		TransportClosed{Unexpected: true, At: t0},
	)
	s, _ = Transition(s, ProbeCompleted{Seq: s.ProbeSeq, Healthy: false, At: t0})
	require.Equal(t, Disconnected, s.State)
	require.Equal(t, t0, s.LostAt)

	stale := OutageDeclared{Gen: s.WatchGen - 1}
	next, effs := Transition(s, stale)
	assert.Equal(t, s, next, "report from a stopped watch")
	assert.Empty(t, effs)

	s, effs = Transition(s, OutageDeclared{Gen: s.WatchGen})
	assert.Equal(t, BackendUnavailable, s.State)
	assert.True(t, s.Flags.IsZero())
	assert.Empty(t, s.SessionID)
	assert.Len(t, effectsOf[ClearCaches](effs), 1)
	assert.Len(t, effectsOf[CancelAllTimers](effs), 1)
	assert.Len(t, effectsOf[CloseTransport](effs), 1)
	outage := notifiesIn(effs, notices.CategoryOutage)
	require.Len(t, outage, 1)
	assert.True(t, outage[0].Persistent)
	assert.Equal(t, notices.LevelError, outage[0].Level)

	// The relay comes back: a fresh session gets the full handshake.
	s, effs = Transition(s, BackendHealthy{Gen: s.WatchGen})
	assert.Equal(t, Reconnecting, s.State)
	assert.Equal(t, []Effect{Dial{Seq: s.DialSeq}}, effs)

	s, effs = run(s, TransportOpened{}, sessionCreated())
	assert.Equal(t, ClientLinked, s.State)
	assert.Len(t, effectsOf[ScheduleTimer](effs), 1)
	assert.Contains(t, effs, Effect(ClearNotices{Categories: []string{notices.CategoryConnection, notices.CategoryOutage}}))
}

func TestTransition_OutageIgnoredWhileLinked(t *testing.T) {
	s := fullyLinked(t)
	next, effs := Transition(s, OutageDeclared{Gen: s.WatchGen})
	assert.Equal(t, s, next)
	assert.Empty(t, effs)

	next, effs = Transition(Initial(), OutageDeclared{})
	assert.Equal(t, Initial(), next, "no outage without a lost link")
	assert.Empty(t, effs)
}

func TestTransition_BackendHealthyOnlyAfterLoss(t *testing.T) {
	next, effs := Transition(Initial(), BackendHealthy{})
	assert.Equal(t, Initial(), next)
	assert.Empty(t, effs)

	lost := Status{State: Disconnected, LostAt: t0, WatchGen: 2, DialSeq: 4}
	next, effs = Transition(lost, BackendHealthy{Gen: 1})
	assert.Equal(t, lost, next, "report from a stopped watch")
	assert.Empty(t, effs)

	next, effs = Transition(lost, BackendHealthy{Gen: 2})
	assert.Equal(t, Reconnecting, next.State)
	assert.Equal(t, Disconnected, next.RecoverFrom)
	assert.Equal(t, []Effect{Dial{Seq: 5}}, effs)
}

func TestTransition_ConnectIgnoredWhenActive(t *testing.T) {
	for _, s := range []Status{
		fullyLinked(t),
		{State: Reconnecting, ProbeSeq: 3},
		{State: ClientLinked, TransportOpen: true},
	} {
		next, effs := Transition(s, ConnectRequested{})
		assert.Equal(t, s, next)
		assert.Empty(t, effs)
	}
}

func TestTransition_LogoutResetsEverything(t *testing.T) {
	starts := map[string]Status{
		"fully linked": fullyLinked(t),
		"engine lost":  func() Status { s, _ := run(fullyLinked(t), engineLost()); return s }(),
		"reconnecting": func() Status { s, _ := run(fullyLinked(t), TransportClosed{Unexpected: true, At: t0}); return s }(),
		"backend unavailable": {
			State: BackendUnavailable, LostAt: t0, ProbeSeq: 4, ReadyGen: 2,
		},
	}
	for name, start := range starts {
		t.Run(name, func(t *testing.T) {
			s, effs := Transition(start, LogoutRequested{})
			assert.Equal(t, Disconnected, s.State)
			assert.True(t, s.Flags.IsZero())
			assert.False(t, s.TransportOpen)
			assert.Empty(t, s.SessionID)
			assert.Empty(t, s.RecoverFrom)
			assert.True(t, s.LostAt.IsZero())
			assert.Greater(t, s.ProbeSeq, start.ProbeSeq)
			assert.Greater(t, s.ReadyGen, start.ReadyGen)
			assert.Greater(t, s.DialSeq, start.DialSeq)
			assert.Greater(t, s.WatchGen, start.WatchGen)
			assert.Equal(t, []Effect{
				CloseTransport{}, CancelAllTimers{}, StopOutageWatch{}, ClearCaches{}, ClearNotices{All: true},
			}, effs)
		})
	}
}

func TestTransition_DisconnectKeepsUnrelatedNotices(t *testing.T) {
	_, effs := Transition(fullyLinked(t), DisconnectRequested{})
	cleared := effectsOf[ClearNotices](effs)
	require.Len(t, cleared, 1)
	assert.False(t, cleared[0].All)
	assert.NotContains(t, cleared[0].Categories, notices.CategoryMessage)
}

func TestTransition_FailureMessagesRaiseNotices(t *testing.T) {
	s := fullyLinked(t)
	msgs := []events.Message{
		&events.CommandFailed{CommandID: "c1", Command: "add_cube", Error: "boom", Details: "trace"},
		&events.CommandCompleted{CommandID: "c2", Command: "add_cube", Success: false, Error: "bad params"},
		&events.AgentError{Error: "quota"},
		&events.ExecutionError{Error: "python error"},
	}
	for _, msg := range msgs {
		next, effs := Transition(s, MessageReceived{Message: msg})
		assert.Equal(t, s, next)
		n := notifiesIn(effs, notices.CategoryMessage)
		require.Len(t, n, 1, msg.Kind())
		assert.Equal(t, notices.LevelError, n[0].Level)
		assert.False(t, n[0].Persistent)
	}

	_, effs := Transition(s, MessageReceived{Message: &events.CommandCompleted{Success: true}})
	assert.Empty(t, effectsOf[Notify](effs))
	assert.Len(t, effectsOf[Dispatch](effs), 1)
}

func TestTransition_ContextSyncFailureIsRetried(t *testing.T) {
	s := fullyLinked(t)
	s, effs := Transition(s, SendCompleted{Purpose: PurposeContextSync, Err: errors.New("closed")})
	assert.False(t, s.Flags.ContextSyncSent)
	assert.Len(t, effectsOf[Notify](effs), 1)
}

func TestTransition_Triggers(t *testing.T) {
	assert.Equal(t, "transport_lost", TransportClosed{Unexpected: true}.Trigger())
	assert.Equal(t, "transport_closed", TransportClosed{}.Trigger())
	assert.Equal(t, "message:blender_connected", engineLinked(false).Trigger())
	assert.Equal(t, "timer:ready", TimerFired{Key: TimerReady}.Trigger())
	assert.Equal(t, "sent:recovery_ready", SendCompleted{Purpose: PurposeRecoveryReady}.Trigger())
}

// TestTransition_RandomSequencesKeepInvariants feeds arbitrary interleavings
// of every event source and checks the invariants after each step.
func TestTransition_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	gen := func(s Status) Event {
		switch rng.Intn(16) {
		case 0:
			return TransportOpened{}
		case 1:
			return TransportClosed{Unexpected: rng.Intn(4) != 0, At: t0}
		case 2:
			seq := s.DialSeq
			if rng.Intn(3) == 0 && seq > 0 {
				seq--
			}
			return DialFailed{Seq: seq, At: t0}
		case 3:
			return sessionCreated()
		case 4:
			return engineLinked(rng.Intn(3) == 0)
		case 5:
			return engineLost()
		case 6:
			seq := s.ProbeSeq
			if rng.Intn(3) == 0 && seq > 0 {
				seq--
			}
			return ProbeCompleted{Seq: seq, Healthy: rng.Intn(2) == 0, At: t0}
		case 7:
			return BackendHealthy{Gen: s.WatchGen}
		case 8:
			gen := s.WatchGen
			if rng.Intn(3) == 0 && gen > 0 {
				gen--
			}
			return OutageDeclared{Gen: gen}
		case 9:
			return ConnectRequested{}
		case 10:
			return RecoverRequested{}
		case 11:
			if rng.Intn(4) == 0 {
				return DisconnectRequested{}
			}
			return ConnectRequested{}
		case 12:
			if rng.Intn(4) == 0 {
				return LogoutRequested{}
			}
			return RecoverRequested{}
		case 13:
			gen := s.ReadyGen
			if rng.Intn(3) == 0 && gen > 0 {
				gen--
			}
			return TimerFired{Key: TimerReady, Gen: gen}
		case 14:
			purposes := []SendPurpose{PurposeReady, PurposeRecoveryReady, PurposeContextSync}
			var err error
			if rng.Intn(3) == 0 {
				err = errors.New("send failed")
			}
			return SendCompleted{Purpose: purposes[rng.Intn(len(purposes))], Err: err}
		default:
			return MessageReceived{Message: &events.InboxCleared{}}
		}
	}

	s := Initial()
	readySent := 0
	for step := 0; step < 20000; step++ {
		ev := gen(s)
		prev := s
		var effs []Effect
		s, effs = Transition(s, ev)

		require.True(t, s.State.Valid(), "step %d: invalid state %q", step, s.State)
		if s.Flags.ReadySignalPending {
			require.Equal(t, ClientLinked, s.State, "step %d: ready pending outside client_linked", step)
		}
		if s.Linked() && prev.State != s.State {
			require.True(t, s.TransportOpen, "step %d: entered %s without transport", step, s.State)
		}
		if _, ok := ev.(OutageDeclared); ok && s.State == BackendUnavailable && prev.State != BackendUnavailable {
			require.Len(t, effectsOf[ClearCaches](effs), 1, "step %d: outage without cache clear", step)
		}

		for _, send := range effectsOf[SendReady](effs) {
			if send.Recovering {
				continue
			}
			require.False(t, prev.Flags.ResumedSession, "step %d: ready sent for resumed session", step)
			readySent++
			require.LessOrEqual(t, readySent, 1, "step %d: ready sent twice in one session", step)
		}
		require.LessOrEqual(t, len(effectsOf[SendContextSync](effs)), 1)
		if len(effectsOf[SendContextSync](effs)) == 1 {
			require.False(t, prev.Flags.ContextSyncSent, "step %d: context sync while already sent", step)
		}

		switch ev.(type) {
		case LogoutRequested, DisconnectRequested:
			require.True(t, s.Flags.IsZero())
			readySent = 0
		case OutageDeclared:
			if s.State == BackendUnavailable && prev.State != BackendUnavailable {
				require.True(t, s.Flags.IsZero())
				readySent = 0
			}
		}
	}
}
