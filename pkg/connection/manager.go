package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/config"
	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/health"
	"github.com/codeready-toolchain/relaylink/pkg/ledger"
	"github.com/codeready-toolchain/relaylink/pkg/lifecycle"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
	"github.com/codeready-toolchain/relaylink/pkg/transport"
)

var (
	// ErrNotLinked is returned by sends while no relay session is established.
	ErrNotLinked = errors.New("relay session not established")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("connection manager already running")
	// ErrStopped is returned by actions posted after Run exited.
	ErrStopped = errors.New("connection manager stopped")
)

const inboxSize = 64

// ContextCache is the derived state cleared on engine loss, outage and logout.
// Expect is told the message_id of each context sync so only its answer is
// accepted.
type ContextCache interface {
	Clear()
	Expect(messageID string)
}

// NoticeSink receives user-facing notices.
type NoticeSink interface {
	Add(n notices.Notice) string
	ClearCategory(category string) int
	Clear() int
}

// LedgerRecorder records sends, outcomes and transitions without blocking.
type LedgerRecorder interface {
	RecordCommand(cmd ledger.Command)
	RecordOutcome(out ledger.Outcome)
	RecordTransition(tr ledger.Transition)
}

// Deps are the collaborators of a Manager. Transport is required; the rest
// are optional.
type Deps struct {
	Transport transport.Transport
	// Prober gates every reconnect and drives the outage watch. Nil means
	// the relay is always considered reachable.
	Prober  health.Prober
	Cache   ContextCache
	Notices NoticeSink
	Ledger  LedgerRecorder
	Signals *lifecycle.Signals
	Router  *events.Router
}

// Change describes a committed state change.
type Change struct {
	From    State
	To      State
	Trigger string
	Status  Status
}

// Manager runs the state machine. All transitions happen on the Run
// goroutine; public methods only post events or read a snapshot.
type Manager struct {
	cfg       *config.SessionConfig
	transport transport.Transport
	prober    health.Prober
	cache     ContextCache
	notices   NoticeSink
	ledger    LedgerRecorder
	signals   *lifecycle.Signals
	router    *events.Router
	watch     *health.Watch
	timers    *timerRegistry
	now       func() time.Time

	inbox   chan Event
	done    chan struct{}
	running atomic.Bool

	mu        sync.RWMutex
	status    Status
	listeners []func(Change)

	probeMu     sync.Mutex
	probeCancel context.CancelFunc

	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewManager creates a manager in the disconnected state. Nothing happens
// until Run is called.
func NewManager(cfg *config.SessionConfig, deps Deps) (*Manager, error) {
	if deps.Transport == nil {
		return nil, fmt.Errorf("connection manager: transport is required")
	}
	if cfg == nil {
		cfg = config.Default().Session
	}
	prober := deps.Prober
	if prober == nil {
		prober = health.ProberFunc(func(context.Context, time.Duration) health.Result {
			return health.Result{Healthy: true, CheckedAt: time.Now()}
		})
	}
	router := deps.Router
	if router == nil {
		router = events.NewRouter()
	}

	m := &Manager{
		cfg:       cfg,
		transport: deps.Transport,
		prober:    prober,
		cache:     deps.Cache,
		notices:   deps.Notices,
		ledger:    deps.Ledger,
		signals:   deps.Signals,
		router:    router,
		now:       time.Now,
		inbox:     make(chan Event, inboxSize),
		done:      make(chan struct{}),
		status:    Initial(),
		logger:    slog.Default().With("component", "connection"),
	}
	m.timers = newTimerRegistry(func(ev TimerFired) { m.post(ev) })
	m.watch = health.NewWatch(prober, health.WatchConfig{
		Interval:  cfg.OutagePollInterval,
		Threshold: cfg.OutageThreshold,
		Timeout:   cfg.ProbeTimeout,
		OnHealthy: func(ctx context.Context) { m.postCtx(ctx, BackendHealthy{Gen: watchGenOf(ctx)}) },
		OnOutage:  func(ctx context.Context) { m.postCtx(ctx, OutageDeclared{Gen: watchGenOf(ctx)}) },
	})
	if m.ledger != nil {
		m.installOutcomeRecorder()
	}
	return m, nil
}

// Router returns the router inbound messages are dispatched to.
func (m *Manager) Router() *events.Router {
	return m.router
}

// Status returns a snapshot of the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// OutageWatch returns the outage watch status.
func (m *Manager) OutageWatch() health.WatchStatus {
	return m.watch.Status()
}

// OnStateChange registers fn to be called on the Run goroutine after every
// state change. fn must not block.
func (m *Manager) OnStateChange(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Connect asks for a connection. Ignored unless disconnected or
// backend_unavailable.
func (m *Manager) Connect() error { return m.postAction(ConnectRequested{}) }

// Recover restarts the engine after engine_lost, or reconnects otherwise.
func (m *Manager) Recover() error { return m.postAction(RecoverRequested{}) }

// Disconnect closes the session and returns to disconnected.
func (m *Manager) Disconnect() error { return m.postAction(DisconnectRequested{}) }

// Logout resets this manager and, when Signals is configured, broadcasts
// the logout signal to every other subscriber. Returns ErrStopped once Run
// has exited.
func (m *Manager) Logout() error {
	if err := m.postAction(LogoutRequested{}); err != nil {
		return err
	}
	if m.signals != nil {
		m.signals.Logout()
	}
	return nil
}

// Run processes events until ctx is cancelled. It closes the transport and
// cancels every timer, probe and watch on exit.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var logout <-chan struct{}
	if m.signals != nil {
		ch, unsubscribe := m.signals.Subscribe()
		defer unsubscribe()
		logout = ch
	}

	defer func() {
		m.timers.CancelAll()
		m.cancelProbe()
		m.watch.Stop()
		m.transport.Disconnect()
		close(m.done)
		m.wg.Wait()
		m.logger.Info("Connection manager stopped")
	}()

	m.logger.Info("Connection manager started")
	transportEvents := m.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case tev, ok := <-transportEvents:
			if !ok {
				transportEvents = nil
				continue
			}
			if ev := m.fromTransport(tev); ev != nil {
				m.handle(ctx, ev)
			}
		case ev := <-m.inbox:
			m.handle(ctx, ev)
		case <-logout:
			m.handle(ctx, LogoutRequested{})
		}
	}
}

// SendCommand sends a command envelope and returns its message_id. The send
// is fire-and-forget: the answer arrives later as a routed message.
func (m *Manager) SendCommand(ctx context.Context, msgType string, payload any, route events.Route) (string, error) {
	st := m.Status()
	if !st.Linked() {
		return "", ErrNotLinked
	}
	env := events.NewEnvelope(msgType, payload, route, m.cfg.Source)
	if err := m.sendEnvelope(ctx, env, st.SessionID); err != nil {
		m.notify(notices.LevelWarning, notices.CategoryMessage, "Could not send the request", err.Error())
		return env.MessageID, err
	}
	return env.MessageID, nil
}

// SendAgentRequest sends a free-text request on the agent route.
func (m *Manager) SendAgentRequest(ctx context.Context, text string) (string, error) {
	return m.SendCommand(ctx, events.TypeAgentRequest, events.AgentRequestPayload{Text: text}, events.RouteAgent)
}

func (m *Manager) fromTransport(tev transport.Event) Event {
	switch tev.Type {
	case transport.EventOpened:
		return TransportOpened{}
	case transport.EventClosed:
		return TransportClosed{Unexpected: tev.Unexpected, Err: tev.Err, At: m.now()}
	case transport.EventMessage:
		msg := events.Classify(tev.Data)
		if u, ok := msg.(*events.Unrecognized); ok {
			m.logger.Warn("Unrecognized message from relay", "reason", u.Reason, "bytes", len(u.Raw))
		}
		return MessageReceived{Message: msg}
	case transport.EventError:
		m.logger.Warn("Transport error", "error", tev.Err)
	}
	return nil
}

// handle runs one transition to completion before the next event is read.
func (m *Manager) handle(ctx context.Context, ev Event) {
	m.mu.Lock()
	prev := m.status
	next, effects := Transition(prev, ev)
	m.status = next
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	if prev.State != next.State {
		m.logger.Info("Connection state changed",
			"from", prev.State, "to", next.State, "trigger", ev.Trigger())
		if m.ledger != nil {
			m.ledger.RecordTransition(ledger.Transition{
				From:      string(prev.State),
				To:        string(next.State),
				Trigger:   ev.Trigger(),
				SessionID: next.SessionID,
				At:        m.now(),
			})
		}
		change := Change{From: prev.State, To: next.State, Trigger: ev.Trigger(), Status: next}
		for _, fn := range listeners {
			fn(change)
		}
	} else if len(effects) == 0 {
		m.logger.Debug("Event ignored", "state", next.State, "trigger", ev.Trigger())
	}

	for _, eff := range effects {
		m.execute(ctx, next, eff)
	}
}

func (m *Manager) execute(ctx context.Context, st Status, eff Effect) {
	switch e := eff.(type) {
	case Dial:
		m.goDial(ctx, e.Seq)
	case CloseTransport:
		m.cancelProbe()
		m.transport.Disconnect()
	case Probe:
		m.goProbe(ctx, e.Seq)
	case SendReady:
		purpose := PurposeReady
		if e.Recovering {
			purpose = PurposeRecoveryReady
		}
		env := events.NewEnvelope(events.TypeClientReady,
			events.ReadyPayload{SessionID: st.SessionID, Recovering: e.Recovering}, events.RouteDirect, m.cfg.Source)
		env.Metadata.Recovering = e.Recovering
		m.goSend(ctx, env, st.SessionID, purpose)
	case SendContextSync:
		env := events.NewEnvelope(events.TypeGetSceneInfo,
			events.SceneInfoPayload{Resumed: e.Reason == events.SyncReasonResume}, events.RouteDirect, m.cfg.Source).
			WithRefreshContext(true)
		env.Metadata.SyncReason = e.Reason
		if m.cache != nil {
			m.cache.Expect(env.MessageID)
		}
		m.goSend(ctx, env, st.SessionID, PurposeContextSync)
	case ScheduleTimer:
		m.timers.Schedule(e.Key, e.Gen, m.delayFor(e.Key))
	case CancelTimer:
		m.timers.Cancel(e.Key)
	case CancelAllTimers:
		m.timers.CancelAll()
		m.cancelProbe()
	case StartOutageWatch:
		watchCtx := context.WithValue(ctx, watchGenKey{}, e.Gen)
		if e.Deferred {
			m.watch.StartDeferred(watchCtx, e.Since)
		} else {
			m.watch.Start(watchCtx, e.Since)
		}
	case StopOutageWatch:
		m.watch.Stop()
	case ClearCaches:
		if m.cache != nil {
			m.cache.Clear()
		}
	case Notify:
		if m.notices != nil {
			m.notices.Add(e.Notice)
		}
	case ClearNotices:
		if m.notices == nil {
			return
		}
		if e.All {
			m.notices.Clear()
			return
		}
		for _, c := range e.Categories {
			m.notices.ClearCategory(c)
		}
	case Dispatch:
		m.router.Dispatch(e.Message)
	}
}

func (m *Manager) delayFor(key TimerKey) time.Duration {
	switch key {
	case TimerReady:
		return m.cfg.ReadyDelay
	}
	return 0
}

// watchGenKey carries the generation a watch was started with to its
// callbacks.
type watchGenKey struct{}

func watchGenOf(ctx context.Context) uint64 {
	gen, _ := ctx.Value(watchGenKey{}).(uint64)
	return gen
}

func (m *Manager) goDial(ctx context.Context, seq uint64) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.transport.Connect(ctx)
		if err == nil || errors.Is(err, transport.ErrDialInProgress) {
			return
		}
		m.logger.Warn("Dial failed", "seq", seq, "error", err)
		m.post(DialFailed{Seq: seq, Err: err, At: m.now()})
	}()
}

// goProbe supersedes any probe in flight; its result would be stale anyway.
func (m *Manager) goProbe(ctx context.Context, seq uint64) {
	probeCtx, cancel := context.WithCancel(ctx)
	m.probeMu.Lock()
	if m.probeCancel != nil {
		m.probeCancel()
	}
	m.probeCancel = cancel
	m.probeMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		res := m.prober.Probe(probeCtx, m.cfg.ProbeTimeout)
		if probeCtx.Err() != nil && !res.Healthy {
			// Cancelled by a newer probe or a reset; nobody is waiting.
			return
		}
		detail := res.Error
		if detail == "" {
			detail = res.Detail
		}
		m.logger.Debug("Probe completed", "seq", seq, "healthy", res.Healthy, "latency", res.Latency)
		m.post(ProbeCompleted{Seq: seq, Healthy: res.Healthy, Detail: detail, At: m.now()})
	}()
}

func (m *Manager) cancelProbe() {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()
	if m.probeCancel != nil {
		m.probeCancel()
		m.probeCancel = nil
	}
}

func (m *Manager) goSend(ctx context.Context, env *events.Envelope, sessionID string, purpose SendPurpose) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.sendEnvelope(ctx, env, sessionID)
		if err != nil {
			m.logger.Warn("Handshake send failed", "purpose", purpose, "message_id", env.MessageID, "error", err)
		}
		m.post(SendCompleted{Purpose: purpose, Err: err})
	}()
}

func (m *Manager) sendEnvelope(ctx context.Context, env *events.Envelope, sessionID string) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", env.Type, err)
	}
	if err := m.transport.Send(ctx, data); err != nil {
		return err
	}
	m.logger.Debug("Sent envelope", "type", env.Type, "message_id", env.MessageID, "route", env.Metadata.Route)
	if m.ledger != nil {
		payload, _ := json.Marshal(env.Payload)
		m.ledger.RecordCommand(ledger.Command{
			MessageID: env.MessageID,
			Type:      env.Type,
			Route:     string(env.Metadata.Route),
			SessionID: sessionID,
			Payload:   payload,
			SentAt:    m.now(),
		})
	}
	return nil
}

func (m *Manager) notify(level notices.Level, category, message, details string) {
	if m.notices == nil {
		return
	}
	m.notices.Add(notices.Notice{Level: level, Category: category, Message: message, Details: details})
}

func (m *Manager) postAction(ev Event) error {
	if !m.post(ev) {
		return ErrStopped
	}
	return nil
}

// post delivers ev to the loop. Returns false once Run has exited.
func (m *Manager) post(ev Event) bool {
	return m.postCtx(context.Background(), ev)
}

func (m *Manager) postCtx(ctx context.Context, ev Event) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.inbox <- ev:
		return true
	case <-m.done:
		return false
	case <-ctx.Done():
		return false
	}
}
