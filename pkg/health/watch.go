package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WatchConfig configures a Watch.
type WatchConfig struct {
	// Interval between probes.
	Interval time.Duration
	// Threshold of continuous unavailability before OnOutage fires.
	Threshold time.Duration
	// Timeout bounds each probe.
	Timeout time.Duration

	// OnHealthy is called once, with the watch context, when the relay
	// answers again. The watch stops afterwards.
	OnHealthy func(ctx context.Context)
	// OnOutage is called once, with the watch context, when the relay has
	// been unreachable for Threshold. The watch keeps polling for recovery.
	OnOutage func(ctx context.Context)
}

// WatchStatus is a snapshot of a Watch.
type WatchStatus struct {
	Running        bool      `json:"running"`
	DownSince      time.Time `json:"down_since,omitzero"`
	OutageDeclared bool      `json:"outage_declared"`
	Probes         int       `json:"probes"`
	LastResult     *Result   `json:"last_result,omitempty"`
}

// Watch polls a prober while the relay is down. Callbacks receive the
// watch's context, which is cancelled by Stop, so a callback blocked on a
// busy receiver never keeps Stop from returning.
type Watch struct {
	prober Prober
	cfg    WatchConfig
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status WatchStatus
	logger *slog.Logger
}

// NewWatch creates a stopped watch.
func NewWatch(prober Prober, cfg WatchConfig) *Watch {
	return &Watch{
		prober: prober,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "health_watch"),
	}
}

// Start begins polling, counting unavailability from downSince. The first
// probe runs immediately. Calling Start on a running watch is a no-op.
func (w *Watch) Start(ctx context.Context, downSince time.Time) {
	w.start(ctx, downSince, true)
}

// StartDeferred is Start with the first probe one interval out, for callers
// that have just seen a probe or dial fail.
func (w *Watch) StartDeferred(ctx context.Context, downSince time.Time) {
	w.start(ctx, downSince, false)
}

func (w *Watch) start(ctx context.Context, downSince time.Time, immediate bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		select {
		case <-w.done:
			// Finished on its own after a healthy probe.
		default:
			return // already running
		}
	}
	if downSince.IsZero() {
		downSince = w.now()
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.status = WatchStatus{Running: true, DownSince: downSince}

	w.logger.Info("Outage watch started",
		"down_since", downSince,
		"threshold", w.cfg.Threshold,
		"interval", w.cfg.Interval)
	go w.loop(ctx, w.done, immediate)
}

// Stop cancels polling and waits for the loop to exit. Idempotent; Start
// may be called again afterwards.
func (w *Watch) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	w.mu.Lock()
	w.status.Running = false
	w.mu.Unlock()
}

// Status returns a snapshot.
func (w *Watch) Status() WatchStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.status
	if s.LastResult != nil {
		r := *s.LastResult
		s.LastResult = &r
	}
	return s
}

func (w *Watch) loop(ctx context.Context, done chan struct{}, immediate bool) {
	defer close(done)

	if immediate && w.check(ctx) {
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.check(ctx) {
				return
			}
		}
	}
}

// check runs one probe and fires callbacks. Returns true when the watch is
// finished.
func (w *Watch) check(ctx context.Context) bool {
	res := w.prober.Probe(ctx, w.cfg.Timeout)
	if ctx.Err() != nil {
		return true
	}

	w.mu.Lock()
	w.status.Probes++
	w.status.LastResult = &res
	downFor := w.now().Sub(w.status.DownSince)
	declare := !res.Healthy && !w.status.OutageDeclared && downFor >= w.cfg.Threshold
	if declare {
		w.status.OutageDeclared = true
	}
	if res.Healthy {
		w.status.Running = false
	}
	w.mu.Unlock()

	switch {
	case res.Healthy:
		w.logger.Info("Relay reachable again", "down_for", downFor, "latency", res.Latency)
		if w.cfg.OnHealthy != nil {
			w.cfg.OnHealthy(ctx)
		}
		return true
	case declare:
		w.logger.Error("Relay unreachable beyond outage threshold",
			"down_for", downFor,
			"threshold", w.cfg.Threshold,
			"error", res.Error)
		if w.cfg.OnOutage != nil {
			w.cfg.OnOutage(ctx)
		}
	default:
		w.logger.Debug("Relay still unreachable", "down_for", downFor, "error", res.Error)
	}
	return false
}
