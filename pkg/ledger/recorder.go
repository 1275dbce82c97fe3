package ledger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Recorder queues ledger writes and applies them on a background goroutine
// so callers on the connection event loop never block on storage. A full
// queue drops the write with a warning.
type Recorder struct {
	store   Store
	queue   chan func(context.Context) error
	dropped atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewRecorder creates a stopped recorder over store.
func NewRecorder(store Store, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Recorder{
		store:  store,
		queue:  make(chan func(context.Context) error, queueSize),
		stopCh: make(chan struct{}),
		logger: slog.Default().With("component", "ledger"),
	}
}

// Store returns the underlying store for reads.
func (r *Recorder) Store() Store {
	return r.store
}

// Start runs the writer until ctx is cancelled or Stop is called.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Stop drains the queued writes and waits for the writer to exit.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Dropped returns how many writes were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) RecordCommand(cmd Command) {
	r.enqueue("command", func(ctx context.Context) error { return r.store.RecordCommand(ctx, cmd) })
}

func (r *Recorder) RecordOutcome(out Outcome) {
	r.enqueue("outcome", func(ctx context.Context) error { return r.store.RecordOutcome(ctx, out) })
}

func (r *Recorder) RecordTransition(tr Transition) {
	r.enqueue("transition", func(ctx context.Context) error { return r.store.RecordTransition(ctx, tr) })
}

func (r *Recorder) enqueue(what string, write func(context.Context) error) {
	select {
	case r.queue <- write:
	default:
		r.dropped.Add(1)
		r.logger.Warn("Ledger queue full, dropping write", "entry", what)
	}
}

func (r *Recorder) run(ctx context.Context) {
	for {
		select {
		case write := <-r.queue:
			r.apply(ctx, write)
		case <-ctx.Done():
			return
		case <-r.stopCh:
			for {
				select {
				case write := <-r.queue:
					r.apply(context.WithoutCancel(ctx), write)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) apply(ctx context.Context, write func(context.Context) error) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := write(writeCtx); err != nil {
		r.logger.Error("Ledger write failed", "error", err)
	}
}
