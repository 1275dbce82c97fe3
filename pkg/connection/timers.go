package connection

import (
	"sync"
	"time"
)

// TimerKey names one of the machine's timers. At most one timer per key is
// pending; scheduling a key again replaces the previous timer.
type TimerKey string

// TimerReady is the deferred ready signal after session creation.
const TimerReady TimerKey = "ready"

// timerRegistry owns the pending timers. Fired timers post a TimerFired
// event through fire; stale firings are filtered by generation in
// Transition, so a timer that fires while being cancelled is harmless.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[TimerKey]*time.Timer
	fire   func(TimerFired)
}

func newTimerRegistry(fire func(TimerFired)) *timerRegistry {
	return &timerRegistry{
		timers: make(map[TimerKey]*time.Timer),
		fire:   fire,
	}
}

// Schedule arms key to fire after d, replacing any pending timer for key.
func (r *timerRegistry) Schedule(key TimerKey, gen uint64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		if r.timers[key] == t {
			delete(r.timers, key)
		}
		r.mu.Unlock()
		r.fire(TimerFired{Key: key, Gen: gen})
	})
	r.timers[key] = t
}

// Cancel stops the pending timer for key, if any.
func (r *timerRegistry) Cancel(key TimerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// CancelAll stops every pending timer.
func (r *timerRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
}

// Pending returns how many timers are armed.
func (r *timerRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
