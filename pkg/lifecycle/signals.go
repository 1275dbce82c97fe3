// Package lifecycle carries process-wide signals between components that do
// not otherwise know about each other.
package lifecycle

import (
	"log/slog"
	"sync"
)

// Signals broadcasts the logout signal to every subscriber.
type Signals struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
	logger *slog.Logger
}

// NewSignals creates a Signals with no subscribers.
func NewSignals() *Signals {
	return &Signals{
		subs:   make(map[int]chan struct{}),
		logger: slog.Default().With("component", "lifecycle"),
	}
}

// Subscribe returns a channel that receives one value per Logout and a
// function that removes the subscription. A subscriber that has not consumed
// the previous signal does not get a second one queued.
func (s *Signals) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Logout notifies every subscriber and returns how many were notified.
func (s *Signals) Logout() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.logger.Info("Logout signalled", "subscribers", len(s.subs))
	return len(s.subs)
}
