package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives a classified message. Handlers run synchronously on the
// caller's goroutine (the connection manager's event loop) and must not block.
type Handler func(Message)

// Router delivers classified messages to the handlers registered for their
// kind. Messages with no handler, including every *Unrecognized, go to the
// fallback so nothing is silently dropped.
type Router struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[Kind][]Handler),
		logger:   slog.Default().With("component", "router"),
	}
}

// Handle registers h for kind. Several handlers per kind are called in
// registration order.
func (r *Router) Handle(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], h)
}

// Fallback sets the handler for messages no kind handler claimed.
func (r *Router) Fallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Dispatch delivers msg and returns how many handlers received it. A
// panicking handler is logged and does not stop the others.
func (r *Router) Dispatch(msg Message) int {
	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers[msg.Kind()]...)
	fallback := r.fallback
	r.mu.RUnlock()

	if len(handlers) == 0 {
		if fallback == nil {
			r.logger.Debug("No handler for message", "kind", msg.Kind(), "message_id", msg.ID())
			return 0
		}
		handlers = []Handler{fallback}
	}

	delivered := 0
	for _, h := range handlers {
		if err := r.invoke(h, msg); err != nil {
			r.logger.Error("Message handler panicked",
				"kind", msg.Kind(), "message_id", msg.ID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Router) invoke(h Handler, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	h(msg)
	return nil
}
