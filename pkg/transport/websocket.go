// Package transport is the realtime link to the relay server. It knows how to
// dial, read, write and close a WebSocket; it never looks inside payloads.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/codeready-toolchain/relaylink/pkg/config"
)

// eventBuffer bounds the event channel. Readers are expected to keep up; the
// read loop blocks (applying backpressure to the socket) when it is full.
const eventBuffer = 128

// EventType tags a transport Event.
type EventType int

const (
	EventOpened EventType = iota
	EventClosed
	EventMessage
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventMessage:
		return "raw_message"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is emitted on the Events channel.
type Event struct {
	Type EventType
	// Data is the raw frame for EventMessage.
	Data []byte
	// Err is set for EventError and for unexpected EventClosed.
	Err error
	// Unexpected is true for an EventClosed the client did not ask for.
	Unexpected bool
}

// Transport is the contract the connection manager depends on.
type Transport interface {
	// Connect dials the relay, retrying transport-level failures with
	// backoff up to the configured number of attempts. It emits EventOpened
	// on success. Connect on an open transport is a no-op.
	Connect(ctx context.Context) error
	// Disconnect closes the link and cancels any in-flight dial. Idempotent.
	Disconnect()
	// Send writes one frame. Returns ErrNotConnected when no link is open.
	Send(ctx context.Context, data []byte) error
	// Events streams opened, closed, raw_message and error events.
	Events() <-chan Event
	// IsOpen reports whether a link is currently open.
	IsOpen() bool
}

// WebSocket implements Transport over github.com/coder/websocket.
type WebSocket struct {
	cfg    *config.RelayConfig
	events chan Event
	rng    *rand.Rand

	mu         sync.Mutex
	conn       *websocket.Conn
	gen        uint64
	dialCancel context.CancelFunc
	shutdown   bool

	stopped  chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket creates a transport for cfg.WSURL. No connection is made
// until Connect.
func NewWebSocket(cfg *config.RelayConfig) (*WebSocket, error) {
	if cfg == nil || cfg.WSURL == "" {
		return nil, ErrRelayURLRequired
	}
	return &WebSocket{
		cfg:     cfg,
		events:  make(chan Event, eventBuffer),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		stopped: make(chan struct{}),
		logger:  slog.Default().With("component", "transport", "url", cfg.WSURL),
	}, nil
}

// Events returns the event stream.
func (t *WebSocket) Events() <-chan Event {
	return t.events
}

// IsOpen reports whether a link is currently open.
func (t *WebSocket) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Connect dials the relay. See Transport.
func (t *WebSocket) Connect(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.shutdown:
		t.mu.Unlock()
		return ErrClosed
	case t.conn != nil:
		t.mu.Unlock()
		return nil
	case t.dialCancel != nil:
		t.mu.Unlock()
		return ErrDialInProgress
	}
	dialCtx, cancel := context.WithCancel(ctx)
	t.dialCancel = cancel
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.dialCancel = nil
		t.mu.Unlock()
		cancel()
	}()

	attempts := max(t.cfg.DialAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if ClassifyError(lastErr) != RetryDial {
				break
			}
			delay := t.backoff(attempt - 1)
			t.logger.Debug("Retrying dial", "attempt", attempt, "delay", delay)
			timer := time.NewTimer(delay)
			select {
			case <-dialCtx.Done():
				timer.Stop()
				return fmt.Errorf("%w: %w", ErrDialFailed, dialCtx.Err())
			case <-timer.C:
			}
		}

		conn, err := t.dial(dialCtx)
		if err == nil {
			return t.install(dialCtx, conn)
		}
		lastErr = err
		t.logger.Warn("Dial attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"action", ClassifyError(err),
			"error", err)
	}
	return fmt.Errorf("%w: %w", ErrDialFailed, lastErr)
}

func (t *WebSocket) backoff(attempt int) time.Duration {
	if t.cfg.Backoff == nil {
		return 0
	}
	return NextBackoffDelay(*t.cfg.Backoff, attempt, t.rng)
}

func (t *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	if t.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.DialTimeout)
		defer cancel()
	}
	conn, _, err := websocket.Dial(ctx, t.cfg.WSURL, &websocket.DialOptions{})
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}
	if t.cfg.ReadLimit > 0 {
		conn.SetReadLimit(t.cfg.ReadLimit)
	}
	return conn, nil
}

// install publishes a freshly dialed connection unless the dial was
// cancelled in the meantime.
func (t *WebSocket) install(dialCtx context.Context, conn *websocket.Conn) error {
	t.mu.Lock()
	if dialCtx.Err() != nil || t.shutdown {
		t.mu.Unlock()
		_ = conn.CloseNow()
		return fmt.Errorf("%w: %w", ErrDialFailed, context.Canceled)
	}
	t.gen++
	gen := t.gen
	t.conn = conn
	t.mu.Unlock()

	t.logger.Info("Transport opened")
	t.emit(Event{Type: EventOpened})
	go t.readLoop(conn, gen)
	return nil
}

// readLoop forwards frames until the connection ends.
func (t *WebSocket) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			t.handleReadError(conn, gen, err)
			return
		}
		if !t.isCurrent(conn, gen) {
			continue
		}
		t.emit(Event{Type: EventMessage, Data: data})
	}
}

func (t *WebSocket) isCurrent(conn *websocket.Conn, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn == conn && t.gen == gen
}

func (t *WebSocket) handleReadError(conn *websocket.Conn, gen uint64, err error) {
	t.mu.Lock()
	current := t.conn == conn && t.gen == gen
	if current {
		t.conn = nil
	}
	t.mu.Unlock()

	if !current {
		// Disconnect already took this connection down and reported it.
		return
	}
	_ = conn.CloseNow()

	t.logger.Warn("Transport closed unexpectedly",
		"close_status", websocket.CloseStatus(err),
		"error", err)
	t.emit(Event{Type: EventClosed, Err: err, Unexpected: true})
}

// Disconnect closes the link and cancels any in-flight dial. Idempotent.
func (t *WebSocket) Disconnect() {
	t.mu.Lock()
	if t.dialCancel != nil {
		t.dialCancel()
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return
	}
	t.logger.Info("Transport disconnecting")
	go func() {
		if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
			_ = conn.CloseNow()
		}
	}()

	// The caller asked for this close, so it never waits on a full buffer.
	select {
	case t.events <- Event{Type: EventClosed}:
	default:
	}
}

// Send writes one text frame, bounded by the configured write timeout.
func (t *WebSocket) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	shutdown := t.shutdown
	t.mu.Unlock()

	if shutdown {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	if t.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.WriteTimeout)
		defer cancel()
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.emit(Event{Type: EventError, Err: err})
		return fmt.Errorf("WebSocket write: %w", err)
	}
	return nil
}

// Shutdown disconnects and permanently stops the transport. Pending event
// sends are released; further Connect calls return ErrClosed.
func (t *WebSocket) Shutdown() {
	t.mu.Lock()
	t.shutdown = true
	t.mu.Unlock()
	t.stopOnce.Do(func() { close(t.stopped) })
	t.Disconnect()
}

func (t *WebSocket) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.stopped:
	}
}
