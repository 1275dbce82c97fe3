package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Frame is an envelope the relay received from the client.
type Frame struct {
	MessageID string          `json:"message_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  map[string]any  `json:"metadata"`
}

// FakeRelay is an in-process relay server: a WebSocket endpoint at /ws and a
// liveness endpoint at /health. Tests drive it by pushing inbound messages,
// dropping the link and toggling availability.
type FakeRelay struct {
	server  *httptest.Server
	healthy atomic.Bool
	accept  atomic.Bool

	mu       sync.Mutex
	conn     *websocket.Conn
	connects int
	frames   []Frame

	t *testing.T
}

// NewFakeRelay starts a healthy relay that accepts connections.
func NewFakeRelay(t *testing.T) *FakeRelay {
	t.Helper()
	r := &FakeRelay{t: t}
	r.healthy.Store(true)
	r.accept.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !r.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ws", r.handleWS)

	r.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		r.Drop()
		r.server.Close()
	})
	return r
}

func (r *FakeRelay) handleWS(w http.ResponseWriter, req *http.Request) {
	if !r.accept.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		r.t.Logf("FakeRelay: accept error: %v", err)
		return
	}

	r.mu.Lock()
	r.conn = conn
	r.connects++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
	}()

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			r.t.Logf("FakeRelay: ignoring malformed frame: %s", data)
			continue
		}
		r.mu.Lock()
		r.frames = append(r.frames, f)
		r.mu.Unlock()
	}
}

// WSURL is the realtime endpoint.
func (r *FakeRelay) WSURL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws"
}

// HealthURL is the liveness endpoint.
func (r *FakeRelay) HealthURL() string {
	return r.server.URL + "/health"
}

// SetAvailable switches both the liveness answer and WebSocket acceptance.
func (r *FakeRelay) SetAvailable(up bool) {
	r.healthy.Store(up)
	r.accept.Store(up)
}

// Drop closes the current link from the relay side.
func (r *FakeRelay) Drop() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "relay restarting")
	}
}

// Connects returns how many links the relay has accepted.
func (r *FakeRelay) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Connected reports whether a link is currently open.
func (r *FakeRelay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Send pushes an inbound message of msgType to the client.
func (r *FakeRelay) Send(msgType string, payload map[string]any) {
	r.t.Helper()
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(map[string]any{
		"message_id": uuid.New().String(),
		"type":       msgType,
		"payload":    payload,
	})
	require.NoError(r.t, err)
	r.SendRaw(data)
}

// SendRaw writes data to the client as is.
func (r *FakeRelay) SendRaw(data []byte) {
	r.t.Helper()
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	require.NotNil(r.t, conn, "relay has no open link")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(r.t, conn.Write(ctx, websocket.MessageText, data))
}

// Frames returns the received frames of msgType, oldest first.
func (r *FakeRelay) Frames(msgType string) []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Frame
	for _, f := range r.frames {
		if f.Type == msgType {
			out = append(out, f)
		}
	}
	return out
}

// WaitForFrames waits until at least n frames of msgType arrived and
// returns them.
func (r *FakeRelay) WaitForFrames(msgType string, n int) []Frame {
	r.t.Helper()
	require.Eventually(r.t, func() bool { return len(r.Frames(msgType)) >= n },
		5*time.Second, 10*time.Millisecond, "waiting for %d %s frame(s)", n, msgType)
	return r.Frames(msgType)
}

// WaitForConnects waits until the relay has accepted n links and one is open.
func (r *FakeRelay) WaitForConnects(n int) {
	r.t.Helper()
	require.Eventually(r.t, func() bool { return r.Connects() >= n && r.Connected() },
		5*time.Second, 10*time.Millisecond, "waiting for connection #%d", n)
}
