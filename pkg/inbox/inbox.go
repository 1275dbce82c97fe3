// Package inbox keeps the recent relay messages meant for the user: agent
// replies, inbox notifications and every frame no other handler claimed.
package inbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
)

// DefaultMax is the number of entries kept when New is given no limit.
const DefaultMax = 200

// NoticeSink receives the notices raised for new entries.
type NoticeSink interface {
	Add(n notices.Notice) string
}

// Entry is one message kept in the inbox.
type Entry struct {
	Seq        uint64          `json:"seq"`
	Kind       events.Kind     `json:"kind"`
	MessageID  string          `json:"message_id,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Text       string          `json:"text,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Inbox is a bounded, thread-safe feed of relay messages. The oldest entry
// is dropped once the limit is reached.
type Inbox struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	seq     uint64
	sink    NoticeSink
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an Inbox holding up to limit entries (DefaultMax when limit is
// not positive). sink may be nil.
func New(limit int, sink NoticeSink) *Inbox {
	if limit <= 0 {
		limit = DefaultMax
	}
	return &Inbox{
		max:    limit,
		sink:   sink,
		now:    time.Now,
		logger: slog.Default().With("component", "inbox"),
	}
}

// Install registers the inbox on r for agent replies and inbox_cleared, and
// as the router fallback.
func (b *Inbox) Install(r *events.Router) {
	r.Handle(events.KindAgentResponse, b.onAgentResponse)
	r.Handle(events.KindInboxCleared, b.onInboxCleared)
	r.Fallback(b.onUnhandled)
}

func (b *Inbox) onAgentResponse(msg events.Message) {
	resp, ok := msg.(*events.AgentResponse)
	if !ok {
		return
	}
	b.add(Entry{
		Kind:      resp.Kind(),
		MessageID: resp.ID(),
		RequestID: resp.RequestID,
		Text:      resp.Text,
		Raw:       resp.RawJSON(),
	})

	text := resp.Text
	if text == "" {
		text = "The agent finished your request."
	}
	b.notify(notices.Notice{
		Level:    notices.LevelInfo,
		Category: notices.CategoryAgent,
		Message:  text,
		Details:  "request " + resp.RequestID,
	})
}

func (b *Inbox) onInboxCleared(msg events.Message) {
	cleared, ok := msg.(*events.InboxCleared)
	if !ok {
		return
	}
	text := fmt.Sprintf("The relay cleared %d pending message(s).", cleared.Count)
	b.add(Entry{
		Kind:      cleared.Kind(),
		MessageID: cleared.ID(),
		Text:      text,
		Raw:       cleared.RawJSON(),
	})
	b.notify(notices.Notice{
		Level:    notices.LevelInfo,
		Category: notices.CategoryMessage,
		Message:  text,
	})
}

// onUnhandled keeps frames no kind handler claimed. Failures already raise
// their own notice, so only the entry is added for them.
func (b *Inbox) onUnhandled(msg events.Message) {
	e := Entry{Kind: msg.Kind(), MessageID: msg.ID(), Raw: msg.RawJSON()}
	if !json.Valid(e.Raw) {
		// Kept as text so the entry still encodes.
		e.Text, e.Raw = string(e.Raw), nil
	}
	switch v := msg.(type) {
	case *events.Unrecognized:
		e.Reason = v.Reason
		b.logger.Warn("Unrecognized relay message", "reason", v.Reason, "bytes", len(v.Raw))
	case events.Failure:
		e.Text = v.Summary()
		b.logger.Info("Unhandled relay failure", "kind", v.Kind(), "message_id", v.ID())
	default:
		b.logger.Info("Unhandled relay message", "kind", msg.Kind(), "message_id", msg.ID())
	}
	b.add(e)
}

func (b *Inbox) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	e.Seq = b.seq
	e.ReceivedAt = b.now()
	if len(b.entries) >= b.max {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, e)
}

func (b *Inbox) notify(n notices.Notice) {
	if b.sink != nil {
		b.sink.Add(n)
	}
}

// List returns the entries with Seq greater than since, oldest first.
func (b *Inbox) List(since uint64) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.Seq > since {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries kept.
func (b *Inbox) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
