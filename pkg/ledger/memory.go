package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Used when no database is configured and in
// tests. Transitions are kept in a ring of the most recent maxTransitions.
type Memory struct {
	mu             sync.RWMutex
	commands       map[string]*CommandRecord
	order          []string
	transitions    []Transition
	maxCommands    int
	maxTransitions int
}

// NewMemory creates a Memory store. Non-positive limits default to 1000.
func NewMemory(maxCommands, maxTransitions int) *Memory {
	if maxCommands <= 0 {
		maxCommands = 1000
	}
	if maxTransitions <= 0 {
		maxTransitions = 1000
	}
	return &Memory{
		commands:       make(map[string]*CommandRecord),
		maxCommands:    maxCommands,
		maxTransitions: maxTransitions,
	}
}

var (
	_ Store  = (*Memory)(nil)
	_ Pruner = (*Memory)(nil)
)

func (m *Memory) RecordCommand(_ context.Context, cmd Command) error {
	if cmd.MessageID == "" {
		return fmt.Errorf("record command: message_id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.commands[cmd.MessageID]; ok {
		rec.Command = cmd
		return nil
	}
	m.commands[cmd.MessageID] = &CommandRecord{Command: cmd}
	m.order = append(m.order, cmd.MessageID)
	for len(m.order) > m.maxCommands {
		delete(m.commands, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// RecordOutcome attaches out to its command. Outcomes for commands this
// store never saw are dropped; the relay may answer commands from a
// previous process.
func (m *Memory) RecordOutcome(_ context.Context, out Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.commands[out.MessageID]
	if !ok {
		return nil
	}
	o := out
	rec.Outcome = &o
	return nil
}

func (m *Memory) RecordTransition(_ context.Context, tr Transition) error {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, tr)
	if over := len(m.transitions) - m.maxTransitions; over > 0 {
		m.transitions = append([]Transition(nil), m.transitions[over:]...)
	}
	return nil
}

func (m *Memory) GetCommand(_ context.Context, messageID string) (*CommandRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.commands[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, messageID)
	}
	out := *rec
	if rec.Outcome != nil {
		o := *rec.Outcome
		out.Outcome = &o
	}
	return &out, nil
}

func (m *Memory) ListTransitions(_ context.Context, limit int) ([]Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.transitions)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]Transition, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, m.transitions[i])
	}
	return result, nil
}

func (m *Memory) PruneCommands(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	var removed int64
	for _, id := range m.order {
		if m.commands[id].SentAt.Before(before) {
			delete(m.commands, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed, nil
}

func (m *Memory) PruneTransitions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.transitions[:0]
	for _, tr := range m.transitions {
		if !tr.At.Before(before) {
			kept = append(kept, tr)
		}
	}
	removed := int64(len(m.transitions) - len(kept))
	m.transitions = kept
	return removed, nil
}
