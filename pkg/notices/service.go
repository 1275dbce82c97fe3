// Package notices holds the user-facing notices raised by the connection
// manager. Transient notices expire on their own; persistent notices stay
// until their category is cleared. Technical detail travels in Details and
// is never part of the user-facing message.
package notices

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/relaylink/pkg/config"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice categories.
const (
	CategoryConnection = "connection"     // transport dropped, reconnect attempts
	CategoryEngine     = "engine"         // engine lost, recovery outcome
	CategoryOutage     = "backend_outage" // hard reset after the outage threshold
	CategoryResume     = "resume"         // session resumed an existing engine
	CategoryMessage    = "message"        // per-message failures
	CategoryAgent      = "agent"          // agent replies
)

// Notice is a single user-facing notice.
type Notice struct {
	ID         string    `json:"id"`
	Level      Level     `json:"level"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Persistent bool      `json:"persistent"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// Service manages in-memory notices.
// Thread-safe. Not persisted; notices reset on restart.
type Service struct {
	mu      sync.RWMutex
	notices map[string]*Notice // noticeID → notice
	ttl     time.Duration
	max     int
	now     func() time.Time
}

// NewService creates a Service. A nil cfg uses the built-in defaults.
func NewService(cfg *config.NoticesConfig) *Service {
	ttl, limit := config.DefaultTransientNoticeTTL, 100
	if cfg != nil {
		if cfg.TransientTTL > 0 {
			ttl = cfg.TransientTTL
		}
		if cfg.Max > 0 {
			limit = cfg.Max
		}
	}
	return &Service{
		notices: make(map[string]*Notice),
		ttl:     ttl,
		max:     limit,
		now:     time.Now,
	}
}

// Add stores n and returns its ID. A persistent notice replaces any
// persistent notice of the same category. Transient notices get an expiry.
// When the store is full the oldest transient notice is evicted first.
func (s *Service) Add(n Notice) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	if n.Persistent {
		for id, existing := range s.notices {
			if existing.Persistent && existing.Category == n.Category {
				delete(s.notices, id)
				break
			}
		}
		n.ExpiresAt = time.Time{}
	} else {
		n.ExpiresAt = now.Add(s.ttl)
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}

	n.ID = uuid.New().String()
	n.CreatedAt = now
	for len(s.notices) >= s.max {
		if !s.evictOldestLocked() {
			break
		}
	}
	s.notices[n.ID] = &n
	return n.ID
}

// List returns the active notices, oldest first, as value copies.
func (s *Service) List() []Notice {
	s.mu.Lock()
	s.pruneLocked(s.now())
	result := make([]Notice, 0, len(s.notices))
	for _, n := range s.notices {
		result = append(result, *n)
	}
	s.mu.Unlock()

	slices.SortFunc(result, func(a, b Notice) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result
}

// ClearCategory removes every notice of category. Returns how many were
// removed.
func (s *Service) ClearCategory(category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, n := range s.notices {
		if n.Category == category {
			delete(s.notices, id)
			removed++
		}
	}
	return removed
}

// Clear removes every notice. Used on logout.
func (s *Service) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.notices)
	clear(s.notices)
	return n
}

// Dismiss removes a single notice. Returns false if it did not exist.
func (s *Service) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notices[id]; !ok {
		return false
	}
	delete(s.notices, id)
	return true
}

func (s *Service) pruneLocked(now time.Time) {
	for id, n := range s.notices {
		if !n.Persistent && !n.ExpiresAt.After(now) {
			delete(s.notices, id)
		}
	}
}

// evictOldestLocked drops the oldest transient notice, or the oldest notice
// of any kind when only persistent ones remain.
func (s *Service) evictOldestLocked() bool {
	var victim *Notice
	for _, n := range s.notices {
		switch {
		case victim == nil:
			victim = n
		case victim.Persistent && !n.Persistent:
			victim = n
		case victim.Persistent == n.Persistent && n.CreatedAt.Before(victim.CreatedAt):
			victim = n
		}
	}
	if victim == nil {
		return false
	}
	delete(s.notices, victim.ID)
	return true
}
