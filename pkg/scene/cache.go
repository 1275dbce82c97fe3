// Package scene caches what the engine last reported about its scene. The
// cache is derived state: it is filled from context-sync results and wiped
// whenever the engine link or the session is lost.
package scene

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/events"
)

// Object is one scene object as reported by the engine.
type Object struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Location []float64       `json:"location,omitempty"`
	Extra    json.RawMessage `json:"extra,omitempty"`
}

// Snapshot is a point-in-time copy of the cache.
type Snapshot struct {
	Objects   []Object  `json:"objects"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Version   uint64    `json:"version"`
}

// Cache is a thread-safe scene cache keyed by object name.
type Cache struct {
	mu        sync.RWMutex
	objects   map[string]Object
	updatedAt time.Time
	version   uint64
	// pending is the message_id of the outstanding context sync. Only its
	// result may fill the cache.
	pending string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{objects: make(map[string]Object)}
}

// Clear drops every cached object and forgets the outstanding context sync,
// so a result that arrives afterwards is ignored.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects = make(map[string]Object)
	c.pending = ""
	c.updatedAt = time.Time{}
	c.version++
}

// Expect records messageID as the outstanding context sync.
func (c *Cache) Expect(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = messageID
}

// Replace swaps the cache contents for objects.
func (c *Cache) Replace(objects []Object) {
	next := make(map[string]Object, len(objects))
	for _, o := range objects {
		next[o.Name] = o
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects = next
	c.updatedAt = time.Now()
	c.version++
}

// Len returns the number of cached objects.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// Snapshot returns the cached objects sorted by name.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	objects := make([]Object, 0, len(c.objects))
	for _, o := range c.objects {
		objects = append(objects, o)
	}
	s := Snapshot{UpdatedAt: c.updatedAt, Version: c.version}
	c.mu.RUnlock()

	slices.SortFunc(objects, func(a, b Object) int { return strings.Compare(a.Name, b.Name) })
	s.Objects = objects
	return s
}

// Objects returns the cached objects sorted by name.
func (c *Cache) Objects() []Object {
	return c.Snapshot().Objects
}

// sceneResult is the result body of a successful get_scene_info.
type sceneResult struct {
	Objects []Object `json:"objects"`
}

// Apply feeds a command_completed into the cache. Only a successful
// get_scene_info answering the outstanding context sync is used; everything
// else is ignored and reported as false.
func (c *Cache) Apply(msg *events.CommandCompleted) (bool, error) {
	if msg == nil || !msg.Success || msg.Command != events.TypeGetSceneInfo {
		return false, nil
	}
	var res sceneResult
	if err := json.Unmarshal(msg.Result, &res); err != nil {
		return false, fmt.Errorf("failed to decode scene info: %w", err)
	}

	next := make(map[string]Object, len(res.Objects))
	for _, o := range res.Objects {
		next[o.Name] = o
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == "" || msg.CommandID != c.pending {
		return false, nil
	}
	c.pending = ""
	c.objects = next
	c.updatedAt = time.Now()
	c.version++
	return true, nil
}

// Handler returns a router handler for command_completed messages.
func (c *Cache) Handler() events.Handler {
	logger := slog.Default().With("component", "scene")
	return func(msg events.Message) {
		completed, ok := msg.(*events.CommandCompleted)
		if !ok {
			return
		}
		applied, err := c.Apply(completed)
		if err != nil {
			logger.Warn("Ignoring scene info", "message_id", completed.ID(), "error", err)
			return
		}
		if applied {
			logger.Debug("Scene cache refreshed", "objects", c.Len())
		} else if completed.Command == events.TypeGetSceneInfo {
			logger.Debug("Ignoring stale scene info", "command_id", completed.CommandID)
		}
	}
}
