package behavior

import (
	"sync"
	"time"

	"github.com/aegis-sec/sentinel/internal/core"
)

// windowHorizon is the trailing window behavioral features are computed
// over. An event exactly this old is evicted.
const windowHorizon = 24 * time.Hour

// History keeps each actor's recent events in memory. The window starts
// empty on process start and fills from live traffic.
type History struct {
	mu     sync.RWMutex
	actors map[string][]*core.Event
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{actors: make(map[string][]*core.Event)}
}

// Record appends ev to its actor's window and evicts expired entries.
func (h *History) Record(ev *core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	window := append(h.actors[ev.ActorID], ev)
	h.actors[ev.ActorID] = evict(window, ev.Timestamp)
}

// Recent returns a copy of the actor's window as of now, oldest first.
func (h *History) Recent(actorID string, now time.Time) []*core.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	window := h.actors[actorID]
	cutoff := now.Add(-windowHorizon)
	out := make([]*core.Event, 0, len(window))
	for _, e := range window {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Actors returns the number of actors with a non-empty window.
func (h *History) Actors() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.actors)
}

func evict(window []*core.Event, now time.Time) []*core.Event {
	cutoff := now.Add(-windowHorizon)
	kept := window[:0]
	for _, e := range window {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}
