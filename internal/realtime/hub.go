// Package realtime pushes scoring results to connected admin sessions
// over WebSocket.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/monitoring"
	"github.com/aegis-sec/sentinel/internal/worker"
)

// Hub tracks the live admin sessions and fans broadcast frames out to
// them. It satisfies the worker pool's Broadcaster.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]bool

	metrics *monitoring.Metrics
	log     *slog.Logger
}

// NewHub builds an empty hub. metrics may be nil.
func NewHub(metrics *monitoring.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[*Session]bool),
		metrics:  metrics,
		log:      logger,
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = true
	total := len(h.sessions)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WebsocketSessions.Set(float64(total))
	}
	h.log.Info("admin session connected", "actor_id", s.actorID, "total", total)
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	total := len(h.sessions)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WebsocketSessions.Set(float64(total))
	}
}

// Broadcast marshals the message once and enqueues it on a snapshot of
// the current sessions. Sessions that cannot keep up lose the frame.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("broadcast marshal failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(frame) {
			h.log.Warn("session send buffer full, dropping frame",
				"actor_id", s.actorID, "type", msg.Type)
		}
	}
}

// NewEvent pushes a freshly scored event.
func (h *Hub) NewEvent(ev *core.Event) {
	h.Broadcast(Message{Type: TypeNewEvent, Data: ev})
}

// NewAlert pushes a raised alert.
func (h *Hub) NewAlert(alert *core.Alert) {
	h.Broadcast(Message{Type: TypeNewAlert, Data: alert})
}

// SystemStatus pushes the worker pool's health snapshot.
func (h *Hub) SystemStatus(status worker.SystemStatus) {
	h.Broadcast(Message{Type: TypeSystemStatus, Data: status})
}

// ActiveConnections is the number of live sessions.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ConnectedUsers lists the usernames behind the live sessions, one entry
// per session.
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.sessions))
	for s := range h.sessions {
		users = append(users, s.username)
	}
	return users
}

// CloseAll disconnects every session, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.close()
	}
}
