package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/aegis-sec/sentinel/internal/auth"
	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/queue"
	"github.com/aegis-sec/sentinel/internal/store"
)

type ingestRequest struct {
	EventID             string  `json:"event_id"`
	Action              string  `json:"action"`
	DocumentID          string  `json:"document_id"`
	TargetDepartment    string  `json:"target_department"`
	Timestamp           string  `json:"timestamp"`
	BytesTransferred    int64   `json:"bytes_transferred"`
	SourceIP            string  `json:"source_ip"`
	DeviceInfo          string  `json:"device_info"`
	SessionID           string  `json:"session_id"`
	SessionDuration     float64 `json:"session_duration"`
	Content             string  `json:"content"`
	DeclaredSensitivity string  `json:"declared_sensitivity"`
}

// handleIngest admits an event into the scoring queue. The acting
// identity comes from the access token, not the payload. Scoring
// happens asynchronously, so the response carries a pending risk level.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	action, ok := core.ParseAction(req.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
		return
	}
	if !core.KnownDepartment(req.TargetDepartment) {
		writeError(w, http.StatusBadRequest, "unknown target_department: "+req.TargetDepartment)
		return
	}

	var declared core.SensitivityLevel
	if req.DeclaredSensitivity != "" {
		declared, ok = core.ParseSensitivity(req.DeclaredSensitivity)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown sensitivity: "+req.DeclaredSensitivity)
			return
		}
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "timestamp must be RFC 3339")
			return
		}
		ts = parsed.UTC()
	}

	if _, err := s.store.DocumentByID(r.Context(), req.DocumentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown document: "+req.DocumentID)
			return
		}
		s.log.Error("document lookup failed", "document_id", req.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	id := req.EventID
	if id == "" {
		id = "EVT-" + uuid.NewString()
	}

	ev := &core.Event{
		ID:                  id,
		ActorID:             claims.ActorID(),
		ActorDepartment:     claims.Department,
		Action:              action,
		DocumentID:          req.DocumentID,
		TargetDepartment:    req.TargetDepartment,
		Timestamp:           ts,
		BytesTransferred:    req.BytesTransferred,
		SourceIP:            req.SourceIP,
		DeviceInfo:          req.DeviceInfo,
		SessionID:           req.SessionID,
		SessionDuration:     req.SessionDuration,
		Content:             req.Content,
		DeclaredSensitivity: declared,
	}

	position, err := s.queue.Offer(ev)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejected.Inc()
		}
		if errors.Is(err, queue.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, "service shutting down")
			return
		}
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "ingest queue near capacity")
		return
	}
	if s.metrics != nil {
		s.metrics.EventsAdmitted.Inc()
		s.metrics.QueueDepth.Set(float64(s.queue.Depth()))
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"event_id":       ev.ID,
		"status":         "queued",
		"queue_position": position,
		"risk_level":     "pending",
	})
}

// handleQueueStatus reports the admission queue's backpressure state.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_size":        s.queue.Depth(),
		"capacity":            s.queue.Capacity(),
		"utilization_percent": s.queue.Utilization() * 100,
		"is_near_capacity":    s.queue.NearCapacity(),
	})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	events, err := s.store.RecentEvents(r.Context(), limit)
	if err != nil {
		s.log.Error("recent events query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if events == nil {
		events = []*core.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events, "count": len(events)})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev, err := s.store.EventByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		s.log.Error("event lookup failed", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
