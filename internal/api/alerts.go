package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/store"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AlertFilter{Limit: 50}

	if status := q.Get("status"); status != "" {
		if !core.ValidAlertStatus(status) {
			writeError(w, http.StatusBadRequest, "unknown status: "+status)
			return
		}
		filter.Status = status
	}
	if priority := q.Get("priority"); priority != "" {
		switch core.RiskLevel(priority) {
		case core.RiskLow, core.RiskMedium, core.RiskHigh, core.RiskCritical:
			filter.Priority = core.RiskLevel(priority)
		default:
			writeError(w, http.StatusBadRequest, "unknown priority: "+priority)
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = parsed
	}

	alerts, err := s.store.ListAlerts(r.Context(), filter)
	if err != nil {
		s.log.Error("alert listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if alerts == nil {
		alerts = []*core.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts, "count": len(alerts)})
}

type updateAlertRequest struct {
	Status          *string `json:"status"`
	AssignedTo      *string `json:"assigned_to"`
	ResolutionNotes *string `json:"resolution_notes"`
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status == nil && req.AssignedTo == nil && req.ResolutionNotes == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Status != nil {
		if !core.ValidAlertStatus(*req.Status) {
			writeError(w, http.StatusBadRequest, "unknown status: "+*req.Status)
			return
		}
		current, err := s.store.AlertByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "alert not found")
				return
			}
			s.log.Error("alert lookup failed", "alert_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		if !core.ValidAlertTransition(current.Status, *req.Status) {
			writeError(w, http.StatusConflict, "cannot move alert from "+current.Status+" to "+*req.Status)
			return
		}
	}

	alert, err := s.store.UpdateAlert(r.Context(), id, store.AlertUpdate{
		Status:          req.Status,
		AssignedTo:      req.AssignedTo,
		ResolutionNotes: req.ResolutionNotes,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.log.Error("alert update failed", "alert_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
