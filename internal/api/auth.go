package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aegis-sec/sentinel/internal/auth"
	"github.com/aegis-sec/sentinel/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	actor, err := s.store.ActorByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison anyway so unknown and wrong-password
			// logins take the same time.
			auth.CheckPassword("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", req.Password)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log.Error("login lookup failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if !actor.IsActive || !auth.CheckPassword(actor.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	pair, err := s.issuer.IssuePair(actor)
	if err != nil {
		s.log.Error("token issue failed", "actor_id", actor.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	claims, err := s.issuer.VerifyRefresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	actor, err := s.store.ActorByID(r.Context(), claims.ActorID())
	if err != nil || !actor.IsActive {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	pair, err := s.issuer.IssuePair(actor)
	if err != nil {
		s.log.Error("token refresh failed", "actor_id", actor.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	actor, err := s.store.ActorByID(r.Context(), claims.ActorID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "actor no longer exists")
			return
		}
		s.log.Error("profile lookup failed", "actor_id", claims.ActorID(), "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, actor)
}
