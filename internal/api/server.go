// Package api exposes the REST surface: event ingest, document
// registration, alert triage, and auth.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegis-sec/sentinel/internal/auth"
	"github.com/aegis-sec/sentinel/internal/classify"
	"github.com/aegis-sec/sentinel/internal/monitoring"
	"github.com/aegis-sec/sentinel/internal/queue"
	"github.com/aegis-sec/sentinel/internal/realtime"
	"github.com/aegis-sec/sentinel/internal/store"
)

// Server bundles the HTTP dependencies.
type Server struct {
	queue      *queue.Queue
	store      store.Store
	issuer     *auth.Issuer
	classifier *classify.Classifier
	ws         *realtime.Handler
	metrics    *monitoring.Metrics
	log        *slog.Logger
}

// NewServer wires the REST layer. ws and metrics may be nil.
func NewServer(q *queue.Queue, st store.Store, issuer *auth.Issuer, classifier *classify.Classifier, ws *realtime.Handler, metrics *monitoring.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		queue:      q,
		store:      st,
		issuer:     issuer,
		classifier: classifier,
		ws:         ws,
		metrics:    metrics,
		log:        logger,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Ingest identity comes from the verified token, never the body.
	r.Handle("/events/ingest", s.issuer.Middleware(http.HandlerFunc(s.handleIngest))).Methods("POST")
	r.HandleFunc("/events/queue/status", s.handleQueueStatus).Methods("GET")

	if s.ws != nil {
		r.HandleFunc("/ws/admin", s.ws.ServeAdmin).Methods("GET")
		r.HandleFunc("/ws/status", s.ws.ServeStatus).Methods("GET")
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.issuer.Middleware)
	authed.HandleFunc("/auth/me", s.handleMe).Methods("GET")
	authed.HandleFunc("/documents", s.handleRegisterDocument).Methods("POST")
	authed.HandleFunc("/documents/{id}", s.handleGetDocument).Methods("GET")
	authed.HandleFunc("/events", s.handleRecentEvents).Methods("GET")
	authed.HandleFunc("/events/{id}", s.handleGetEvent).Methods("GET")
	authed.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")

	triage := authed.NewRoute().Subrouter()
	triage.Use(auth.RequireRole)
	triage.HandleFunc("/alerts/{id}", s.handleUpdateAlert).Methods("PATCH")

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		dbStatus = "error"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"status":   statusWord(status),
		"service":  "sentinel",
		"database": dbStatus,
	})
}

func statusWord(code int) string {
	if code == http.StatusOK {
		return "healthy"
	}
	return "degraded"
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
