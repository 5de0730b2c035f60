package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/integrity"
	"github.com/aegis-sec/sentinel/internal/store"
)

const previewLength = 500

type registerDocumentRequest struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	Filepath    string `json:"filepath"`
	Department  string `json:"department"`
	Sensitivity string `json:"sensitivity"`
	Content     string `json:"content"`
}

// handleRegisterDocument stores a document with its declared sensitivity,
// the classifier's prediction, and the integrity baseline hash.
func (s *Server) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req registerDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" || req.Department == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "filename, department, and content are required")
		return
	}
	declared, ok := core.ParseSensitivity(req.Sensitivity)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown sensitivity: "+req.Sensitivity)
		return
	}

	id := req.DocumentID
	if id == "" {
		id = "DOC-" + uuid.NewString()
	}

	prediction := s.classifier.Classify(req.Content)
	hash := integrity.Hash(req.Content)
	preview := req.Content
	if len(preview) > previewLength {
		preview = preview[:previewLength]
	}

	now := time.Now().UTC()
	doc := &core.Document{
		ID:                   id,
		Filename:             req.Filename,
		Filepath:             req.Filepath,
		Department:           req.Department,
		Sensitivity:          declared,
		PredictedSensitivity: prediction.Level,
		PredictionConfidence: prediction.Confidence,
		SensitivityMismatch:  prediction.Level != declared,
		OriginalHash:         hash,
		CurrentHash:          hash,
		TamperSeverity:       string(integrity.SeverityNone),
		ContentPreview:       preview,
		Content:              req.Content,
		OriginalContent:      req.Content,
		SizeBytes:            int64(len(req.Content)),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			writeError(w, http.StatusConflict, "document already registered")
			return
		}
		s.log.Error("document registration failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"document":              doc,
		"predicted_sensitivity": prediction.Level,
		"prediction_confidence": prediction.Confidence,
		"sensitivity_mismatch":  doc.SensitivityMismatch,
		"keywords_found":        prediction.KeywordsFound,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := s.store.DocumentByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.log.Error("document lookup failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
