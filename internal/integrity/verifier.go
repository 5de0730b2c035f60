// Package integrity detects document tampering by comparing content
// against a registered baseline, by hash and by semantic similarity.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"
)

// Severity qualifies how far tampered content has drifted from baseline.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityUnknown  Severity = "unknown"
)

var severityRisk = map[Severity]float64{
	SeverityNone:     0.0,
	SeverityMinor:    0.3,
	SeverityModerate: 0.6,
	SeverityMajor:    0.9,
	SeverityUnknown:  0.7,
}

// Baseline is the registered reference state of a document.
type Baseline struct {
	DocumentID string `json:"document_id"`
	Hash       string `json:"hash"`
	Content    string `json:"content,omitempty"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Result is one verification outcome.
type Result struct {
	DocumentID         string    `json:"document_id"`
	BaselineHash       string    `json:"baseline_hash"`
	CurrentHash        string    `json:"current_hash"`
	HashMatch          bool      `json:"hash_match"`
	Tampered           bool      `json:"is_tampered"`
	Severity           Severity  `json:"severity"`
	SemanticSimilarity *float64  `json:"semantic_similarity,omitempty"`
	SizeChangeBytes    int64     `json:"size_change_bytes"`
	SizeChangePercent  float64   `json:"size_change_percent"`
	VerifiedAt         time.Time `json:"verified_at"`
}

// RiskScore maps the verification outcome to a [0,1] signal.
func (r Result) RiskScore() float64 {
	if !r.Tampered {
		return 0
	}
	return severityRisk[r.Severity]
}

// Zero is the neutral result used when integrity does not apply to an
// event (wrong action, no content).
func Zero(documentID string) Result {
	return Result{DocumentID: documentID, HashMatch: true, Severity: SeverityNone, VerifiedAt: time.Now().UTC()}
}

// Hash returns the lowercase hex SHA-256 of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Embedder scores how semantically close two texts are, in [0,1].
type Embedder interface {
	Similarity(a, b string) (float64, bool)
}

// Verifier checks content against baselines. Safe for concurrent use.
type Verifier struct {
	embedder Embedder
}

// NewVerifier builds a verifier. A nil embedder disables the semantic
// tier; severity then falls back to the size-delta proxy.
func NewVerifier(embedder Embedder) *Verifier {
	return &Verifier{embedder: embedder}
}

// Verify compares current content against the baseline. Severity is
// graded by semantic similarity when baseline content is in hand, by size
// delta when only the baseline size is known, and unknown otherwise.
func (v *Verifier) Verify(base Baseline, currentContent string) Result {
	currentHash := Hash(currentContent)
	currentSize := int64(len(currentContent))

	res := Result{
		DocumentID:   base.DocumentID,
		BaselineHash: base.Hash,
		CurrentHash:  currentHash,
		HashMatch:    base.Hash == currentHash,
		Severity:     SeverityNone,
		VerifiedAt:   time.Now().UTC(),
	}
	res.Tampered = !res.HashMatch

	res.SizeChangeBytes = currentSize - base.SizeBytes
	if base.SizeBytes > 0 {
		res.SizeChangePercent = float64(res.SizeChangeBytes) / float64(base.SizeBytes) * 100
	}

	if !res.Tampered {
		return res
	}

	if v.embedder != nil && base.Content != "" {
		if sim, ok := v.embedder.Similarity(base.Content, currentContent); ok {
			res.SemanticSimilarity = &sim
			switch {
			case sim > 0.95:
				res.Severity = SeverityMinor
			case sim > 0.85:
				res.Severity = SeverityModerate
			default:
				res.Severity = SeverityMajor
			}
			return res
		}
	}

	if base.SizeBytes > 0 || base.Content != "" {
		pct := math.Abs(res.SizeChangePercent)
		switch {
		case pct < 5:
			res.Severity = SeverityMinor
		case pct < 20:
			res.Severity = SeverityModerate
		default:
			res.Severity = SeverityMajor
		}
		return res
	}

	res.Severity = SeverityUnknown
	return res
}
