package core

import (
	"strings"
	"time"
)

// ActionType is the kind of operation an actor performed on a document.
type ActionType string

const (
	ActionView     ActionType = "view"
	ActionDownload ActionType = "download"
	ActionUpload   ActionType = "upload"
	ActionModify   ActionType = "modify"
	ActionDelete   ActionType = "delete"
	ActionShare    ActionType = "share"
)

// ParseAction normalizes a wire-level action string.
func ParseAction(s string) (ActionType, bool) {
	a := ActionType(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionView, ActionDownload, ActionUpload, ActionModify, ActionDelete, ActionShare:
		return a, true
	}
	return "", false
}

// SensitivityLevel classifies how restricted a document's content is.
type SensitivityLevel string

const (
	SensitivityPublic       SensitivityLevel = "public"
	SensitivityInternal     SensitivityLevel = "internal"
	SensitivityConfidential SensitivityLevel = "confidential"
)

// Rank orders sensitivity levels: public < internal < confidential.
func (s SensitivityLevel) Rank() int {
	switch s {
	case SensitivityPublic:
		return 0
	case SensitivityInternal:
		return 1
	case SensitivityConfidential:
		return 2
	}
	return 1
}

// ParseSensitivity normalizes a wire-level sensitivity string.
func ParseSensitivity(s string) (SensitivityLevel, bool) {
	l := SensitivityLevel(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case SensitivityPublic, SensitivityInternal, SensitivityConfidential:
		return l, true
	}
	return "", false
}

// RiskLevel buckets a fused risk score. Alert priority reuses the same
// buckets, so a score and its alert always agree.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor buckets a score in [0,1] with inclusive thresholds.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	}
	return RiskLow
}

// Role is an actor's access role.
type Role string

const (
	RoleUser    Role = "user"
	RoleAnalyst Role = "analyst"
	RoleAdmin   Role = "admin"
)

// CanManageAlerts reports whether the role may triage alerts and open the
// admin websocket channel.
func (r Role) CanManageAlerts() bool {
	return r == RoleAnalyst || r == RoleAdmin
}

// Departments recognized for cross-department checks. Matching is
// case-insensitive; storage keeps whatever casing the caller sent.
var Departments = []string{"HR", "FINANCE", "LEGAL", "IT"}

// KnownDepartment reports whether dept matches a recognized department.
func KnownDepartment(dept string) bool {
	for _, d := range Departments {
		if strings.EqualFold(d, dept) {
			return true
		}
	}
	return false
}

// Actor is an employee whose document activity is monitored.
type Actor struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Department   string    `json:"department"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	RiskScore    float64   `json:"risk_score"`
	AnomalyCount int       `json:"anomaly_count"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Document is a monitored file with declared and predicted sensitivity and
// an integrity baseline.
type Document struct {
	ID                   string           `json:"id"`
	Filename             string           `json:"filename"`
	Filepath             string           `json:"filepath"`
	Department           string           `json:"department"`
	Sensitivity          SensitivityLevel `json:"sensitivity"`
	PredictedSensitivity SensitivityLevel `json:"predicted_sensitivity"`
	PredictionConfidence float64          `json:"prediction_confidence"`
	SensitivityMismatch  bool             `json:"sensitivity_mismatch"`
	OriginalHash         string           `json:"original_hash"`
	CurrentHash          string           `json:"current_hash"`
	IsTampered           bool             `json:"is_tampered"`
	TamperSeverity       string           `json:"tamper_severity"`
	ContentPreview       string           `json:"content_preview"`
	Content              string           `json:"-"`
	OriginalContent      string           `json:"-"`
	SizeBytes            int64            `json:"size_bytes"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Event is one document action. Events are append-only; risk fields are
// filled in by the scoring pipeline before the event is persisted.
type Event struct {
	ID                string     `json:"id"`
	ActorID           string     `json:"actor_id"`
	ActorDepartment   string     `json:"actor_department"`
	Action            ActionType `json:"action"`
	DocumentID        string     `json:"document_id"`
	TargetDepartment  string     `json:"target_department"`
	Timestamp         time.Time  `json:"timestamp"`
	BytesTransferred  int64      `json:"bytes_transferred"`
	SourceIP          string     `json:"source_ip,omitempty"`
	DeviceInfo        string     `json:"device_info,omitempty"`
	SessionID         string     `json:"session_id,omitempty"`
	SessionDuration   float64    `json:"session_duration,omitempty"`
	Content           string     `json:"-"`
	DeclaredSensitivity SensitivityLevel `json:"declared_sensitivity,omitempty"`
	IsCrossDepartment bool       `json:"is_cross_department"`
	BehaviorScore     float64    `json:"behavior_score"`
	RiskScore         float64    `json:"risk_score"`
	RiskLevel         RiskLevel  `json:"risk_level"`
}

// CrossDepartment reports whether the actor reached outside their own
// department. Comparison is case-insensitive.
func (e *Event) CrossDepartment() bool {
	return !strings.EqualFold(e.ActorDepartment, e.TargetDepartment)
}

// Alert is raised for events the risk engine decides need analyst review.
type Alert struct {
	ID              string                 `json:"id"`
	EventID         string                 `json:"event_id"`
	ActorID         string                 `json:"actor_id"`
	Priority        RiskLevel              `json:"priority"`
	RiskScore       float64                `json:"risk_score"`
	Summary         string                 `json:"summary"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Status          string                 `json:"status"`
	AssignedTo      string                 `json:"assigned_to,omitempty"`
	ResolutionNotes string                 `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
}

// Alert triage states.
const (
	AlertOpen          = "open"
	AlertInvestigating = "investigating"
	AlertResolved      = "resolved"
	AlertDismissed     = "dismissed"
)

// ValidAlertStatus reports whether s is a recognized triage state.
func ValidAlertStatus(s string) bool {
	switch s {
	case AlertOpen, AlertInvestigating, AlertResolved, AlertDismissed:
		return true
	}
	return false
}

// ValidAlertTransition reports whether an alert may move between triage
// states. Open alerts go under investigation before they are resolved
// or dismissed; resolved and dismissed are terminal.
func ValidAlertTransition(from, to string) bool {
	switch from {
	case AlertOpen:
		return to == AlertInvestigating
	case AlertInvestigating:
		return to == AlertResolved || to == AlertDismissed
	}
	return false
}

// Explanation stores the attribution output for a scored event.
type Explanation struct {
	ID             string             `json:"id"`
	EventID        string             `json:"event_id"`
	DocumentID     string             `json:"document_id,omitempty"`
	Type           string             `json:"type"`
	FeatureValues  map[string]float64 `json:"feature_values,omitempty"`
	BaseValue      float64            `json:"base_value"`
	TokenWeights   []TokenWeight      `json:"token_weights,omitempty"`
	RiskComponents map[string]float64 `json:"risk_components"`
	Text           string             `json:"text"`
	CreatedAt      time.Time          `json:"created_at"`
}

// TokenWeight is one token's signed pull on the predicted class.
type TokenWeight struct {
	Token     string  `json:"token"`
	Weight    float64 `json:"weight"`
	Direction string  `json:"direction"`
}

// ModificationRecord tracks a content change to a document.
type ModificationRecord struct {
	ID                string    `json:"id"`
	EventID           string    `json:"event_id"`
	ActorID           string    `json:"actor_id"`
	Username          string    `json:"username,omitempty"`
	ActorDepartment   string    `json:"actor_department"`
	DocumentID        string    `json:"document_id"`
	DocumentName      string    `json:"document_name"`
	TargetDepartment  string    `json:"target_department"`
	OriginalLength    int       `json:"original_length"`
	ModifiedLength    int       `json:"modified_length"`
	CharsAdded        int       `json:"chars_added"`
	CharsRemoved      int       `json:"chars_removed"`
	ChangePercent     float64   `json:"change_percent"`
	IsCrossDepartment bool      `json:"is_cross_department"`
	RiskScore         float64   `json:"risk_score"`
	RiskLevel         RiskLevel `json:"risk_level"`
	ModifiedAt        time.Time `json:"modified_at"`
}
