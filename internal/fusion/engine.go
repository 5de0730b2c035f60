// Package fusion combines behavior, sensitivity, and integrity signals
// into a single risk assessment and alert decision.
package fusion

import (
	"fmt"
	"strings"
	"time"

	"github.com/aegis-sec/sentinel/internal/core"
)

// Weights are the component fusion weights. Overrides are normalized so
// they always sum to 1.
type Weights struct {
	Behavior    float64
	Sensitivity float64
	Integrity   float64
}

// DefaultWeights is the shipped weighting.
var DefaultWeights = Weights{Behavior: 0.4, Sensitivity: 0.3, Integrity: 0.3}

func (w Weights) normalized() Weights {
	total := w.Behavior + w.Sensitivity + w.Integrity
	if total <= 0 {
		return DefaultWeights
	}
	return Weights{
		Behavior:    w.Behavior / total,
		Sensitivity: w.Sensitivity / total,
		Integrity:   w.Integrity / total,
	}
}

// Per-action multipliers. Cross-department versions apply on top of the
// base action multiplier when the event reaches another department.
var (
	actionMultipliers = map[core.ActionType]float64{
		core.ActionView:     1.0,
		core.ActionDownload: 1.8,
		core.ActionUpload:   1.4,
		core.ActionModify:   2.5,
		core.ActionDelete:   3.0,
		core.ActionShare:    2.0,
	}
	crossDeptMultipliers = map[core.ActionType]float64{
		core.ActionView:     1.3,
		core.ActionDownload: 2.0,
		core.ActionUpload:   1.5,
		core.ActionModify:   2.8,
		core.ActionDelete:   3.5,
		core.ActionShare:    2.2,
	}
	// Minimum weighted base for cross-department access, so reaching into
	// another department carries inherent risk regardless of model output.
	crossDeptFloor = map[core.ActionType]float64{
		core.ActionView:     0.15,
		core.ActionDownload: 0.25,
		core.ActionUpload:   0.20,
		core.ActionModify:   0.45,
		core.ActionDelete:   0.55,
		core.ActionShare:    0.30,
	}
)

const (
	weekendMultiplier    = 1.5
	afterHoursMultiplier = 1.3
)

var severityLabels = map[core.RiskLevel]string{
	core.RiskCritical: "CRITICAL - Immediate attention required",
	core.RiskHigh:     "HIGH - Potential security incident",
	core.RiskMedium:   "MEDIUM - Suspicious activity detected",
	core.RiskLow:      "LOW - Normal activity",
}

// Input carries the component scores and event context into fusion.
type Input struct {
	BehaviorScore    float64
	SensitivityScore float64
	IntegrityScore   float64
	Action           core.ActionType
	CrossDepartment  bool
	AfterHours       bool
	Weekend          bool
}

// Assessment is the fused verdict for one event.
type Assessment struct {
	RiskScore     float64        `json:"risk_score"`
	RiskLevel     core.RiskLevel `json:"risk_level"`
	SeverityLabel string         `json:"severity_label"`

	Components         map[string]float64 `json:"components"`
	WeightedComponents map[string]float64 `json:"weighted_components"`
	ActionMultiplier   float64            `json:"action_multiplier"`
	CrossMultiplier    float64            `json:"cross_dept_multiplier"`
	TemporalMultiplier float64            `json:"temporal_multiplier"`

	IsAnomalous       bool `json:"is_anomalous"`
	IsCrossDepartment bool `json:"is_cross_department"`
	RequiresAlert     bool `json:"requires_alert"`

	PrimaryRiskFactor string    `json:"primary_risk_factor"`
	RiskFactors       []string  `json:"risk_factors"`
	AssessedAt        time.Time `json:"assessed_at"`
}

// Engine fuses component signals deterministically: arithmetic and table
// lookups only, no failure paths.
type Engine struct {
	weights        Weights
	alertThreshold float64
}

// NewEngine builds an engine with the given weights (normalized).
func NewEngine(weights Weights) *Engine {
	return &Engine{weights: weights.normalized(), alertThreshold: 0.4}
}

// Compute fuses the input into an assessment. Identical inputs always
// produce identical output apart from the assessment timestamp.
func (e *Engine) Compute(in Input) Assessment {
	weighted := map[string]float64{
		"behavior":    in.BehaviorScore * e.weights.Behavior,
		"sensitivity": in.SensitivityScore * e.weights.Sensitivity,
		"integrity":   in.IntegrityScore * e.weights.Integrity,
	}
	base := weighted["behavior"] + weighted["sensitivity"] + weighted["integrity"]

	if in.CrossDepartment {
		if floor, ok := crossDeptFloor[in.Action]; ok && base < floor {
			base = floor
		}
	}

	actionMult := multiplier(actionMultipliers, in.Action, 1.0)
	crossMult := 1.0
	if in.CrossDepartment {
		crossMult = multiplier(crossDeptMultipliers, in.Action, 1.5)
	}
	temporalMult := 1.0
	if in.Weekend {
		temporalMult = weekendMultiplier
	} else if in.AfterHours {
		temporalMult = afterHoursMultiplier
	}

	fused := base * actionMult * crossMult * temporalMult
	if fused > 1 {
		fused = 1
	}
	if fused < 0 {
		fused = 0
	}

	level := core.RiskLevelFor(fused)
	factors, primary := riskFactors(in)

	a := Assessment{
		RiskScore:     fused,
		RiskLevel:     level,
		SeverityLabel: severityLabels[level],
		Components: map[string]float64{
			"behavior":    in.BehaviorScore,
			"sensitivity": in.SensitivityScore,
			"integrity":   in.IntegrityScore,
		},
		WeightedComponents: weighted,
		ActionMultiplier:   actionMult,
		CrossMultiplier:    crossMult,
		TemporalMultiplier: temporalMult,
		IsAnomalous:        in.BehaviorScore > 0.5,
		IsCrossDepartment:  in.CrossDepartment,
		PrimaryRiskFactor:  primary,
		RiskFactors:        factors,
		AssessedAt:         time.Now().UTC(),
	}
	a.RequiresAlert = e.shouldAlert(a, in)
	return a
}

func (e *Engine) shouldAlert(a Assessment, in Input) bool {
	if a.RiskLevel == core.RiskCritical {
		return true
	}
	if a.RiskLevel == core.RiskHigh && len(a.RiskFactors) >= 2 {
		return true
	}
	if in.IntegrityScore > 0 {
		return true
	}
	if in.CrossDepartment && in.SensitivityScore > 0.7 && a.ActionMultiplier >= 1.5 {
		return true
	}
	return a.RiskScore >= e.alertThreshold
}

func riskFactors(in Input) (factors []string, primary string) {
	primary = "none"
	var maxComponent float64

	if in.BehaviorScore > 0.5 {
		factors = append(factors, fmt.Sprintf("Anomalous behavior (score: %.2f)", in.BehaviorScore))
		if in.BehaviorScore > maxComponent {
			maxComponent = in.BehaviorScore
			primary = "behavioral_anomaly"
		}
	}
	if in.SensitivityScore > 0.5 {
		factors = append(factors, fmt.Sprintf("Sensitive document accessed (score: %.2f)", in.SensitivityScore))
		if in.SensitivityScore > maxComponent {
			maxComponent = in.SensitivityScore
			primary = "document_sensitivity"
		}
	}
	if in.IntegrityScore > 0 {
		factors = append(factors, fmt.Sprintf("Document tampering detected (score: %.2f)", in.IntegrityScore))
		if in.IntegrityScore > maxComponent {
			maxComponent = in.IntegrityScore
			primary = "integrity_violation"
		}
	}
	if in.CrossDepartment {
		factors = append(factors, "Cross-department access")
	}
	if in.AfterHours || in.Weekend {
		period := "after hours"
		if in.Weekend {
			period = "weekend"
		}
		factors = append(factors, fmt.Sprintf("Off-hours activity (%s)", period))
	}
	switch in.Action {
	case core.ActionDownload, core.ActionModify, core.ActionDelete:
		factors = append(factors, fmt.Sprintf("High-risk action: %s", in.Action))
	}
	return factors, primary
}

// AlertSummary renders a one-line analyst summary for an alert.
func AlertSummary(a Assessment, actorID, documentName string, action core.ActionType) string {
	summary := fmt.Sprintf("[%s] User %s performed %s on %s (Risk: %.2f)",
		strings.ToUpper(string(a.RiskLevel)), actorID, action, documentName, a.RiskScore)

	if len(a.RiskFactors) > 0 {
		top := a.RiskFactors
		if len(top) > 3 {
			top = top[:3]
		}
		summary += " | Factors: " + strings.Join(top, "; ")
	}
	return summary
}

func multiplier(table map[core.ActionType]float64, action core.ActionType, fallback float64) float64 {
	if m, ok := table[action]; ok {
		return m
	}
	return fallback
}
