// Package classify predicts document sensitivity from content using a
// lexicon tier plus regex indicators for structured sensitive data.
package classify

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/aegis-sec/sentinel/internal/core"
)

// Phrase lexicons per sensitivity level. Matching is case-insensitive on
// whole words/phrases; every occurrence counts.
var lexicons = map[core.SensitivityLevel][]string{
	core.SensitivityPublic: {
		"announcement", "public", "general", "all employees", "everyone",
		"press release", "newsletter", "company-wide", "open", "shared",
	},
	core.SensitivityInternal: {
		"internal", "employees only", "staff", "not for external",
		"company use", "internal use", "do not share", "internal memo",
		"team only", "department",
	},
	core.SensitivityConfidential: {
		"confidential", "restricted", "secret", "private", "sensitive",
		"classified", "proprietary", "financial", "pii", "personal data",
		"gdpr", "ccpa", "unauthorized access", "c-level", "executive",
		"ssn", "social security", "credit card", "salary", "compensation",
		"merger", "acquisition", "trade secret", "nda", "legal privilege",
		"attorney-client", "medical", "health", "hipaa",
	},
}

// Structured-data indicators. Any hit adds a fixed bonus to the
// confidential tally and is reported as a risk indicator.
var patterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"phone", regexp.MustCompile(`\b\d{3}[- .]?\d{3}[- .]?\d{4}\b`)},
	{"money", regexp.MustCompile(`\$[\d,]+(\.\d{2})?|\b\d+(,\d{3})*(\.\d{2})?\s*(USD|dollars?|EUR|euros?)\b`)},
	{"percentage", regexp.MustCompile(`\b\d+(\.\d+)?%`)},
	{"api_key", regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`)},
	{"password_field", regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`)},
}

// patternBonus is added to the confidential tally per matched pattern.
const patternBonus = 2.0

// Base risk weights per level, scaled by confidence to get the
// sensitivity risk signal.
var riskWeights = map[core.SensitivityLevel]float64{
	core.SensitivityPublic:       0.1,
	core.SensitivityInternal:     0.5,
	core.SensitivityConfidential: 0.9,
}

// Result is a sensitivity prediction for one piece of content.
type Result struct {
	Level          core.SensitivityLevel `json:"level"`
	Confidence     float64               `json:"confidence"`
	Probabilities  map[string]float64    `json:"probabilities"`
	KeywordsFound  []string              `json:"keywords_found,omitempty"`
	RiskIndicators []string              `json:"risk_indicators,omitempty"`
}

// RiskScore converts the prediction into a [0,1] risk signal.
func (r Result) RiskScore() float64 {
	return riskWeights[r.Level] * r.Confidence
}

// Classifier scans content against the lexicons. It is stateless and safe
// for concurrent use.
type Classifier struct {
	wordRes map[core.SensitivityLevel][]*regexp.Regexp
}

// New builds a classifier with the phrase regexes precompiled.
func New() *Classifier {
	c := &Classifier{wordRes: make(map[core.SensitivityLevel][]*regexp.Regexp)}
	for level, phrases := range lexicons {
		for _, p := range phrases {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\b`)
			c.wordRes[level] = append(c.wordRes[level], re)
		}
	}
	return c
}

// Neutral is the result used when no content is available or the
// classifier fails: internal at half confidence.
func Neutral() Result {
	return Result{
		Level:      core.SensitivityInternal,
		Confidence: 0.5,
		Probabilities: map[string]float64{
			"public":       0.2,
			"internal":     0.6,
			"confidential": 0.2,
		},
	}
}

// Classify predicts the sensitivity of text. Empty content gets the
// neutral result.
func (c *Classifier) Classify(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Neutral()
	}
	lower := strings.ToLower(text)

	scores := map[core.SensitivityLevel]float64{}
	keywords := map[core.SensitivityLevel][]string{}
	for _, level := range levels() {
		for j, re := range c.wordRes[level] {
			if n := len(re.FindAllStringIndex(lower, -1)); n > 0 {
				scores[level] += float64(n)
				keywords[level] = append(keywords[level], lexicons[level][j])
			}
		}
	}

	var indicators []string
	for _, p := range patterns {
		if p.re.MatchString(text) {
			scores[core.SensitivityConfidential] += patternBonus
			indicators = append(indicators, fmt.Sprintf("Detected %s pattern", p.name))
		}
	}

	total := scores[core.SensitivityPublic] + scores[core.SensitivityInternal] + scores[core.SensitivityConfidential]
	if total == 0 {
		return Neutral()
	}

	probs := map[string]float64{
		"public":       scores[core.SensitivityPublic] / total,
		"internal":     scores[core.SensitivityInternal] / total,
		"confidential": scores[core.SensitivityConfidential] / total,
	}

	predicted := argmax(scores)
	confidence := probs[string(predicted)]
	if predicted == core.SensitivityConfidential && confidence < 0.6 {
		confidence = math.Min(confidence*1.5, 0.95)
	}

	found := append([]string(nil), keywords[predicted]...)
	sort.Strings(found)

	return Result{
		Level:          predicted,
		Confidence:     confidence,
		Probabilities:  probs,
		KeywordsFound:  found,
		RiskIndicators: indicators,
	}
}

// Mismatch is the upload sensitivity comparison outcome.
type Mismatch struct {
	Flagged      bool    `json:"flagged"`
	RiskModifier float64 `json:"risk_modifier"`
	Explanation  string  `json:"explanation"`
}

// CompareDeclared compares the caller's declared sensitivity against the
// prediction. Declaring lower than predicted is flagged; declaring higher
// records a negligible modifier without a flag.
func CompareDeclared(declared core.SensitivityLevel, predicted Result) Mismatch {
	dr, pr := declared.Rank(), predicted.Level.Rank()
	switch {
	case dr == pr:
		return Mismatch{Explanation: "Sensitivity levels match"}
	case dr < pr:
		mod := 0.3 * float64(pr-dr) * predicted.Confidence
		return Mismatch{
			Flagged:      true,
			RiskModifier: mod,
			Explanation: fmt.Sprintf(
				"SENSITIVITY MISMATCH: declared %q but classifier detected %q (confidence %.0f%%)",
				declared, predicted.Level, predicted.Confidence*100),
		}
	default:
		return Mismatch{
			RiskModifier: 0.05 * predicted.Confidence,
			Explanation: fmt.Sprintf(
				"declared %q above predicted %q; caller may be overly cautious",
				declared, predicted.Level),
		}
	}
}

func levels() []core.SensitivityLevel {
	return []core.SensitivityLevel{
		core.SensitivityPublic,
		core.SensitivityInternal,
		core.SensitivityConfidential,
	}
}

// argmax prefers the more sensitive level on ties.
func argmax(scores map[core.SensitivityLevel]float64) core.SensitivityLevel {
	best := core.SensitivityPublic
	for _, level := range levels() {
		if scores[level] >= scores[best] {
			best = level
		}
	}
	return best
}
