// Package explain produces per-feature and per-token attributions for
// scored events.
package explain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoBackground means the behavior explainer has no reference samples.
var ErrNoBackground = errors.New("no background samples")

// FeatureAttribution is one feature's signed contribution. Positive
// values push toward normal, negative toward anomalous, matching the
// detector's decision-score convention.
type FeatureAttribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// BehaviorExplanation attributes a behavior score across the feature
// vector. BaseValue plus the sum of all attributions reproduces the
// predicted raw score.
type BehaviorExplanation struct {
	ActorID        string               `json:"actor_id"`
	Values         map[string]float64   `json:"values"`
	BaseValue      float64              `json:"base_value"`
	PredictedScore float64              `json:"predicted_score"`
	TopFeatures    []FeatureAttribution `json:"top_features"`
	Text           string               `json:"text"`
}

// ScoreFunc maps a feature vector to the detector's raw decision score.
type ScoreFunc func([]float64) float64

// BehaviorExplainer attributes scores by background substitution: each
// feature's marginal effect is measured by swapping it for the background
// mean, then the deltas are scaled so they sum to score minus base.
type BehaviorExplainer struct {
	score        ScoreFunc
	featureNames []string
	background   [][]float64
	bgMean       []float64
	baseValue    float64
}

// NewBehaviorExplainer prepares an explainer over background samples.
func NewBehaviorExplainer(score ScoreFunc, featureNames []string, background [][]float64) (*BehaviorExplainer, error) {
	if len(background) == 0 {
		return nil, ErrNoBackground
	}

	dims := len(featureNames)
	mean := make([]float64, dims)
	var base float64
	for _, s := range background {
		base += score(s)
		for j := 0; j < dims && j < len(s); j++ {
			mean[j] += s[j]
		}
	}
	n := float64(len(background))
	base /= n
	for j := range mean {
		mean[j] /= n
	}

	return &BehaviorExplainer{
		score:        score,
		featureNames: featureNames,
		background:   background,
		bgMean:       mean,
		baseValue:    base,
	}, nil
}

// Explain attributes the score of one feature vector. topK bounds the
// ranked list (default 10 when topK <= 0).
func (b *BehaviorExplainer) Explain(actorID string, features []float64, topK int) BehaviorExplanation {
	if topK <= 0 {
		topK = 10
	}
	predicted := b.score(features)

	deltas := make([]float64, len(b.featureNames))
	var deltaSum float64
	for j := range deltas {
		if j >= len(features) {
			break
		}
		perturbed := append([]float64(nil), features...)
		perturbed[j] = b.bgMean[j]
		deltas[j] = predicted - b.score(perturbed)
		deltaSum += deltas[j]
	}

	// Scale so attributions sum exactly to predicted - base.
	gap := predicted - b.baseValue
	values := make(map[string]float64, len(deltas))
	attrs := make([]FeatureAttribution, 0, len(deltas))
	for j, name := range b.featureNames {
		v := deltas[j]
		if deltaSum != 0 {
			v = deltas[j] * gap / deltaSum
		} else if len(deltas) > 0 {
			v = gap / float64(len(deltas))
		}
		values[name] = v
		attrs = append(attrs, FeatureAttribution{Feature: name, Value: v})
	}

	sort.SliceStable(attrs, func(i, j int) bool {
		return abs(attrs[i].Value) > abs(attrs[j].Value)
	})
	if len(attrs) > topK {
		attrs = attrs[:topK]
	}

	return BehaviorExplanation{
		ActorID:        actorID,
		Values:         values,
		BaseValue:      b.baseValue,
		PredictedScore: predicted,
		TopFeatures:    attrs,
		Text:           behaviorText(actorID, predicted, attrs),
	}
}

func behaviorText(actorID string, predicted float64, top []FeatureAttribution) string {
	status := "NORMAL"
	if predicted < 0 {
		status = "ANOMALOUS"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Risk analysis for actor %s:\n", actorID)
	fmt.Fprintf(&sb, "Overall anomaly score: %.3f\n", predicted)
	fmt.Fprintf(&sb, "Status: %s\n\nKey factors contributing to this assessment:\n", status)

	limit := 5
	if len(top) < limit {
		limit = len(top)
	}
	for i := 0; i < limit; i++ {
		f := top[i]
		impact := "normalcy"
		if f.Value < 0 {
			impact = "risk"
		}
		fmt.Fprintf(&sb, "  %d. %s: increases %s by %.3f\n", i+1, readableFeature(f.Feature), impact, abs(f.Value))
	}
	return sb.String()
}

func readableFeature(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
