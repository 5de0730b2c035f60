package explain

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/aegis-sec/sentinel/internal/core"
)

// ProbFunc returns class probabilities for a piece of text, keyed by
// sensitivity level string.
type ProbFunc func(text string) map[string]float64

// TokenAttribution is one token's signed pull on the predicted class.
type TokenAttribution struct {
	Token     string  `json:"token"`
	Weight    float64 `json:"weight"`
	Direction string  `json:"direction"`
}

// DocumentExplanation attributes a sensitivity prediction to tokens.
type DocumentExplanation struct {
	DocumentID         string             `json:"document_id"`
	PredictedClass     string             `json:"predicted_class"`
	Confidence         float64            `json:"confidence"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
	TopTokens          []TokenAttribution `json:"top_tokens"`
	Text               string             `json:"text"`
}

// DocumentExplainer measures token influence by perturbation: random
// token subsets are scored through the classifier's own probability
// function and each token's weight is the mean probability shift between
// samples that keep it and samples that drop it.
type DocumentExplainer struct {
	probs   ProbFunc
	samples int
	seed    int64
}

// NewDocumentExplainer builds an explainer over the given probability
// function. samples <= 0 falls back to 500 perturbations.
func NewDocumentExplainer(probs ProbFunc, samples int) *DocumentExplainer {
	if samples <= 0 {
		samples = 500
	}
	return &DocumentExplainer{probs: probs, samples: samples, seed: 42}
}

// Explain attributes the prediction for text. topK bounds the ranked
// token list (default 10). Empty text yields a zero-value explanation.
func (d *DocumentExplainer) Explain(documentID, text string, topK int) DocumentExplanation {
	if topK <= 0 {
		topK = 10
	}

	full := d.probs(text)
	predicted, confidence := argmaxClass(full)

	exp := DocumentExplanation{
		DocumentID:         documentID,
		PredictedClass:     predicted,
		Confidence:         confidence,
		ClassProbabilities: full,
	}

	tokens := uniqueTokens(text)
	if len(tokens) == 0 {
		exp.Text = documentText(documentID, predicted, confidence, nil)
		return exp
	}

	rng := rand.New(rand.NewSource(d.seed))
	presentSum := make([]float64, len(tokens))
	presentN := make([]int, len(tokens))
	absentSum := make([]float64, len(tokens))
	absentN := make([]int, len(tokens))

	mask := make([]bool, len(tokens))
	for s := 0; s < d.samples; s++ {
		kept := make([]string, 0, len(tokens))
		for i := range tokens {
			mask[i] = rng.Intn(2) == 0
			if mask[i] {
				kept = append(kept, tokens[i])
			}
		}
		p := d.probs(strings.Join(kept, " "))[predicted]
		for i := range tokens {
			if mask[i] {
				presentSum[i] += p
				presentN[i]++
			} else {
				absentSum[i] += p
				absentN[i]++
			}
		}
	}

	attrs := make([]TokenAttribution, 0, len(tokens))
	for i, tok := range tokens {
		if presentN[i] == 0 || absentN[i] == 0 {
			continue
		}
		w := presentSum[i]/float64(presentN[i]) - absentSum[i]/float64(absentN[i])
		direction := fmt.Sprintf("supports '%s'", predicted)
		if w < 0 {
			direction = fmt.Sprintf("against '%s'", predicted)
		}
		attrs = append(attrs, TokenAttribution{Token: tok, Weight: w, Direction: direction})
	}

	sort.SliceStable(attrs, func(i, j int) bool {
		return abs(attrs[i].Weight) > abs(attrs[j].Weight)
	})
	if len(attrs) > topK {
		attrs = attrs[:topK]
	}

	exp.TopTokens = attrs
	exp.Text = documentText(documentID, predicted, confidence, attrs)
	return exp
}

func documentText(documentID, predicted string, confidence float64, top []TokenAttribution) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Classification explanation for %s:\n", documentID)
	fmt.Fprintf(&sb, "Predicted sensitivity: %s\n", strings.ToUpper(predicted))
	fmt.Fprintf(&sb, "Confidence: %.1f%%\n", confidence*100)

	var supporting, opposing []TokenAttribution
	for _, a := range top {
		if a.Weight > 0 && len(supporting) < 3 {
			supporting = append(supporting, a)
		} else if a.Weight < 0 && len(opposing) < 3 {
			opposing = append(opposing, a)
		}
	}
	if len(supporting) > 0 {
		fmt.Fprintf(&sb, "Words supporting '%s':\n", predicted)
		for _, a := range supporting {
			fmt.Fprintf(&sb, "  - %q (weight: %+.3f)\n", a.Token, a.Weight)
		}
	}
	if len(opposing) > 0 {
		sb.WriteString("Words suggesting a different classification:\n")
		for _, a := range opposing {
			fmt.Fprintf(&sb, "  - %q (weight: %+.3f)\n", a.Token, a.Weight)
		}
	}
	return sb.String()
}

// argmaxClass prefers the more sensitive class on ties.
func argmaxClass(probs map[string]float64) (string, float64) {
	order := []core.SensitivityLevel{
		core.SensitivityPublic,
		core.SensitivityInternal,
		core.SensitivityConfidential,
	}
	best, bestP := string(core.SensitivityInternal), -1.0
	for _, level := range order {
		if p, ok := probs[string(level)]; ok && p >= bestP {
			best, bestP = string(level), p
		}
	}
	if bestP < 0 {
		bestP = 0
	}
	return best, bestP
}

func uniqueTokens(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
