package integrity

import (
	"math"
	"strings"
	"unicode"
)

// CosineEmbedder grades similarity with term-frequency cosine over
// lowercased word tokens. Deterministic and dependency-free, it stands in
// for a sentence-embedding model behind the same Embedder interface.
type CosineEmbedder struct{}

// Similarity returns the cosine of the two texts' term-frequency vectors.
// ok is false when either text has no tokens.
func (CosineEmbedder) Similarity(a, b string) (float64, bool) {
	ta := termFreq(a)
	tb := termFreq(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, false
	}

	var dot, na, nb float64
	for term, fa := range ta {
		na += fa * fa
		if fb, ok := tb[term]; ok {
			dot += fa * fb
		}
	}
	for _, fb := range tb {
		nb += fb * fb
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func termFreq(text string) map[string]float64 {
	freq := make(map[string]float64)
	for _, tok := range Tokenize(text) {
		freq[tok]++
	}
	return freq
}

// Tokenize splits text into lowercased alphanumeric word tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
