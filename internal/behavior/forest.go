package behavior

import (
	"math"
	"math/rand"
	"sort"
)

// isolationForest is an ensemble of randomly-built binary trees. Points
// that isolate in few splits get short average path lengths and high
// anomaly scores.
type isolationForest struct {
	trees      []*isoNode
	sampleSize int
}

type isoNode struct {
	// internal node
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	// leaf
	size int
}

const (
	numTrees          = 100
	defaultSampleSize = 256
)

func fitForest(samples [][]float64, rng *rand.Rand) *isolationForest {
	n := len(samples)
	sampleSize := defaultSampleSize
	if n < sampleSize {
		sampleSize = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1

	f := &isolationForest{sampleSize: sampleSize}
	for t := 0; t < numTrees; t++ {
		sub := make([][]float64, sampleSize)
		for i := range sub {
			sub[i] = samples[rng.Intn(n)]
		}
		f.trees = append(f.trees, buildIsoTree(sub, 0, maxDepth, rng))
	}
	return f
}

func buildIsoTree(samples [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(samples) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(samples)}
	}

	dims := len(samples[0])
	// Pick a feature with spread; give up after a few draws if the
	// subsample is constant.
	for attempt := 0; attempt < dims; attempt++ {
		feature := rng.Intn(dims)
		lo, hi := samples[0][feature], samples[0][feature]
		for _, s := range samples[1:] {
			if s[feature] < lo {
				lo = s[feature]
			}
			if s[feature] > hi {
				hi = s[feature]
			}
		}
		if hi <= lo {
			continue
		}
		split := lo + rng.Float64()*(hi-lo)

		var left, right [][]float64
		for _, s := range samples {
			if s[feature] < split {
				left = append(left, s)
			} else {
				right = append(right, s)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		return &isoNode{
			feature: feature,
			split:   split,
			left:    buildIsoTree(left, depth+1, maxDepth, rng),
			right:   buildIsoTree(right, depth+1, maxDepth, rng),
		}
	}
	return &isoNode{size: len(samples)}
}

func (n *isoNode) pathLength(x []float64, depth float64) float64 {
	if n.left == nil {
		return depth + avgPathLength(n.size)
	}
	if x[n.feature] < n.split {
		return n.left.pathLength(x, depth+1)
	}
	return n.right.pathLength(x, depth+1)
}

// anomalyScore returns the standard isolation score in (0,1]: values near
// 1 isolate quickly, values near 0.5 and below look normal.
func (f *isolationForest) anomalyScore(x []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.pathLength(x, 0)
	}
	mean := sum / float64(len(f.trees))
	return math.Pow(2, -mean/avgPathLength(f.sampleSize))
}

// decisionScore mirrors the usual decision-function convention: positive
// means normal, negative means anomalous, range roughly [-0.5, 0.5].
func (f *isolationForest) decisionScore(x []float64) float64 {
	return 0.5 - f.anomalyScore(x)
}

// avgPathLength is c(n), the expected path length of an unsuccessful
// BST search over n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+0.5772156649) - 2*(fn-1)/fn
}

// quantile returns the q-quantile (0..1) of values.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
