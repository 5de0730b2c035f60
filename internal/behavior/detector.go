package behavior

import (
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/aegis-sec/sentinel/internal/core"
)

// ErrNoSamples means Fit was called without training data.
var ErrNoSamples = errors.New("no training samples")

// Result is the outcome of scoring one feature vector.
type Result struct {
	Score     float64        `json:"score"`
	Level     core.RiskLevel `json:"level"`
	Anomalous bool           `json:"anomalous"`
}

// TrainSummary reports what a Fit call produced.
type TrainSummary struct {
	Samples     int     `json:"samples"`
	AnomalyRate float64 `json:"anomaly_rate"`
	ScoreMean   float64 `json:"score_mean"`
}

// Detector scores feature vectors with an isolation forest over
// standard-scaled features. An untrained detector returns the neutral
// result so the pipeline degrades instead of failing.
type Detector struct {
	contamination float64
	seed          int64

	mu        sync.RWMutex
	forest    *isolationForest
	mean      []float64
	std       []float64
	threshold float64
	trained   bool
}

// NewDetector creates an untrained detector. contamination is the expected
// anomaly fraction used to place the anomaly threshold; out-of-range
// values fall back to 0.1.
func NewDetector(contamination float64) *Detector {
	if contamination <= 0 || contamination > 0.5 {
		contamination = 0.1
	}
	return &Detector{contamination: contamination, seed: 42}
}

// Fit trains the forest on the given feature matrix.
func (d *Detector) Fit(samples [][]float64) (TrainSummary, error) {
	if len(samples) == 0 {
		return TrainSummary{}, ErrNoSamples
	}

	mean, std := fitScaler(samples)
	scaled := make([][]float64, len(samples))
	for i, s := range samples {
		scaled[i] = scale(s, mean, std)
	}

	rng := rand.New(rand.NewSource(d.seed))
	forest := fitForest(scaled, rng)

	scores := make([]float64, len(scaled))
	var sum float64
	for i, s := range scaled {
		scores[i] = forest.decisionScore(s)
		sum += scores[i]
	}
	threshold := quantile(scores, d.contamination)

	var anomalies int
	for _, s := range scores {
		if s < threshold {
			anomalies++
		}
	}

	d.mu.Lock()
	d.forest = forest
	d.mean = mean
	d.std = std
	d.threshold = threshold
	d.trained = true
	d.mu.Unlock()

	return TrainSummary{
		Samples:     len(samples),
		AnomalyRate: float64(anomalies) / float64(len(samples)),
		ScoreMean:   sum / float64(len(scores)),
	}, nil
}

// Trained reports whether Fit has completed.
func (d *Detector) Trained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.trained
}

// Score maps a feature vector to a [0,1] risk score with level buckets.
// Untrained detectors return the neutral low result.
func (d *Detector) Score(features []float64) Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.trained {
		return Result{Score: 0, Level: core.RiskLow, Anomalous: false}
	}

	x := scale(features, d.mean, d.std)
	raw := d.forest.decisionScore(x)

	normalized := clamp((-raw + 0.5) / 1.0)
	return Result{
		Score:     normalized,
		Level:     core.RiskLevelFor(normalized),
		Anomalous: raw < d.threshold,
	}
}

// RawScore exposes the unnormalized decision score for attribution.
// Returns 0 when untrained.
func (d *Detector) RawScore(features []float64) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.trained {
		return 0
	}
	return d.forest.decisionScore(scale(features, d.mean, d.std))
}

func fitScaler(samples [][]float64) (mean, std []float64) {
	dims := len(samples[0])
	mean = make([]float64, dims)
	std = make([]float64, dims)

	for _, s := range samples {
		for j, v := range s {
			mean[j] += v
		}
	}
	n := float64(len(samples))
	for j := range mean {
		mean[j] /= n
	}
	for _, s := range samples {
		for j, v := range s {
			diff := v - mean[j]
			std[j] += diff * diff
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 {
			std[j] = 1
		}
	}
	return mean, std
}

func scale(x, mean, std []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - mean[j]) / std[j]
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
