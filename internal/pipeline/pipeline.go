// Package pipeline runs the fixed scoring sequence for one event:
// behavior, sensitivity, integrity, fusion, explanations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aegis-sec/sentinel/internal/behavior"
	"github.com/aegis-sec/sentinel/internal/classify"
	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/explain"
	"github.com/aegis-sec/sentinel/internal/fusion"
	"github.com/aegis-sec/sentinel/internal/integrity"
)

// ScoredEvent aggregates every component result for one event.
type ScoredEvent struct {
	Event *core.Event

	Features    []float64
	Behavior    behavior.Result
	Sensitivity classify.Result
	Mismatch    *classify.Mismatch
	Integrity   integrity.Result
	Assessment  fusion.Assessment

	BehaviorExplanation *explain.BehaviorExplanation
	DocumentExplanation *explain.DocumentExplanation

	WarningMessage string
}

// Pipeline wires the scoring components. A failed or unavailable stage
// contributes its neutral result; the pipeline never rejects an event.
type Pipeline struct {
	history    *behavior.History
	detector   *behavior.Detector
	classifier *classify.Classifier
	verifier   *integrity.Verifier
	baselines  integrity.BaselineLoader
	engine     *fusion.Engine

	mu                sync.RWMutex
	behaviorExplainer *explain.BehaviorExplainer
	samples           [][]float64

	docExplainer *explain.DocumentExplainer

	log *slog.Logger
}

// sampleCap bounds the rolling feature buffer used for retraining.
const sampleCap = 5000

// Options carries the optional pieces of a pipeline.
type Options struct {
	BehaviorExplainer *explain.BehaviorExplainer
	DocumentExplainer *explain.DocumentExplainer
	Logger            *slog.Logger
}

// New assembles a pipeline.
func New(
	history *behavior.History,
	detector *behavior.Detector,
	classifier *classify.Classifier,
	verifier *integrity.Verifier,
	baselines integrity.BaselineLoader,
	engine *fusion.Engine,
	opts Options,
) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		history:           history,
		detector:          detector,
		classifier:        classifier,
		verifier:          verifier,
		baselines:         baselines,
		engine:            engine,
		behaviorExplainer: opts.BehaviorExplainer,
		docExplainer:      opts.DocumentExplainer,
		log:               logger,
	}
}

// Process scores one event. The event's risk fields are filled in place
// and the full component breakdown is returned.
func (p *Pipeline) Process(ctx context.Context, ev *core.Event) *ScoredEvent {
	out := &ScoredEvent{Event: ev}

	base, baseKnown := p.lookupBaseline(ctx, ev.DocumentID)

	// Behavior scoring over the actor's trailing window, then the event
	// joins the window.
	docSensitivity := ev.DeclaredSensitivity
	if docSensitivity == "" {
		docSensitivity = core.SensitivityInternal
	}
	recent := p.history.Recent(ev.ActorID, ev.Timestamp)
	out.Features = behavior.Extract(ev, recent, docSensitivity)
	out.Behavior = p.detector.Score(out.Features)
	p.history.Record(ev)
	p.buffer(out.Features)

	// Sensitivity: event content first, registered baseline second.
	content := ev.Content
	if content == "" && baseKnown {
		content = base.Content
	}
	if content != "" {
		out.Sensitivity = p.classifier.Classify(content)
	} else {
		out.Sensitivity = classify.Neutral()
	}
	sensitivityScore := out.Sensitivity.RiskScore()

	if ev.Action == core.ActionUpload && ev.DeclaredSensitivity != "" {
		m := classify.CompareDeclared(ev.DeclaredSensitivity, out.Sensitivity)
		out.Mismatch = &m
		// The mismatch modifier rides on the sensitivity signal into
		// fusion and is surfaced separately in alert details.
		sensitivityScore = clamp01(sensitivityScore + m.RiskModifier)
	}

	// Integrity applies only to content-bearing modify/upload.
	switch {
	case (ev.Action == core.ActionModify || ev.Action == core.ActionUpload) && ev.Content != "" && baseKnown:
		out.Integrity = p.verifier.Verify(base, ev.Content)
	default:
		out.Integrity = integrity.Zero(ev.DocumentID)
	}

	out.Assessment = p.engine.Compute(fusion.Input{
		BehaviorScore:    out.Behavior.Score,
		SensitivityScore: sensitivityScore,
		IntegrityScore:   out.Integrity.RiskScore(),
		Action:           ev.Action,
		CrossDepartment:  ev.CrossDepartment(),
		AfterHours:       behavior.AfterHours(ev.Timestamp),
		Weekend:          behavior.Weekend(ev.Timestamp),
	})

	ev.IsCrossDepartment = ev.CrossDepartment()
	ev.BehaviorScore = out.Behavior.Score
	ev.RiskScore = out.Assessment.RiskScore
	ev.RiskLevel = out.Assessment.RiskLevel

	p.explain(ev, out, content)

	if out.Assessment.RiskLevel == core.RiskHigh || out.Assessment.RiskLevel == core.RiskCritical {
		out.WarningMessage = fmt.Sprintf("%s: %s on %s flagged for review",
			out.Assessment.SeverityLabel, ev.Action, ev.DocumentID)
	}
	return out
}

func (p *Pipeline) lookupBaseline(ctx context.Context, documentID string) (integrity.Baseline, bool) {
	if p.baselines == nil || documentID == "" {
		return integrity.Baseline{}, false
	}
	base, err := p.baselines.Baseline(ctx, documentID)
	if err != nil {
		if !errors.Is(err, integrity.ErrBaselineNotFound) {
			p.log.Warn("baseline lookup failed", "document_id", documentID, "error", err)
		}
		return integrity.Baseline{}, false
	}
	return base, true
}

// buffer keeps a rolling window of extracted feature vectors as the
// training corpus for Retrain. Oldest samples fall off first.
func (p *Pipeline) buffer(features []float64) {
	sample := make([]float64, len(features))
	copy(sample, features)

	p.mu.Lock()
	p.samples = append(p.samples, sample)
	if len(p.samples) > sampleCap {
		p.samples = p.samples[len(p.samples)-sampleCap:]
	}
	p.mu.Unlock()
}

// ErrNotEnoughSamples means Retrain was called before enough events were
// scored to form a training corpus.
var ErrNotEnoughSamples = errors.New("not enough samples to retrain")

// Retrain refits the anomaly detector on the buffered feature vectors
// and rebuilds the behavior explainer over the fresh background.
func (p *Pipeline) Retrain(minSamples int) (behavior.TrainSummary, error) {
	if minSamples <= 0 {
		minSamples = 50
	}

	p.mu.RLock()
	corpus := make([][]float64, len(p.samples))
	copy(corpus, p.samples)
	p.mu.RUnlock()

	if len(corpus) < minSamples {
		return behavior.TrainSummary{}, ErrNotEnoughSamples
	}

	summary, err := p.detector.Fit(corpus)
	if err != nil {
		return behavior.TrainSummary{}, err
	}

	background := corpus
	if len(background) > 256 {
		background = background[len(background)-256:]
	}
	explainer, err := explain.NewBehaviorExplainer(p.detector.RawScore, behavior.FeatureNames(), background)
	if err != nil {
		p.log.Warn("behavior explainer rebuild failed", "error", err)
		return summary, nil
	}

	p.mu.Lock()
	p.behaviorExplainer = explainer
	p.mu.Unlock()

	p.log.Info("detector retrained",
		"samples", summary.Samples,
		"anomaly_rate", summary.AnomalyRate,
	)
	return summary, nil
}

// explain runs the optional attribution backends. Failures or missing
// backends leave the event unexplained.
func (p *Pipeline) explain(ev *core.Event, out *ScoredEvent, content string) {
	p.mu.RLock()
	behaviorExplainer := p.behaviorExplainer
	p.mu.RUnlock()

	if behaviorExplainer != nil && out.Behavior.Anomalous {
		exp := behaviorExplainer.Explain(ev.ActorID, out.Features, 10)
		out.BehaviorExplanation = &exp
	}
	if p.docExplainer != nil && content != "" {
		exp := p.docExplainer.Explain(ev.DocumentID, content, 10)
		out.DocumentExplanation = &exp
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
