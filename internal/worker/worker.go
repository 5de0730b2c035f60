// Package worker drains the ingest queue: each worker scores events
// through the pipeline, persists the results, and pushes realtime
// notifications.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/fusion"
	"github.com/aegis-sec/sentinel/internal/integrity"
	"github.com/aegis-sec/sentinel/internal/monitoring"
	"github.com/aegis-sec/sentinel/internal/pipeline"
	"github.com/aegis-sec/sentinel/internal/queue"
	"github.com/aegis-sec/sentinel/internal/store"
)

// SystemStatus is the periodic health snapshot pushed to admin sessions.
type SystemStatus struct {
	QueueDepth         int     `json:"queue_depth"`
	QueueCapacity      int     `json:"queue_capacity"`
	UtilizationPercent float64 `json:"utilization_percent"`
	EventsProcessed    uint64  `json:"events_processed"`
}

// Broadcaster pushes processing results to connected admin sessions.
// Implementations must not block the caller.
type Broadcaster interface {
	NewEvent(ev *core.Event)
	NewAlert(alert *core.Alert)
	SystemStatus(status SystemStatus)
}

// Pool runs a fixed set of workers over the ingest queue.
type Pool struct {
	queue    *queue.Queue
	pipeline *pipeline.Pipeline
	store    store.Store
	registry *integrity.Registry
	cast     Broadcaster
	metrics  *monitoring.Metrics
	log      *slog.Logger

	workers int
	wg      sync.WaitGroup

	mu        sync.Mutex
	processed uint64
}

// NewPool wires a worker pool. registry, cast, and metrics may be nil.
func NewPool(q *queue.Queue, p *pipeline.Pipeline, st store.Store, registry *integrity.Registry, cast Broadcaster, metrics *monitoring.Metrics, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:    q,
		pipeline: p,
		store:    st,
		registry: registry,
		cast:     cast,
		metrics:  metrics,
		log:      logger,
		workers:  workers,
	}
}

// Start launches the workers. They exit when the queue is closed and
// drained; Wait blocks until then.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, id int) {
	log := p.log.With("worker", id)
	for {
		ev, ok := p.queue.Take()
		if !ok {
			log.Info("queue closed, worker exiting")
			return
		}
		p.handle(ctx, log, ev)
	}
}

func (p *Pool) handle(ctx context.Context, log *slog.Logger, ev *core.Event) {
	start := time.Now()
	scored := p.pipeline.Process(ctx, ev)
	p.observe("pipeline", time.Since(start))

	persistStart := time.Now()

	// The event row anchors every other record. If it cannot be written
	// the result is dropped rather than half-persisted.
	if err := p.store.InsertEvent(ctx, ev); err != nil {
		log.Error("event persistence failed, dropping result",
			"event_id", ev.ID, "actor_id", ev.ActorID, "error", err)
		if p.metrics != nil {
			p.metrics.EventsDropped.Inc()
		}
		return
	}

	var alert *core.Alert
	if scored.Assessment.RequiresAlert {
		alert = p.buildAlert(scored)
		if err := p.store.InsertAlert(ctx, alert); err != nil {
			log.Error("alert persistence failed", "event_id", ev.ID, "error", err)
			alert = nil
		} else if p.metrics != nil {
			p.metrics.AlertsRaised.WithLabelValues(string(scored.Assessment.RiskLevel)).Inc()
		}
	}

	p.persistExplanations(ctx, log, scored)
	p.persistModification(ctx, log, scored)

	if err := p.store.RecordActorActivity(ctx, ev.ActorID, ev.RiskScore, scored.Behavior.Anomalous, ev.Timestamp); err != nil {
		log.Warn("actor activity update failed", "actor_id", ev.ActorID, "error", err)
	}

	p.observe("persist", time.Since(persistStart))
	if p.metrics != nil {
		p.metrics.ScoredEvents.WithLabelValues(string(ev.RiskLevel)).Inc()
		p.metrics.QueueDepth.Set(float64(p.queue.Depth()))
	}

	p.mu.Lock()
	p.processed++
	processed := p.processed
	p.mu.Unlock()

	if p.cast != nil {
		p.cast.NewEvent(ev)
		if alert != nil {
			p.cast.NewAlert(alert)
		}
		p.cast.SystemStatus(SystemStatus{
			QueueDepth:         p.queue.Depth(),
			QueueCapacity:      p.queue.Capacity(),
			UtilizationPercent: p.queue.Utilization() * 100,
			EventsProcessed:    processed,
		})
	}
}

func (p *Pool) buildAlert(scored *pipeline.ScoredEvent) *core.Alert {
	ev := scored.Event
	a := scored.Assessment
	now := time.Now().UTC()

	details := map[string]interface{}{
		"components":          a.Components,
		"weighted_components": a.WeightedComponents,
		"action_multiplier":   a.ActionMultiplier,
		"temporal_multiplier": a.TemporalMultiplier,
		"primary_risk_factor": a.PrimaryRiskFactor,
		"risk_factors":        a.RiskFactors,
		"action":              string(ev.Action),
		"document_id":         ev.DocumentID,
		"is_cross_department": ev.IsCrossDepartment,
	}
	if scored.Mismatch != nil && scored.Mismatch.Flagged {
		details["sensitivity_mismatch"] = scored.Mismatch.Explanation
	}
	if scored.Integrity.Tampered {
		details["tamper_severity"] = string(scored.Integrity.Severity)
	}

	return &core.Alert{
		ID:        "ALT-" + uuid.NewString(),
		EventID:   ev.ID,
		ActorID:   ev.ActorID,
		Priority:  a.RiskLevel,
		RiskScore: a.RiskScore,
		Summary:   fusionSummary(scored),
		Details:   details,
		Status:    core.AlertOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *Pool) persistExplanations(ctx context.Context, log *slog.Logger, scored *pipeline.ScoredEvent) {
	ev := scored.Event
	now := time.Now().UTC()

	if be := scored.BehaviorExplanation; be != nil {
		exp := &core.Explanation{
			ID:            "EXP-" + uuid.NewString(),
			EventID:       ev.ID,
			Type:          "behavior",
			FeatureValues: be.Values,
			BaseValue:     be.BaseValue,
			RiskComponents: map[string]float64{
				"behavior":    scored.Behavior.Score,
				"sensitivity": scored.Sensitivity.RiskScore(),
				"integrity":   scored.Integrity.RiskScore(),
			},
			Text:      be.Text,
			CreatedAt: now,
		}
		if err := p.store.InsertExplanation(ctx, exp); err != nil {
			log.Warn("behavior explanation persistence failed", "event_id", ev.ID, "error", err)
		}
	}

	if de := scored.DocumentExplanation; de != nil {
		weights := make([]core.TokenWeight, 0, len(de.TopTokens))
		for _, tok := range de.TopTokens {
			weights = append(weights, core.TokenWeight{
				Token: tok.Token, Weight: tok.Weight, Direction: tok.Direction,
			})
		}
		exp := &core.Explanation{
			ID:             "EXP-" + uuid.NewString(),
			EventID:        ev.ID,
			DocumentID:     ev.DocumentID,
			Type:           "document",
			TokenWeights:   weights,
			RiskComponents: de.ClassProbabilities,
			Text:           de.Text,
			CreatedAt:      now,
		}
		if err := p.store.InsertExplanation(ctx, exp); err != nil {
			log.Warn("document explanation persistence failed", "event_id", ev.ID, "error", err)
		}
	}
}

// persistModification records the character-level change for modify
// events that carry content, and refreshes the stored document.
func (p *Pool) persistModification(ctx context.Context, log *slog.Logger, scored *pipeline.ScoredEvent) {
	ev := scored.Event
	if ev.Action != core.ActionModify || ev.Content == "" {
		return
	}

	original := ""
	if base, err := p.baseline(ctx, ev.DocumentID); err == nil {
		original = base.Content
	}

	added, removed := DiffStats(original, ev.Content)
	// Lengths are in characters to stay consistent with the diff counts.
	originalLen := len([]rune(original))
	modifiedLen := len([]rune(ev.Content))
	mod := &core.ModificationRecord{
		ID:                "MOD-" + uuid.NewString(),
		EventID:           ev.ID,
		ActorID:           ev.ActorID,
		ActorDepartment:   ev.ActorDepartment,
		DocumentID:        ev.DocumentID,
		DocumentName:      ev.DocumentID,
		TargetDepartment:  ev.TargetDepartment,
		OriginalLength:    originalLen,
		ModifiedLength:    modifiedLen,
		CharsAdded:        added,
		CharsRemoved:      removed,
		ChangePercent:     ChangePercent(added, removed, originalLen),
		IsCrossDepartment: ev.IsCrossDepartment,
		RiskScore:         ev.RiskScore,
		RiskLevel:         ev.RiskLevel,
		ModifiedAt:        ev.Timestamp,
	}
	if err := p.store.InsertModification(ctx, mod); err != nil {
		log.Warn("modification persistence failed", "event_id", ev.ID, "error", err)
	}

	hash := integrity.Hash(ev.Content)
	severity := string(scored.Integrity.Severity)
	if err := p.store.UpdateDocumentContent(ctx, ev.DocumentID, ev.Content, hash, scored.Integrity.Tampered, severity); err != nil {
		log.Warn("document content update failed", "document_id", ev.DocumentID, "error", err)
		return
	}
	if p.registry != nil {
		p.registry.Invalidate(ctx, ev.DocumentID)
	}
}

func (p *Pool) baseline(ctx context.Context, documentID string) (integrity.Baseline, error) {
	if p.registry != nil {
		return p.registry.Baseline(ctx, documentID)
	}
	return p.store.Baseline(ctx, documentID)
}

func fusionSummary(scored *pipeline.ScoredEvent) string {
	return fusion.AlertSummary(scored.Assessment, scored.Event.ActorID, scored.Event.DocumentID, scored.Event.Action)
}

func (p *Pool) observe(stage string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}
