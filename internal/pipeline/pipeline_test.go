package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-sec/sentinel/internal/behavior"
	"github.com/aegis-sec/sentinel/internal/classify"
	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/fusion"
	"github.com/aegis-sec/sentinel/internal/integrity"
)

type staticBaselines map[string]integrity.Baseline

func (s staticBaselines) Baseline(_ context.Context, id string) (integrity.Baseline, error) {
	b, ok := s[id]
	if !ok {
		return integrity.Baseline{}, integrity.ErrBaselineNotFound
	}
	return b, nil
}

// Monday 2026-03-02 14:30 UTC.
var businessHours = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func newPipeline(baselines staticBaselines) *Pipeline {
	return New(
		behavior.NewHistory(),
		behavior.NewDetector(0.1), // untrained: neutral behavior signal
		classify.New(),
		integrity.NewVerifier(integrity.CosineEmbedder{}),
		baselines,
		fusion.NewEngine(fusion.DefaultWeights),
		Options{},
	)
}

func TestBenignSameDepartmentView(t *testing.T) {
	content := "press release public announcement for everyone"
	p := newPipeline(staticBaselines{
		"DOC-1": {DocumentID: "DOC-1", Hash: integrity.Hash(content), Content: content, SizeBytes: int64(len(content))},
	})

	ev := &core.Event{
		ID:               "EVT-1",
		ActorID:          "U001",
		ActorDepartment:  "FINANCE",
		Action:           core.ActionView,
		DocumentID:       "DOC-1",
		TargetDepartment: "FINANCE",
		Timestamp:        businessHours,
	}

	out := p.Process(context.Background(), ev)

	assert.False(t, ev.IsCrossDepartment)
	assert.Zero(t, out.Behavior.Score, "untrained detector is neutral")
	assert.Equal(t, core.SensitivityPublic, out.Sensitivity.Level)
	assert.Zero(t, out.Integrity.RiskScore())
	assert.Equal(t, core.RiskLow, ev.RiskLevel)
	assert.False(t, out.Assessment.RequiresAlert)
	assert.Empty(t, out.WarningMessage)
}

func TestCrossDepartmentModifyTampered(t *testing.T) {
	baseContent := "confidential salary data for finance staff only"
	p := newPipeline(staticBaselines{
		"DOC-2": {DocumentID: "DOC-2", Hash: integrity.Hash(baseContent), Content: baseContent, SizeBytes: int64(len(baseContent))},
	})

	ev := &core.Event{
		ID:               "EVT-2",
		ActorID:          "U002",
		ActorDepartment:  "HR",
		Action:           core.ActionModify,
		DocumentID:       "DOC-2",
		TargetDepartment: "FINANCE",
		Timestamp:        businessHours,
		Content:          "totally rewritten content with nothing in common anymore",
	}

	out := p.Process(context.Background(), ev)

	assert.True(t, ev.IsCrossDepartment)
	assert.True(t, out.Integrity.Tampered)
	assert.Equal(t, integrity.SeverityMajor, out.Integrity.Severity)
	assert.Equal(t, core.RiskCritical, ev.RiskLevel)
	assert.True(t, out.Assessment.RequiresAlert)
	assert.Contains(t, out.Assessment.RiskFactors, "Cross-department access")
	assert.Contains(t, out.Assessment.RiskFactors, "High-risk action: modify")
	assert.NotEmpty(t, out.WarningMessage)
}

func TestUploadMismatchFlagged(t *testing.T) {
	p := newPipeline(staticBaselines{})

	ev := &core.Event{
		ID:                  "EVT-3",
		ActorID:             "U003",
		ActorDepartment:     "IT",
		Action:              core.ActionUpload,
		DocumentID:          "DOC-3",
		TargetDepartment:    "IT",
		Timestamp:           businessHours,
		DeclaredSensitivity: core.SensitivityPublic,
		Content:             "confidential merger terms, salary and compensation details, nda",
	}

	out := p.Process(context.Background(), ev)

	require.NotNil(t, out.Mismatch)
	assert.True(t, out.Mismatch.Flagged)
	assert.Greater(t, out.Mismatch.RiskModifier, 0.0)
	assert.Equal(t, core.SensitivityConfidential, out.Sensitivity.Level)
}

func TestIntegritySkippedForView(t *testing.T) {
	content := "baseline text"
	p := newPipeline(staticBaselines{
		"DOC-4": {DocumentID: "DOC-4", Hash: integrity.Hash(content), Content: content, SizeBytes: int64(len(content))},
	})

	ev := &core.Event{
		ID:               "EVT-4",
		ActorID:          "U004",
		ActorDepartment:  "LEGAL",
		Action:           core.ActionView,
		DocumentID:       "DOC-4",
		TargetDepartment: "LEGAL",
		Timestamp:        businessHours,
		Content:          "different text entirely",
	}

	out := p.Process(context.Background(), ev)
	assert.False(t, out.Integrity.Tampered)
	assert.Equal(t, integrity.SeverityNone, out.Integrity.Severity)
}

func TestUnknownDocumentDegrades(t *testing.T) {
	p := newPipeline(staticBaselines{})

	ev := &core.Event{
		ID:               "EVT-5",
		ActorID:          "U005",
		ActorDepartment:  "HR",
		Action:           core.ActionModify,
		DocumentID:       "DOC-404",
		TargetDepartment: "HR",
		Timestamp:        businessHours,
		Content:          "some content",
	}

	out := p.Process(context.Background(), ev)

	// No baseline: integrity is neutral, sensitivity comes from the
	// event content, and the pipeline still produces a verdict.
	assert.Zero(t, out.Integrity.RiskScore())
	assert.NotZero(t, out.Assessment.RiskScore)
}

func TestRetrainNeedsSamples(t *testing.T) {
	p := newPipeline(staticBaselines{})
	_, err := p.Retrain(10)
	assert.ErrorIs(t, err, ErrNotEnoughSamples)
}

func TestRetrainFitsDetectorFromBuffer(t *testing.T) {
	p := newPipeline(staticBaselines{})

	for i := 0; i < 60; i++ {
		p.Process(context.Background(), &core.Event{
			ID:               "EVT-r",
			ActorID:          "U007",
			ActorDepartment:  "IT",
			Action:           core.ActionView,
			DocumentID:       "DOC-1",
			TargetDepartment: "IT",
			Timestamp:        businessHours.Add(time.Duration(i) * time.Minute),
		})
	}

	summary, err := p.Retrain(50)
	require.NoError(t, err)
	assert.Equal(t, 60, summary.Samples)

	// A trained detector produces a real score instead of the neutral
	// zero.
	out := p.Process(context.Background(), &core.Event{
		ID:               "EVT-after",
		ActorID:          "U007",
		ActorDepartment:  "IT",
		Action:           core.ActionView,
		DocumentID:       "DOC-1",
		TargetDepartment: "IT",
		Timestamp:        businessHours.Add(2 * time.Hour),
	})
	assert.NotZero(t, out.Behavior.Score)
}

func TestHistoryAccumulatesAcrossEvents(t *testing.T) {
	p := newPipeline(staticBaselines{})

	for i := 0; i < 3; i++ {
		ev := &core.Event{
			ID:               "EVT-h",
			ActorID:          "U006",
			ActorDepartment:  "IT",
			Action:           core.ActionView,
			DocumentID:       "DOC-9",
			TargetDepartment: "IT",
			Timestamp:        businessHours.Add(time.Duration(i) * time.Minute),
		}
		out := p.Process(context.Background(), ev)
		assert.Equal(t, float64(i+1), out.Features[0], "window grows with each event")
	}
}
