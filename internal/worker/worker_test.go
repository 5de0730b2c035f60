package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-sec/sentinel/internal/behavior"
	"github.com/aegis-sec/sentinel/internal/classify"
	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/fusion"
	"github.com/aegis-sec/sentinel/internal/integrity"
	"github.com/aegis-sec/sentinel/internal/pipeline"
	"github.com/aegis-sec/sentinel/internal/queue"
	"github.com/aegis-sec/sentinel/internal/store"
)

func TestDiffStatsFullReplace(t *testing.T) {
	added, removed := DiffStats("abc", "xyz")
	assert.Equal(t, 3, added)
	assert.Equal(t, 3, removed)
}

func TestDiffStatsAppendOnly(t *testing.T) {
	added, removed := DiffStats("hello", "hello world")
	assert.Equal(t, 6, added)
	assert.Zero(t, removed)
}

func TestDiffStatsMiddleEdit(t *testing.T) {
	// "quick" -> "slow": shared prefix "the " and suffix " fox".
	added, removed := DiffStats("the quick fox", "the slow fox")
	assert.Equal(t, 3, added) // s, l, w ("o" survives in the subsequence)
	assert.Equal(t, 4, removed)
}

func TestDiffStatsIdentical(t *testing.T) {
	added, removed := DiffStats("same", "same")
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestChangePercent(t *testing.T) {
	assert.Equal(t, 50.0, ChangePercent(3, 2, 10))
	// Empty original clamps the denominator to one.
	assert.Equal(t, 400.0, ChangePercent(4, 0, 0))
}

// fakeStore records calls and can be told to fail specific operations.
type fakeStore struct {
	mu sync.Mutex

	failInsertEvent bool

	events        []*core.Event
	alerts        []*core.Alert
	explanations  []*core.Explanation
	modifications []*core.ModificationRecord
	activity      []string
	contentWrites []string

	baselines map[string]integrity.Baseline
}

func newFakeStore() *fakeStore {
	return &fakeStore{baselines: map[string]integrity.Baseline{}}
}

func (f *fakeStore) Baseline(_ context.Context, id string) (integrity.Baseline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.baselines[id]
	if !ok {
		return integrity.Baseline{}, integrity.ErrBaselineNotFound
	}
	return b, nil
}

func (f *fakeStore) ActorByID(context.Context, string) (*core.Actor, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ActorByUsername(context.Context, string) (*core.Actor, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) RecordActorActivity(_ context.Context, actorID string, _ float64, _ bool, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, actorID)
	return nil
}

func (f *fakeStore) CreateDocument(context.Context, *core.Document) error { return nil }
func (f *fakeStore) DocumentByID(context.Context, string) (*core.Document, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpdateDocumentContent(_ context.Context, documentID, _, _ string, _ bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentWrites = append(f.contentWrites, documentID)
	return nil
}

func (f *fakeStore) InsertEvent(_ context.Context, ev *core.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertEvent {
		return errors.New("connection reset")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStore) EventByID(context.Context, string) (*core.Event, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) RecentEvents(context.Context, int) ([]*core.Event, error) { return nil, nil }

func (f *fakeStore) InsertAlert(_ context.Context, al *core.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, al)
	return nil
}

func (f *fakeStore) AlertByID(context.Context, string) (*core.Alert, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListAlerts(context.Context, store.AlertFilter) ([]*core.Alert, error) {
	return nil, nil
}
func (f *fakeStore) UpdateAlert(context.Context, string, store.AlertUpdate) (*core.Alert, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) InsertExplanation(_ context.Context, exp *core.Explanation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explanations = append(f.explanations, exp)
	return nil
}

func (f *fakeStore) InsertModification(_ context.Context, mod *core.ModificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modifications = append(f.modifications, mod)
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeBroadcaster struct {
	mu       sync.Mutex
	events   []*core.Event
	alerts   []*core.Alert
	statuses []SystemStatus
}

func (f *fakeBroadcaster) NewEvent(ev *core.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeBroadcaster) NewAlert(al *core.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, al)
}

func (f *fakeBroadcaster) SystemStatus(s SystemStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, s)
}

func newTestPipeline(st store.Store) *pipeline.Pipeline {
	return pipeline.New(
		behavior.NewHistory(),
		behavior.NewDetector(0.1),
		classify.New(),
		integrity.NewVerifier(integrity.CosineEmbedder{}),
		st,
		fusion.NewEngine(fusion.DefaultWeights),
		pipeline.Options{},
	)
}

// drainOne runs a single worker until the queue closes.
func drainOne(t *testing.T, q *queue.Queue, pool *Pool) {
	t.Helper()
	pool.Start(context.Background())
	q.Close()
	done := make(chan struct{})
	go func() { pool.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not drain the queue")
	}
}

// Monday 2026-03-02 14:30 UTC.
var businessHours = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func TestPoolPersistsAndBroadcastsEvent(t *testing.T) {
	st := newFakeStore()
	cast := &fakeBroadcaster{}
	q := queue.New(10, 0.9)
	pool := NewPool(q, newTestPipeline(st), st, nil, cast, nil, 1, nil)

	_, err := q.Offer(&core.Event{
		ID: "EVT-1", ActorID: "U001", ActorDepartment: "IT",
		Action: core.ActionView, DocumentID: "DOC-1", TargetDepartment: "IT",
		Timestamp: businessHours,
	})
	require.NoError(t, err)

	drainOne(t, q, pool)

	require.Len(t, st.events, 1)
	assert.Equal(t, core.RiskLow, st.events[0].RiskLevel)
	assert.Empty(t, st.alerts)
	assert.Equal(t, []string{"U001"}, st.activity)
	require.Len(t, cast.events, 1)
	assert.Empty(t, cast.alerts)
	require.Len(t, cast.statuses, 1)
	assert.Equal(t, uint64(1), cast.statuses[0].EventsProcessed)
}

func TestPoolRaisesAlertForTamperedModify(t *testing.T) {
	st := newFakeStore()
	base := "confidential salary and compensation records"
	st.baselines["DOC-2"] = integrity.Baseline{
		DocumentID: "DOC-2", Hash: integrity.Hash(base), Content: base, SizeBytes: int64(len(base)),
	}
	cast := &fakeBroadcaster{}
	q := queue.New(10, 0.9)
	pool := NewPool(q, newTestPipeline(st), st, nil, cast, nil, 1, nil)

	_, err := q.Offer(&core.Event{
		ID: "EVT-2", ActorID: "U002", ActorDepartment: "HR",
		Action: core.ActionModify, DocumentID: "DOC-2", TargetDepartment: "FINANCE",
		Timestamp: businessHours,
		Content:   "entirely unrelated replacement text with no overlap whatsoever",
	})
	require.NoError(t, err)

	drainOne(t, q, pool)

	require.Len(t, st.alerts, 1)
	alert := st.alerts[0]
	assert.Equal(t, "EVT-2", alert.EventID)
	assert.Equal(t, core.RiskCritical, alert.Priority)
	assert.Equal(t, core.AlertOpen, alert.Status)
	assert.Contains(t, alert.Summary, "[CRITICAL]")
	assert.Equal(t, "major", alert.Details["tamper_severity"])

	require.Len(t, st.modifications, 1)
	mod := st.modifications[0]
	assert.Equal(t, len(base), mod.OriginalLength)
	assert.True(t, mod.IsCrossDepartment)
	assert.Positive(t, mod.ChangePercent)

	assert.Equal(t, []string{"DOC-2"}, st.contentWrites)
	require.Len(t, cast.alerts, 1)
}

func TestPoolDropsEventWhenPersistenceFails(t *testing.T) {
	st := newFakeStore()
	st.failInsertEvent = true
	cast := &fakeBroadcaster{}
	q := queue.New(10, 0.9)
	pool := NewPool(q, newTestPipeline(st), st, nil, cast, nil, 1, nil)

	_, err := q.Offer(&core.Event{
		ID: "EVT-3", ActorID: "U003", ActorDepartment: "HR",
		Action: core.ActionDelete, DocumentID: "DOC-3", TargetDepartment: "FINANCE",
		Timestamp: businessHours,
	})
	require.NoError(t, err)

	drainOne(t, q, pool)

	assert.Empty(t, st.events)
	assert.Empty(t, st.alerts)
	assert.Empty(t, st.activity)
	assert.Empty(t, cast.events, "dropped events are not broadcast")
}

func TestPoolCountsModificationLengthsInCharacters(t *testing.T) {
	st := newFakeStore()
	base := "résumé café naïve"
	st.baselines["DOC-5"] = integrity.Baseline{
		DocumentID: "DOC-5", Hash: integrity.Hash(base), Content: base, SizeBytes: int64(len(base)),
	}
	q := queue.New(10, 0.9)
	pool := NewPool(q, newTestPipeline(st), st, nil, nil, nil, 1, nil)

	modified := base + " annotée"
	_, err := q.Offer(&core.Event{
		ID: "EVT-5", ActorID: "U005", ActorDepartment: "LEGAL",
		Action: core.ActionModify, DocumentID: "DOC-5", TargetDepartment: "LEGAL",
		Timestamp: businessHours, Content: modified,
	})
	require.NoError(t, err)

	drainOne(t, q, pool)

	require.Len(t, st.modifications, 1)
	mod := st.modifications[0]

	// Lengths are character counts, consistent with the diff, and
	// smaller than the byte counts for accented text.
	assert.Equal(t, utf8.RuneCountInString(base), mod.OriginalLength)
	assert.Equal(t, utf8.RuneCountInString(modified), mod.ModifiedLength)
	assert.Less(t, mod.OriginalLength, len(base))

	assert.Equal(t, 8, mod.CharsAdded)
	assert.Zero(t, mod.CharsRemoved)
	assert.InDelta(t, 800.0/float64(utf8.RuneCountInString(base)), mod.ChangePercent, 1e-9)
}

func TestPoolSkipsModificationRecordForViews(t *testing.T) {
	st := newFakeStore()
	q := queue.New(10, 0.9)
	pool := NewPool(q, newTestPipeline(st), st, nil, nil, nil, 1, nil)

	_, err := q.Offer(&core.Event{
		ID: "EVT-4", ActorID: "U004", ActorDepartment: "IT",
		Action: core.ActionView, DocumentID: "DOC-4", TargetDepartment: "IT",
		Timestamp: businessHours, Content: "public announcement",
	})
	require.NoError(t, err)

	drainOne(t, q, pool)

	assert.Empty(t, st.modifications)
	assert.Empty(t, st.contentWrites)
}
