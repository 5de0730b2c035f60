package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/integrity"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

var actorRows = []string{
	"actor_id", "username", "email", "password_hash", "full_name", "department", "role",
	"is_active", "risk_score", "anomaly_count", "last_activity", "created_at", "updated_at",
}

func TestActorByID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM actors WHERE actor_id").
		WithArgs("U001").
		WillReturnRows(sqlmock.NewRows(actorRows).
			AddRow("U001", "alice", "alice@corp.example", "hash", "Alice Ng", "FINANCE", "analyst",
				true, 0.42, 3, now, now, now))

	a, err := s.ActorByID(context.Background(), "U001")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, core.RoleAnalyst, a.Role)
	assert.Equal(t, 0.42, a.RiskScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM actors WHERE actor_id").
		WithArgs("U404").
		WillReturnRows(sqlmock.NewRows(actorRows))

	_, err := s.ActorByID(context.Background(), "U404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBaselineMissMapsToSentinelError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT document_id, original_hash").
		WithArgs("DOC-404").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "original_hash", "original_content", "size_bytes"}))

	_, err := s.Baseline(context.Background(), "DOC-404")
	assert.ErrorIs(t, err, integrity.ErrBaselineNotFound)
}

func TestBaselineSizeFromContent(t *testing.T) {
	s, mock := newMockStore(t)
	content := "quarterly budget figures"

	mock.ExpectQuery("SELECT document_id, original_hash").
		WithArgs("DOC-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "original_hash", "original_content", "size_bytes"}).
			AddRow("DOC-1", integrity.Hash(content), content, 0))

	b, err := s.Baseline(context.Background(), "DOC-1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), b.SizeBytes)
}

func TestInsertEventResolvesForeignKeys(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Now().UTC()

	mock.ExpectExec("INSERT INTO events").
		WithArgs("EVT-1", "U001", "FINANCE", core.ActionDownload, "DOC-1", "HR", ts,
			int64(2048), "10.0.0.5", nil, nil, true, 0.7, 0.81, core.RiskCritical).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.InsertEvent(context.Background(), &core.Event{
		ID:                "EVT-1",
		ActorID:           "U001",
		ActorDepartment:   "FINANCE",
		Action:            core.ActionDownload,
		DocumentID:        "DOC-1",
		TargetDepartment:  "HR",
		Timestamp:         ts,
		BytesTransferred:  2048,
		SourceIP:          "10.0.0.5",
		IsCrossDepartment: true,
		BehaviorScore:     0.7,
		RiskScore:         0.81,
		RiskLevel:         core.RiskCritical,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlertsAppliesFilters(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{
		"alert_id", "event_id", "actor_id", "priority", "risk_score",
		"summary", "details", "status", "assigned_to",
		"resolution_notes", "created_at", "updated_at", "resolved_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM alerts al").
		WithArgs("open", core.RiskCritical, 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("ALT-1", "EVT-1", "U001", "critical", 0.93,
				"summary", []byte(`{"action":"delete"}`), "open", "",
				"", now, now, nil))

	alerts, err := s.ListAlerts(context.Background(), AlertFilter{
		Status: "open", Priority: core.RiskCritical, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "delete", alerts[0].Details["action"])
	assert.Nil(t, alerts[0].ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertByID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{
		"alert_id", "event_id", "actor_id", "priority", "risk_score",
		"summary", "details", "status", "assigned_to",
		"resolution_notes", "created_at", "updated_at", "resolved_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM alerts al").
		WithArgs("ALT-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("ALT-1", "EVT-1", "U001", "high", 0.71,
				"summary", []byte(`{}`), "investigating", "alice",
				"", now, now, nil))

	alert, err := s.AlertByID(context.Background(), "ALT-1")
	require.NoError(t, err)
	assert.Equal(t, "investigating", alert.Status)
	assert.Equal(t, "alice", alert.AssignedTo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM alerts al").
		WithArgs("ALT-404").
		WillReturnRows(sqlmock.NewRows([]string{"alert_id"}))

	_, err := s.AlertByID(context.Background(), "ALT-404")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlertResolvedStampsTimestamp(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	status := core.AlertResolved
	notes := "false positive, scheduled export"

	mock.ExpectExec("UPDATE alerts SET (.+)resolved_at = now\\(\\)").
		WithArgs("ALT-1", status, notes).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cols := []string{
		"alert_id", "event_id", "actor_id", "priority", "risk_score",
		"summary", "details", "status", "assigned_to",
		"resolution_notes", "created_at", "updated_at", "resolved_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM alerts al").
		WithArgs("ALT-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("ALT-1", "EVT-1", "U001", "high", 0.66,
				"summary", nil, status, "",
				notes, now, now, now))

	al, err := s.UpdateAlert(context.Background(), "ALT-1", AlertUpdate{
		Status: &status, ResolutionNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, core.AlertResolved, al.Status)
	require.NotNil(t, al.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlertUnknownID(t *testing.T) {
	s, mock := newMockStore(t)
	status := core.AlertInvestigating

	mock.ExpectExec("UPDATE alerts SET").
		WithArgs("ALT-404", status).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.UpdateAlert(context.Background(), "ALT-404", AlertUpdate{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordActorActivityUnknownActor(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE actors").
		WithArgs("U404", 0.5, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.RecordActorActivity(context.Background(), "U404", 0.5, true, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
