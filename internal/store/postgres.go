package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/integrity"
)

// Postgres implements Store over database/sql with the pq driver.
type Postgres struct {
	db *sql.DB
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing handle (used by tests).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

// DB exposes the underlying handle, for migrations.
func (p *Postgres) DB() *sql.DB { return p.db }

// Ping verifies database reachability.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

const actorColumns = `actor_id, username, email, password_hash, full_name, department, role,
	is_active, risk_score, anomaly_count, last_activity, created_at, updated_at`

func scanActor(row *sql.Row) (*core.Actor, error) {
	var a core.Actor
	var fullName sql.NullString
	var lastActivity sql.NullTime
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &fullName, &a.Department,
		&a.Role, &a.IsActive, &a.RiskScore, &a.AnomalyCount, &lastActivity, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan actor: %w", err)
	}
	a.FullName = fullName.String
	if lastActivity.Valid {
		a.LastActivity = lastActivity.Time
	}
	return &a, nil
}

func (p *Postgres) ActorByID(ctx context.Context, actorID string) (*core.Actor, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+actorColumns+` FROM actors WHERE actor_id = $1`, actorID)
	return scanActor(row)
}

func (p *Postgres) ActorByUsername(ctx context.Context, username string) (*core.Actor, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+actorColumns+` FROM actors WHERE username = $1`, username)
	return scanActor(row)
}

// RecordActorActivity updates the actor's rolling risk summary after a
// scored event.
func (p *Postgres) RecordActorActivity(ctx context.Context, actorID string, riskScore float64, anomalous bool, at time.Time) error {
	bump := 0
	if anomalous {
		bump = 1
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE actors
		SET risk_score = $2, anomaly_count = anomaly_count + $3, last_activity = $4, updated_at = now()
		WHERE actor_id = $1`,
		actorID, riskScore, bump, at)
	if err != nil {
		return fmt.Errorf("record actor activity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateDocument(ctx context.Context, doc *core.Document) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, filename, filepath, department, sensitivity,
			predicted_sensitivity, prediction_confidence, sensitivity_mismatch,
			original_hash, current_hash, is_tampered, tamper_severity,
			content_preview, content, original_content, size_bytes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		doc.ID, doc.Filename, doc.Filepath, doc.Department, doc.Sensitivity,
		doc.PredictedSensitivity, doc.PredictionConfidence, doc.SensitivityMismatch,
		doc.OriginalHash, doc.CurrentHash, doc.IsTampered, doc.TamperSeverity,
		doc.ContentPreview, doc.Content, doc.OriginalContent, doc.SizeBytes,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (p *Postgres) DocumentByID(ctx context.Context, documentID string) (*core.Document, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT document_id, filename, filepath, department, sensitivity,
			predicted_sensitivity, prediction_confidence, sensitivity_mismatch,
			original_hash, current_hash, is_tampered, tamper_severity,
			content_preview, content, original_content, size_bytes, created_at, updated_at
		FROM documents WHERE document_id = $1`, documentID)

	var d core.Document
	var preview, content, original sql.NullString
	err := row.Scan(&d.ID, &d.Filename, &d.Filepath, &d.Department, &d.Sensitivity,
		&d.PredictedSensitivity, &d.PredictionConfidence, &d.SensitivityMismatch,
		&d.OriginalHash, &d.CurrentHash, &d.IsTampered, &d.TamperSeverity,
		&preview, &content, &original, &d.SizeBytes, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.ContentPreview = preview.String
	d.Content = content.String
	d.OriginalContent = original.String
	return &d, nil
}

// Baseline serves integrity verification: the registered hash, the
// original content, and its size.
func (p *Postgres) Baseline(ctx context.Context, documentID string) (integrity.Baseline, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT document_id, original_hash, COALESCE(original_content, ''), size_bytes
		FROM documents WHERE document_id = $1`, documentID)

	var b integrity.Baseline
	err := row.Scan(&b.DocumentID, &b.Hash, &b.Content, &b.SizeBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return integrity.Baseline{}, integrity.ErrBaselineNotFound
	}
	if err != nil {
		return integrity.Baseline{}, fmt.Errorf("scan baseline: %w", err)
	}
	if b.Content != "" {
		b.SizeBytes = int64(len(b.Content))
	}
	return b, nil
}

func (p *Postgres) UpdateDocumentContent(ctx context.Context, documentID, content, currentHash string, tampered bool, severity string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE documents
		SET content = $2, current_hash = $3, is_tampered = $4, tamper_severity = $5,
			size_bytes = $6, updated_at = now()
		WHERE document_id = $1`,
		documentID, content, currentHash, tampered, severity, len(content))
	if err != nil {
		return fmt.Errorf("update document content: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) InsertEvent(ctx context.Context, ev *core.Event) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO events (event_id, actor_ref, actor_department, action, document_ref,
			target_department, ts, bytes_transferred, source_ip, device_info, session_id,
			is_cross_department, behavior_score, risk_score, risk_level)
		VALUES ($1,
			(SELECT id FROM actors WHERE actor_id = $2),
			$3, $4,
			(SELECT id FROM documents WHERE document_id = $5),
			$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		ev.ID, ev.ActorID, ev.ActorDepartment, ev.Action, ev.DocumentID,
		ev.TargetDepartment, ev.Timestamp, ev.BytesTransferred,
		nullable(ev.SourceIP), nullable(ev.DeviceInfo), nullable(ev.SessionID),
		ev.IsCrossDepartment, ev.BehaviorScore, ev.RiskScore, ev.RiskLevel)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const eventColumns = `e.event_id, a.actor_id, e.actor_department, e.action, d.document_id,
	e.target_department, e.ts, e.bytes_transferred,
	COALESCE(e.source_ip, ''), COALESCE(e.device_info, ''), COALESCE(e.session_id, ''),
	e.is_cross_department, COALESCE(e.behavior_score, 0), COALESCE(e.risk_score, 0),
	COALESCE(e.risk_level, 'low')`

const eventJoins = `FROM events e
	JOIN actors a ON a.id = e.actor_ref
	JOIN documents d ON d.id = e.document_ref`

func scanEvent(scanner interface{ Scan(...any) error }) (*core.Event, error) {
	var ev core.Event
	err := scanner.Scan(&ev.ID, &ev.ActorID, &ev.ActorDepartment, &ev.Action, &ev.DocumentID,
		&ev.TargetDepartment, &ev.Timestamp, &ev.BytesTransferred,
		&ev.SourceIP, &ev.DeviceInfo, &ev.SessionID,
		&ev.IsCrossDepartment, &ev.BehaviorScore, &ev.RiskScore, &ev.RiskLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &ev, nil
}

func (p *Postgres) EventByID(ctx context.Context, eventID string) (*core.Event, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` `+eventJoins+` WHERE e.event_id = $1`, eventID)
	return scanEvent(row)
}

func (p *Postgres) RecentEvents(ctx context.Context, limit int) ([]*core.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+eventColumns+` `+eventJoins+` ORDER BY e.ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []*core.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (p *Postgres) InsertAlert(ctx context.Context, alert *core.Alert) error {
	details, err := json.Marshal(alert.Details)
	if err != nil {
		return fmt.Errorf("marshal alert details: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, event_ref, actor_ref, priority, risk_score,
			summary, details, status, created_at, updated_at)
		VALUES ($1,
			(SELECT id FROM events WHERE event_id = $2),
			(SELECT id FROM actors WHERE actor_id = $3),
			$4,$5,$6,$7,$8,$9,$10)`,
		alert.ID, alert.EventID, alert.ActorID, alert.Priority, alert.RiskScore,
		alert.Summary, details, alert.Status, alert.CreatedAt, alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

const alertColumns = `al.alert_id, e.event_id, a.actor_id, al.priority, al.risk_score,
	al.summary, al.details, al.status, COALESCE(al.assigned_to, ''),
	COALESCE(al.resolution_notes, ''), al.created_at, al.updated_at, al.resolved_at`

const alertJoins = `FROM alerts al
	JOIN events e ON e.id = al.event_ref
	JOIN actors a ON a.id = al.actor_ref`

func scanAlert(scanner interface{ Scan(...any) error }) (*core.Alert, error) {
	var al core.Alert
	var details []byte
	var resolvedAt sql.NullTime
	err := scanner.Scan(&al.ID, &al.EventID, &al.ActorID, &al.Priority, &al.RiskScore,
		&al.Summary, &details, &al.Status, &al.AssignedTo,
		&al.ResolutionNotes, &al.CreatedAt, &al.UpdatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &al.Details); err != nil {
			return nil, fmt.Errorf("unmarshal alert details: %w", err)
		}
	}
	if resolvedAt.Valid {
		al.ResolvedAt = &resolvedAt.Time
	}
	return &al, nil
}

func (p *Postgres) AlertByID(ctx context.Context, alertID string) (*core.Alert, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` `+alertJoins+` WHERE al.alert_id = $1`, alertID)
	return scanAlert(row)
}

func (p *Postgres) ListAlerts(ctx context.Context, filter AlertFilter) ([]*core.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + alertColumns + ` ` + alertJoins + ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND al.status = $%d", len(args))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		query += fmt.Sprintf(" AND al.priority = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY al.created_at DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*core.Alert
	for rows.Next() {
		al, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, al)
	}
	return alerts, rows.Err()
}

// UpdateAlert applies a triage change and returns the updated alert.
// Moving to resolved or dismissed stamps resolved_at.
func (p *Postgres) UpdateAlert(ctx context.Context, alertID string, update AlertUpdate) (*core.Alert, error) {
	sets := []string{"updated_at = now()"}
	args := []any{alertID}

	if update.Status != nil {
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
		if *update.Status == core.AlertResolved || *update.Status == core.AlertDismissed {
			sets = append(sets, "resolved_at = now()")
		}
	}
	if update.AssignedTo != nil {
		args = append(args, *update.AssignedTo)
		sets = append(sets, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if update.ResolutionNotes != nil {
		args = append(args, *update.ResolutionNotes)
		sets = append(sets, fmt.Sprintf("resolution_notes = $%d", len(args)))
	}

	query := "UPDATE alerts SET " + joinSets(sets) + " WHERE alert_id = $1"
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	row := p.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` `+alertJoins+` WHERE al.alert_id = $1`, alertID)
	return scanAlert(row)
}

func (p *Postgres) InsertExplanation(ctx context.Context, exp *core.Explanation) error {
	features, err := json.Marshal(exp.FeatureValues)
	if err != nil {
		return fmt.Errorf("marshal feature values: %w", err)
	}
	tokens, err := json.Marshal(exp.TokenWeights)
	if err != nil {
		return fmt.Errorf("marshal token weights: %w", err)
	}
	components, err := json.Marshal(exp.RiskComponents)
	if err != nil {
		return fmt.Errorf("marshal risk components: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO explanations (explanation_id, event_ref, document_ref, explanation_type,
			feature_values, base_value, token_weights, risk_components, body, created_at)
		VALUES ($1,
			(SELECT id FROM events WHERE event_id = $2),
			(SELECT id FROM documents WHERE document_id = $3),
			$4,$5,$6,$7,$8,$9,$10)`,
		exp.ID, exp.EventID, exp.DocumentID, exp.Type,
		features, exp.BaseValue, tokens, components, exp.Text, exp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert explanation: %w", err)
	}
	return nil
}

func (p *Postgres) InsertModification(ctx context.Context, mod *core.ModificationRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO modification_records (modification_id, event_ref, actor_ref, actor_department,
			document_ref, document_name, target_department, original_length, modified_length,
			chars_added, chars_removed, change_percent, is_cross_department,
			risk_score, risk_level, modified_at)
		VALUES ($1,
			(SELECT id FROM events WHERE event_id = $2),
			(SELECT id FROM actors WHERE actor_id = $3),
			$4,
			(SELECT id FROM documents WHERE document_id = $5),
			$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		mod.ID, mod.EventID, mod.ActorID, mod.ActorDepartment,
		mod.DocumentID, mod.DocumentName, mod.TargetDepartment,
		mod.OriginalLength, mod.ModifiedLength,
		mod.CharsAdded, mod.CharsRemoved, mod.ChangePercent, mod.IsCrossDepartment,
		mod.RiskScore, mod.RiskLevel, mod.ModifiedAt)
	if err != nil {
		return fmt.Errorf("insert modification: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func joinSets(sets []string) string {
	out := ""
	for i, s := range sets {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
