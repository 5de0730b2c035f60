package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the six-table layout. Every table has a monotonic bigserial
// primary key plus a public opaque string id; foreign keys use the
// internal keys.
const Schema = `
CREATE TABLE IF NOT EXISTS actors (
	id            BIGSERIAL PRIMARY KEY,
	actor_id      VARCHAR(50)  NOT NULL UNIQUE,
	username      VARCHAR(100) NOT NULL UNIQUE,
	email         VARCHAR(255) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	full_name     VARCHAR(255),
	department    VARCHAR(100) NOT NULL,
	role          VARCHAR(20)  NOT NULL DEFAULT 'user',
	is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
	risk_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	anomaly_count INTEGER      NOT NULL DEFAULT 0,
	last_activity TIMESTAMPTZ,
	created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id                    BIGSERIAL PRIMARY KEY,
	document_id           VARCHAR(50)  NOT NULL UNIQUE,
	filename              VARCHAR(255) NOT NULL,
	filepath              VARCHAR(500) NOT NULL DEFAULT '',
	department            VARCHAR(100) NOT NULL,
	sensitivity           VARCHAR(20)  NOT NULL DEFAULT 'internal',
	predicted_sensitivity VARCHAR(20)  NOT NULL DEFAULT 'internal',
	prediction_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	sensitivity_mismatch  BOOLEAN      NOT NULL DEFAULT FALSE,
	original_hash         VARCHAR(64)  NOT NULL,
	current_hash          VARCHAR(64)  NOT NULL,
	is_tampered           BOOLEAN      NOT NULL DEFAULT FALSE,
	tamper_severity       VARCHAR(20)  NOT NULL DEFAULT 'none',
	content_preview       TEXT,
	content               TEXT,
	original_content      TEXT,
	size_bytes            BIGINT       NOT NULL DEFAULT 0,
	created_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	id                BIGSERIAL PRIMARY KEY,
	event_id          VARCHAR(50)  NOT NULL UNIQUE,
	actor_ref         BIGINT       NOT NULL REFERENCES actors(id),
	actor_department  VARCHAR(100) NOT NULL,
	action            VARCHAR(20)  NOT NULL,
	document_ref      BIGINT       NOT NULL REFERENCES documents(id),
	target_department VARCHAR(100) NOT NULL,
	ts                TIMESTAMPTZ  NOT NULL,
	bytes_transferred BIGINT       NOT NULL DEFAULT 0,
	source_ip         VARCHAR(50),
	device_info       VARCHAR(255),
	session_id        VARCHAR(100),
	is_cross_department BOOLEAN    NOT NULL DEFAULT FALSE,
	behavior_score    DOUBLE PRECISION,
	risk_score        DOUBLE PRECISION,
	risk_level        VARCHAR(20)
);
CREATE INDEX IF NOT EXISTS idx_events_actor_time ON events (actor_ref, ts);
CREATE INDEX IF NOT EXISTS idx_events_risk ON events (risk_score);

CREATE TABLE IF NOT EXISTS alerts (
	id               BIGSERIAL PRIMARY KEY,
	alert_id         VARCHAR(50) NOT NULL UNIQUE,
	event_ref        BIGINT      NOT NULL UNIQUE REFERENCES events(id),
	actor_ref        BIGINT      NOT NULL REFERENCES actors(id),
	priority         VARCHAR(20) NOT NULL,
	risk_score       DOUBLE PRECISION NOT NULL,
	summary          TEXT        NOT NULL,
	details          JSONB,
	status           VARCHAR(20) NOT NULL DEFAULT 'open',
	assigned_to      VARCHAR(100),
	resolution_notes TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_alerts_priority ON alerts (priority);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts (status);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts (created_at);

CREATE TABLE IF NOT EXISTS explanations (
	id              BIGSERIAL PRIMARY KEY,
	explanation_id  VARCHAR(50) NOT NULL UNIQUE,
	event_ref       BIGINT      REFERENCES events(id),
	document_ref    BIGINT      REFERENCES documents(id),
	explanation_type VARCHAR(50) NOT NULL,
	feature_values  JSONB,
	base_value      DOUBLE PRECISION NOT NULL DEFAULT 0,
	token_weights   JSONB,
	risk_components JSONB,
	body            TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS modification_records (
	id                  BIGSERIAL PRIMARY KEY,
	modification_id     VARCHAR(50)  NOT NULL UNIQUE,
	event_ref           BIGINT       REFERENCES events(id),
	actor_ref           BIGINT       NOT NULL REFERENCES actors(id),
	actor_department    VARCHAR(100) NOT NULL,
	document_ref        BIGINT       NOT NULL REFERENCES documents(id),
	document_name       VARCHAR(255) NOT NULL,
	target_department   VARCHAR(100) NOT NULL,
	original_length     INTEGER      NOT NULL DEFAULT 0,
	modified_length     INTEGER      NOT NULL DEFAULT 0,
	chars_added         INTEGER      NOT NULL DEFAULT 0,
	chars_removed       INTEGER      NOT NULL DEFAULT 0,
	change_percent      DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_cross_department BOOLEAN      NOT NULL DEFAULT FALSE,
	risk_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk_level          VARCHAR(20),
	modified_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_modifications_actor ON modification_records (actor_ref);
CREATE INDEX IF NOT EXISTS idx_modifications_time ON modification_records (modified_at);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
