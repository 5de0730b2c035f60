// Package store persists actors, documents, events, alerts, explanations,
// and modification records in a relational database.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aegis-sec/sentinel/internal/core"
	"github.com/aegis-sec/sentinel/internal/integrity"
)

// ErrNotFound means the requested row does not exist.
var ErrNotFound = errors.New("not found")

// AlertFilter narrows alert listings. Zero values mean "any".
type AlertFilter struct {
	Status   string
	Priority core.RiskLevel
	Limit    int
}

// AlertUpdate carries a triage change. Nil fields are left untouched.
type AlertUpdate struct {
	Status          *string
	AssignedTo      *string
	ResolutionNotes *string
}

// Store is the persistence surface used by the ingest, worker, and API
// layers. Implementations must be safe for concurrent use; each call is
// one logical operation on its own session.
type Store interface {
	integrity.BaselineLoader

	// Actors
	ActorByID(ctx context.Context, actorID string) (*core.Actor, error)
	ActorByUsername(ctx context.Context, username string) (*core.Actor, error)
	RecordActorActivity(ctx context.Context, actorID string, riskScore float64, anomalous bool, at time.Time) error

	// Documents
	CreateDocument(ctx context.Context, doc *core.Document) error
	DocumentByID(ctx context.Context, documentID string) (*core.Document, error)
	UpdateDocumentContent(ctx context.Context, documentID, content, currentHash string, tampered bool, severity string) error

	// Events
	InsertEvent(ctx context.Context, ev *core.Event) error
	EventByID(ctx context.Context, eventID string) (*core.Event, error)
	RecentEvents(ctx context.Context, limit int) ([]*core.Event, error)

	// Alerts
	InsertAlert(ctx context.Context, alert *core.Alert) error
	AlertByID(ctx context.Context, alertID string) (*core.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*core.Alert, error)
	UpdateAlert(ctx context.Context, alertID string, update AlertUpdate) (*core.Alert, error)

	// Explanations and modifications
	InsertExplanation(ctx context.Context, exp *core.Explanation) error
	InsertModification(ctx context.Context, mod *core.ModificationRecord) error

	Ping(ctx context.Context) error
}
