// Package storage provides the event ledger and issue repository backing the
// inference engine. Both a SQLite-backed and an in-memory implementation are
// available; callers interact only through the interfaces below.
package storage

import (
	"context"
	"errors"

	"github.com/faultlinehq/faultline/internal/models"
)

// ErrNotFound signals that a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// EventFilter narrows ledger scans. Zero fields match everything; StartTime
// and EndTime are inclusive epoch-millisecond bounds.
type EventFilter struct {
	ServiceName string
	EventType   models.EventType
	StartTime   *int64
	EndTime     *int64
}

// EventLedger is the append-only event store. Events are immutable once
// appended; Delete exists only for explicit operator action.
type EventLedger interface {
	Append(ctx context.Context, event *models.Event) error
	AppendBatch(ctx context.Context, events []*models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	// Find returns matching events sorted descending by timestamp.
	Find(ctx context.Context, filter EventFilter) ([]*models.Event, error)
	Delete(ctx context.Context, id string) error
	ListServices(ctx context.Context) ([]string, error)
}

// IssueRepository persists issue aggregates keyed by (serviceName,
// fingerprint). Upsert must be atomic with respect to that key.
type IssueRepository interface {
	FindByID(ctx context.Context, id string) (*models.Issue, error)
	FindByFingerprint(ctx context.Context, serviceName, fingerprint string) (*models.Issue, error)
	Upsert(ctx context.Context, issue *models.Issue) error
	// ListByService returns all issues for a service sorted by lastSeen descending.
	ListByService(ctx context.Context, serviceName string) ([]*models.Issue, error)
	ListOpen(ctx context.Context, serviceName string) ([]*models.Issue, error)
	// TopByPriority returns up to limit open issues sorted by priority descending.
	TopByPriority(ctx context.Context, serviceName string, limit int) ([]*models.Issue, error)
}
