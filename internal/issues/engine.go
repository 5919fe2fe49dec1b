// Package issues owns the issue lifecycle state machine: creation, increment,
// regression, resolution, and the severity/priority scoring model.
package issues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/storage"
)

// Ledger provides the event lookups needed to recompute impact metrics.
type Ledger interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
}

// Repository persists issue aggregates; storage.IssueRepository satisfies it.
type Repository interface {
	FindByID(ctx context.Context, id string) (*models.Issue, error)
	FindByFingerprint(ctx context.Context, serviceName, fingerprint string) (*models.Issue, error)
	Upsert(ctx context.Context, issue *models.Issue) error
}

// Engine drives issue lifecycle transitions. Every transition recomputes the
// impact metrics, severity, and priority together before the aggregate is
// written back, so the derived fields are never stale relative to each other.
//
// The engine performs plain read-modify-write cycles; callers must serialise
// mutations per (serviceName, fingerprint) key.
type Engine struct {
	logger *slog.Logger
	repo   Repository
	ledger Ledger
	now    func() time.Time
}

// NewEngine constructs the lifecycle engine.
func NewEngine(logger *slog.Logger, repo Repository, ledger Ledger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		repo:   repo,
		ledger: ledger,
		now:    time.Now,
	}
}

// FindByFingerprint looks up the issue for a (service, fingerprint) key,
// returning ErrIssueNotFound when none exists.
func (e *Engine) FindByFingerprint(ctx context.Context, serviceName, fingerprint string) (*models.Issue, error) {
	issue, err := e.repo.FindByFingerprint(ctx, serviceName, fingerprint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("issue for %s/%s: %w", serviceName, fingerprint, models.ErrIssueNotFound)
	}
	return issue, err
}

// CreateFromEvent opens a new issue for an ERROR event with no existing
// fingerprint match. suspectedCauseEventID may be empty when no preceding
// trigger exists for the service.
func (e *Engine) CreateFromEvent(ctx context.Context, event *models.Event, fingerprint, suspectedCauseEventID string) (*models.Issue, error) {
	if event.EventType != models.EventTypeError {
		return nil, fmt.Errorf("create issue from %s event: %w", event.EventType, models.ErrInvalidEventType)
	}

	title := event.Message
	if title == "" {
		title = "Unknown error"
	}

	issue := &models.Issue{
		ID:                    uuid.NewString(),
		ServiceName:           event.ServiceName,
		Fingerprint:           fingerprint,
		Title:                 title,
		FirstSeen:             event.Timestamp,
		LastSeen:              event.Timestamp,
		Count:                 1,
		Severity:              models.SeverityLow,
		RelatedEventIDs:       []string{event.ID},
		SuspectedCauseEventID: suspectedCauseEventID,
		Status:                models.IssueStatusOpen,
	}

	e.recompute(ctx, issue)

	if err := e.repo.Upsert(ctx, issue); err != nil {
		return nil, fmt.Errorf("store issue: %w", err)
	}
	return issue, nil
}

// Increment attributes another ERROR event to an existing issue. A resolved
// issue is reopened and its regression count incremented. LastSeen only ever
// advances, which keeps it correct under out-of-order ingestion.
func (e *Engine) Increment(ctx context.Context, issueID, eventID string, timestamp int64, suspectedCauseEventID string) (*models.Issue, error) {
	issue, err := e.loadByID(ctx, issueID)
	if err != nil {
		return nil, err
	}

	if issue.Status == models.IssueStatusResolved {
		issue.Status = models.IssueStatusOpen
		issue.RegressionCount++
		issue.ResolvedAt = nil
		issue.ResolvedByEventID = ""
	}

	issue.Count++
	if timestamp > issue.LastSeen {
		issue.LastSeen = timestamp
	}
	issue.RelatedEventIDs = append(issue.RelatedEventIDs, eventID)
	if suspectedCauseEventID != "" {
		issue.SuspectedCauseEventID = suspectedCauseEventID
	}

	e.recompute(ctx, issue)

	if err := e.repo.Upsert(ctx, issue); err != nil {
		return nil, fmt.Errorf("store issue: %w", err)
	}
	return issue, nil
}

// Resolve marks an open issue resolved against the given trigger event. A
// resolved issue is left untouched.
func (e *Engine) Resolve(ctx context.Context, issueID, resolvedByEventID string, resolvedAt int64) (*models.Issue, error) {
	issue, err := e.loadByID(ctx, issueID)
	if err != nil {
		return nil, err
	}

	if issue.Status == models.IssueStatusResolved {
		return issue, nil
	}

	issue.Status = models.IssueStatusResolved
	issue.ResolvedAt = &resolvedAt
	issue.ResolvedByEventID = resolvedByEventID

	e.recompute(ctx, issue)

	if err := e.repo.Upsert(ctx, issue); err != nil {
		return nil, fmt.Errorf("store issue: %w", err)
	}
	return issue, nil
}

func (e *Engine) loadByID(ctx context.Context, issueID string) (*models.Issue, error) {
	issue, err := e.repo.FindByID(ctx, issueID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("issue %s: %w", issueID, models.ErrIssueNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load issue %s: %w", issueID, err)
	}
	return issue, nil
}

// recompute refreshes impact metrics, severity, and priority as one unit.
func (e *Engine) recompute(ctx context.Context, issue *models.Issue) {
	impact := e.computeImpact(ctx, issue)
	issue.UniqueRoutes = impact.uniqueRoutes
	issue.UniqueUsers = impact.uniqueUsers
	issue.ErrorRate = impact.errorRate

	issue.Severity = DetermineSeverity(issue.Title, issue.Count, issue.ErrorRate, issue.RegressionCount, issue.UniqueRoutes)

	score, reason := CalculatePriority(issue.Severity, issue.ErrorRate, issue.RegressionCount, issue.FirstSeen, issue.Status, e.now())
	issue.PriorityScore = score
	issue.PriorityReason = reason
}
