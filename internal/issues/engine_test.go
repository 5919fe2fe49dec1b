package issues

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/storage"
)

type fakeRepo struct {
	byID map[string]*models.Issue
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[string]*models.Issue)}
}

func (r *fakeRepo) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	issue, ok := r.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *issue
	clone.RelatedEventIDs = append([]string(nil), issue.RelatedEventIDs...)
	return &clone, nil
}

func (r *fakeRepo) FindByFingerprint(ctx context.Context, serviceName, fingerprint string) (*models.Issue, error) {
	for _, issue := range r.byID {
		if issue.ServiceName == serviceName && issue.Fingerprint == fingerprint {
			return issue, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *fakeRepo) Upsert(ctx context.Context, issue *models.Issue) error {
	clone := *issue
	clone.RelatedEventIDs = append([]string(nil), issue.RelatedEventIDs...)
	r.byID[issue.ID] = &clone
	return nil
}

type fakeLedger struct {
	byID map[string]*models.Event
}

func newFakeLedger(events ...*models.Event) *fakeLedger {
	ledger := &fakeLedger{byID: make(map[string]*models.Event)}
	for _, event := range events {
		ledger.byID[event.ID] = event
	}
	return ledger
}

func (l *fakeLedger) add(event *models.Event) {
	l.byID[event.ID] = event
}

func (l *fakeLedger) FindByID(ctx context.Context, id string) (*models.Event, error) {
	event, ok := l.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return event, nil
}

func testErrorEvent(id string, ts int64, message string, metadata map[string]any) *models.Event {
	return &models.Event{
		ID:          id,
		Timestamp:   ts,
		EventType:   models.EventTypeError,
		ServiceName: "checkout",
		Message:     message,
		Metadata:    metadata,
	}
}

func newTestEngine(repo *fakeRepo, ledger *fakeLedger, now time.Time) *Engine {
	engine := NewEngine(nil, repo, ledger)
	engine.now = func() time.Time { return now }
	return engine
}

func TestCreateFromEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	event := testErrorEvent("evt-1", now.UnixMilli(), "NPE", nil)
	repo := newFakeRepo()
	engine := newTestEngine(repo, newFakeLedger(event), now)

	issue, err := engine.CreateFromEvent(ctx, event, "fp-1", "deploy-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if issue.Count != 1 || len(issue.RelatedEventIDs) != 1 {
		t.Fatalf("expected count 1 with one related event, got %d/%d", issue.Count, len(issue.RelatedEventIDs))
	}
	if issue.Status != models.IssueStatusOpen {
		t.Fatalf("new issue must be open, got %s", issue.Status)
	}
	if issue.FirstSeen != event.Timestamp || issue.LastSeen != event.Timestamp {
		t.Fatalf("first/last seen not set from event timestamp")
	}
	if issue.SuspectedCauseEventID != "deploy-1" {
		t.Fatalf("suspected cause not recorded")
	}
	if issue.Severity != models.SeverityLow {
		t.Fatalf("plain title single event should be low, got %s", issue.Severity)
	}
	if _, ok := repo.byID[issue.ID]; !ok {
		t.Fatalf("issue not persisted")
	}
}

func TestCreateFromEventRejectsTriggers(t *testing.T) {
	engine := newTestEngine(newFakeRepo(), newFakeLedger(), time.Now())
	deploy := &models.Event{ID: "d1", EventType: models.EventTypeDeploy, ServiceName: "checkout"}

	if _, err := engine.CreateFromEvent(context.Background(), deploy, "fp", ""); !errors.Is(err, models.ErrInvalidEventType) {
		t.Fatalf("expected ErrInvalidEventType, got %v", err)
	}
}

func TestIncrementKeepsCountConsistent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	first := testErrorEvent("evt-1", 1000, "NPE", nil)
	second := testErrorEvent("evt-2", 1100, "NPE", nil)

	repo := newFakeRepo()
	ledger := newFakeLedger(first, second)
	engine := newTestEngine(repo, ledger, now)

	issue, err := engine.CreateFromEvent(ctx, first, "fp-1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := engine.Increment(ctx, issue.ID, second.ID, second.Timestamp, "")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if updated.Count != 2 || len(updated.RelatedEventIDs) != 2 {
		t.Fatalf("count/related mismatch: %d/%d", updated.Count, len(updated.RelatedEventIDs))
	}
	if updated.LastSeen != 1100 {
		t.Fatalf("lastSeen not advanced, got %d", updated.LastSeen)
	}
	if updated.FirstSeen != 1000 {
		t.Fatalf("firstSeen must not move, got %d", updated.FirstSeen)
	}
}

func TestIncrementOutOfOrderTimestamp(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	first := testErrorEvent("evt-1", 2000, "NPE", nil)
	late := testErrorEvent("evt-2", 1500, "NPE", nil)

	repo := newFakeRepo()
	engine := newTestEngine(repo, newFakeLedger(first, late), now)

	issue, _ := engine.CreateFromEvent(ctx, first, "fp-1", "")
	updated, err := engine.Increment(ctx, issue.ID, late.ID, late.Timestamp, "")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if updated.LastSeen != 2000 {
		t.Fatalf("lastSeen regressed to %d", updated.LastSeen)
	}
	if updated.Count != 2 {
		t.Fatalf("out-of-order event still counts, got %d", updated.Count)
	}
}

func TestResolveAndRegression(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	first := testErrorEvent("evt-1", 1000, "NPE", nil)
	again := testErrorEvent("evt-2", 3000, "NPE", nil)

	repo := newFakeRepo()
	ledger := newFakeLedger(first, again)
	engine := newTestEngine(repo, ledger, now)

	issue, _ := engine.CreateFromEvent(ctx, first, "fp-1", "")

	resolved, err := engine.Resolve(ctx, issue.ID, "deploy-1", 2000)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != models.IssueStatusResolved {
		t.Fatalf("expected resolved, got %s", resolved.Status)
	}
	if resolved.ResolvedAt == nil || *resolved.ResolvedAt != 2000 || resolved.ResolvedByEventID != "deploy-1" {
		t.Fatalf("resolution fields not set: %+v", resolved)
	}

	// Resolving again is a no-op.
	same, err := engine.Resolve(ctx, issue.ID, "deploy-2", 2500)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if same.ResolvedByEventID != "deploy-1" || *same.ResolvedAt != 2000 {
		t.Fatalf("second resolve must not overwrite resolution: %+v", same)
	}

	// A matching error reopens the issue.
	reopened, err := engine.Increment(ctx, issue.ID, again.ID, again.Timestamp, "")
	if err != nil {
		t.Fatalf("reopen increment: %v", err)
	}
	if reopened.Status != models.IssueStatusOpen {
		t.Fatalf("expected reopened issue, got %s", reopened.Status)
	}
	if reopened.RegressionCount != 1 {
		t.Fatalf("expected regressionCount 1, got %d", reopened.RegressionCount)
	}
	if reopened.ResolvedAt != nil || reopened.ResolvedByEventID != "" {
		t.Fatalf("resolution fields not cleared on regression: %+v", reopened)
	}
}

func TestIncrementUnknownIssue(t *testing.T) {
	engine := newTestEngine(newFakeRepo(), newFakeLedger(), time.Now())
	if _, err := engine.Increment(context.Background(), "missing", "evt", 1, ""); !errors.Is(err, models.ErrIssueNotFound) {
		t.Fatalf("expected ErrIssueNotFound, got %v", err)
	}
	if _, err := engine.Resolve(context.Background(), "missing", "evt", 1); !errors.Is(err, models.ErrIssueNotFound) {
		t.Fatalf("expected ErrIssueNotFound, got %v", err)
	}
}

func TestImpactMetricsRecomputedTogether(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	nowMs := now.UnixMilli()

	first := testErrorEvent("evt-1", nowMs-30_000, "GET /api/cart failed", map[string]any{"userId": "u-1"})
	second := testErrorEvent("evt-2", nowMs-10_000, "GET /api/cart failed", map[string]any{
		"route":  "/api/checkout",
		"userId": "u-2",
	})

	repo := newFakeRepo()
	ledger := newFakeLedger(first, second)
	engine := newTestEngine(repo, ledger, now)

	issue, _ := engine.CreateFromEvent(ctx, first, "fp-1", "")
	if issue.UniqueRoutes != 1 {
		t.Fatalf("expected one route from message extraction, got %d", issue.UniqueRoutes)
	}
	if issue.UniqueUsers == nil || *issue.UniqueUsers != 1 {
		t.Fatalf("expected one unique user, got %v", issue.UniqueUsers)
	}

	updated, err := engine.Increment(ctx, issue.ID, second.ID, second.Timestamp, "")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if updated.UniqueRoutes != 2 {
		t.Fatalf("expected two routes, got %d", updated.UniqueRoutes)
	}
	if updated.UniqueUsers == nil || *updated.UniqueUsers != 2 {
		t.Fatalf("expected two unique users, got %v", updated.UniqueUsers)
	}
	if updated.ErrorRate <= 0 {
		t.Fatalf("expected positive error rate for recent events, got %f", updated.ErrorRate)
	}
	// Two routes escalate the medium keyword baseline to high.
	if updated.Severity != models.SeverityHigh {
		t.Fatalf("expected high severity after route escalation, got %s", updated.Severity)
	}
}

func TestImpactIgnoresMissingAndNonErrorEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	first := testErrorEvent("evt-1", 1000, "NPE", nil)

	repo := newFakeRepo()
	ledger := newFakeLedger(first)
	ledger.add(&models.Event{ID: "deploy-1", EventType: models.EventTypeDeploy, ServiceName: "checkout", Timestamp: 500})
	engine := newTestEngine(repo, ledger, now)

	issue, _ := engine.CreateFromEvent(ctx, first, "fp-1", "")

	// A trigger id and a dangling id in the related set are discarded when
	// metrics are recomputed.
	issue.RelatedEventIDs = append(issue.RelatedEventIDs, "deploy-1", "gone")
	impact := engine.computeImpact(ctx, issue)
	if impact.uniqueRoutes != 0 {
		t.Fatalf("no routes expected, got %d", impact.uniqueRoutes)
	}
	if impact.uniqueUsers != nil {
		t.Fatalf("no users expected, got %v", impact.uniqueUsers)
	}
	if impact.errorRate != 0 {
		t.Fatalf("evt-1 is outside the recent window, expected rate 0, got %f", impact.errorRate)
	}
}

func TestSummarize(t *testing.T) {
	users := 2
	issues := []*models.Issue{
		{Status: models.IssueStatusOpen, Severity: models.SeverityHigh, PriorityScore: 70, RegressionCount: 1, UniqueUsers: &users},
		{Status: models.IssueStatusOpen, Severity: models.SeverityLow, PriorityScore: 25},
		{Status: models.IssueStatusResolved, Severity: models.SeverityMedium, PriorityScore: 90},
	}

	summary := Summarize(issues)
	if summary.Total != 3 || summary.Open != 2 || summary.Resolved != 1 {
		t.Fatalf("counts wrong: %+v", summary)
	}
	if summary.Regressions != 1 {
		t.Fatalf("regressions wrong: %d", summary.Regressions)
	}
	if summary.BySeverity[models.SeverityHigh] != 1 || summary.BySeverity[models.SeverityLow] != 1 {
		t.Fatalf("severity counts wrong: %+v", summary.BySeverity)
	}
	// Resolved issues do not contribute to the top open priority.
	if summary.TopPriorityScore != 70 {
		t.Fatalf("top priority should come from open issues, got %d", summary.TopPriorityScore)
	}
}
