// Package services wires the fingerprint, correlation, and issue lifecycle
// pieces into the ingestion and read operations consumed by the HTTP layer.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/correlation"
	"github.com/faultlinehq/faultline/internal/fingerprint"
	"github.com/faultlinehq/faultline/internal/issues"
	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/storage"
	"github.com/faultlinehq/faultline/internal/utils"
)

// IssueReader covers the read-side issue queries; storage.IssueRepository
// satisfies it.
type IssueReader interface {
	ListByService(ctx context.Context, serviceName string) ([]*models.Issue, error)
	ListOpen(ctx context.Context, serviceName string) ([]*models.Issue, error)
	TopByPriority(ctx context.Context, serviceName string, limit int) ([]*models.Issue, error)
}

// IngestResult reports what a single ingested event produced. Issue is set
// only when an ERROR event created or updated an issue.
type IngestResult struct {
	Event *models.Event `json:"event"`
	Issue *models.Issue `json:"issue,omitempty"`
}

// ServiceOverview pairs a monitored service with its issue summary.
type ServiceOverview struct {
	Name   string         `json:"name"`
	Issues issues.Summary `json:"issues"`
}

// IngestService is the synchronous ingestion pipeline. Every ingested event is
// stored first; issue inference and resolution sweeps run afterwards and are
// best-effort, so a processing failure never loses the event itself.
type IngestService struct {
	logger      *slog.Logger
	ledger      storage.EventLedger
	issues      IssueReader
	engine      *issues.Engine
	analyzer    *correlation.Analyzer
	cache       cache.Provider
	timelineTTL time.Duration
	latencies   *utils.LatencyTracker
	locks       *keyMutex
	now         func() time.Time
}

// NewIngestService constructs the ingestion service facade.
func NewIngestService(logger *slog.Logger, ledger storage.EventLedger, issueReader IssueReader, engine *issues.Engine, analyzer *correlation.Analyzer, cacheProvider cache.Provider, timelineTTL time.Duration) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	if analyzer == nil {
		analyzer = correlation.NewAnalyzer(0)
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &IngestService{
		logger:      logger,
		ledger:      ledger,
		issues:      issueReader,
		engine:      engine,
		analyzer:    analyzer,
		cache:       cacheProvider,
		timelineTTL: timelineTTL,
		latencies:   utils.NewLatencyTracker(1024),
		locks:       newKeyMutex(),
		now:         time.Now,
	}
}

// CorrelationWindow exposes the analyzer's window for API responses.
func (s *IngestService) CorrelationWindow() time.Duration {
	return s.analyzer.Window()
}

// Ingest stores one event and runs the inference that follows from its type:
// ERROR events feed the issue lifecycle, DEPLOY and CONFIG_CHANGE events run a
// resolution sweep. The event is stored before any processing; processing
// failures are logged and do not fail the ingestion.
func (s *IngestService) Ingest(ctx context.Context, event *models.Event) (*IngestResult, error) {
	start := s.now()

	if err := s.normalize(event); err != nil {
		return nil, err
	}
	if err := s.ledger.Append(ctx, event); err != nil {
		metrics.ObserveIngest(string(event.EventType), time.Since(start), metrics.OutcomeError)
		return nil, fmt.Errorf("store event: %w", err)
	}
	s.invalidateTimeline(ctx, event.ServiceName)

	result := &IngestResult{Event: event}
	outcome := metrics.OutcomeSuccess

	switch {
	case event.EventType == models.EventTypeError:
		issue, err := s.processError(ctx, event)
		if err != nil {
			outcome = metrics.OutcomeError
			s.logger.Error("error event processing failed",
				slog.String("event_id", event.ID),
				slog.String("service", event.ServiceName),
				slog.Any("error", err))
		}
		result.Issue = issue
	case event.EventType.IsTrigger():
		if err := s.sweep(ctx, event); err != nil {
			outcome = metrics.OutcomeError
			s.logger.Error("resolution sweep failed",
				slog.String("event_id", event.ID),
				slog.String("service", event.ServiceName),
				slog.Any("error", err))
		}
	}

	duration := time.Since(start)
	metrics.ObserveIngest(string(event.EventType), duration, outcome)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("ingest latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	return result, nil
}

// IngestBatch stores all events in one append, then processes them in array
// order: ERROR events first, then trigger sweeps. Later events in a batch can
// change how earlier issues resolve, so ordering is part of the contract.
func (s *IngestService) IngestBatch(ctx context.Context, events []*models.Event) ([]*IngestResult, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", models.ErrInvalidEvent)
	}
	for i, event := range events {
		if err := s.normalize(event); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	if err := s.ledger.AppendBatch(ctx, events); err != nil {
		return nil, fmt.Errorf("store batch: %w", err)
	}

	results := make([]*IngestResult, len(events))
	services := make(map[string]struct{})
	for i, event := range events {
		results[i] = &IngestResult{Event: event}
		services[event.ServiceName] = struct{}{}
	}
	for service := range services {
		s.invalidateTimeline(ctx, service)
	}

	for i, event := range events {
		if event.EventType != models.EventTypeError {
			continue
		}
		issue, err := s.processError(ctx, event)
		if err != nil {
			s.logger.Error("batch error event processing failed",
				slog.Int("index", i),
				slog.String("event_id", event.ID),
				slog.Any("error", err))
			continue
		}
		results[i].Issue = issue
	}

	for _, event := range events {
		if !event.EventType.IsTrigger() {
			continue
		}
		if err := s.sweep(ctx, event); err != nil {
			s.logger.Error("batch resolution sweep failed",
				slog.String("event_id", event.ID),
				slog.String("service", event.ServiceName),
				slog.Any("error", err))
		}
	}

	return results, nil
}

// normalize validates required fields and fills in the id and timestamp.
func (s *IngestService) normalize(event *models.Event) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", models.ErrInvalidEvent)
	}
	if !event.EventType.Valid() {
		return fmt.Errorf("%w: eventType %q, want one of %v", models.ErrInvalidEventType, event.EventType, models.EventTypes())
	}
	if event.ServiceName == "" {
		return fmt.Errorf("%w: serviceName is required", models.ErrInvalidEvent)
	}
	if event.Message == "" {
		return fmt.Errorf("%w: message is required", models.ErrInvalidEvent)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == 0 {
		event.Timestamp = utils.TimeToMillis(s.now())
	}
	return nil
}

// processError routes an ERROR event into the issue lifecycle. Work for one
// (serviceName, fingerprint) key is serialised so the read-modify-write in the
// engine stays consistent under concurrent ingestion.
func (s *IngestService) processError(ctx context.Context, event *models.Event) (*models.Issue, error) {
	fp, err := fingerprint.Generate(event)
	if err != nil {
		return nil, fmt.Errorf("fingerprint event %s: %w", event.ID, err)
	}

	unlock := s.locks.Lock(event.ServiceName + "\x00" + fp)
	defer unlock()

	suspectedCause := s.findSuspectedCause(ctx, event)

	existing, err := s.engine.FindByFingerprint(ctx, event.ServiceName, fp)
	switch {
	case errors.Is(err, models.ErrIssueNotFound):
		issue, err := s.engine.CreateFromEvent(ctx, event, fp, suspectedCause)
		if err != nil {
			return nil, err
		}
		metrics.IncIssueCreated()
		return issue, nil
	case err != nil:
		return nil, fmt.Errorf("lookup issue: %w", err)
	}

	wasResolved := existing.Status == models.IssueStatusResolved
	issue, err := s.engine.Increment(ctx, existing.ID, event.ID, event.Timestamp, suspectedCause)
	if err != nil {
		return nil, err
	}
	if wasResolved {
		metrics.IncIssueRegression()
	}
	return issue, nil
}

// findSuspectedCause returns the id of the nearest trigger event at or before
// the error's timestamp, searched over the service's whole history. This
// lookback is deliberately unbounded, unlike the timeline annotation window.
// Failures degrade to "no suspected cause" rather than failing ingestion.
func (s *IngestService) findSuspectedCause(ctx context.Context, event *models.Event) string {
	history, err := s.ledger.Find(ctx, storage.EventFilter{ServiceName: event.ServiceName})
	if err != nil {
		s.logger.Warn("suspected cause lookup failed",
			slog.String("service", event.ServiceName),
			slog.Any("error", err))
		return ""
	}

	// history is sorted descending by timestamp, so the first qualifying
	// trigger is the nearest preceding one.
	for _, candidate := range history {
		if !candidate.EventType.IsTrigger() {
			continue
		}
		if candidate.Timestamp <= event.Timestamp {
			return candidate.ID
		}
	}
	return ""
}

// sweep resolves open issues that have stopped recurring since the trigger.
// An open issue survives the sweep when any ERROR event after the trigger
// still matches its fingerprint.
func (s *IngestService) sweep(ctx context.Context, trigger *models.Event) error {
	open, err := s.issues.ListOpen(ctx, trigger.ServiceName)
	if err != nil {
		metrics.ObserveSweep(metrics.OutcomeError)
		return fmt.Errorf("list open issues: %w", err)
	}
	if len(open) == 0 {
		metrics.ObserveSweep(metrics.OutcomeSuccess)
		return nil
	}

	after := trigger.Timestamp + 1
	laterErrors, err := s.ledger.Find(ctx, storage.EventFilter{
		ServiceName: trigger.ServiceName,
		EventType:   models.EventTypeError,
		StartTime:   &after,
	})
	if err != nil {
		metrics.ObserveSweep(metrics.OutcomeError)
		return fmt.Errorf("list later errors: %w", err)
	}

	stillRecurring := make(map[string]struct{}, len(laterErrors))
	for _, candidate := range laterErrors {
		fp, err := fingerprint.Generate(candidate)
		if err != nil {
			s.logger.Warn("skipping unfingerprintable event in sweep",
				slog.String("event_id", candidate.ID),
				slog.Any("error", err))
			continue
		}
		stillRecurring[fp] = struct{}{}
	}

	var firstErr error
	for _, issue := range open {
		if _, ok := stillRecurring[issue.Fingerprint]; ok {
			continue
		}
		unlock := s.locks.Lock(issue.ServiceName + "\x00" + issue.Fingerprint)
		_, err := s.engine.Resolve(ctx, issue.ID, trigger.ID, trigger.Timestamp)
		unlock()
		if err != nil {
			s.logger.Error("resolve during sweep failed",
				slog.String("issue_id", issue.ID),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.IncIssueResolved()
	}

	if firstErr != nil {
		metrics.ObserveSweep(metrics.OutcomeError)
		return firstErr
	}
	metrics.ObserveSweep(metrics.OutcomeSuccess)
	return nil
}

// Timeline returns the correlated per-service timeline, served from cache
// when a fresh copy exists.
func (s *IngestService) Timeline(ctx context.Context, serviceName string) ([]models.TimelineEvent, error) {
	key := timelineCacheKey(serviceName)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var timeline []models.TimelineEvent
		if err := json.Unmarshal(cached, &timeline); err == nil {
			return timeline, nil
		}
		// A corrupt entry is dropped and recomputed.
		_ = s.cache.Del(ctx, key)
	}

	events, err := s.ledger.Find(ctx, storage.EventFilter{ServiceName: serviceName})
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", serviceName, err)
	}

	timeline := s.analyzer.Analyze(events)

	if encoded, err := json.Marshal(timeline); err == nil {
		if err := s.cache.Set(ctx, key, encoded, s.timelineTTL); err != nil {
			s.logger.Warn("timeline cache write failed", slog.String("service", serviceName), slog.Any("error", err))
		}
	}
	return timeline, nil
}

// ListIssues returns a service's issues sorted by lastSeen descending.
func (s *IngestService) ListIssues(ctx context.Context, serviceName string) ([]*models.Issue, error) {
	return s.issues.ListByService(ctx, serviceName)
}

// TopIssues returns the open issues most in need of attention.
func (s *IngestService) TopIssues(ctx context.Context, serviceName string, limit int) ([]*models.Issue, error) {
	return s.issues.TopByPriority(ctx, serviceName, limit)
}

// ListServices returns every monitored service with its issue summary.
func (s *IngestService) ListServices(ctx context.Context) ([]ServiceOverview, error) {
	names, err := s.ledger.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	overviews := make([]ServiceOverview, 0, len(names))
	for _, name := range names {
		serviceIssues, err := s.issues.ListByService(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("list issues for %s: %w", name, err)
		}
		overviews = append(overviews, ServiceOverview{Name: name, Issues: issues.Summarize(serviceIssues)})
	}
	return overviews, nil
}

// Events returns ledger events matching the filter, newest first.
func (s *IngestService) Events(ctx context.Context, filter storage.EventFilter) ([]*models.Event, error) {
	return s.ledger.Find(ctx, filter)
}

// EventByID returns one event by id.
func (s *IngestService) EventByID(ctx context.Context, id string) (*models.Event, error) {
	return s.ledger.FindByID(ctx, id)
}

// DeleteEvent removes an event by operator action and drops the cached
// timeline for its service.
func (s *IngestService) DeleteEvent(ctx context.Context, id string) error {
	event, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ledger.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateTimeline(ctx, event.ServiceName)
	return nil
}

// EventByIssue resolves an event reference on an issue, tolerating absence.
func (s *IngestService) EventByIssue(ctx context.Context, id string) *models.Event {
	if id == "" {
		return nil
	}
	event, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil
	}
	return event
}

// LatencyP95 returns the current p95 ingest latency.
func (s *IngestService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func (s *IngestService) invalidateTimeline(ctx context.Context, serviceName string) {
	if err := s.cache.Del(ctx, timelineCacheKey(serviceName)); err != nil {
		s.logger.Warn("timeline cache invalidation failed", slog.String("service", serviceName), slog.Any("error", err))
	}
}

func timelineCacheKey(serviceName string) string {
	return "timeline:" + serviceName
}
