package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/faultlinehq/faultline/internal/models"
)

// MemoryStorage is an in-memory ledger and repository, used by tests and the
// "memory" storage backend.
type MemoryStorage struct {
	events *memoryEventLedger
	issues *memoryIssueRepo
}

// NewMemoryStorage constructs empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events: &memoryEventLedger{byID: make(map[string]*storedEvent)},
		issues: &memoryIssueRepo{byID: make(map[string]*models.Issue), byKey: make(map[issueKey]string)},
	}
}

// Events returns the event ledger.
func (s *MemoryStorage) Events() EventLedger { return s.events }

// Issues returns the issue repository.
func (s *MemoryStorage) Issues() IssueRepository { return s.issues }

// Ping always succeeds for in-memory storage.
func (s *MemoryStorage) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStorage) Close() error { return nil }

type storedEvent struct {
	event *models.Event
	seq   int
}

type memoryEventLedger struct {
	mu   sync.RWMutex
	byID map[string]*storedEvent
	seq  int
}

func (l *memoryEventLedger) Append(ctx context.Context, event *models.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.append(event)
	return nil
}

func (l *memoryEventLedger) AppendBatch(ctx context.Context, events []*models.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, event := range events {
		l.append(event)
	}
	return nil
}

func (l *memoryEventLedger) append(event *models.Event) {
	clone := *event
	l.seq++
	l.byID[event.ID] = &storedEvent{event: &clone, seq: l.seq}
}

func (l *memoryEventLedger) FindByID(ctx context.Context, id string) (*models.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stored, ok := l.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *stored.event
	return &clone, nil
}

func (l *memoryEventLedger) Find(ctx context.Context, filter EventFilter) ([]*models.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]*storedEvent, 0, len(l.byID))
	for _, stored := range l.byID {
		event := stored.event
		if filter.ServiceName != "" && event.ServiceName != filter.ServiceName {
			continue
		}
		if filter.EventType != "" && event.EventType != filter.EventType {
			continue
		}
		if filter.StartTime != nil && event.Timestamp < *filter.StartTime {
			continue
		}
		if filter.EndTime != nil && event.Timestamp > *filter.EndTime {
			continue
		}
		matched = append(matched, stored)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].event.Timestamp != matched[j].event.Timestamp {
			return matched[i].event.Timestamp > matched[j].event.Timestamp
		}
		return matched[i].seq > matched[j].seq
	})

	events := make([]*models.Event, len(matched))
	for i, stored := range matched {
		clone := *stored.event
		events[i] = &clone
	}
	return events, nil
}

func (l *memoryEventLedger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[id]; !ok {
		return ErrNotFound
	}
	delete(l.byID, id)
	return nil
}

func (l *memoryEventLedger) ListServices(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, stored := range l.byID {
		seen[stored.event.ServiceName] = struct{}{}
	}
	services := make([]string, 0, len(seen))
	for name := range seen {
		services = append(services, name)
	}
	sort.Strings(services)
	return services, nil
}

type issueKey struct {
	serviceName string
	fingerprint string
}

type memoryIssueRepo struct {
	mu   sync.RWMutex
	byID map[string]*models.Issue
	byKey map[issueKey]string
}

func (r *memoryIssueRepo) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	issue, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneIssue(issue), nil
}

func (r *memoryIssueRepo) FindByFingerprint(ctx context.Context, serviceName, fingerprint string) (*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[issueKey{serviceName, fingerprint}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneIssue(r.byID[id]), nil
}

func (r *memoryIssueRepo) Upsert(ctx context.Context, issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := issueKey{issue.ServiceName, issue.Fingerprint}
	if existingID, ok := r.byKey[key]; ok && existingID != issue.ID {
		delete(r.byID, existingID)
	}
	r.byKey[key] = issue.ID
	r.byID[issue.ID] = cloneIssue(issue)
	return nil
}

func (r *memoryIssueRepo) ListByService(ctx context.Context, serviceName string) ([]*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	issues := r.collect(func(issue *models.Issue) bool {
		return issue.ServiceName == serviceName
	})
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].LastSeen > issues[j].LastSeen
	})
	return issues, nil
}

func (r *memoryIssueRepo) ListOpen(ctx context.Context, serviceName string) ([]*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	issues := r.collect(func(issue *models.Issue) bool {
		return issue.ServiceName == serviceName && issue.Status == models.IssueStatusOpen
	})
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].LastSeen > issues[j].LastSeen
	})
	return issues, nil
}

func (r *memoryIssueRepo) TopByPriority(ctx context.Context, serviceName string, limit int) ([]*models.Issue, error) {
	if limit <= 0 {
		limit = 3
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	issues := r.collect(func(issue *models.Issue) bool {
		return issue.ServiceName == serviceName && issue.Status == models.IssueStatusOpen
	})
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].PriorityScore != issues[j].PriorityScore {
			return issues[i].PriorityScore > issues[j].PriorityScore
		}
		return issues[i].LastSeen > issues[j].LastSeen
	})
	if len(issues) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}

func (r *memoryIssueRepo) collect(match func(*models.Issue) bool) []*models.Issue {
	var issues []*models.Issue
	for _, issue := range r.byID {
		if match(issue) {
			issues = append(issues, cloneIssue(issue))
		}
	}
	return issues
}

func cloneIssue(issue *models.Issue) *models.Issue {
	clone := *issue
	clone.RelatedEventIDs = append([]string(nil), issue.RelatedEventIDs...)
	if issue.ResolvedAt != nil {
		value := *issue.ResolvedAt
		clone.ResolvedAt = &value
	}
	if issue.UniqueUsers != nil {
		value := *issue.UniqueUsers
		clone.UniqueUsers = &value
	}
	return &clone
}
