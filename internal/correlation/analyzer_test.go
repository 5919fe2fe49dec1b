package correlation

import (
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

func event(id string, ts int64, eventType models.EventType, service string) *models.Event {
	return &models.Event{
		ID:          id,
		Timestamp:   ts,
		EventType:   eventType,
		ServiceName: service,
		Message:     string(eventType) + " " + id,
	}
}

func TestAnalyzeCorrelatesWithinWindow(t *testing.T) {
	analyzer := NewAnalyzer(0)
	events := []*models.Event{
		event("err-1", 61_000, models.EventTypeError, "checkout"),
		event("deploy-1", 60_000, models.EventTypeDeploy, "checkout"),
	}

	timeline := analyzer.Analyze(events)
	if len(timeline) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(timeline))
	}
	if timeline[0].ID != "deploy-1" || timeline[1].ID != "err-1" {
		t.Fatalf("timeline not sorted ascending: %s, %s", timeline[0].ID, timeline[1].ID)
	}
	if !timeline[1].IsLikelyCause || timeline[1].CorrelatedTo != "deploy-1" {
		t.Fatalf("error not correlated to deploy: %+v", timeline[1])
	}
	if timeline[0].IsLikelyCause || timeline[0].CorrelatedTo != "" {
		t.Fatalf("trigger must never be annotated: %+v", timeline[0])
	}
}

func TestAnalyzeIgnoresTriggersOutsideWindow(t *testing.T) {
	analyzer := NewAnalyzer(5 * time.Minute)
	events := []*models.Event{
		event("deploy-1", 0, models.EventTypeDeploy, "checkout"),
		event("err-1", 5*60_000+1, models.EventTypeError, "checkout"),
	}

	timeline := analyzer.Analyze(events)
	if timeline[1].IsLikelyCause {
		t.Fatalf("trigger outside window must not correlate: %+v", timeline[1])
	}
}

func TestAnalyzeNearestTriggerWins(t *testing.T) {
	analyzer := NewAnalyzer(5 * time.Minute)
	events := []*models.Event{
		event("deploy-old", 10_000, models.EventTypeDeploy, "checkout"),
		event("config-new", 50_000, models.EventTypeConfigChange, "checkout"),
		event("err-1", 60_000, models.EventTypeError, "checkout"),
	}

	timeline := analyzer.Analyze(events)
	if timeline[2].CorrelatedTo != "config-new" {
		t.Fatalf("expected nearest trigger config-new, got %q", timeline[2].CorrelatedTo)
	}
}

func TestAnalyzeServiceScoped(t *testing.T) {
	analyzer := NewAnalyzer(5 * time.Minute)
	events := []*models.Event{
		event("deploy-other", 59_000, models.EventTypeDeploy, "payments"),
		event("err-1", 60_000, models.EventTypeError, "checkout"),
	}

	timeline := analyzer.Analyze(events)
	if timeline[1].IsLikelyCause {
		t.Fatalf("trigger from another service must not correlate: %+v", timeline[1])
	}
}

func TestAnalyzeEqualTimestamps(t *testing.T) {
	analyzer := NewAnalyzer(5 * time.Minute)
	events := []*models.Event{
		event("deploy-1", 60_000, models.EventTypeDeploy, "checkout"),
		event("err-1", 60_000, models.EventTypeError, "checkout"),
	}

	timeline := analyzer.Analyze(events)
	// Stable sort keeps the deploy before the error, so the zero time
	// difference still qualifies.
	if timeline[0].ID != "deploy-1" {
		t.Fatalf("stable sort violated, first event %s", timeline[0].ID)
	}
	if !timeline[1].IsLikelyCause || timeline[1].CorrelatedTo != "deploy-1" {
		t.Fatalf("equal-timestamp trigger should correlate: %+v", timeline[1])
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	analyzer := NewAnalyzer(5 * time.Minute)
	events := []*models.Event{
		event("deploy-1", 60_000, models.EventTypeDeploy, "checkout"),
		event("err-1", 61_000, models.EventTypeError, "checkout"),
		event("err-2", 62_000, models.EventTypeError, "checkout"),
	}

	first := analyzer.Analyze(events)
	second := analyzer.Analyze(events)
	if len(first) != len(second) {
		t.Fatalf("length mismatch across calls: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID ||
			first[i].IsLikelyCause != second[i].IsLikelyCause ||
			first[i].CorrelatedTo != second[i].CorrelatedTo {
			t.Fatalf("call results differ at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
	if events[0].ID != "deploy-1" || events[1].ID != "err-1" {
		t.Fatalf("input slice was reordered")
	}
}
