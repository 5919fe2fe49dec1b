// Package correlation annotates per-service event timelines with likely-cause
// relationships between trigger events and subsequent errors.
package correlation

import (
	"sort"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

// DefaultWindow bounds how far back an error looks for a causing trigger on
// timeline reads. Issue creation uses an unbounded lookback instead; the two
// are deliberately kept separate.
const DefaultWindow = 5 * time.Minute

// Analyzer computes causally-annotated timelines. It is read-only: repeated
// calls over the same input produce the same output and nothing is mutated.
type Analyzer struct {
	window time.Duration
}

// NewAnalyzer constructs an Analyzer with the given correlation window,
// falling back to DefaultWindow when the value is not positive.
func NewAnalyzer(window time.Duration) *Analyzer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Analyzer{window: window}
}

// Window returns the configured correlation window.
func (a *Analyzer) Window() time.Duration {
	return a.window
}

type indexedTrigger struct {
	event *models.Event
	index int
}

// Analyze sorts the events ascending by timestamp (stable on ties) and marks
// each ERROR event whose nearest preceding DEPLOY/CONFIG_CHANGE for the same
// service falls within the correlation window. The nearest qualifying trigger
// wins; triggers themselves are never annotated.
func (a *Analyzer) Analyze(events []*models.Event) []models.TimelineEvent {
	sorted := make([]*models.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	timeline := make([]models.TimelineEvent, len(sorted))
	for i, event := range sorted {
		timeline[i] = models.TimelineEvent{Event: *event}
	}

	triggersByService := make(map[string][]indexedTrigger)
	for i, event := range sorted {
		if event.EventType.IsTrigger() {
			triggersByService[event.ServiceName] = append(triggersByService[event.ServiceName], indexedTrigger{event: event, index: i})
		}
	}

	windowMillis := a.window.Milliseconds()
	for i, event := range sorted {
		if event.EventType != models.EventTypeError {
			continue
		}

		triggers := triggersByService[event.ServiceName]
		for j := len(triggers) - 1; j >= 0; j-- {
			trigger := triggers[j]
			if trigger.index >= i {
				continue
			}
			diff := event.Timestamp - trigger.event.Timestamp
			if diff >= 0 && diff <= windowMillis {
				timeline[i].IsLikelyCause = true
				timeline[i].CorrelatedTo = trigger.event.ID
				break
			}
		}
	}

	return timeline
}
