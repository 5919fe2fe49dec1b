package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels events that were ingested and processed.
	OutcomeSuccess = "success"
	// OutcomeError labels events that were stored but failed processing.
	OutcomeError = "error"
)

var (
	eventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "events_ingested_total",
			Help:      "Total number of events ingested, partitioned by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	ingestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "ingest_seconds",
			Help:      "Single-event ingest latency in seconds.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	issuesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "issues_created_total",
			Help:      "Total number of issues opened from error fingerprints.",
		},
	)

	issuesResolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "issues_resolved_total",
			Help:      "Total number of issues resolved by resolution sweeps.",
		},
	)

	issueRegressionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "issue_regressions_total",
			Help:      "Total number of resolved issues reopened by a recurring error.",
		},
	)

	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "resolution_sweeps_total",
			Help:      "Total number of resolution sweeps triggered, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches faultline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsIngestedTotal,
		ingestDurationSeconds,
		issuesCreatedTotal,
		issuesResolvedTotal,
		issueRegressionsTotal,
		sweepsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveIngest records a single-event ingest duration and outcome label.
func ObserveIngest(eventType string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	eventsIngestedTotal.WithLabelValues(eventType, label).Inc()
	if duration < 0 {
		duration = 0
	}
	ingestDurationSeconds.Observe(duration.Seconds())
}

// IncIssueCreated counts a newly opened issue.
func IncIssueCreated() { issuesCreatedTotal.Inc() }

// IncIssueResolved counts an issue closed by a resolution sweep.
func IncIssueResolved() { issuesResolvedTotal.Inc() }

// IncIssueRegression counts a resolved issue reopened by a recurring error.
func IncIssueRegression() { issueRegressionsTotal.Inc() }

// ObserveSweep records the outcome of a resolution sweep.
func ObserveSweep(outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	sweepsTotal.WithLabelValues(label).Inc()
}
