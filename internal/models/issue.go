package models

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IssueStatus enumerates the lifecycle states of an issue.
type IssueStatus string

const (
	IssueStatusOpen     IssueStatus = "open"
	IssueStatusResolved IssueStatus = "resolved"
)

// Issue is the deduplicated aggregate of all ERROR events sharing a
// fingerprint within one service. Exactly one issue exists per
// (serviceName, fingerprint) pair.
//
// Count always equals len(RelatedEventIDs) and LastSeen always equals the
// maximum timestamp among the related events. UniqueRoutes, UniqueUsers,
// ErrorRate, Severity, PriorityScore and PriorityReason are recomputed
// together whenever the event set, status, or regression count changes.
type Issue struct {
	ID                    string      `json:"id"`
	ServiceName           string      `json:"serviceName"`
	Fingerprint           string      `json:"fingerprint"`
	Title                 string      `json:"title"`
	FirstSeen             int64       `json:"firstSeen"`
	LastSeen              int64       `json:"lastSeen"`
	Count                 int         `json:"count"`
	Severity              Severity    `json:"severity"`
	RelatedEventIDs       []string    `json:"relatedEventIds"`
	SuspectedCauseEventID string      `json:"suspectedCauseEventId,omitempty"`
	Status                IssueStatus `json:"status"`
	ResolvedAt            *int64      `json:"resolvedAt,omitempty"`
	ResolvedByEventID     string      `json:"resolvedByEventId,omitempty"`
	RegressionCount       int         `json:"regressionCount"`
	UniqueRoutes          int         `json:"uniqueRoutes"`
	UniqueUsers           *int        `json:"uniqueUsers,omitempty"`
	ErrorRate             float64     `json:"errorRate"`
	PriorityScore         int         `json:"priorityScore"`
	PriorityReason        string      `json:"priorityReason,omitempty"`
}
