package models

// EventType enumerates the operational event kinds faultline understands.
type EventType string

const (
	EventTypeDeploy       EventType = "DEPLOY"
	EventTypeConfigChange EventType = "CONFIG_CHANGE"
	EventTypeError        EventType = "ERROR"
)

// Valid reports whether the event type is one of the known kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeDeploy, EventTypeConfigChange, EventTypeError:
		return true
	default:
		return false
	}
}

// IsTrigger reports whether the event type is a candidate cause of later errors.
func (t EventType) IsTrigger() bool {
	return t == EventTypeDeploy || t == EventTypeConfigChange
}

// EventTypes lists all valid event types, useful for validation messages.
func EventTypes() []EventType {
	return []EventType{EventTypeDeploy, EventTypeConfigChange, EventTypeError}
}

// Event is an immutable operational event. Timestamps are epoch milliseconds.
// Events are created once at ingestion and deleted only by operator action.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   int64          `json:"timestamp"`
	EventType   EventType      `json:"eventType"`
	ServiceName string         `json:"serviceName"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TimelineEvent is an Event annotated with causal hints. The annotations are
// recomputed on every read and never persisted.
type TimelineEvent struct {
	Event
	IsLikelyCause bool   `json:"isLikelyCause"`
	CorrelatedTo  string `json:"correlatedTo,omitempty"`
}
