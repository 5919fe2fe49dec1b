package models

import "errors"

// ErrInvalidEventType signals that fingerprinting or issue creation was
// attempted on a non-ERROR event.
var ErrInvalidEventType = errors.New("operation requires an ERROR event")

// ErrIssueNotFound signals a mutation or lookup referencing an unknown issue.
var ErrIssueNotFound = errors.New("issue not found")

// ErrInvalidEvent signals an event that fails ingestion validation, such as a
// missing service name.
var ErrInvalidEvent = errors.New("invalid event")
