// Package fingerprint derives stable deduplication keys from ERROR events.
//
// The extraction helpers are pure functions over event metadata so they can be
// exercised with arbitrary metadata shapes, independent of any storage.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/faultlinehq/faultline/internal/models"
)

var (
	framePattern = regexp.MustCompile(`at\s+([^\s(]+(?:\.[^\s(]+)?)`)
	routePattern = regexp.MustCompile(`(?i)(?:GET|POST|PUT|DELETE|PATCH)\s+(\S+)`)
)

// Generate returns the hex SHA-256 fingerprint of an ERROR event. Two events
// with identical message, top stack frame, and route always share a
// fingerprint; any byte difference in those inputs yields a different one.
func Generate(event *models.Event) (string, error) {
	if event.EventType != models.EventTypeError {
		return "", fmt.Errorf("fingerprint %s event: %w", event.EventType, models.ErrInvalidEventType)
	}

	data := event.Message + "|" + TopStackFrame(event.Metadata) + "|" + Route(event.Metadata, event.Message)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:]), nil
}

// TopStackFrame extracts the function qualifier from the second non-blank
// line of metadata.errorStack, the frame above the error-construction site.
// Returns "" when there is no stack, fewer than two lines, or no `at` marker.
func TopStackFrame(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	stack, ok := metadata["errorStack"].(string)
	if !ok {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(stack, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return ""
	}

	match := framePattern.FindStringSubmatch(lines[1])
	if match == nil {
		return ""
	}
	return match[1]
}

// Route returns metadata.route when present, otherwise the path token of an
// HTTP "METHOD /path" pair embedded in the message. Returns "" when neither
// is available.
func Route(metadata map[string]any, message string) string {
	if metadata != nil {
		if route, ok := metadata["route"].(string); ok && route != "" {
			return route
		}
	}

	if message != "" {
		if match := routePattern.FindStringSubmatch(message); match != nil {
			return match[1]
		}
	}
	return ""
}

// UserID returns the user identifier from metadata.userId or
// metadata.user_id, or "" when absent.
func UserID(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if id, ok := metadata["userId"].(string); ok && id != "" {
		return id
	}
	if id, ok := metadata["user_id"].(string); ok && id != "" {
		return id
	}
	return ""
}
