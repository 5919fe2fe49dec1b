package issues

import (
	"context"
	"errors"
	"log/slog"

	"github.com/faultlinehq/faultline/internal/fingerprint"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/storage"
	"github.com/faultlinehq/faultline/internal/utils"
)

const recentWindowMillis = 60 * 60 * 1000

type impactMetrics struct {
	uniqueRoutes int
	uniqueUsers  *int
	errorRate    float64
}

// computeImpact derives route/user spread and the recent error rate from the
// issue's related ERROR events. Non-ERROR events and failed lookups are
// discarded; storage failures are logged and skipped rather than escalated.
func (e *Engine) computeImpact(ctx context.Context, issue *models.Issue) impactMetrics {
	events := make([]*models.Event, 0, len(issue.RelatedEventIDs))
	for _, id := range issue.RelatedEventIDs {
		event, err := e.ledger.FindByID(ctx, id)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				e.logger.Warn("related event lookup failed",
					slog.String("issue_id", issue.ID),
					slog.String("event_id", id),
					slog.Any("error", err))
			}
			continue
		}
		if event.EventType != models.EventTypeError {
			continue
		}
		events = append(events, event)
	}

	routes := make(map[string]struct{})
	users := make(map[string]struct{})
	for _, event := range events {
		if route := fingerprint.Route(event.Metadata, event.Message); route != "" {
			routes[route] = struct{}{}
		}
		if user := fingerprint.UserID(event.Metadata); user != "" {
			users[user] = struct{}{}
		}
	}

	now := utils.TimeToMillis(e.now())
	cutoff := now - recentWindowMillis

	earliestRecent := now
	recentCount := 0
	for _, event := range events {
		if event.Timestamp < cutoff {
			continue
		}
		recentCount++
		if event.Timestamp < earliestRecent {
			earliestRecent = event.Timestamp
		}
	}

	var errorRate float64
	if recentCount > 0 {
		minutes := utils.MinutesBetween(earliestRecent, now)
		if minutes < 1 {
			minutes = 1
		}
		errorRate = float64(recentCount) / minutes
	}

	metrics := impactMetrics{
		uniqueRoutes: len(routes),
		errorRate:    errorRate,
	}
	if len(users) > 0 {
		count := len(users)
		metrics.uniqueUsers = &count
	}
	return metrics
}
