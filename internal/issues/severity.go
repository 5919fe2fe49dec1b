package issues

import (
	"strings"

	"github.com/faultlinehq/faultline/internal/models"
)

var (
	highKeywords   = []string{"crash", "fatal", "critical", "timeout"}
	mediumKeywords = []string{"error", "failed", "exception"}
)

// DetermineSeverity classifies an issue from its title and aggregate signals.
// The steps are a sequential pipeline and their order is load-bearing:
// keyword/count baseline, error-rate override, regression escalation, route
// escalation, then the final high+error-rate override.
func DetermineSeverity(title string, count int, errorRate float64, regressionCount, uniqueRoutes int) models.Severity {
	lower := strings.ToLower(title)

	severity := models.SeverityLow
	switch {
	case containsAny(lower, highKeywords) || count > 10:
		severity = models.SeverityHigh
	case containsAny(lower, mediumKeywords) || count > 3:
		severity = models.SeverityMedium
	}

	if errorRate > 10 {
		return models.SeverityCritical
	}

	if regressionCount > 0 {
		severity = escalate(severity)
		if severity == models.SeverityCritical {
			return severity
		}
	}

	if uniqueRoutes > 1 {
		severity = escalate(severity)
		if severity == models.SeverityCritical {
			return severity
		}
	}

	if errorRate > 5 && severity == models.SeverityHigh {
		return models.SeverityCritical
	}

	return severity
}

func escalate(severity models.Severity) models.Severity {
	switch severity {
	case models.SeverityLow:
		return models.SeverityMedium
	case models.SeverityMedium:
		return models.SeverityHigh
	default:
		return models.SeverityCritical
	}
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
