package issues

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/utils"
)

// CalculatePriority produces the 0-100 ranking score for an issue and the
// comma-joined human-readable reason string ("" when no reason applies).
func CalculatePriority(severity models.Severity, errorRate float64, regressionCount int, firstSeen int64, status models.IssueStatus, now time.Time) (int, string) {
	var score float64
	switch severity {
	case models.SeverityCritical:
		score = 80
	case models.SeverityHigh:
		score = 60
	case models.SeverityMedium:
		score = 40
	default:
		score = 20
	}

	score += math.Min(15, errorRate*1.5)
	score += math.Min(10, float64(regressionCount)*5)

	hoursSinceFirstSeen := utils.HoursSince(firstSeen, now)
	if hoursSinceFirstSeen < 1 {
		score += 10
	} else {
		score += math.Max(0, 10-hoursSinceFirstSeen/6)
	}

	if status == models.IssueStatusResolved {
		score *= 0.3
	}

	score = math.Min(100, math.Max(0, score))

	var reasons []string
	if errorRate > 10 {
		reasons = append(reasons, fmt.Sprintf("High error rate (%.1f/min)", errorRate))
	}
	if regressionCount > 0 {
		plural := ""
		if regressionCount > 1 {
			plural = "s"
		}
		reasons = append(reasons, fmt.Sprintf("Regressed %d time%s", regressionCount, plural))
	}
	if severity == models.SeverityCritical {
		reasons = append(reasons, "Critical severity")
	}
	if hoursSinceFirstSeen < 1 {
		reasons = append(reasons, "Recently introduced")
	}

	return int(math.Round(score)), strings.Join(reasons, ", ")
}
