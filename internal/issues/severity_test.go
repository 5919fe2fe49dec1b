package issues

import (
	"testing"

	"github.com/faultlinehq/faultline/internal/models"
)

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		name            string
		title           string
		count           int
		errorRate       float64
		regressionCount int
		uniqueRoutes    int
		want            models.Severity
	}{
		{name: "plain message", title: "something odd", count: 1, want: models.SeverityLow},
		{name: "medium keyword", title: "request failed", count: 1, want: models.SeverityMedium},
		{name: "medium count", title: "slow response", count: 4, want: models.SeverityMedium},
		{name: "high keyword", title: "worker crash on startup", count: 1, want: models.SeverityHigh},
		{name: "high count", title: "slow response", count: 11, want: models.SeverityHigh},
		{
			// Keyword baseline alone; neither the rate override nor the
			// route escalation fires.
			name: "critical keyword stays high",
			title: "critical path degraded", count: 1, errorRate: 0, regressionCount: 0, uniqueRoutes: 1,
			want: models.SeverityHigh,
		},
		{
			name:  "error rate forces critical",
			title: "something odd", count: 1, errorRate: 10.5,
			want: models.SeverityCritical,
		},
		{
			name:  "regression escalates low to medium",
			title: "something odd", count: 1, regressionCount: 1,
			want: models.SeverityMedium,
		},
		{
			name:  "regression escalates high to critical",
			title: "fatal exit", count: 1, regressionCount: 2,
			want: models.SeverityCritical,
		},
		{
			name:  "routes escalate medium to high",
			title: "request failed", count: 1, uniqueRoutes: 2,
			want: models.SeverityHigh,
		},
		{
			name:  "regression then routes stack",
			title: "something odd", count: 1, regressionCount: 1, uniqueRoutes: 3,
			want: models.SeverityHigh,
		},
		{
			name:  "escalated high with moderate rate forces critical",
			title: "request failed", count: 1, uniqueRoutes: 2, errorRate: 6,
			want: models.SeverityCritical,
		},
		{
			name:  "moderate rate alone does not force critical",
			title: "something odd", count: 1, errorRate: 6,
			want: models.SeverityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineSeverity(tt.title, tt.count, tt.errorRate, tt.regressionCount, tt.uniqueRoutes)
			if got != tt.want {
				t.Fatalf("DetermineSeverity() = %s, want %s", got, tt.want)
			}
		})
	}
}
