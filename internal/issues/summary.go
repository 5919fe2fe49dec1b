package issues

import "github.com/faultlinehq/faultline/internal/models"

// Summary aggregates the issue population of one service for overview views.
type Summary struct {
	Total            int                     `json:"total"`
	Open             int                     `json:"open"`
	Resolved         int                     `json:"resolved"`
	Regressions      int                     `json:"regressions"`
	BySeverity       map[models.Severity]int `json:"bySeverity"`
	TopPriorityScore int                     `json:"topPriorityScore"`
}

// Summarize folds a service's issues into a Summary.
func Summarize(issues []*models.Issue) Summary {
	summary := Summary{BySeverity: make(map[models.Severity]int)}
	for _, issue := range issues {
		summary.Total++
		switch issue.Status {
		case models.IssueStatusResolved:
			summary.Resolved++
		default:
			summary.Open++
		}
		summary.Regressions += issue.RegressionCount
		summary.BySeverity[issue.Severity]++
		if issue.Status == models.IssueStatusOpen && issue.PriorityScore > summary.TopPriorityScore {
			summary.TopPriorityScore = issue.PriorityScore
		}
	}
	return summary
}
