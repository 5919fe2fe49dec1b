package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/faultlinehq/faultline/internal/models"
)

type sqliteIssueRepo struct {
	db *sql.DB
}

const issueColumns = `id, service_name, fingerprint, title, first_seen, last_seen, count,
	severity, related_event_ids_json, suspected_cause_event_id, status, resolved_at,
	resolved_by_event_id, regression_count, unique_routes, unique_users, error_rate,
	priority_score, priority_reason`

func (r *sqliteIssueRepo) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return issue, err
}

func (r *sqliteIssueRepo) FindByFingerprint(ctx context.Context, serviceName, fingerprint string) (*models.Issue, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE service_name = ? AND fingerprint = ?`,
		serviceName, fingerprint)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return issue, err
}

// Upsert inserts or replaces the aggregate for the issue's (service,
// fingerprint) key in a single statement, keeping the key unique under
// concurrent writers.
func (r *sqliteIssueRepo) Upsert(ctx context.Context, issue *models.Issue) error {
	relatedJSON, err := json.Marshal(issue.RelatedEventIDs)
	if err != nil {
		return fmt.Errorf("marshal related event ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_name, fingerprint) DO UPDATE SET
			title = excluded.title,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen,
			count = excluded.count,
			severity = excluded.severity,
			related_event_ids_json = excluded.related_event_ids_json,
			suspected_cause_event_id = excluded.suspected_cause_event_id,
			status = excluded.status,
			resolved_at = excluded.resolved_at,
			resolved_by_event_id = excluded.resolved_by_event_id,
			regression_count = excluded.regression_count,
			unique_routes = excluded.unique_routes,
			unique_users = excluded.unique_users,
			error_rate = excluded.error_rate,
			priority_score = excluded.priority_score,
			priority_reason = excluded.priority_reason
	`,
		issue.ID, issue.ServiceName, issue.Fingerprint, issue.Title,
		issue.FirstSeen, issue.LastSeen, issue.Count, string(issue.Severity),
		string(relatedJSON), nullString(issue.SuspectedCauseEventID), string(issue.Status),
		nullInt64(issue.ResolvedAt), nullString(issue.ResolvedByEventID),
		issue.RegressionCount, issue.UniqueRoutes, nullInt(issue.UniqueUsers),
		issue.ErrorRate, issue.PriorityScore, nullString(issue.PriorityReason),
	)
	if err != nil {
		return fmt.Errorf("upsert issue: %w", err)
	}
	return nil
}

func (r *sqliteIssueRepo) ListByService(ctx context.Context, serviceName string) ([]*models.Issue, error) {
	return r.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE service_name = ? ORDER BY last_seen DESC`,
		serviceName)
}

func (r *sqliteIssueRepo) ListOpen(ctx context.Context, serviceName string) ([]*models.Issue, error) {
	return r.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE service_name = ? AND status = ? ORDER BY last_seen DESC`,
		serviceName, string(models.IssueStatusOpen))
}

func (r *sqliteIssueRepo) TopByPriority(ctx context.Context, serviceName string, limit int) ([]*models.Issue, error) {
	if limit <= 0 {
		limit = 3
	}
	return r.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE service_name = ? AND status = ?
		 ORDER BY priority_score DESC, last_seen DESC LIMIT ?`,
		serviceName, string(models.IssueStatusOpen), limit)
}

func (r *sqliteIssueRepo) queryIssues(ctx context.Context, query string, args ...any) ([]*models.Issue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	var issue models.Issue
	var severity, status string
	var relatedJSON string
	var suspectedCause, resolvedBy, priorityReason sql.NullString
	var resolvedAt sql.NullInt64
	var uniqueUsers sql.NullInt64

	err := row.Scan(
		&issue.ID, &issue.ServiceName, &issue.Fingerprint, &issue.Title,
		&issue.FirstSeen, &issue.LastSeen, &issue.Count, &severity,
		&relatedJSON, &suspectedCause, &status, &resolvedAt,
		&resolvedBy, &issue.RegressionCount, &issue.UniqueRoutes, &uniqueUsers,
		&issue.ErrorRate, &issue.PriorityScore, &priorityReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan issue: %w", err)
	}

	issue.Severity = models.Severity(severity)
	issue.Status = models.IssueStatus(status)
	if err := json.Unmarshal([]byte(relatedJSON), &issue.RelatedEventIDs); err != nil {
		return nil, fmt.Errorf("unmarshal related event ids: %w", err)
	}
	if suspectedCause.Valid {
		issue.SuspectedCauseEventID = suspectedCause.String
	}
	if resolvedAt.Valid {
		value := resolvedAt.Int64
		issue.ResolvedAt = &value
	}
	if resolvedBy.Valid {
		issue.ResolvedByEventID = resolvedBy.String
	}
	if uniqueUsers.Valid {
		value := int(uniqueUsers.Int64)
		issue.UniqueUsers = &value
	}
	if priorityReason.Valid {
		issue.PriorityReason = priorityReason.String
	}
	return &issue, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}
