package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/faultlinehq/faultline/internal/models"
)

type sqliteEventLedger struct {
	db *sql.DB
}

const eventColumns = `id, timestamp, event_type, service_name, message, metadata_json`

func (l *sqliteEventLedger) Append(ctx context.Context, event *models.Event) error {
	metadataJSON, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp, string(event.EventType), event.ServiceName, event.Message, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (l *sqliteEventLedger) AppendBatch(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		metadataJSON, err := marshalMetadata(event.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			event.ID, event.Timestamp, string(event.EventType), event.ServiceName, event.Message, metadataJSON,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", event.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (l *sqliteEventLedger) FindByID(ctx context.Context, id string) (*models.Event, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return event, err
}

func (l *sqliteEventLedger) Find(ctx context.Context, filter EventFilter) ([]*models.Event, error) {
	var conditions []string
	var args []any

	if filter.ServiceName != "" {
		conditions = append(conditions, "service_name = ?")
		args = append(args, filter.ServiceName)
	}
	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (l *sqliteEventLedger) Delete(ctx context.Context, id string) error {
	result, err := l.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *sqliteEventLedger) ListServices(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT DISTINCT service_name FROM events ORDER BY service_name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan service name: %w", err)
		}
		services = append(services, name)
	}
	return services, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var event models.Event
	var eventType string
	var metadataJSON sql.NullString

	if err := row.Scan(&event.ID, &event.Timestamp, &eventType, &event.ServiceName, &event.Message, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	event.EventType = models.EventType(eventType)

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &event, nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if metadata == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
