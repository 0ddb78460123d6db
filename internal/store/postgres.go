package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"logflow/pkg/database"
	"logflow/pkg/logmodel"
	"logflow/pkg/telemetry"
)

// PostgresRecordStore is the Postgres-backed RecordStore, splitting each
// record across log_entries and log_fields the way the original archive
// split fixed columns from free-form custom fields.
type PostgresRecordStore struct {
	db database.DB
}

// NewPostgresRecordStore creates a new Postgres-backed record store.
func NewPostgresRecordStore(db database.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) Save(ctx context.Context, rec *logmodel.LogRecord) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRecordStore.Save")
	defer span.End()

	ts, err := logmodel.ParseTimestamp(rec.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	err = database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO log_entries (id, timestamp, level, source, message)
			VALUES ($1, $2, $3, $4, $5)
		`, rec.ID, ts, rec.Level.String(), rec.Source, rec.Message)
		if err != nil {
			return fmt.Errorf("failed to insert log entry: %w", err)
		}

		for name, value := range rec.Fields {
			_, err := tx.Exec(ctx, `
				INSERT INTO log_fields (log_id, field_name, field_value)
				VALUES ($1, $2, $3)
			`, rec.ID, name, value)
			if err != nil {
				return fmt.Errorf("failed to insert log field %s: %w", name, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *PostgresRecordStore) Upsert(ctx context.Context, rec *logmodel.LogRecord) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRecordStore.Upsert")
	defer span.End()

	ts, err := logmodel.ParseTimestamp(rec.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO log_entries (id, timestamp, level, source, message)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET timestamp = EXCLUDED.timestamp, level = EXCLUDED.level,
			    source = EXCLUDED.source, message = EXCLUDED.message
		`, rec.ID, ts, rec.Level.String(), rec.Source, rec.Message)
		if err != nil {
			return fmt.Errorf("failed to upsert log entry: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM log_fields WHERE log_id = $1`, rec.ID); err != nil {
			return fmt.Errorf("failed to clear log fields: %w", err)
		}

		for name, value := range rec.Fields {
			_, err := tx.Exec(ctx, `
				INSERT INTO log_fields (log_id, field_name, field_value)
				VALUES ($1, $2, $3)
			`, rec.ID, name, value)
			if err != nil {
				return fmt.Errorf("failed to insert log field %s: %w", name, err)
			}
		}

		return nil
	})
}

func (s *PostgresRecordStore) GetByID(ctx context.Context, id string) (*logmodel.LogRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRecordStore.GetByID")
	defer span.End()

	rec := &logmodel.LogRecord{ID: id, Fields: make(map[string]string)}
	var ts time.Time
	var level string

	err := s.db.QueryRow(ctx, `
		SELECT timestamp, level, source, message
		FROM log_entries
		WHERE id = $1
	`, id).Scan(&ts, &level, &rec.Source, &rec.Message)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get log entry: %w", err)
	}

	rec.Timestamp = logmodel.FormatTimestamp(ts)
	rec.Level = logmodel.ParseLevel(level)

	rows, err := s.db.Query(ctx, `
		SELECT field_name, field_value FROM log_fields WHERE log_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get log fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan log field: %w", err)
		}
		rec.Fields[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rec, nil
}

func (s *PostgresRecordStore) Search(ctx context.Context, filter SearchFilter, limit int) ([]*logmodel.LogRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRecordStore.Search")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	where, args := buildWhereClause(filter)

	query := fmt.Sprintf(`
		SELECT id, timestamp, level, source, message
		FROM log_entries
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT $%d
	`, where, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search log entries: %w", err)
	}
	defer rows.Close()

	var results []*logmodel.LogRecord
	for rows.Next() {
		rec := &logmodel.LogRecord{Fields: make(map[string]string)}
		var ts time.Time
		var level string

		if err := rows.Scan(&rec.ID, &ts, &level, &rec.Source, &rec.Message); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		rec.Timestamp = logmodel.FormatTimestamp(ts)
		rec.Level = logmodel.ParseLevel(level)
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return results, nil
}

func buildWhereClause(filter SearchFilter) (string, []any) {
	conditions := []string{"1=1"}
	var args []any
	argNum := 1

	if filter.Level != nil {
		conditions = append(conditions, fmt.Sprintf("level = $%d", argNum))
		args = append(args, filter.Level.String())
		argNum++
	}

	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argNum))
		args = append(args, filter.Source)
		argNum++
	}

	if filter.StartTime != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argNum))
		args = append(args, *filter.StartTime)
		argNum++
	}

	if filter.EndTime != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argNum))
		args = append(args, *filter.EndTime)
		argNum++
	}

	return strings.Join(conditions, " AND "), args
}

func (s *PostgresRecordStore) CountByLevel(ctx context.Context, start, end *time.Time) (map[logmodel.Level]int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRecordStore.CountByLevel")
	defer span.End()

	where := "1=1"
	var args []any
	argNum := 1

	if start != nil {
		where += fmt.Sprintf(" AND timestamp >= $%d", argNum)
		args = append(args, *start)
		argNum++
	}
	if end != nil {
		where += fmt.Sprintf(" AND timestamp <= $%d", argNum)
		args = append(args, *end)
		argNum++
	}

	query := fmt.Sprintf(`
		SELECT level, COUNT(*) FROM log_entries WHERE %s GROUP BY level
	`, where)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count by level: %w", err)
	}
	defer rows.Close()

	counts := make(map[logmodel.Level]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		counts[logmodel.ParseLevel(level)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return counts, nil
}
