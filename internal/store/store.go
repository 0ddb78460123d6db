// Package store persists parsed log records to the relational store.
package store

import (
	"context"
	"errors"
	"time"

	"logflow/pkg/logmodel"
)

// ErrRecordNotFound is returned when a requested record does not exist.
var ErrRecordNotFound = errors.New("log record not found")

// SearchFilter narrows a Search call. Zero values are "don't filter on this".
type SearchFilter struct {
	Level     *logmodel.Level
	Source    string
	StartTime *time.Time
	EndTime   *time.Time
}

// RecordStore archives parsed log records and serves lookups the analyzer
// and operators use after ingestion.
type RecordStore interface {
	// Save inserts a record and its custom fields. Save is not idempotent on
	// ID: a duplicate ID is an error, not a silent overwrite.
	Save(ctx context.Context, rec *logmodel.LogRecord) error
	// Upsert inserts a record or, if its ID already exists, replaces its
	// message/level/fields in place. Used for records that are revised over
	// time after first being archived (alerts: count/status/updateTime
	// change across their PENDING→ACTIVE→RESOLVED|IGNORED lifecycle).
	Upsert(ctx context.Context, rec *logmodel.LogRecord) error
	// GetByID retrieves a single record, including its fields.
	// Returns ErrRecordNotFound if absent.
	GetByID(ctx context.Context, id string) (*logmodel.LogRecord, error)
	// Search returns records matching filter, most recent first, capped at limit.
	Search(ctx context.Context, filter SearchFilter, limit int) ([]*logmodel.LogRecord, error)
	// CountByLevel returns the number of archived records at each level,
	// optionally bounded to [start, end].
	CountByLevel(ctx context.Context, start, end *time.Time) (map[logmodel.Level]int64, error)
}
