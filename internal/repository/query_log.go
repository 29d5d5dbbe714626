// Package repository persists processed queries for auditing and tuning of
// the routing rules.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
)

const maxRecent = 1000

// QueryLogRepository stores one row per processed sub-query.
type QueryLogRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewQueryLogRepository creates a new query log repository
func NewQueryLogRepository(db *pgxpool.Pool, logger *logrus.Logger) *QueryLogRepository {
	return &QueryLogRepository{
		db:  db,
		log: logger,
	}
}

// Record inserts entry, filling in a missing id or timestamp.
func (r *QueryLogRepository) Record(ctx context.Context, entry *domain.QueryLogEntry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		id = uuid.New()
		entry.ID = id.String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO query_log (
			id, correlation_id, db_type, search_term, decision,
			success, error, duration_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err = r.db.Exec(ctx, query,
		id,
		entry.CorrelationID,
		string(entry.DBType),
		entry.SearchTerm,
		entry.Decision,
		entry.Success,
		entry.Error,
		entry.DurationMs,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording query: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"query_id": entry.ID,
		"decision": entry.Decision,
		"db_type":  entry.DBType,
		"success":  entry.Success,
	}).Debug("Query recorded")

	return nil
}

// Recent returns the latest entries, newest first.
func (r *QueryLogRepository) Recent(ctx context.Context, limit int) ([]*domain.QueryLogEntry, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}

	query := `
		SELECT id, correlation_id, db_type, search_term, decision,
			   success, error, duration_ms, created_at
		FROM query_log
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent queries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.QueryLogEntry
	for rows.Next() {
		var (
			entry  domain.QueryLogEntry
			id     uuid.UUID
			dbType string
		)
		err := rows.Scan(
			&id,
			&entry.CorrelationID,
			&dbType,
			&entry.SearchTerm,
			&entry.Decision,
			&entry.Success,
			&entry.Error,
			&entry.DurationMs,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning query log row: %w", err)
		}
		entry.ID = id.String()
		entry.DBType = domain.DBType(dbType)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query log rows: %w", err)
	}

	return entries, nil
}

// CountByDecision aggregates entries recorded since the given time.
func (r *QueryLogRepository) CountByDecision(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT decision, COUNT(*)
		FROM query_log
		WHERE created_at >= $1
		GROUP BY decision`, since)
	if err != nil {
		return nil, fmt.Errorf("counting decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			decision string
			n        int64
		)
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, fmt.Errorf("scanning decision count: %w", err)
		}
		counts[decision] = n
	}
	return counts, rows.Err()
}
