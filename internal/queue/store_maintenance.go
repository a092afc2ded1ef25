package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
)

// StatusCounts returns a count of tasks grouped by status.
func (s *Store) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Aggregate summarizes the task table for status surfaces and sync snapshots.
// Active covers starting/downloading/extracting; queued covers queued/waiting.
func (s *Store) Aggregate(ctx context.Context) (Stats, error) {
	counts, err := s.StatusCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	agg := Stats{}
	for status, count := range counts {
		switch status {
		case StatusQueued, StatusWaiting:
			agg.Queued += count
		case StatusPaused:
			agg.Paused += count
		case StatusCompleted:
			agg.Completed += count
		case StatusFailed:
			agg.Failed += count
		default:
			if IsActiveStatus(status) {
				agg.Active += count
			}
		}
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(speed_bps), 0) FROM tasks WHERE status = ?`,
		StatusDownloading,
	)
	if err := row.Scan(&agg.TotalSpeed); err != nil {
		return Stats{}, fmt.Errorf("sum speed: %w", err)
	}
	return agg, nil
}

// DatabaseHealth captures diagnostic information about the task database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

// CheckHealth returns diagnostic information about the task database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("task database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat task database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("task database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("task database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping task database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'tasks'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
			return health, nil
		}
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	health.TableExists = true

	colsRows, err := s.db.QueryContext(connCtx, "PRAGMA table_info(tasks)")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("table info: %w", err)
	}
	defer colsRows.Close()

	present := make(map[string]struct{})
	for colsRows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := colsRows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		present[name] = struct{}{}
	}
	if err := colsRows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate table info: %w", err)
	}

	expected := []string{
		"id",
		"stable_reference",
		"direct_url",
		"filename",
		"destination_path",
		"category",
		"status",
		"progress",
		"size_bytes",
		"downloaded_bytes",
		"speed_bps",
		"retry_count",
		"segments",
		"priority",
		"error_message",
		"wait_until",
		"created_at",
		"updated_at",
		"started_at",
		"completed_at",
	}
	for _, column := range expected {
		if _, ok := present[column]; !ok {
			health.MissingColumns = append(health.MissingColumns, column)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, `PRAGMA integrity_check`).Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = integrity == "ok"

	var total int
	if err := s.db.QueryRowContext(connCtx, `SELECT COUNT(1) FROM tasks`).Scan(&total); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count tasks: %w", err)
	}
	health.TotalTasks = total
	return health, nil
}
