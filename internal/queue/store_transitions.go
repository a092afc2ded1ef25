package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Transition moves a task to a new status, enforcing the state machine. The
// update is conditional on the current status still being a legal source, so
// concurrent writers cannot race a task through a forbidden edge.
func (s *Store) Transition(ctx context.Context, id int64, to Status) error {
	return s.transition(ctx, id, to, "", nil)
}

func (s *Store) transition(ctx context.Context, id int64, to Status, extraSet string, extraArgs []any) error {
	sources := transitionSources(to)
	if len(sources) == 0 {
		return illegalTransition("", to)
	}

	set := `status = ?, updated_at = ?`
	if extraSet != "" {
		set += ", " + extraSet
	}
	args := make([]any, 0, len(extraArgs)+len(sources)+3)
	args = append(args, to, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, extraArgs...)
	args = append(args, id)
	args = append(args, statusArgs(sources)...)

	query := `UPDATE tasks SET ` + set + ` WHERE id = ? AND status IN (` + makePlaceholders(len(sources)) + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: id %d", ErrTaskNotFound, id)
	}
	return illegalTransition(current.Status, to)
}

// Claim atomically hands the next runnable task to a worker by moving it to
// starting. Runnable means queued, or waiting with an elapsed wait_until.
// Returns nil when nothing is due.
func (s *Store) Claim(ctx context.Context) (*Task, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status FROM tasks
         WHERE status = ? OR (status = ? AND (wait_until IS NULL OR wait_until <= ?))
         ORDER BY priority DESC, created_at, id
         LIMIT 1`,
		StatusQueued,
		StatusWaiting,
		nowStr,
	)
	var (
		id        int64
		statusStr string
	)
	if err := row.Scan(&id, &statusStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select claimable task: %w", err)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, wait_until = NULL, speed_bps = 0,
             started_at = COALESCE(started_at, ?), updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusStarting,
		nowStr,
		nowStr,
		id,
		statusStr,
	)
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race to another claimer; let the next poll retry.
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

// MarkDownloading records that byte transfer has begun.
func (s *Store) MarkDownloading(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusDownloading, `error_message = NULL`, nil)
}

// MarkExtracting records that the payload is being unpacked.
func (s *Store) MarkExtracting(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusExtracting, `speed_bps = 0`, nil)
}

// MarkCompleted finalizes a successful task.
func (s *Store) MarkCompleted(ctx context.Context, id int64, destinationPath string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.transition(ctx, id, StatusCompleted,
		`destination_path = ?, progress = 100, speed_bps = 0, error_message = NULL, direct_url = NULL, wait_until = NULL, completed_at = ?`,
		[]any{nullableString(destinationPath), now},
	)
}

// MarkFailed records a terminal-for-now failure. The task keeps its stable
// reference and byte counters so a manual resume can pick up where it left off.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	return s.transition(ctx, id, StatusFailed,
		`error_message = ?, speed_bps = 0, wait_until = NULL`,
		[]any{nullableString(message)},
	)
}

// MarkSkipped retires a queued task that failed validation before any bytes moved.
func (s *Store) MarkSkipped(ctx context.Context, id int64, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.transition(ctx, id, StatusSkipped,
		`error_message = ?, completed_at = ?`,
		[]any{nullableString(reason), now},
	)
}

// MarkCancelled stops a task permanently.
func (s *Store) MarkCancelled(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.transition(ctx, id, StatusCancelled,
		`speed_bps = 0, wait_until = NULL, completed_at = ?`,
		[]any{now},
	)
}

// MarkPaused suspends a task, retaining partial data and byte counters.
func (s *Store) MarkPaused(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusPaused, `speed_bps = 0, wait_until = NULL`, nil)
}

// ScheduleRetry parks a task in waiting with a backoff deadline, consuming one
// retry from the automatic budget.
func (s *Store) ScheduleRetry(ctx context.Context, id int64, waitUntil time.Time, message string) error {
	return s.transition(ctx, id, StatusWaiting,
		`retry_count = retry_count + 1, wait_until = ?, error_message = ?, speed_bps = 0`,
		[]any{waitUntil.UTC().Format(time.RFC3339Nano), nullableString(message)},
	)
}

// Resume moves paused or failed tasks back into the scheduler immediately.
// The retry budget resets to zero: an operator resuming a task expects a
// clean slate regardless of prior automatic attempts.
func (s *Store) Resume(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE tasks
             SET status = ?, retry_count = 0, wait_until = NULL, error_message = NULL, updated_at = ?
             WHERE status IN (?, ?)`,
			StatusWaiting,
			now,
			StatusPaused,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("resume tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+4)
	args = append(args, StatusWaiting, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusPaused, StatusFailed)
	query := `UPDATE tasks
        SET status = ?, retry_count = 0, wait_until = NULL, error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status IN (?, ?)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("resume selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// PauseAll suspends every task that is not already finished or paused.
func (s *Store) PauseAll(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, speed_bps = 0, wait_until = NULL, updated_at = ?
         WHERE status IN (?, ?, ?, ?)`,
		StatusPaused,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusQueued,
		StatusStarting,
		StatusDownloading,
		StatusWaiting,
	)
	if err != nil {
		return 0, fmt.Errorf("pause all: %w", err)
	}
	return res.RowsAffected()
}

// RequeueInterrupted returns tasks left active by a shutdown to the
// scheduler. They resume through the normal waiting -> starting path, which
// re-resolves the direct link before any bytes move. A non-empty reason is
// recorded as the error message so the status surface explains the parked
// state; pass "" to clear it.
func (s *Store) RequeueInterrupted(ctx context.Context, reason string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, wait_until = NULL, speed_bps = 0, error_message = ?, updated_at = ?
         WHERE status IN (?, ?, ?)`,
		StatusWaiting,
		nullableString(reason),
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusStarting,
		StatusDownloading,
		StatusExtracting,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted tasks: %w", err)
	}
	return res.RowsAffected()
}
