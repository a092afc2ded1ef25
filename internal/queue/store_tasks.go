package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewTaskParams carries the caller-supplied fields for task creation.
type NewTaskParams struct {
	StableReference string
	Filename        string
	Category        string
	SizeBytes       int64
	Segments        int
	Priority        int
}

// NewTask inserts a queued task for a remote file awaiting transfer.
func (s *Store) NewTask(ctx context.Context, params NewTaskParams) (*Task, error) {
	reference := strings.TrimSpace(params.StableReference)
	if reference == "" {
		return nil, errors.New("stable reference is required")
	}
	filename := strings.TrimSpace(params.Filename)
	if filename == "" {
		filename = reference
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            stable_reference, filename, category, status, size_bytes,
            segments, priority, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reference,
		filename,
		nullableString(params.Category),
		StatusQueued,
		params.SizeBytes,
		params.Segments,
		params.Priority,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a task by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// FindByStableReference returns the newest non-terminal task holding a
// reference, used to dedupe repeat acquisition requests.
func (s *Store) FindByStableReference(ctx context.Context, reference string) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE stable_reference = ? AND status NOT IN (?, ?, ?)
         ORDER BY id DESC LIMIT 1`,
		reference,
		StatusCompleted,
		StatusCancelled,
		StatusSkipped,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by stable reference: %w", err)
	}
	return task, nil
}

// Update persists changes to an existing task. The status column is written
// as-is; callers mutating status must go through Transition or the Mark
// helpers so the state machine stays authoritative.
func (s *Store) Update(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET stable_reference = ?, direct_url = ?, filename = ?, destination_path = ?,
             category = ?, status = ?, progress = ?, size_bytes = ?, downloaded_bytes = ?,
             speed_bps = ?, retry_count = ?, segments = ?, priority = ?, error_message = ?,
             wait_until = ?, updated_at = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		task.StableReference,
		nullableString(task.DirectURL),
		task.Filename,
		nullableString(task.DestinationPath),
		nullableString(task.Category),
		task.Status,
		task.Progress,
		task.SizeBytes,
		task.DownloadedBytes,
		task.SpeedBPS,
		task.RetryCount,
		task.Segments,
		task.Priority,
		nullableString(task.ErrorMessage),
		nullableTime(task.WaitUntil),
		task.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
		task.ID,
	); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// UpdateProgress persists byte counters for an active task without touching
// any other column. Downloaded bytes never move backwards here.
func (s *Store) UpdateProgress(ctx context.Context, id int64, downloadedBytes, speedBPS int64, progress float64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET downloaded_bytes = MAX(downloaded_bytes, ?),
             speed_bps = ?,
             progress = MAX(progress, ?),
             updated_at = ?
         WHERE id = ?`,
		downloadedBytes,
		speedBPS,
		progress,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// SetDirectURL records a freshly resolved transfer link. Transfer offsets are
// untouched; only the link changes.
func (s *Store) SetDirectURL(ctx context.Context, id int64, directURL string, sizeBytes int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET direct_url = ?,
             size_bytes = CASE WHEN ? > 0 THEN ? ELSE size_bytes END,
             updated_at = ?
         WHERE id = ?`,
		nullableString(directURL),
		sizeBytes,
		sizeBytes,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("set direct url: %w", err)
	}
	return nil
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListQueue returns every non-terminal task in scheduling order.
func (s *Store) ListQueue(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE status NOT IN (?, ?, ?, ?)
         ORDER BY priority DESC, created_at, id`,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
		StatusSkipped,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListHistory returns finished tasks, newest first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
         WHERE status IN (?, ?, ?, ?)
         ORDER BY COALESCE(completed_at, updated_at) DESC, id DESC`
	args := []any{StatusCompleted, StatusFailed, StatusCancelled, StatusSkipped}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed tasks.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearHistory removes every finished task.
func (s *Store) ClearHistory(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM tasks WHERE status IN (?, ?, ?, ?)`,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
		StatusSkipped,
	)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}
