package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"wharf/internal/logging"
	"wharf/internal/queue"
	"wharf/internal/transfer"
)

// Pause suspends a task. An active worker stops promptly and keeps its
// partial data; queued and waiting tasks park immediately. Extracting tasks
// reject the pause.
func (e *Engine) Pause(ctx context.Context, id int64) error {
	if done := e.cancelActive(id, errPauseRequested); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	if err := e.store.MarkPaused(ctx, id); err != nil {
		return err
	}
	e.publish(ctx, id)
	return nil
}

// Cancel stops a task for good. Active workers are interrupted and their
// partial data removed; inactive tasks transition directly.
func (e *Engine) Cancel(ctx context.Context, id int64) error {
	if done := e.cancelActive(id, errCancelRequested); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	task, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return queue.ErrTaskNotFound
	}
	if err := e.store.MarkCancelled(ctx, id); err != nil {
		return err
	}
	if err := transfer.CleanupParts(e.cfg.Paths.IncompleteDir, task.Filename); err != nil {
		e.logger.Warn("partial data cleanup failed",
			logging.String("filename", task.Filename),
			logging.Error(err),
		)
	}
	e.publish(ctx, id)
	return nil
}

// Resume returns paused or failed tasks to the scheduler with a fresh retry
// budget. With no ids it resumes everything resumable.
func (e *Engine) Resume(ctx context.Context, ids ...int64) (int64, error) {
	n, err := e.store.Resume(ctx, ids...)
	if err != nil {
		return n, err
	}
	if n > 0 {
		e.publishStatuses(ctx, queue.StatusWaiting)
		e.Wake()
	}
	return n, nil
}

// PauseAll suspends the whole queue. Rows flip first so reads are consistent,
// then the active workers are interrupted; their own pause persistence finds
// the row already parked and tolerates it.
func (e *Engine) PauseAll(ctx context.Context) (int64, error) {
	n, err := e.store.PauseAll(ctx)
	if err != nil {
		return n, err
	}
	e.mu.Lock()
	for _, at := range e.active {
		if at.phase.Load() == phaseExtract {
			continue
		}
		at.cancel(errPauseRequested)
	}
	e.mu.Unlock()
	if n > 0 {
		e.publishStatuses(ctx, queue.StatusPaused)
	}
	return n, nil
}

// ResumeAll is Resume over every paused or failed task.
func (e *Engine) ResumeAll(ctx context.Context) (int64, error) {
	return e.Resume(ctx)
}

// Remove deletes a task outright. Active work is cancelled first; with
// deleteFiles the partial segments and any delivered payload go too.
func (e *Engine) Remove(ctx context.Context, id int64, deleteFiles bool) error {
	task, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return queue.ErrTaskNotFound
	}

	if done := e.cancelActive(id, errCancelRequested); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	removed, err := e.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return queue.ErrTaskNotFound
	}

	if deleteFiles {
		e.removeTaskFiles(task)
	}
	if e.sync != nil {
		e.sync.TaskRemoved(id)
	}
	return nil
}

func (e *Engine) removeTaskFiles(task *queue.Task) {
	if err := transfer.CleanupParts(e.cfg.Paths.IncompleteDir, task.Filename); err != nil {
		e.logger.Warn("partial data cleanup failed",
			logging.String("filename", task.Filename),
			logging.Error(err),
		)
	}
	dest := strings.TrimSpace(task.DestinationPath)
	if dest == "" {
		return
	}
	// Never touch anything at or outside the managed download root.
	root := filepath.Clean(e.cfg.Paths.DownloadDir)
	if filepath.Clean(dest) == root || !strings.HasPrefix(filepath.Clean(dest), root+string(filepath.Separator)) {
		return
	}
	if err := os.RemoveAll(dest); err != nil {
		e.logger.Warn("destination cleanup failed",
			logging.String("path", dest),
			logging.Error(err),
		)
	}
}
