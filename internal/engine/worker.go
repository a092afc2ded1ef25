package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"wharf/internal/config"
	"wharf/internal/extract"
	"wharf/internal/fileutil"
	"wharf/internal/hoster"
	"wharf/internal/logging"
	"wharf/internal/notifications"
	"wharf/internal/queue"
	"wharf/internal/services"
	"wharf/internal/textutil"
	"wharf/internal/transfer"
)

// linkRefreshLimit bounds in-attempt re-resolves when the host invalidates a
// direct URL mid-transfer. Past it the attempt fails and the retry scheduler
// takes over.
const linkRefreshLimit = 2

func (e *Engine) process(ctx context.Context, task *queue.Task) {
	taskCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	at := e.track(task.ID, cancel)
	defer e.untrack(task.ID)

	taskCtx = services.WithTaskID(taskCtx, task.ID)
	logger := logging.WithContext(taskCtx, e.logger)
	logger.Info("task claimed",
		logging.String("filename", task.Filename),
		logging.Int("priority", task.Priority),
		logging.Int("retry_count", task.RetryCount),
	)

	if err := e.runTask(taskCtx, at, task); err != nil {
		e.settle(taskCtx, task, err)
	}
}

func (e *Engine) runTask(ctx context.Context, at *activeTask, task *queue.Task) error {
	if err := e.resolve(ctx, task); err != nil {
		return err
	}
	if err := e.store.MarkDownloading(ctx, task.ID); err != nil {
		return err
	}
	e.publish(ctx, task.ID)

	path, err := e.download(services.WithStage(ctx, services.StageTransfer), task)
	if err != nil {
		return err
	}

	destination, err := e.finalize(ctx, at, task, path)
	if err != nil {
		return err
	}

	if err := e.store.MarkCompleted(ctx, task.ID, destination); err != nil {
		return err
	}
	e.publish(ctx, task.ID)

	logging.WithContext(ctx, e.logger).Info("task completed",
		logging.String("filename", task.Filename),
		logging.String("destination", destination),
	)
	e.notifyCompleted(ctx, task)
	return nil
}

// resolve exchanges the stable reference for a fresh direct link. Every
// attempt re-resolves; a stored URL is only a hint that may already be dead.
func (e *Engine) resolve(ctx context.Context, task *queue.Task) error {
	link, err := e.resolver.Resolve(services.WithStage(ctx, services.StageResolve), task.StableReference)
	if err != nil {
		return err
	}
	return e.adoptLink(ctx, task, link)
}

// adoptLink persists a resolved link. The placeholder filename from enqueue
// time is upgraded to the host's real one exactly once, before any part
// files exist; later renames would orphan resumable data.
func (e *Engine) adoptLink(ctx context.Context, task *queue.Task, link *hoster.Link) error {
	if name := textutil.SanitizeFileName(link.Filename); name != "" && task.Filename == task.StableReference {
		task.Filename = name
		if err := e.store.Update(ctx, task); err != nil {
			return err
		}
	}
	if err := e.store.SetDirectURL(ctx, task.ID, link.DirectURL, link.SizeBytes); err != nil {
		return err
	}
	task.DirectURL = link.DirectURL
	if link.SizeBytes > 0 {
		task.SizeBytes = link.SizeBytes
	}
	return nil
}

func (e *Engine) download(ctx context.Context, task *queue.Task) (string, error) {
	logger := logging.WithContext(ctx, e.logger)
	req := transfer.Request{
		URL:      task.DirectURL,
		Filename: task.Filename,
		Dir:      e.cfg.Paths.IncompleteDir,
		Size:     task.SizeBytes,
		Segments: e.segmentCount(task),
	}
	onProgress := e.progressSink(ctx, task)

	for refresh := 0; ; refresh++ {
		path, _, err := e.transfer.Fetch(ctx, req, onProgress)
		if err == nil {
			return path, nil
		}
		if ctx.Err() != nil || !services.NeedsLinkRefresh(err) || refresh >= linkRefreshLimit {
			return "", err
		}

		// Part files stay on disk; the retried fetch resumes from them.
		logger.Info("direct link expired mid-transfer; re-resolving",
			logging.String("filename", task.Filename),
			logging.Int("refresh", refresh+1),
		)
		link, rerr := e.resolver.Resolve(services.WithStage(ctx, services.StageResolve), task.StableReference)
		if rerr != nil {
			return "", rerr
		}
		if aerr := e.adoptLink(ctx, task, link); aerr != nil {
			return "", aerr
		}
		req.URL = task.DirectURL
		if task.SizeBytes > 0 {
			req.Size = task.SizeBytes
		}
	}
}

// progressSink persists transfer progress and fans it out to live clients.
// Logging is sampled into coarse buckets so a large payload does not flood
// the daemon log.
func (e *Engine) progressSink(ctx context.Context, task *queue.Task) transfer.ProgressFunc {
	logger := logging.WithContext(ctx, e.logger)
	sampler := logging.NewProgressSampler(0)
	return func(p transfer.Progress) {
		if ctx.Err() != nil {
			return
		}
		total := p.Total
		if total <= 0 {
			total = task.SizeBytes
		}
		var percent float64
		if total > 0 {
			percent = float64(p.Downloaded) / float64(total) * 100
			if percent > 100 {
				percent = 100
			}
		}
		if err := e.store.UpdateProgress(ctx, task.ID, p.Downloaded, p.SpeedBPS, percent); err != nil {
			if ctx.Err() == nil {
				logger.Debug("progress update failed", logging.Error(err))
			}
			return
		}
		if sampler.ShouldLog(percent, services.StageTransfer) {
			logger.Info("download progress",
				logging.String("filename", task.Filename),
				logging.Float64("percent", percent),
				logging.String("speed", humanize.IBytes(uint64(p.SpeedBPS))+"/s"),
			)
		}
		e.publish(ctx, task.ID)
	}
}

// finalize moves the assembled payload out of the incomplete directory, or
// unpacks it into a job directory when archive extraction is on.
func (e *Engine) finalize(ctx context.Context, at *activeTask, task *queue.Task, path string) (string, error) {
	if e.cfg.Engine.ExtractArchives && extract.IsArchive(task.Filename) {
		if err := e.store.MarkExtracting(ctx, task.ID); err != nil {
			return "", err
		}
		at.phase.Store(phaseExtract)
		e.publish(ctx, task.ID)

		dest := filepath.Join(e.cfg.Paths.DownloadDir, payloadStem(task.Filename))
		if _, err := e.extractor.Extract(services.WithStage(ctx, services.StageExtract), path, dest); err != nil {
			return "", err
		}
		if err := os.Remove(path); err != nil {
			logging.WithContext(ctx, e.logger).Warn("archive cleanup failed",
				logging.String("path", path),
				logging.Error(err),
			)
		}
		return dest, nil
	}

	dest := filepath.Join(e.cfg.Paths.DownloadDir, task.Filename)
	if err := fileutil.MoveFile(path, dest); err != nil {
		return "", services.Wrap(services.ErrConfiguration, services.StageTransfer, "finalize", "could not move payload into download directory", err)
	}
	return dest, nil
}

// settle parks a failed task according to why it stopped. Deliberate pause
// and cancel intents arrive as cancellation causes; anything else goes
// through retry classification.
func (e *Engine) settle(ctx context.Context, task *queue.Task, taskErr error) {
	persist := context.WithoutCancel(ctx)
	logger := logging.WithContext(persist, e.logger)

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errPauseRequested):
		e.parkPaused(persist, task, logger)
	case errors.Is(cause, errCancelRequested):
		e.parkCancelled(persist, task, logger)
	case ctx.Err() != nil:
		// Engine shutdown. Leave the row as-is; the stop sequence
		// sweeps it back to waiting with the stop reason.
		logger.Info("task interrupted by shutdown", logging.String("filename", task.Filename))
	default:
		e.scheduleOrFail(persist, task, taskErr, logger)
	}
}

func (e *Engine) parkPaused(ctx context.Context, task *queue.Task, logger *slog.Logger) {
	err := e.store.MarkPaused(ctx, task.ID)
	if errors.Is(err, queue.ErrIllegalTransition) {
		current, gerr := e.store.GetByID(ctx, task.ID)
		switch {
		case gerr != nil:
			err = gerr
		case current == nil:
			err = nil
		case current.Status == queue.StatusPaused:
			// A queue-wide pause already moved the row.
			err = nil
		case current.Status == queue.StatusExtracting:
			// Extraction cannot park as paused; waiting re-runs the
			// task and the unpack redoes its work.
			err = e.store.Transition(ctx, task.ID, queue.StatusWaiting)
		}
	}
	if err != nil {
		logger.Error("failed to persist pause", logging.Error(err))
		return
	}
	logger.Info("task paused", logging.String("filename", task.Filename))
	e.publish(ctx, task.ID)
}

func (e *Engine) parkCancelled(ctx context.Context, task *queue.Task, logger *slog.Logger) {
	if err := e.store.MarkCancelled(ctx, task.ID); err != nil && !errors.Is(err, queue.ErrTaskNotFound) {
		logger.Error("failed to persist cancel", logging.Error(err))
	}
	if err := transfer.CleanupParts(e.cfg.Paths.IncompleteDir, task.Filename); err != nil {
		logger.Warn("partial data cleanup failed",
			logging.String("filename", task.Filename),
			logging.Error(err),
		)
	}
	logger.Info("task cancelled", logging.String("filename", task.Filename))
	e.publish(ctx, task.ID)
}

func (e *Engine) scheduleOrFail(ctx context.Context, task *queue.Task, taskErr error, logger *slog.Logger) {
	message := failureMessage(taskErr)
	status := services.FailureStatus(taskErr)
	if status == queue.StatusWaiting && task.RetryCount >= e.maxRetries() {
		status = queue.StatusFailed
		message = fmt.Sprintf("%s (after %d attempts)", message, task.RetryCount+1)
	}

	switch status {
	case queue.StatusWaiting:
		delay := retryDelay(e.cfg.BackoffInitial(), e.cfg.BackoffCeiling(), task.RetryCount)
		if err := e.store.ScheduleRetry(ctx, task.ID, time.Now().Add(delay), message); err != nil {
			logger.Error("failed to schedule retry", logging.Error(err))
			return
		}
		logger.Warn("task attempt failed; retry scheduled",
			logging.String("filename", task.Filename),
			logging.Int("attempt", task.RetryCount+1),
			logging.Duration("delay", delay.Round(time.Second)),
			logging.Error(taskErr),
		)
	default:
		if err := e.store.MarkFailed(ctx, task.ID, message); err != nil {
			logger.Error("failed to persist failure", logging.Error(err))
			return
		}
		logger.Error("task failed",
			logging.String("filename", task.Filename),
			logging.Error(taskErr),
		)
		e.notifyFailed(ctx, task, message)
	}
	e.publish(ctx, task.ID)
}

func (e *Engine) notifyCompleted(ctx context.Context, task *queue.Task) {
	payload := notifications.Payload{"filename": task.Filename}
	if task.SizeBytes > 0 {
		payload["size"] = humanize.IBytes(uint64(task.SizeBytes))
	}
	if err := e.notifier.Publish(ctx, notifications.EventDownloadCompleted, payload); err != nil {
		logging.WithContext(ctx, e.logger).Warn("completion notification failed", logging.Error(err))
	}
}

func (e *Engine) notifyFailed(ctx context.Context, task *queue.Task, reason string) {
	payload := notifications.Payload{"filename": task.Filename, "reason": reason}
	if err := e.notifier.Publish(ctx, notifications.EventDownloadFailed, payload); err != nil {
		logging.WithContext(ctx, e.logger).Warn("failure notification failed", logging.Error(err))
	}
}

func (e *Engine) maxRetries() int {
	if e.cfg.Engine.MaxRetries < 0 {
		return 0
	}
	return e.cfg.Engine.MaxRetries
}

func (e *Engine) segmentCount(task *queue.Task) int {
	segments := task.Segments
	if segments <= 0 {
		segments = e.cfg.Engine.SegmentsPerTask
	}
	if segments > config.MaxSegmentsPerTask {
		segments = config.MaxSegmentsPerTask
	}
	if segments < 1 {
		segments = 1
	}
	return segments
}

func failureMessage(err error) string {
	if err == nil {
		return "failed without error detail"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "failed without error detail"
	}
	return msg
}

// retryDelay doubles per attempt from the configured floor, clamps at the
// ceiling, and adds up to 25% jitter so parked tasks do not thunder back in
// lockstep.
func retryDelay(initial, ceiling time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = 5 * time.Second
	}
	delay := initial
	for i := 0; i < attempt && (ceiling <= 0 || delay < ceiling); i++ {
		delay *= 2
	}
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4+1)))
}

func payloadStem(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if stem == "" {
		return filename
	}
	return stem
}
