package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"wharf/internal/config"
	"wharf/internal/extract"
	"wharf/internal/hoster"
	"wharf/internal/logging"
	"wharf/internal/notifications"
	"wharf/internal/queue"
	"wharf/internal/transfer"
)

// Sync receives task mutations as the engine persists them. The broadcast
// hub implements it; a nil sync drops the events.
type Sync interface {
	TaskUpdated(task *queue.Task)
	TaskRemoved(id int64)
}

// Cancellation causes for deliberate interruptions of an active task. The
// worker reads them back through context.Cause to decide how to park the row.
var (
	errPauseRequested  = errors.New("pause requested")
	errCancelRequested = errors.New("cancel requested")
)

// Worker phases. Pause intent is ignored once a worker moves past byte
// transfer into extraction.
const (
	phaseTransfer = int32(iota)
	phaseExtract
)

const (
	// minLimiterBurst keeps the shared limiter's burst above one copy
	// buffer per worker so tightly capped speeds cannot deadlock reads.
	minLimiterBurst = 256 << 10

	stopParkTimeout = 5 * time.Second
)

// Engine owns the scheduler loop and the set of active workers.
type Engine struct {
	cfg       *config.Config
	store     *queue.Store
	resolver  hoster.Resolver
	transfer  *transfer.Transfer
	extractor *extract.Extractor
	notifier  notifications.Service
	sync      Sync
	logger    *slog.Logger

	limiter *rate.Limiter
	wake    chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  map[int64]*activeTask
}

type activeTask struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
	phase  atomic.Int32
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithNotifier overrides the ntfy-backed notifier (used in tests).
func WithNotifier(notifier notifications.Service) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// WithSync wires persisted task mutations into a live broadcast sink.
func WithSync(sync Sync) Option {
	return func(e *Engine) { e.sync = sync }
}

// New constructs an engine around the shared store and hoster session.
func New(cfg *config.Config, store *queue.Store, resolver hoster.Resolver, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		notifier: notifications.NewService(cfg),
		logger:   logging.NewComponentLogger(logger, "engine"),
		wake:     make(chan struct{}, 1),
		active:   make(map[int64]*activeTask),
	}
	if bps := cfg.Engine.SpeedLimitBPS; bps > 0 {
		burst := int(bps)
		if burst < minLimiterBurst {
			burst = minLimiterBurst
		}
		e.limiter = rate.NewLimiter(rate.Limit(bps), burst)
	}
	e.transfer = transfer.New(cfg, e.limiter, logger)
	e.extractor = extract.New(logger)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start requeues tasks a previous run left active and begins background
// scheduling.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.wg.Add(1)
	e.mu.Unlock()

	if n, err := e.store.RequeueInterrupted(runCtx, ""); err != nil {
		e.logger.Warn("requeue of interrupted tasks failed; stuck rows may remain", logging.Error(err))
	} else if n > 0 {
		e.logger.Info("requeued interrupted tasks", logging.Int64("count", n))
	}

	go e.run(runCtx)
	return nil
}

// Stop halts scheduling, waits for in-flight workers, then parks whatever
// they abandoned so the next start resumes it cleanly.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	ctx, release := context.WithTimeout(context.Background(), stopParkTimeout)
	defer release()
	if n, err := e.store.RequeueInterrupted(ctx, queue.DaemonStopReason); err != nil {
		e.logger.Warn("parking interrupted tasks failed", logging.Error(err))
	} else if n > 0 {
		e.logger.Info("parked interrupted tasks", logging.Int64("count", n))
	}
}

// Running reports whether the scheduler loop is live.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ActiveCount reports how many workers currently hold a claimed task.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Wake nudges the scheduler to claim immediately instead of waiting out the
// poll interval. Extra nudges coalesce.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	workers := e.cfg.Engine.MaxConcurrentDownloads
	if workers < 1 {
		workers = 1
	}
	slots := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		slots <- struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-slots:
		}

		task, err := e.store.Claim(ctx)
		if err != nil {
			slots <- struct{}{}
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("claim failed; retrying after poll interval", logging.Error(err))
			e.waitForWork(ctx)
			continue
		}
		if task == nil {
			slots <- struct{}{}
			e.waitForWork(ctx)
			continue
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() { slots <- struct{}{} }()
			e.process(ctx, task)
		}()
	}
}

func (e *Engine) waitForWork(ctx context.Context) {
	timer := time.NewTimer(e.cfg.PollInterval())
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-e.wake:
	case <-timer.C:
	}
}

func (e *Engine) track(id int64, cancel context.CancelCauseFunc) *activeTask {
	at := &activeTask{cancel: cancel, done: make(chan struct{})}
	e.mu.Lock()
	e.active[id] = at
	e.mu.Unlock()
	return at
}

func (e *Engine) untrack(id int64) {
	e.mu.Lock()
	at := e.active[id]
	delete(e.active, id)
	e.mu.Unlock()
	if at != nil {
		close(at.done)
	}
}

// cancelActive interrupts a running worker with the given cause and returns
// its completion channel, or nil when the task has no worker. Pause does not
// interrupt extraction; an unpacking archive finishes or fails on its own.
func (e *Engine) cancelActive(id int64, cause error) <-chan struct{} {
	e.mu.Lock()
	at := e.active[id]
	e.mu.Unlock()
	if at == nil {
		return nil
	}
	if errors.Is(cause, errPauseRequested) && at.phase.Load() == phaseExtract {
		return nil
	}
	at.cancel(cause)
	return at.done
}

func (e *Engine) publish(ctx context.Context, id int64) {
	if e.sync == nil {
		return
	}
	task, err := e.store.GetByID(ctx, id)
	if err != nil || task == nil {
		return
	}
	e.sync.TaskUpdated(task)
}

func (e *Engine) publishStatuses(ctx context.Context, statuses ...queue.Status) {
	if e.sync == nil {
		return
	}
	tasks, err := e.store.List(ctx, statuses...)
	if err != nil {
		return
	}
	for _, task := range tasks {
		e.sync.TaskUpdated(task)
	}
}
