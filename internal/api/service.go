package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wharf/internal/config"
	"wharf/internal/hoster"
	"wharf/internal/logging"
	"wharf/internal/queue"
	"wharf/internal/search"
	"wharf/internal/services"
	"wharf/internal/textutil"
)

// Controller is the engine surface task actions run through. Routing every
// mutation here keeps transition enforcement, sync pushes, and worker
// wake-ups in one place.
type Controller interface {
	Pause(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64) error
	Resume(ctx context.Context, ids ...int64) (int64, error)
	PauseAll(ctx context.Context) (int64, error)
	ResumeAll(ctx context.Context) (int64, error)
	Remove(ctx context.Context, id int64, deleteFiles bool) error
	Running() bool
	ActiveCount() int
	Wake()
}

// Searcher runs the alias-expanded lookup pipeline.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.Candidate, error)
}

// Announcer receives add pushes for connected sync clients. The engine
// announces every other lifecycle change itself.
type Announcer interface {
	TaskAdded(task *queue.Task)
}

// Service binds the queue store, engine, and search pipeline behind one
// operation set.
type Service struct {
	cfg       *config.Config
	store     *queue.Store
	engine    Controller
	searcher  Searcher
	resolver  hoster.Resolver
	announce  Announcer
	logger    *slog.Logger
	version   string
	startedAt time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithSearcher wires the search pipeline.
func WithSearcher(searcher Searcher) Option {
	return func(s *Service) { s.searcher = searcher }
}

// WithResolver wires the hoster session used for status reporting.
func WithResolver(resolver hoster.Resolver) Option {
	return func(s *Service) { s.resolver = resolver }
}

// WithAnnouncer wires the sync hub for add pushes.
func WithAnnouncer(announce Announcer) Option {
	return func(s *Service) { s.announce = announce }
}

// WithVersion records the daemon version reported by Status.
func WithVersion(version string) Option {
	return func(s *Service) { s.version = version }
}

// NewService constructs the service layer.
func NewService(cfg *config.Config, store *queue.Store, engine Controller, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	svc := &Service{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		logger:    logging.NewComponentLogger(logger, "api"),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Status reports daemon runtime state. PID is left for the process layer.
func (s *Service) Status(ctx context.Context) (DaemonStatus, error) {
	stats, err := s.store.Aggregate(ctx)
	if err != nil {
		return DaemonStatus{}, fmt.Errorf("aggregate stats: %w", err)
	}
	status := DaemonStatus{
		Running:      s.engine != nil && s.engine.Running(),
		Version:      s.version,
		Stats:        FromStats(stats),
		DownloadDir:  s.cfg.Paths.DownloadDir,
		DatabasePath: s.cfg.DatabasePath(),
		SocketPath:   s.cfg.SocketPath(),
	}
	if s.engine != nil {
		status.EngineActive = s.engine.ActiveCount()
		status.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	if s.resolver != nil {
		status.HosterReady = s.resolver.Valid(ctx)
	}
	return status, nil
}

// Stats returns aggregate queue counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats, err := s.store.Aggregate(ctx)
	if err != nil {
		return Stats{}, err
	}
	return FromStats(stats), nil
}

// List returns tasks filtered by status, oldest first.
func (s *Service) List(ctx context.Context, statuses ...queue.Status) ([]Task, error) {
	tasks, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// Queue returns every unfinished task in scheduling order.
func (s *Service) Queue(ctx context.Context) ([]Task, error) {
	tasks, err := s.store.ListQueue(ctx)
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// History returns finished tasks, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]Task, error) {
	tasks, err := s.store.ListHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// Describe fetches a single task, or nil when the id is unknown.
func (s *Service) Describe(ctx context.Context, id int64) (*Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil || task == nil {
		return nil, err
	}
	dto := FromTask(task)
	return &dto, nil
}

// Add enqueues a download by stable reference. An existing unfinished task
// holding the same reference is returned instead of inserting a second row;
// if that task is failed it is revived through the engine. A task with an
// unknown category is inserted and immediately retired as skipped so the
// mistake shows up in history rather than vanishing.
func (s *Service) Add(ctx context.Context, req AddRequest) (AddResult, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return AddResult{}, services.Wrap(services.ErrValidation, "", "add", "reference is required", nil)
	}

	existing, err := s.store.FindByStableReference(ctx, reference)
	if err != nil {
		return AddResult{}, err
	}
	if existing != nil {
		if existing.Status == queue.StatusFailed && s.engine != nil {
			if _, err := s.engine.Resume(ctx, existing.ID); err != nil {
				return AddResult{}, fmt.Errorf("revive failed task: %w", err)
			}
			revived, err := s.store.GetByID(ctx, existing.ID)
			if err != nil {
				return AddResult{}, err
			}
			if revived != nil {
				existing = revived
			}
			s.logger.Info("add revived failed task",
				logging.Int64(logging.FieldTaskID, existing.ID),
				logging.String("reference", reference))
			return AddResult{Task: FromTask(existing), Resumed: true}, nil
		}
		return AddResult{Task: FromTask(existing), Duplicate: true}, nil
	}

	task, err := s.store.NewTask(ctx, queue.NewTaskParams{
		StableReference: reference,
		Filename:        textutil.SanitizeFileName(req.Filename),
		Category:        strings.TrimSpace(req.Category),
		SizeBytes:       req.SizeBytes,
		Segments:        req.Segments,
		Priority:        req.Priority,
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("create task: %w", err)
	}

	result := AddResult{}
	if reason := s.rejectCategory(task.Category); reason != "" {
		if err := s.store.MarkSkipped(ctx, task.ID, reason); err != nil {
			return AddResult{}, fmt.Errorf("skip invalid task: %w", err)
		}
		if skipped, err := s.store.GetByID(ctx, task.ID); err == nil && skipped != nil {
			task = skipped
		}
		result.Skipped = true
		s.logger.Warn("add skipped",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String("reference", reference),
			logging.String("reason", reason))
	} else {
		s.logger.Info("task enqueued",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String("filename", task.Filename),
			logging.Int("priority", task.Priority))
	}

	if s.announce != nil {
		s.announce.TaskAdded(task)
	}
	if !result.Skipped && s.engine != nil {
		s.engine.Wake()
	}
	result.Task = FromTask(task)
	return result, nil
}

// rejectCategory returns a skip reason for categories outside the configured
// set. An empty category or an unconfigured set accepts everything.
func (s *Service) rejectCategory(category string) string {
	if category == "" || len(s.cfg.Search.Categories) == 0 {
		return ""
	}
	for _, known := range s.cfg.Search.Categories {
		if strings.EqualFold(known, category) {
			return ""
		}
	}
	return fmt.Sprintf("unknown category %q", category)
}

// Search runs the lookup pipeline and converts the ranked candidates.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if s.searcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, services.StageSearch, "search", "search pipeline not configured", nil)
	}
	cands, err := s.searcher.Search(ctx, search.Request{
		Title:    req.Title,
		Season:   req.Season,
		Episode:  req.Episode,
		Category: req.Category,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, err
	}
	return FromCandidates(cands), nil
}

// PauseAll suspends every unfinished task and reports how many moved.
func (s *Service) PauseAll(ctx context.Context) (int64, error) {
	if s.engine == nil {
		return 0, nil
	}
	return s.engine.PauseAll(ctx)
}

// ResumeAll revives every paused or failed task.
func (s *Service) ResumeAll(ctx context.Context) (int64, error) {
	if s.engine == nil {
		return 0, nil
	}
	return s.engine.ResumeAll(ctx)
}

// ClearHistory removes every finished task.
func (s *Service) ClearHistory(ctx context.Context) (int64, error) {
	return s.store.ClearHistory(ctx)
}

// ClearCompleted removes completed tasks only.
func (s *Service) ClearCompleted(ctx context.Context) (int64, error) {
	return s.store.ClearCompleted(ctx)
}
