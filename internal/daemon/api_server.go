package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"wharf/internal/api"
	"wharf/internal/broadcast"
	"wharf/internal/config"
	"wharf/internal/logging"
	"wharf/internal/queue"
	"wharf/internal/services"
)

type serverOptions struct {
	stream  *logging.StreamHub
	archive *logging.EventArchive
	torznab http.Handler
	sabnzbd http.Handler
}

type apiServer struct {
	bind    string
	logger  *slog.Logger
	svc     *api.Service
	hub     *broadcast.Hub
	stream  *logging.StreamHub
	archive *logging.EventArchive

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, svc *api.Service, hub *broadcast.Hub, logger *slog.Logger, opts serverOptions) *apiServer {
	srv := &apiServer{
		bind:    strings.TrimSpace(cfg.API.Bind),
		logger:  logger,
		svc:     svc,
		hub:     hub,
		stream:  opts.stream,
		archive: opts.archive,
	}

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(cfg.API.APIKey, next)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", auth(srv.handleStatus))
	mux.HandleFunc("GET /api/tasks", auth(srv.handleTasks))
	mux.HandleFunc("POST /api/tasks", auth(srv.handleAdd))
	mux.HandleFunc("GET /api/tasks/{id}", auth(srv.handleTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", auth(srv.handleRemove))
	mux.HandleFunc("POST /api/tasks/{id}/pause", auth(srv.taskAction(svc.PauseTasks)))
	mux.HandleFunc("POST /api/tasks/{id}/resume", auth(srv.taskAction(svc.ResumeTasks)))
	mux.HandleFunc("POST /api/tasks/{id}/retry", auth(srv.taskAction(svc.RetryTasks)))
	mux.HandleFunc("POST /api/tasks/{id}/cancel", auth(srv.taskAction(svc.CancelTasks)))
	mux.HandleFunc("GET /api/queue", auth(srv.handleQueue))
	mux.HandleFunc("POST /api/queue/pause", auth(srv.bulk("pause all", svc.PauseAll)))
	mux.HandleFunc("POST /api/queue/resume", auth(srv.bulk("resume all", svc.ResumeAll)))
	mux.HandleFunc("GET /api/history", auth(srv.handleHistory))
	mux.HandleFunc("DELETE /api/history", auth(srv.handleClearHistory))
	mux.HandleFunc("GET /api/search", auth(srv.handleSearch))
	mux.HandleFunc("GET /api/logs", auth(srv.handleLogs))
	if hub != nil {
		mux.HandleFunc("GET /api/ws", auth(hub.HandleUpgrade))
	}

	// Facades carry their own apikey checks, so they mount outside the
	// bearer middleware.
	if opts.torznab != nil {
		mux.Handle("/torznab/api", opts.torznab)
	}
	if opts.sabnzbd != nil {
		mux.Handle("/sabnzbd/api", opts.sabnzbd)
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status.PID = os.Getpid()
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	tasks, err := s.svc.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: tasks})
}

func (s *apiServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req api.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.svc.Add(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	task, err := s.svc.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: *task})
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	deleteFiles := queryFlag(r, "files")
	result, err := s.svc.RemoveTasks(r.Context(), []int64{id}, deleteFiles)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeBatch(w, result)
}

// taskAction adapts a batch service call to a single-task route, translating
// the per-task outcome into an HTTP status.
func (s *apiServer) taskAction(action func(context.Context, []int64) (api.BatchResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.taskID(w, r)
		if !ok {
			return
		}
		result, err := action(r.Context(), []int64{id})
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeBatch(w, result)
	}
}

func (s *apiServer) writeBatch(w http.ResponseWriter, result api.BatchResult) {
	status := http.StatusOK
	if len(result.Results) == 1 {
		switch result.Results[0].Outcome {
		case api.OutcomeNotFound:
			status = http.StatusNotFound
		case api.OutcomeNotEligible:
			status = http.StatusConflict
		}
	}
	s.writeJSON(w, status, result)
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Queue(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: tasks})
}

func (s *apiServer) bulk(operation string, fn func(context.Context) (int64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		affected, err := fn(r.Context())
		if err != nil {
			s.log().Warn("queue operation failed", logging.String("operation", operation), logging.Error(err))
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.CountResponse{Affected: affected})
	}
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	tasks, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: tasks})
}

func (s *apiServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	var (
		affected int64
		err      error
	)
	if queryFlag(r, "completed") {
		affected, err = s.svc.ClearCompleted(r.Context())
	} else {
		affected, err = s.svc.ClearHistory(r.Context())
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Affected: affected})
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	season, err := queryInt(r, "season")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid season parameter")
		return
	}
	episode, err := queryInt(r, "episode")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid episode parameter")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	req := api.SearchRequest{
		Title:    strings.TrimSpace(query.Get("q")),
		Season:   season,
		Episode:  episode,
		Category: strings.TrimSpace(query.Get("category")),
		Limit:    limit,
	}
	results, err := s.svc.Search(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SearchResponse{Results: results})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil && s.archive == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: nil, Next: 0})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := queryFlag(r, "follow")
	tail := queryFlag(r, "tail")

	var filterTask int64
	if value := strings.TrimSpace(query.Get("task")); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			filterTask = parsed
		}
	}
	component := strings.TrimSpace(query.Get("component"))

	var (
		events []logging.LogEvent
		next   uint64
	)

	// Cursors older than the in-memory ring come out of the archive.
	if s.archive != nil && since > 0 {
		firstSeq := uint64(0)
		if s.stream != nil {
			firstSeq = s.stream.FirstSequence()
		}
		if s.stream == nil || (firstSeq > 0 && since < firstSeq) {
			archived, cursor, archErr := s.archive.ReadSince(since, limit)
			if archErr != nil {
				s.log().Warn("log archive read failed", logging.Error(archErr))
			} else if len(archived) > 0 {
				events = archived
				next = cursor
			}
		}
	}

	if tail && since == 0 && !follow && s.stream != nil {
		events, next = s.stream.Tail(limit)
	} else if len(events) == 0 && s.stream != nil {
		fetched, cursor, fetchErr := s.stream.Fetch(r.Context(), since, limit, follow)
		if fetchErr != nil && !errors.Is(fetchErr, context.Canceled) && !errors.Is(fetchErr, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, fetchErr.Error())
			return
		}
		events = fetched
		next = cursor
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if filterTask != 0 && evt.TaskID != filterTask {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}

	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

func (s *apiServer) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid task id")
		return 0, false
	}
	return id, true
}

// writeServiceError maps taxonomy sentinels onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryFlag(r *http.Request, name string) bool {
	value := r.URL.Query().Get(name)
	return value == "1" || strings.EqualFold(value, "true")
}

func queryInt(r *http.Request, name string) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("parameter %s: %q", name, value)
	}
	return parsed, nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
