package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"wharf/internal/api"
	"wharf/internal/logging"
	"wharf/internal/queue"
)

// Options carries the optional IPC server wiring.
type Options struct {
	Stream  *logging.StreamHub
	Archive *logging.EventArchive
	// Shutdown is invoked when a client asks the daemon process to stop.
	Shutdown func()
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, svc *api.Service, logger *slog.Logger, opts Options) (*Server, error) {
	if svc == nil {
		return nil, errors.New("ipc server requires service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	handlers := &service{
		svc:      svc,
		stream:   opts.Stream,
		archive:  opts.Archive,
		shutdown: opts.Shutdown,
		logger:   logging.NewComponentLogger(logger, "ipc"),
		ctx:      ctx,
	}
	if err := rpcServer.RegisterName(ServiceName, handlers); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logging.NewComponentLogger(logger, "ipc"),
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	svc      *api.Service
	stream   *logging.StreamHub
	archive  *logging.EventArchive
	shutdown func()
	logger   *slog.Logger
	ctx      context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.svc.Status(s.ctx)
	if err != nil {
		return err
	}
	status.PID = os.Getpid()
	resp.Status = status
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested over ipc")
	if s.shutdown != nil {
		s.shutdown()
	}
	resp.Stopped = true
	return nil
}

func (s *service) Add(req AddRequest, resp *AddResponse) error {
	result, err := s.svc.Add(s.ctx, req.Add)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) Search(req SearchRequest, resp *SearchResponse) error {
	results, err := s.svc.Search(s.ctx, req.Query)
	if err != nil {
		return err
	}
	resp.Results = results
	return nil
}

func (s *service) Tasks(req TaskListRequest, resp *TaskListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status %q", raw)
		}
		statuses = append(statuses, status)
	}
	tasks, err := s.svc.List(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Tasks = tasks
	return nil
}

func (s *service) Queue(_ QueueRequest, resp *TaskListResponse) error {
	tasks, err := s.svc.Queue(s.ctx)
	if err != nil {
		return err
	}
	resp.Tasks = tasks
	return nil
}

func (s *service) History(req HistoryRequest, resp *TaskListResponse) error {
	tasks, err := s.svc.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Tasks = tasks
	return nil
}

func (s *service) Describe(req DescribeRequest, resp *DescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid task id %d", req.ID)
	}
	task, err := s.svc.Describe(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d not found", req.ID)
	}
	resp.Task = *task
	return nil
}

func (s *service) Pause(req TaskActionRequest, resp *TaskActionResponse) error {
	return s.action(req, resp, s.svc.PauseTasks)
}

func (s *service) Resume(req TaskActionRequest, resp *TaskActionResponse) error {
	return s.action(req, resp, s.svc.ResumeTasks)
}

func (s *service) Retry(req TaskActionRequest, resp *TaskActionResponse) error {
	return s.action(req, resp, s.svc.RetryTasks)
}

func (s *service) Cancel(req TaskActionRequest, resp *TaskActionResponse) error {
	return s.action(req, resp, s.svc.CancelTasks)
}

func (s *service) Remove(req TaskActionRequest, resp *TaskActionResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("remove requires at least one id")
	}
	result, err := s.svc.RemoveTasks(s.ctx, req.IDs, req.DeleteFiles)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) action(req TaskActionRequest, resp *TaskActionResponse, fn func(context.Context, []int64) (api.BatchResult, error)) error {
	if len(req.IDs) == 0 {
		return errors.New("action requires at least one id")
	}
	result, err := fn(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) PauseAll(_ AllTasksRequest, resp *CountResponse) error {
	affected, err := s.svc.PauseAll(s.ctx)
	if err != nil {
		return err
	}
	resp.Affected = affected
	return nil
}

func (s *service) ResumeAll(_ AllTasksRequest, resp *CountResponse) error {
	affected, err := s.svc.ResumeAll(s.ctx)
	if err != nil {
		return err
	}
	resp.Affected = affected
	return nil
}

func (s *service) ClearHistory(req ClearHistoryRequest, resp *CountResponse) error {
	var (
		affected int64
		err      error
	)
	if req.CompletedOnly {
		affected, err = s.svc.ClearCompleted(s.ctx)
	} else {
		affected, err = s.svc.ClearHistory(s.ctx)
	}
	if err != nil {
		return err
	}
	resp.Affected = affected
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	resp.Next = req.Since
	if s.stream == nil && s.archive == nil {
		return nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 200
	}

	if req.Tail && req.Since == 0 && s.stream != nil {
		events, next := s.stream.Tail(limit)
		resp.Events = filterEvents(events, req)
		resp.Next = next
		return nil
	}

	if s.archive != nil && req.Since > 0 {
		first := uint64(0)
		if s.stream != nil {
			first = s.stream.FirstSequence()
		}
		if s.stream == nil || (first > 0 && req.Since < first) {
			events, next, err := s.archive.ReadSince(req.Since, limit)
			if err != nil {
				s.logger.Warn("log archive read failed", logging.Error(err))
			} else if len(events) > 0 {
				resp.Events = filterEvents(events, req)
				resp.Next = next
				return nil
			}
		}
	}
	if s.stream == nil {
		return nil
	}

	ctx := s.ctx
	if req.Follow {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if wait <= 0 {
			wait = time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, next, err := s.stream.Fetch(ctx, req.Since, limit, req.Follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Events = filterEvents(events, req)
	resp.Next = next
	return nil
}

func filterEvents(events []logging.LogEvent, req LogTailRequest) []logging.LogEvent {
	if req.Component == "" && req.TaskID == 0 {
		return events
	}
	out := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if req.TaskID != 0 && evt.TaskID != req.TaskID {
			continue
		}
		if req.Component != "" && !strings.EqualFold(req.Component, evt.Component) {
			continue
		}
		out = append(out, evt)
	}
	return out
}
