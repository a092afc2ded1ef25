package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wharf/internal/api"
	"wharf/internal/config"
	"wharf/internal/hoster"
	"wharf/internal/logging"
	"wharf/internal/queue"
	"wharf/internal/search"
	"wharf/internal/testsupport"
)

// ctrlStub routes actions straight to the store so transition rules still
// produce the outcomes the handlers translate.
type ctrlStub struct {
	store *queue.Store
}

func (c *ctrlStub) Pause(ctx context.Context, id int64) error {
	return c.store.MarkPaused(ctx, id)
}

func (c *ctrlStub) Cancel(ctx context.Context, id int64) error {
	task, err := c.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: id %d", queue.ErrTaskNotFound, id)
	}
	return c.store.MarkCancelled(ctx, id)
}

func (c *ctrlStub) Resume(ctx context.Context, ids ...int64) (int64, error) {
	return c.store.Resume(ctx, ids...)
}

func (c *ctrlStub) PauseAll(ctx context.Context) (int64, error) {
	return c.store.PauseAll(ctx)
}

func (c *ctrlStub) ResumeAll(ctx context.Context) (int64, error) {
	return c.store.Resume(ctx)
}

func (c *ctrlStub) Remove(ctx context.Context, id int64, deleteFiles bool) error {
	removed, err := c.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: id %d", queue.ErrTaskNotFound, id)
	}
	return nil
}

func (c *ctrlStub) Running() bool    { return true }
func (c *ctrlStub) ActiveCount() int { return 0 }
func (c *ctrlStub) Wake()            {}

type searchStub struct {
	cands []search.Candidate
	err   error
}

func (s *searchStub) Search(ctx context.Context, req search.Request) ([]search.Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cands, nil
}

type serverFixture struct {
	cfg   *config.Config
	store *queue.Store
	srv   *httptest.Server
}

func newServerFixture(t *testing.T, mutate func(*config.Config), svcOpts []api.Option, opts serverOptions) *serverFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(cfg, store, &ctrlStub{store: store}, logging.NewNop(), svcOpts...)
	apiSrv := newAPIServer(cfg, svc, nil, logging.NewNop(), opts)
	srv := httptest.NewServer(apiSrv.server.Handler)
	t.Cleanup(srv.Close)
	return &serverFixture{cfg: cfg, store: store, srv: srv}
}

func (f *serverFixture) do(t *testing.T, method, path string, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decodeAs(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func TestTaskRoutesRoundTrip(t *testing.T) {
	f := newServerFixture(t, nil, nil, serverOptions{})

	resp, data := f.do(t, http.MethodPost, "/api/tasks", `{"reference":"ref-http-1","filename":"show.s01e02.mkv","category":"tv","sizeBytes":1024}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add status = %d: %s", resp.StatusCode, data)
	}
	var added api.AddResult
	decodeAs(t, data, &added)
	if added.Task.ID == 0 || added.Duplicate {
		t.Fatalf("unexpected add result: %+v", added)
	}
	id := added.Task.ID

	resp, data = f.do(t, http.MethodGet, "/api/tasks", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list api.TaskListResponse
	decodeAs(t, data, &list)
	if len(list.Tasks) != 1 || list.Tasks[0].Reference != "ref-http-1" {
		t.Fatalf("unexpected task list: %+v", list.Tasks)
	}

	resp, data = f.do(t, http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("describe status = %d", resp.StatusCode)
	}
	var described api.TaskResponse
	decodeAs(t, data, &described)
	if described.Task.Filename != "show.s01e02.mkv" {
		t.Fatalf("describe filename = %q", described.Task.Filename)
	}

	resp, data = f.do(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/pause", id), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d: %s", resp.StatusCode, data)
	}
	var batch api.BatchResult
	decodeAs(t, data, &batch)
	if batch.Applied != 1 || batch.Results[0].Status != string(queue.StatusPaused) {
		t.Fatalf("pause result = %+v", batch)
	}

	resp, data = f.do(t, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", id), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove status = %d: %s", resp.StatusCode, data)
	}
	resp, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("describe after remove status = %d", resp.StatusCode)
	}
}

func TestTaskActionStatusCodes(t *testing.T) {
	f := newServerFixture(t, nil, nil, serverOptions{})

	resp, data := f.do(t, http.MethodPost, "/api/tasks/9999/pause", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task status = %d: %s", resp.StatusCode, data)
	}
	var batch api.BatchResult
	decodeAs(t, data, &batch)
	if len(batch.Results) != 1 || batch.Results[0].Outcome != api.OutcomeNotFound {
		t.Fatalf("missing task result = %+v", batch)
	}

	_, data = f.do(t, http.MethodPost, "/api/tasks", `{"reference":"ref-http-2","filename":"a.mkv","category":"tv"}`, nil)
	var added api.AddResult
	decodeAs(t, data, &added)
	resp, data = f.do(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/retry", added.Task.ID), "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("retry queued task status = %d: %s", resp.StatusCode, data)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/tasks/zero/pause", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", resp.StatusCode)
	}
}

func TestBearerAuthGuardsAdminRoutes(t *testing.T) {
	f := newServerFixture(t, func(cfg *config.Config) {
		cfg.API.APIKey = "secret"
	}, nil, serverOptions{
		torznab: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})

	resp, _ := f.do(t, http.MethodGet, "/api/status", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", resp.StatusCode)
	}
	resp, data := f.do(t, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token status = %d: %s", resp.StatusCode, data)
	}
	var status api.DaemonStatus
	decodeAs(t, data, &status)
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status payload: %+v", status)
	}

	// Facade mounts skip the bearer check; they do their own auth.
	resp, _ = f.do(t, http.MethodGet, "/torznab/api?t=caps", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("facade status = %d", resp.StatusCode)
	}
}

func TestQueueAndHistoryRoutes(t *testing.T) {
	f := newServerFixture(t, nil, nil, serverOptions{})
	ctx := context.Background()

	_, data := f.do(t, http.MethodPost, "/api/tasks", `{"reference":"ref-http-3","filename":"b.mkv","category":"tv"}`, nil)
	var added api.AddResult
	decodeAs(t, data, &added)

	claimed, err := f.store.Claim(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("Claim: %v %v", claimed, err)
	}
	if err := f.store.MarkFailed(ctx, claimed.ID, "link expired"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	resp, data := f.do(t, http.MethodGet, "/api/queue", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("queue status = %d", resp.StatusCode)
	}
	var queueList api.TaskListResponse
	decodeAs(t, data, &queueList)
	if len(queueList.Tasks) != 0 {
		t.Fatalf("queue should be empty, got %+v", queueList.Tasks)
	}

	resp, data = f.do(t, http.MethodGet, "/api/history", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var history api.TaskListResponse
	decodeAs(t, data, &history)
	if len(history.Tasks) != 1 || history.Tasks[0].Status != string(queue.StatusFailed) {
		t.Fatalf("unexpected history: %+v", history.Tasks)
	}

	resp, data = f.do(t, http.MethodDelete, "/api/history", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	var cleared api.CountResponse
	decodeAs(t, data, &cleared)
	if cleared.Affected != 1 {
		t.Fatalf("cleared = %d, want 1", cleared.Affected)
	}
}

func TestTasksStatusFilterRejectsUnknown(t *testing.T) {
	f := newServerFixture(t, nil, nil, serverOptions{})
	resp, data := f.do(t, http.MethodGet, "/api/tasks?status=bogus", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
}

func TestSearchRouteMapsServiceErrors(t *testing.T) {
	f := newServerFixture(t, nil, nil, serverOptions{})
	resp, data := f.do(t, http.MethodGet, "/api/search?q=show", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured search status = %d: %s", resp.StatusCode, data)
	}

	stub := &searchStub{cands: []search.Candidate{{
		File:  hoster.File{Filename: "Show.S01E01.mkv", Reference: "ref-s-1", SizeBytes: 2048, Category: "tv"},
		Score: 90,
	}}}
	f = newServerFixture(t, nil, []api.Option{api.WithSearcher(stub)}, serverOptions{})
	resp, data = f.do(t, http.MethodGet, "/api/search?q=show&season=1&episode=1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d: %s", resp.StatusCode, data)
	}
	var results api.SearchResponse
	decodeAs(t, data, &results)
	if len(results.Results) != 1 || results.Results[0].Reference != "ref-s-1" {
		t.Fatalf("unexpected results: %+v", results.Results)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/search?q=show&season=one", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad season status = %d", resp.StatusCode)
	}
}

func TestLogsRouteTailAndFilters(t *testing.T) {
	hub := logging.NewStreamHub(16)
	hub.Publish(logging.LogEvent{Level: "INFO", Message: "engine started", Component: "engine"})
	hub.Publish(logging.LogEvent{Level: "INFO", Message: "task claimed", Component: "engine", TaskID: 7})
	hub.Publish(logging.LogEvent{Level: "WARN", Message: "segment retry", Component: "transfer", TaskID: 7})

	f := newServerFixture(t, nil, nil, serverOptions{stream: hub})

	resp, data := f.do(t, http.MethodGet, "/api/logs?tail=1&limit=2", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tail status = %d", resp.StatusCode)
	}
	var page api.LogStreamResponse
	decodeAs(t, data, &page)
	if len(page.Events) != 2 || page.Events[1].Message != "segment retry" {
		t.Fatalf("unexpected tail page: %+v", page.Events)
	}
	if page.Next != 3 {
		t.Fatalf("next = %d, want 3", page.Next)
	}

	resp, data = f.do(t, http.MethodGet, "/api/logs?component=transfer", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("filter status = %d", resp.StatusCode)
	}
	decodeAs(t, data, &page)
	if len(page.Events) != 1 || page.Events[0].Component != "transfer" {
		t.Fatalf("unexpected component filter page: %+v", page.Events)
	}

	resp, data = f.do(t, http.MethodGet, "/api/logs?task=7", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("task filter status = %d", resp.StatusCode)
	}
	decodeAs(t, data, &page)
	if len(page.Events) != 2 {
		t.Fatalf("task filter events = %d, want 2", len(page.Events))
	}
}

func TestLogsRouteReadsArchiveForOldCursors(t *testing.T) {
	dir := t.TempDir()
	archive, err := logging.NewEventArchive(dir + "/events.jsonl")
	if err != nil {
		t.Fatalf("NewEventArchive: %v", err)
	}
	t.Cleanup(func() { archive.Close() })
	for i := 1; i <= 5; i++ {
		archive.Append(logging.LogEvent{Sequence: uint64(i), Level: "INFO", Message: fmt.Sprintf("event %d", i), Component: "engine"})
	}

	// Ring that has already evicted the early events.
	hub := logging.NewStreamHub(4)
	for i := 0; i < 6; i++ {
		hub.Publish(logging.LogEvent{Level: "INFO", Message: "recent", Component: "engine"})
	}
	if first := hub.FirstSequence(); first <= 1 {
		t.Fatalf("FirstSequence = %d, wanted eviction", first)
	}

	f := newServerFixture(t, nil, nil, serverOptions{stream: hub, archive: archive})

	// A cursor below the ring's first sequence must come from the archive.
	resp, data := f.do(t, http.MethodGet, "/api/logs?since=1&limit=3", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d", resp.StatusCode)
	}
	var page api.LogStreamResponse
	decodeAs(t, data, &page)
	if len(page.Events) != 3 || page.Events[0].Message != "event 2" {
		t.Fatalf("unexpected archive page: %+v", page.Events)
	}
	if page.Next != 4 {
		t.Fatalf("next = %d, want 4", page.Next)
	}
}

