package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wharf/internal/api"
	"wharf/internal/config"
	"wharf/internal/hoster"
	"wharf/internal/ipc"
	"wharf/internal/logging"
	"wharf/internal/queue"
	"wharf/internal/search"
	"wharf/internal/testsupport"
)

// storeController backs the test service with plain store transitions so CLI
// flows can run without transfer workers.
type storeController struct {
	store *queue.Store
}

func (c *storeController) Pause(ctx context.Context, id int64) error {
	return c.store.MarkPaused(ctx, id)
}

func (c *storeController) Cancel(ctx context.Context, id int64) error {
	task, err := c.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: id %d", queue.ErrTaskNotFound, id)
	}
	return c.store.MarkCancelled(ctx, id)
}

func (c *storeController) Resume(ctx context.Context, ids ...int64) (int64, error) {
	return c.store.Resume(ctx, ids...)
}

func (c *storeController) PauseAll(ctx context.Context) (int64, error) {
	return c.store.PauseAll(ctx)
}

func (c *storeController) ResumeAll(ctx context.Context) (int64, error) {
	return c.store.Resume(ctx)
}

func (c *storeController) Remove(ctx context.Context, id int64, deleteFiles bool) error {
	removed, err := c.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: id %d", queue.ErrTaskNotFound, id)
	}
	return nil
}

func (c *storeController) Running() bool    { return true }
func (c *storeController) ActiveCount() int { return 0 }
func (c *storeController) Wake()            {}

var cliCatalog = []hoster.File{
	{Reference: "ref-signal-101", Filename: "Signal.Fire.S01E01.1080p.WEB.mkv", SizeBytes: 1_500_000_000, Category: "tv", UploadedAt: "2026-05-01T10:00:00Z"},
	{Reference: "ref-signal-102", Filename: "Signal.Fire.S01E02.1080p.WEB.mkv", SizeBytes: 1_400_000_000, Category: "tv", UploadedAt: "2026-05-08T10:00:00Z"},
	{Reference: "ref-harbor-movie", Filename: "Harbor.Lights.2024.2160p.WEB-DL.mkv", SizeBytes: 12_000_000_000, Category: "movies", UploadedAt: "2026-04-20T09:00:00Z"},
}

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/files/search":
			_ = json.NewEncoder(w).Encode(map[string][]hoster.File{"files": cliCatalog})
		case "/api/account":
			_ = json.NewEncoder(w).Encode(hoster.Account{Username: "tester", Valid: true, Premium: true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	hub        *logging.StreamHub
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

// setupCLITestEnv builds a config under a temp home, a real store, and an
// in-process IPC server standing in for the daemon.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	env := setupOfflineCLITestEnv(t)

	host, err := hoster.NewFromConfig(env.cfg)
	if err != nil {
		t.Fatalf("hoster.NewFromConfig: %v", err)
	}
	svc := api.NewService(env.cfg, env.store, &storeController{store: env.store}, logging.NewNop(),
		api.WithSearcher(search.New(host, env.cfg, logging.NewNop())),
		api.WithResolver(host))

	hub := logging.NewStreamHub(256)
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, env.socketPath, svc, logging.NewNop(), ipc.Options{Stream: hub, Shutdown: cancel})
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	env.hub = hub
	env.cancel = cancel
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return env
}

// setupOfflineCLITestEnv is setupCLITestEnv without the IPC server, for
// exercising direct-store fallbacks.
func setupOfflineCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	hostSrv := newCatalogServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithHosterURL(hostSrv.URL))

	configPath := filepath.Join(homeDir, ".config", "wharf", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
download_dir = %q
incomplete_dir = %q
log_dir = %q
state_dir = %q

[hoster]
base_url = %q
api_token = %q

[api]
bind = %q
`,
		cfg.Paths.DownloadDir,
		cfg.Paths.IncompleteDir,
		cfg.Paths.LogDir,
		cfg.Paths.StateDir,
		cfg.Hoster.BaseURL,
		cfg.Hoster.APIToken,
		cfg.API.Bind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q to not contain %q", output, substr)
	}
}
