package daemonctl_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wharf/internal/api"
	"wharf/internal/config"
	"wharf/internal/daemonctl"
	"wharf/internal/ipc"
	"wharf/internal/logging"
	"wharf/internal/queue"
	"wharf/internal/testsupport"
)

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

// startIPC runs a control server backed by a real store and returns its
// socket path. The shutdown wiring mirrors the daemon process: the stop
// handler cancels a context and a separate goroutine closes the server.
func startIPC(t *testing.T, cfg *config.Config) string {
	t.Helper()

	store := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(cfg, store, &storeController{store: store}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, svc, logging.NewNop(), ipc.Options{
		Shutdown: cancel,
	})
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping control socket test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	time.Sleep(50 * time.Millisecond)
	return socket
}

func TestProcessInfo_NoSocket(t *testing.T) {
	running, pid, err := daemonctl.ProcessInfo(filepath.Join(t.TempDir(), "missing.sock"))
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if running || pid != 0 {
		t.Fatalf("expected not running, got running=%v pid=%d", running, pid)
	}
}

func TestProcessInfo_Live(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := startIPC(t, cfg)

	running, pid, err := daemonctl.ProcessInfo(socket)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if !running {
		t.Fatal("expected running daemon")
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestStopAndTerminate_NotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonctl.StopAndTerminate(cfg.SocketPath(), cfg, time.Second)
	if err != daemonctl.ErrDaemonNotRunning {
		t.Fatalf("err = %v, want ErrDaemonNotRunning", err)
	}
}

func TestStopAndTerminate_Graceful(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := startIPC(t, cfg)

	result, err := daemonctl.StopAndTerminate(socket, cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !result.StopAcknowledged {
		t.Fatal("expected stop acknowledgement")
	}
	if result.ForcedKill {
		t.Fatal("graceful stop should not force kill")
	}
	if result.PID != os.Getpid() {
		t.Fatalf("pid = %d, want %d", result.PID, os.Getpid())
	}

	if err := daemonctl.WaitForShutdown(socket, 2*time.Second); err != nil {
		t.Fatalf("WaitForShutdown after stop: %v", err)
	}
}

func TestBuildStatusSnapshot_Offline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewTask(t, store, "show.s01e01.mkv", "ref-ctl-1")

	resp, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if resp.Status.Running {
		t.Fatal("no daemon is running")
	}
	if resp.Status.Stats.Queued != 1 {
		t.Fatalf("queued = %d, want 1", resp.Status.Stats.Queued)
	}
	if resp.Status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("database path = %q, want %q", resp.Status.DatabasePath, cfg.DatabasePath())
	}
}

func TestBuildStatusSnapshot_Live(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := startIPC(t, cfg)

	resp, err := daemonctl.BuildStatusSnapshot(context.Background(), socket, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if resp.Status.PID != os.Getpid() {
		t.Fatalf("pid = %d, want %d", resp.Status.PID, os.Getpid())
	}
}

func TestForceKillProcess_RefusesSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "wharfd.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemonctl.ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
}
