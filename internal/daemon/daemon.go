package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"wharf/internal/api"
	"wharf/internal/broadcast"
	"wharf/internal/config"
	"wharf/internal/engine"
	"wharf/internal/logging"
	"wharf/internal/queue"
)

// Daemon coordinates the download engine, the broadcast hub, and the HTTP
// surface, and enforces single-instance execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	engine *engine.Engine
	hub    *broadcast.Hub
	svc    *api.Service
	apiSrv *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies. The broadcast hub is
// optional; everything else is required.
func New(cfg *config.Config, store *queue.Store, eng *engine.Engine, svc *api.Service, hub *broadcast.Hub, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || eng == nil || svc == nil {
		return nil, errors.New("daemon requires config, store, engine, and service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		engine:   eng,
		hub:      hub,
		svc:      svc,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	srvOpts := serverOptions{}
	for _, opt := range opts {
		opt(&srvOpts)
	}
	d.apiSrv = newAPIServer(cfg, svc, hub, logger, srvOpts)
	return d, nil
}

// Option adjusts optional daemon wiring.
type Option func(*serverOptions)

// WithLogStream exposes the in-memory log ring on the logs endpoint.
func WithLogStream(hub *logging.StreamHub) Option {
	return func(o *serverOptions) { o.stream = hub }
}

// WithLogArchive lets the logs endpoint serve events that already fell out of
// the in-memory ring.
func WithLogArchive(archive *logging.EventArchive) Option {
	return func(o *serverOptions) { o.archive = archive }
}

// WithTorznab mounts the torznab facade at /torznab/api. Facades check their
// own apikey parameter, so they bypass the bearer middleware.
func WithTorznab(handler http.Handler) Option {
	return func(o *serverOptions) { o.torznab = handler }
}

// WithSabnzbd mounts the sabnzbd facade at /sabnzbd/api.
func WithSabnzbd(handler http.Handler) Option {
	return func(o *serverOptions) { o.sabnzbd = handler }
}

// Start acquires the daemon lock and brings up the engine, the hub, and the
// HTTP server. Partial failures roll back everything already started.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another wharf daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.engine.Start(d.ctx); err != nil {
		d.rollback()
		return fmt.Errorf("start engine: %w", err)
	}
	if d.hub != nil {
		if err := d.hub.Start(d.ctx); err != nil {
			d.engine.Stop()
			d.rollback()
			return fmt.Errorf("start broadcast hub: %w", err)
		}
	}
	if err := d.apiSrv.start(d.ctx); err != nil {
		if d.hub != nil {
			d.hub.Stop()
		}
		d.engine.Stop()
		d.rollback()
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("wharf daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.apiSrv.addr()))
	return nil
}

func (d *Daemon) rollback() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Stop shuts down the HTTP server and background processing, then releases
// the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.apiSrv.stop()
	if d.hub != nil {
		d.hub.Stop()
	}
	d.engine.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("wharf daemon stopped")
}

// Close stops the daemon and closes the backing store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has completed and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Service exposes the task service for in-process callers such as the IPC
// server.
func (d *Daemon) Service() *api.Service {
	return d.svc
}

// Addr reports the bound HTTP address, useful when the configured bind used
// port zero.
func (d *Daemon) Addr() string {
	return d.apiSrv.addr()
}

// Status reports daemon runtime state including the process id.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	status, err := d.svc.Status(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	status.Running = d.running.Load()
	status.PID = os.Getpid()
	return status, nil
}
