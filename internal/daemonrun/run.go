package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"wharf/internal/api"
	"wharf/internal/broadcast"
	"wharf/internal/config"
	"wharf/internal/daemon"
	"wharf/internal/engine"
	"wharf/internal/hoster"
	"wharf/internal/ipc"
	"wharf/internal/logging"
	"wharf/internal/notifications"
	"wharf/internal/preflight"
	"wharf/internal/protocol/sabnzbd"
	"wharf/internal/protocol/torznab"
	"wharf/internal/queue"
	"wharf/internal/search"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
}

// Run starts the wharf daemon runtime loop and blocks until the process
// receives SIGINT or SIGTERM, a stop request arrives over IPC, or startup
// fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("wharfd-%s.log", runID))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("wharfd-%s.events", runID))
	logHub := logging.NewStreamHub(4096)
	eventArchive, archiveErr := logging.NewEventArchive(eventsPath)
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize log archive: %v\n", archiveErr)
	} else if eventArchive != nil {
		logHub.AddSink(eventArchive)
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	base, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := slog.New(logging.NewStreamHandler(base.Handler(), logHub))
	if opts.Development {
		// Development runs keep a full-verbosity journal beside the normal
		// log without widening the configured level.
		debugPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("wharfd-%s.debug.log", runID))
		debugFile, debugErr := os.OpenFile(debugPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to open debug log: %v\n", debugErr)
		} else {
			defer debugFile.Close()
			logger = logging.TeeLogger(logger, slog.NewJSONHandler(debugFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}
	logger = logging.WithSessionID(logger, runID)

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update wharfd.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "wharfd-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "wharfd-*.events", Exclude: []string{eventsPath}},
	)

	checks := preflight.RunAll(signalCtx, cfg)
	for _, check := range checks {
		if check.Passed {
			continue
		}
		if check.Advisory {
			logger.Warn("preflight check failed",
				logging.String("check", check.Name),
				logging.String("detail", check.Detail),
			)
			continue
		}
		logger.Error("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
		)
	}
	if preflight.Failed(checks) {
		return fmt.Errorf("preflight checks failed, see log for details")
	}

	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	host, err := hoster.NewFromConfig(cfg)
	if err != nil {
		logger.Error("init host client", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg)
	hub := broadcast.NewHub(cfg, store, logger)
	eng := engine.New(cfg, store, host, logger,
		engine.WithNotifier(notifier),
		engine.WithSync(hub),
	)
	svc := api.NewService(cfg, store, eng, logger,
		api.WithSearcher(search.New(host, cfg, logger)),
		api.WithResolver(host),
		api.WithAnnouncer(hub),
		api.WithVersion(opts.Version),
	)

	d, err := daemon.New(cfg, store, eng, svc, hub, logger,
		daemon.WithLogStream(logHub),
		daemon.WithLogArchive(eventArchive),
		daemon.WithTorznab(torznab.NewHandler(cfg, svc, logger)),
		daemon.WithSabnzbd(sabnzbd.NewHandler(cfg, svc, logger)),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// The daemon takes the instance lock before anything binds the control
	// socket, so a second wharfd exits here instead of stealing the socket
	// from the running one.
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), svc, logger, ipc.Options{
		Stream:   logHub,
		Archive:  eventArchive,
		Shutdown: cancel,
	})
	if err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("wharf daemon started",
		logging.String("version", opts.Version),
		logging.String("socket", cfg.SocketPath()),
	)
	publishDaemonEvent(signalCtx, notifier, logger, notifications.EventDaemonStarted, notifications.Payload{
		"version": opts.Version,
	})

	<-signalCtx.Done()
	logger.Info("wharf daemon shutting down")
	publishDaemonEvent(context.Background(), notifier, logger, notifications.EventDaemonStopped, nil)
	return nil
}

func publishDaemonEvent(ctx context.Context, notifier notifications.Service, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("notification publish failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

// ensureCurrentLogPointer keeps LogDir/wharfd.log pointing at the current
// run's log file. Symlinks are preferred; hard links cover filesystems
// without symlink support.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "wharfd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
