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

	"harvester/internal/config"
	"harvester/internal/daemon"
	"harvester/internal/dedup"
	"harvester/internal/discovery"
	"harvester/internal/download"
	"harvester/internal/ipc"
	"harvester/internal/logging"
	"harvester/internal/notifications"
	"harvester/internal/orchestrator"
	"harvester/internal/preflight"
	"harvester/internal/queue"
	"harvester/internal/upload"
	"harvester/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	SocketPath string
}

// Run starts the harvester daemon and blocks until a signal or a Shutdown
// RPC ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, logPath, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update harvester.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, logging.LogFilePattern, logPath)

	logPreflight(signalCtx, logger, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open task store", logging.Error(err))
		return err
	}
	defer store.Close()

	index, err := dedup.Open(cfg.DedupDBPath())
	if err != nil {
		logger.Error("open dedup index", logging.Error(err))
		return err
	}
	defer index.Close()

	source, err := discovery.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create discovery client: %w", err)
	}
	uploader, err := upload.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create uploader: %w", err)
	}
	downloader := download.NewClient(cfg, logger)

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManagerWithNotifier(cfg, store, index, downloader, uploader, logger, notifier)
	orch := orchestrator.New(cfg, store, index, source, manager, logger, orchestrator.WithNotifier(notifier))

	d, err := daemon.New(cfg, store, index, orch, logger,
		daemon.WithNotifier(notifier),
		daemon.WithLogPath(logPath),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		d.Close()
		return err
	}
	defer d.Close()

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	ipcServer.OnShutdown(cancel)
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("harvester daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg, preflight.Options{Network: true})
	for _, result := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "cycles may fail until this is resolved"),
			logging.String(logging.FieldErrorHint, "run `harvester status` for the full readiness report"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "harvester.log")
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
