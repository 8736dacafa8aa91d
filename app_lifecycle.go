package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"snapqr/internal/backend"
	"snapqr/internal/capture"
	"snapqr/internal/config"
	"snapqr/internal/ipc"
	"snapqr/internal/kvstore"
	"snapqr/internal/settings"
	"snapqr/internal/workerutil"
)

var (
	openStoreFn     = kvstore.Open
	newPipeServerFn = ipc.NewPipeServer
	newWatcherFn    = config.NewWatcher
)

const shutdownWaitTimeout = 10 * time.Second

func (a *App) startup(ctx context.Context) {
	a.setRuntimeContext(ctx)

	cfg := a.loadStartupConfig(ctx)
	a.applyLogLevel(cfg.Log.Level)
	a.initSessionLog()

	a.workers = workerutil.NewGroup(ctx, a.workerRecoveryOptions())

	a.client = backend.NewClient(backend.ClientOptions{
		URL:            cfg.Backend.URL,
		Pipe:           cfg.Backend.Pipe,
		DialTimeout:    cfg.Backend.DialTimeout(),
		CallTimeout:    cfg.Backend.CallTimeout(),
		ReconnectDelay: cfg.Backend.ReconnectDelay(),
		OnConnect:      a.pushSettings,
	})
	a.service = backend.NewService(hostWindow{app: a}, a.client, backend.ServiceOptions{
		OnCloseBehavior: a.setCloseBehavior,
	})
	a.orchestrator = capture.New(a.service, a.presenter, dialogNotifier{app: a}, capture.Options{
		MinimizeDelay:  cfg.Capture.MinimizeDelay(),
		SessionTimeout: cfg.Capture.SessionTimeout(),
	})
	a.synchronizer = settings.NewSynchronizer(a.openSettingsStore(ctx, cfg), a.service)
	if loaded, err := a.synchronizer.Load(ctx); err != nil {
		slog.Warn("[WARN-SETTINGS] startup load failed, using defaults", "error", err)
	} else {
		a.recorder.Reset(loaded.Bindings())
	}

	a.subscribeBackendEvents()
	a.workers.Go("backend-run", a.client.Run)
	a.workers.Go("backend-dispatch", func(ctx context.Context) {
		a.client.DispatchLoop(ctx, a.bus)
	})

	a.startPipeServer(ctx)
	a.startConfigWatcher(ctx)
	a.flushStartupWarnings()
	runtimeLogger.Infof(ctx, "snapqr started, capture service %s", cfg.Backend.URL)
}

// loadStartupConfig reads the config file and .env overrides. Failures are
// non-fatal: the app runs with defaults and surfaces a warning.
func (a *App) loadStartupConfig(ctx context.Context) config.Config {
	a.configPath = config.DefaultPath()
	for _, message := range config.ConsumeDefaultPathWarnings() {
		a.queueStartupWarning(message)
	}

	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		cfg = config.DefaultConfig()
		a.queueStartupWarning(
			"Failed to load config file at startup. Running with defaults. Error: " + err.Error(),
		)
		runtimeLogger.Warningf(ctx, "failed to load config from %s: %v", a.configPath, err)
	}
	if applied := config.ApplyEnvOverrides(&cfg, a.configPath); len(applied) > 0 {
		runtimeLogger.Infof(ctx, "environment overrides applied: %s", strings.Join(applied, ", "))
	}
	a.storeConfig(cfg)
	return cfg
}

// openSettingsStore opens the SQLite settings store, falling back to an
// in-memory store so settings still work for this run.
func (a *App) openSettingsStore(ctx context.Context, cfg config.Config) settings.Store {
	path := config.StoragePath(cfg, a.configPath)
	store, err := openStoreFn(path)
	if err != nil {
		runtimeLogger.Errorf(ctx, "settings store unavailable at %s: %v", path, err)
		a.queueStartupWarning(
			"Failed to open the settings store. Settings changes will not be kept after exit. Error: " + err.Error(),
		)
		return newMemoryStore()
	}
	a.store = store
	return store
}

func (a *App) startPipeServer(ctx context.Context) {
	a.pipeServer = newPipeServerFn(ipc.DefaultPipeName(), ipc.ExecutorFunc(a.executeIPC))
	if err := a.pipeServer.Start(); err != nil {
		runtimeLogger.Errorf(ctx, "pipe server failed: %v", err)
		a.queueStartupWarning(
			"Failed to start the activation pipe. A second launch will not bring this window forward. Error: " + err.Error(),
		)
		return
	}
	runtimeLogger.Infof(ctx, "pipe server listening: %s", a.pipeServer.PipeName())
}

func (a *App) startConfigWatcher(ctx context.Context) {
	watcher, err := newWatcherFn(a.configPath, a.reloadConfig)
	if err != nil {
		runtimeLogger.Warningf(ctx, "config watcher unavailable: %v", err)
		return
	}
	a.watcher = watcher
	a.workers.Go("config-watch", func(ctx context.Context) {
		if err := watcher.Run(ctx); err != nil {
			slog.Warn("[WARN-CONFIG] config watcher stopped", "error", err)
		}
	})
}

// executeIPC handles commands from a second snapqr process.
func (a *App) executeIPC(req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandActivate:
		a.bringWindowToFront()
		return ipc.Response{OK: true}
	case ipc.CommandTrigger:
		if len(req.Args) == 0 {
			return ipc.Response{Error: "trigger requires a workflow"}
		}
		workflow := capture.Workflow(strings.ToLower(strings.TrimSpace(req.Args[0])))
		switch workflow {
		case capture.WorkflowFull, capture.WorkflowRegion, capture.WorkflowOCR:
		default:
			return ipc.Response{Error: "unknown workflow: " + req.Args[0]}
		}
		if !a.workers.Go("ipc-trigger-"+string(workflow), func(context.Context) { a.runWorkflow(workflow) }) {
			return ipc.Response{Error: "app is shutting down"}
		}
		return ipc.Response{OK: true}
	default:
		return ipc.Response{Error: "unknown command: " + req.Command}
	}
}

func (a *App) shutdown(_ context.Context) {
	a.shuttingDown.Store(true)
	logCtx := a.runtimeContext()

	if a.pipeServer != nil {
		if err := a.pipeServer.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "pipe server stop failed: %v", err)
		}
	}
	a.unsubscribeBackendEvents()
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "backend client close failed: %v", err)
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "config watcher close failed: %v", err)
		}
	}
	if a.workers != nil && !waitWithTimeout(a.workers.Stop, shutdownWaitTimeout) {
		runtimeLogger.Warningf(logCtx, "timed out waiting for background workers during shutdown")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "settings store close failed: %v", err)
		}
	}
	a.closeSessionLog()
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// Best effort timeout guard for shutdown paths. The waiting goroutine may
	// outlive timeout when waitFn blocks indefinitely.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
