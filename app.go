package main

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"snapqr/internal/backend"
	"snapqr/internal/capture"
	"snapqr/internal/config"
	"snapqr/internal/ipc"
	"snapqr/internal/kvstore"
	"snapqr/internal/presenter"
	"snapqr/internal/settings"
	"snapqr/internal/shortcut"
	"snapqr/internal/workerutil"
)

// App is the Wails-bound application service.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// Configuration state and startup warnings.
	// Lock ordering (outer -> inner):
	//   cfgSaveMu -> cfgMu
	//
	// Independent locks: do not assume ordering across these.
	//   ctxMu, warningsMu, sessionJournal.mu
	//   presenter.Presenter.mu, shortcut.Recorder.mu, settings.Synchronizer.mu,
	//   capture.Orchestrator.mu
	cfgMu              sync.RWMutex
	cfgSaveMu          sync.Mutex
	configEventVersion atomic.Uint64
	cfg                config.Config
	configPath         string
	warningsMu         sync.Mutex
	startupWarnings    []string

	// logLevel drives the base slog handler; config reloads update it.
	logLevel *slog.LevelVar

	// Control layer. Set once during startup before any worker starts.
	store        *kvstore.Store
	client       *backend.Client
	service      *backend.Service
	bus          *backend.Bus
	orchestrator *capture.Orchestrator
	presenter    *presenter.Presenter
	recorder     *shortcut.Recorder
	synchronizer *settings.Synchronizer
	unsubscribe  []func()

	pipeServer *ipc.PipeServer
	watcher    *config.Watcher
	workers    *workerutil.Group

	// closeToTray mirrors the close behavior last accepted by the capture
	// service; beforeClose reads it.
	closeToTray   atomic.Bool
	quitRequested atomic.Bool
	shuttingDown  atomic.Bool // set true at the start of shutdown(); checked by worker recovery loops

	// journal collects warn+ records for the diagnostics panel.
	journal *sessionJournal
}

// NewApp creates the app service. The results panel, event bus and
// recorder exist before startup so bound calls made during teardown or
// before the window is ready see a consistent idle state.
func NewApp() *App {
	a := &App{
		logLevel: new(slog.LevelVar),
		bus:      backend.NewBus(),
		recorder: shortcut.NewRecorder(settings.Default().Bindings()),
		journal:  newSessionJournal(sessionLogMaxEntries),
	}
	a.presenter = presenter.New(a.publishResults)
	return a
}

func (a *App) setRuntimeContext(ctx context.Context) {
	a.ctxMu.Lock()
	a.ctx = ctx
	a.ctxMu.Unlock()
}

// runtimeContext returns the Wails context, or nil before startup.
func (a *App) runtimeContext() context.Context {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()
	return a.ctx
}
