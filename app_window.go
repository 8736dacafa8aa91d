package main

import (
	"context"
	"log/slog"

	"snapqr/internal/backend"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

var (
	runtimeWindowMinimiseFn       = runtime.WindowMinimise
	runtimeWindowIsMinimisedFn    = runtime.WindowIsMinimised
	runtimeWindowHideFn           = runtime.WindowHide
	runtimeWindowShowFn           = runtime.WindowShow
	runtimeWindowUnminimiseFn     = runtime.WindowUnminimise
	runtimeWindowSetAlwaysOnTopFn = runtime.WindowSetAlwaysOnTop
	runtimeMessageDialogFn        = runtime.MessageDialog
	runtimeClipboardSetTextFn     = runtime.ClipboardSetText
	runtimeQuitFn                 = runtime.Quit
)

// hostWindow executes window commands on the Wails main window. The Wails
// runtime only accepts its own context, so the call context is used for
// cancellation checks only.
type hostWindow struct {
	app *App
}

func (w hostWindow) Minimize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rctx, err := w.app.requireRuntimeContext()
	if err != nil {
		return err
	}
	runtimeWindowMinimiseFn(rctx)
	return nil
}

func (w hostWindow) Show(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rctx, err := w.app.requireRuntimeContext()
	if err != nil {
		return err
	}
	runtimeWindowShowFn(rctx)
	runtimeWindowUnminimiseFn(rctx)
	return nil
}

func (w hostWindow) IsMinimised(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rctx, err := w.app.requireRuntimeContext()
	if err != nil {
		return false, err
	}
	return runtimeWindowIsMinimisedFn(rctx), nil
}

// dialogNotifier shows capture failures as Wails error dialogs.
type dialogNotifier struct {
	app *App
}

func (n dialogNotifier) ShowError(title, message string) {
	ctx := n.app.runtimeContext()
	if ctx == nil {
		slog.Warn("[WARN-WINDOW] error dialog dropped because runtime context is nil", "title", title, "message", message)
		return
	}
	if _, err := runtimeMessageDialogFn(ctx, runtime.MessageDialogOptions{
		Type:    runtime.ErrorDialog,
		Title:   title,
		Message: message,
	}); err != nil {
		slog.Warn("[WARN-WINDOW] error dialog failed", "title", title, "error", err)
	}
}

// bringWindowToFront shows and raises the application window.
// Used when a second instance signals the first to activate.
func (a *App) bringWindowToFront() {
	ctx := a.runtimeContext()
	if ctx == nil {
		slog.Warn("[DEBUG-IPC] bringWindowToFront dropped because runtime context is nil")
		return
	}
	a.raiseWindow(ctx)
}

func (a *App) raiseWindow(ctx context.Context) {
	runtimeWindowShowFn(ctx)
	runtimeWindowUnminimiseFn(ctx)
	runtimeWindowSetAlwaysOnTopFn(ctx, true)
	runtimeWindowSetAlwaysOnTopFn(ctx, false)
}

// setCloseBehavior records the close behavior the capture service accepted.
func (a *App) setCloseBehavior(behavior string) {
	a.closeToTray.Store(behavior == backend.CloseBehaviorTray)
	slog.Debug("[DEBUG-WINDOW] close behavior applied", "behavior", behavior)
}

// beforeClose hides the window instead of quitting when the tray close
// behavior is active. An explicit Quit always closes.
func (a *App) beforeClose(ctx context.Context) bool {
	if a.quitRequested.Load() || !a.closeToTray.Load() {
		return false
	}
	runtimeWindowHideFn(ctx)
	slog.Debug("[DEBUG-WINDOW] window hidden on close")
	return true
}

// Quit exits the application regardless of the close behavior.
func (a *App) Quit() {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	a.quitRequested.Store(true)
	runtimeQuitFn(ctx)
}
