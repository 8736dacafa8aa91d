package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"snapqr/internal/capture"
	"snapqr/internal/presenter"
	"snapqr/internal/protocol"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...interface{})
	Infof(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogErrorf(ctx, message, args...)
}

var (
	runtimeEventsEmitFn                  = runtime.EventsEmit
	runtimeLogger       appRuntimeLogger = wailsRuntimeLogger{}
)

// emitRuntimeEvent emits via the app context and delegates to emitRuntimeEventWithContext.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.emitRuntimeEventWithContext(a.runtimeContext(), name, payload)
}

// emitRuntimeEventWithContext emits a runtime event only when ctx is non-nil.
// Prefer this helper for best-effort contexts that may not be initialized yet.
func (a *App) emitRuntimeEventWithContext(ctx context.Context, name string, payload any) {
	if ctx == nil {
		slog.Warn("[EVENT] runtime event dropped because app context is nil", "event", name)
		return
	}
	runtimeEventsEmitFn(ctx, name, payload)
}

type statusChangedEvent struct {
	Status string `json:"status"`
}

// publishResults forwards every presenter change to the frontend. The
// status line also gets its own event so the window chrome can follow it
// without re-rendering the list.
func (a *App) publishResults(model presenter.Model) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	a.emitRuntimeEventWithContext(ctx, "results:updated", model)
	a.emitRuntimeEventWithContext(ctx, "status:changed", statusChangedEvent{Status: model.Status})
}

// subscribeBackendEvents routes capture service notifications: shortcut
// triggers start workflows, selection outcomes go to the orchestrator.
func (a *App) subscribeBackendEvents() {
	triggers := map[string]capture.Workflow{
		protocol.EventTriggerScanFull:   capture.WorkflowFull,
		protocol.EventTriggerScanRegion: capture.WorkflowRegion,
		protocol.EventTriggerOCRRegion:  capture.WorkflowOCR,
	}
	for name, workflow := range triggers {
		a.unsubscribe = append(a.unsubscribe, a.bus.Subscribe(name, func(protocol.Event) {
			slog.Debug("[DEBUG-CAPTURE] shortcut trigger received", "workflow", workflow)
			a.runWorkflow(workflow)
		}))
	}

	for _, name := range []string{
		protocol.EventRegionScanComplete,
		protocol.EventOCRScanComplete,
		protocol.EventRegionScanCancelled,
		protocol.EventRegionScanError,
	} {
		a.unsubscribe = append(a.unsubscribe, a.bus.Subscribe(name, a.handleCaptureEvent))
	}
}

func (a *App) unsubscribeBackendEvents() {
	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.unsubscribe = nil
}

func (a *App) handleCaptureEvent(ev protocol.Event) {
	orchestrator, err := a.requireOrchestrator()
	if err != nil {
		slog.Warn("[WARN-CAPTURE] capture event dropped", "event", ev.Name, "error", err)
		return
	}
	err = orchestrator.HandleEvent(a.workContext(), ev)
	var outcome *capture.RecoveryOutcome
	switch {
	case err == nil, errors.Is(err, capture.ErrNoSession):
	case errors.As(err, &outcome):
		slog.Warn("[WARN-CAPTURE] selection failed", "event", ev.Name, "error", err)
	default:
		slog.Warn("[WARN-CAPTURE] capture event not handled", "event", ev.Name, "error", err)
	}
}
