package main

import (
	"context"
	"errors"

	"snapqr/internal/capture"
	"snapqr/internal/settings"
)

var errAppNotReady = errors.New("app context is not ready")

func (a *App) requireRuntimeContext() (context.Context, error) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return nil, errAppNotReady
	}
	return ctx, nil
}

func (a *App) requireOrchestrator() (*capture.Orchestrator, error) {
	if a.orchestrator == nil {
		return nil, errors.New("capture orchestrator is unavailable")
	}
	return a.orchestrator, nil
}

func (a *App) requireSynchronizer() (*settings.Synchronizer, error) {
	if a.synchronizer == nil {
		return nil, errors.New("settings synchronizer is unavailable")
	}
	return a.synchronizer, nil
}

// workContext is the parent context for control-layer calls. It is
// cancelled when shutdown stops the worker group.
func (a *App) workContext() context.Context {
	if a.workers != nil {
		return a.workers.Context()
	}
	return context.Background()
}
