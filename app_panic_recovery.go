package main

import (
	"time"

	"snapqr/internal/workerutil"
)

const (
	initialPanicRestartBackoff = 100 * time.Millisecond
	maxPanicRestartBackoff     = 5 * time.Second
	maxPanicRestartRetries     = 10
)

type workerPanicEvent struct {
	Worker  string `json:"worker"`
	Attempt int    `json:"attempt"`
	Fatal   bool   `json:"fatal"`
}

// workerRecoveryOptions restarts panicking background workers with backoff
// and reports each panic to the frontend as app:worker-panic.
func (a *App) workerRecoveryOptions() workerutil.RecoveryOptions {
	return workerutil.RecoveryOptions{
		InitialBackoff: initialPanicRestartBackoff,
		MaxBackoff:     maxPanicRestartBackoff,
		MaxRetries:     maxPanicRestartRetries,
		OnPanic: func(worker string, attempt int) {
			a.emitRuntimeEvent("app:worker-panic", workerPanicEvent{Worker: worker, Attempt: attempt})
		},
		OnFatal: func(worker string, maxRetries int) {
			a.emitRuntimeEvent("app:worker-panic", workerPanicEvent{Worker: worker, Attempt: maxRetries, Fatal: true})
		},
		IsShutdown: a.shuttingDown.Load,
	}
}
