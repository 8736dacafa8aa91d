package workerutil

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxRetries     = 10
	defaultStableRun      = time.Minute
)

var now = time.Now

// RecoveryOptions controls how a panicking worker is restarted. Zero or
// negative durations and counts take the defaults; MaxRetries of 1 means
// run once and report OnFatal on the first panic.
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int

	// StableRun resets the retry budget and backoff when a worker ran at
	// least this long before panicking. Long-lived workers such as the
	// backend read loop would otherwise die after MaxRetries panics spread
	// over days.
	StableRun time.Duration

	// OnPanic runs after each recovered panic with a 1-based attempt.
	OnPanic func(worker string, attempt int)
	// OnFatal runs once the retry budget is spent.
	OnFatal func(worker string, maxRetries int)
	// IsShutdown stops restarts during teardown; OnPanic is skipped then.
	IsShutdown func() bool
}

func (opts RecoveryOptions) applyDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.StableRun <= 0 {
		opts.StableRun = defaultStableRun
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Warn("[WARN-WORKER] MaxBackoff below InitialBackoff, raising it",
			"initialBackoff", opts.InitialBackoff, "maxBackoff", opts.MaxBackoff)
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

// RunWithPanicRecovery starts fn on a goroutine tracked by wg and restarts
// it with exponential backoff when it panics. A normal return or a
// cancelled ctx ends the worker.
func RunWithPanicRecovery(ctx context.Context, name string, wg *sync.WaitGroup, fn func(ctx context.Context), opts RecoveryOptions) {
	s := &supervisor{name: name, fn: fn, opts: opts.applyDefaults()}
	wg.Go(func() { s.run(ctx) })
}

type supervisor struct {
	name string
	fn   func(ctx context.Context)
	opts RecoveryOptions
}

func (s *supervisor) run(ctx context.Context) {
	delay := s.opts.InitialBackoff
	attempt := 0
	for {
		started := now()
		recovered, panicked := s.runOnce(ctx)
		if !panicked || ctx.Err() != nil {
			return
		}
		if s.opts.IsShutdown != nil && s.opts.IsShutdown() {
			slog.Info("[DEBUG-WORKER] panic during shutdown, not restarting", "worker", s.name)
			return
		}
		if now().Sub(started) >= s.opts.StableRun {
			attempt = 0
			delay = s.opts.InitialBackoff
		}
		attempt++

		slog.Warn("[WARN-WORKER] worker panicked",
			"worker", s.name, "attempt", attempt, "panic", recovered)
		if s.opts.OnPanic != nil {
			s.opts.OnPanic(s.name, attempt)
		}
		if attempt >= s.opts.MaxRetries {
			break
		}
		if !sleepContext(ctx, delay) {
			return
		}
		delay = nextBackoff(delay, s.opts.MaxBackoff)
	}

	slog.Error("[ERROR-WORKER] worker stopped after repeated panics",
		"worker", s.name, "maxRetries", s.opts.MaxRetries)
	if s.opts.OnFatal != nil {
		s.opts.OnFatal(s.name, s.opts.MaxRetries)
	}
}

func (s *supervisor) runOnce(ctx context.Context) (recovered any, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ERROR-WORKER] recovered panic",
				"worker", s.name, "panic", r, "stack", string(debug.Stack()))
			recovered, panicked = r, true
		}
	}()
	s.fn(ctx)
	return nil, false
}

// sleepContext reports false when ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff doubles current up to maxBackoff, guarding against overflow.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
