package workerutil

import (
	"context"
	"sync"
)

// Group runs named background workers under one context and one set of
// recovery options. Stop cancels every worker and waits for them to exit.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   RecoveryOptions

	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewGroup derives the group context from parent.
func NewGroup(parent context.Context, opts RecoveryOptions) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel, opts: opts}
}

// Go starts fn with panic recovery. It reports false once Stop was called.
func (g *Group) Go(name string, fn func(ctx context.Context)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	RunWithPanicRecovery(g.ctx, name, &g.wg, fn, g.opts)
	return true
}

// Context is cancelled by Stop.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Stop cancels the group and waits for its workers. Safe to call repeatedly.
func (g *Group) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.cancel()
	g.wg.Wait()
}
