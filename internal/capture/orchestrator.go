package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"snapqr/internal/protocol"
)

const (
	DefaultMinimizeDelay  = 300 * time.Millisecond
	DefaultSessionTimeout = 2 * time.Minute

	statusPreparing = "Preparing scan..."
	statusDetecting = "Detecting QR codes..."
)

// Options tunes an Orchestrator. Zero values take the defaults.
type Options struct {
	MinimizeDelay  time.Duration
	SessionTimeout time.Duration

	// Test seams.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	NewID func() string
}

// Orchestrator runs capture sessions. At most one session is active at a
// time. The mutex is never held across a gateway call.
type Orchestrator struct {
	gateway  Gateway
	display  Display
	notifier Notifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	mu             sync.Mutex
	active         *Session
	minimizeDelay  time.Duration
	sessionTimeout time.Duration
}

// New returns an idle orchestrator.
func New(gateway Gateway, display Display, notifier Notifier, opts Options) *Orchestrator {
	o := &Orchestrator{
		gateway:  gateway,
		display:  display,
		notifier: notifier,
		now:      opts.Now,
		sleep:    opts.Sleep,
		newID:    opts.NewID,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	if o.newID == nil {
		o.newID = func() string { return uuid.NewString() }
	}
	o.SetTimings(opts.MinimizeDelay, opts.SessionTimeout)
	return o
}

// SetTimings replaces the pre-capture delay and the abandoned-session
// timeout. Non-positive values restore the defaults.
func (o *Orchestrator) SetTimings(minimizeDelay, sessionTimeout time.Duration) {
	if minimizeDelay <= 0 {
		minimizeDelay = DefaultMinimizeDelay
	}
	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}
	o.mu.Lock()
	o.minimizeDelay = minimizeDelay
	o.sessionTimeout = sessionTimeout
	o.mu.Unlock()
}

// Active returns the running session, if any.
func (o *Orchestrator) Active() (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Session{}, false
	}
	return *o.active, true
}

// ScanFull runs the full-screen workflow to completion: minimize, wait,
// scan, restore the window, present. A failure at any step restores the
// window and surfaces a modal; the returned error is a *RecoveryOutcome.
func (o *Orchestrator) ScanFull(ctx context.Context) error {
	session, err := o.begin(WorkflowFull)
	if err != nil {
		return err
	}
	defer o.end(session.ID)

	o.display.ShowStatus(statusPreparing)
	if err := o.gateway.MinimizeWindow(ctx); err != nil {
		return o.recover(ctx, session, fmt.Errorf("minimize window: %w", err))
	}
	if err := o.waitMinimized(ctx); err != nil {
		return o.recover(ctx, session, err)
	}

	o.setPhase(session.ID, PhaseAwaitingBackend)
	o.display.ShowStatus(statusDetecting)
	results, err := o.gateway.ScanFullScreen(ctx)
	if err != nil {
		return o.recover(ctx, session, err)
	}

	if err := o.gateway.ShowWindow(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("[WARN-CAPTURE] failed to restore window after scan", "session", session.ID, "error", err)
	}
	o.setPhase(session.ID, PhasePresenting)
	o.display.HideStatus()
	o.display.ShowQR(results)
	slog.Debug("[DEBUG-CAPTURE] full-screen scan presented", "session", session.ID, "results", len(results))
	return nil
}

// ScanRegion starts a region selection. The session stays active until a
// completion, cancellation or error event arrives.
func (o *Orchestrator) ScanRegion(ctx context.Context) error {
	return o.startSelection(ctx, WorkflowRegion, o.gateway.StartRegionSelection)
}

// ScanOCR clears the displayed results and starts an OCR region selection.
func (o *Orchestrator) ScanOCR(ctx context.Context) error {
	return o.startSelection(ctx, WorkflowOCR, o.gateway.StartOCRRegionSelection)
}

func (o *Orchestrator) startSelection(
	ctx context.Context,
	workflow Workflow,
	start func(ctx context.Context, sessionID string) error,
) error {
	session, err := o.begin(workflow)
	if err != nil {
		return err
	}
	if workflow == WorkflowOCR {
		o.display.Clear()
	}
	o.setPhase(session.ID, PhaseAwaitingBackend)
	if err := start(ctx, session.ID); err != nil {
		defer o.end(session.ID)
		return o.recover(ctx, session, err)
	}
	slog.Debug("[DEBUG-CAPTURE] selection started", "workflow", workflow, "session", session.ID)
	return nil
}

// HandleEvent routes a completion, cancellation or error event to the
// session it belongs to. Events for no active session are dropped and
// reported as ErrNoSession. A region_scan_error event yields a
// *RecoveryOutcome after the modal has been shown.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev protocol.Event) error {
	switch ev.Name {
	case protocol.EventRegionScanComplete,
		protocol.EventOCRScanComplete,
		protocol.EventRegionScanCancelled,
		protocol.EventRegionScanError:
	default:
		return fmt.Errorf("unsupported capture event %q", ev.Name)
	}

	session := o.claim(ev)
	if session == nil {
		slog.Warn("[WARN-CAPTURE] dropping event without matching session",
			"event", ev.Name, "session", ev.SessionID)
		return ErrNoSession
	}
	defer o.end(session.ID)

	switch ev.Name {
	case protocol.EventRegionScanComplete:
		results, err := ev.DecodeQRResults()
		if err != nil {
			return o.recover(ctx, *session, err)
		}
		o.restore(ctx, *session)
		o.display.HideStatus()
		o.display.ShowQR(results)
	case protocol.EventOCRScanComplete:
		result, err := ev.DecodeOCRResult()
		if err != nil {
			return o.recover(ctx, *session, err)
		}
		o.restore(ctx, *session)
		o.display.HideStatus()
		o.display.ShowOCR(result)
	case protocol.EventRegionScanCancelled:
		o.restore(ctx, *session)
		o.display.HideStatus()
		slog.Debug("[DEBUG-CAPTURE] selection cancelled", "workflow", session.Workflow, "session", session.ID)
	case protocol.EventRegionScanError:
		message := ev.DecodeMessage()
		if message == "" {
			message = "unknown error"
		}
		return o.recover(ctx, *session, errors.New(message))
	}
	return nil
}

func (o *Orchestrator) begin(workflow Workflow) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	if current := o.active; current != nil {
		stale := current.Workflow.eventDriven() && now.Sub(current.StartedAt) > o.sessionTimeout
		if !stale {
			slog.Debug("[DEBUG-CAPTURE] trigger rejected, session active",
				"requested", workflow, "active", current.Workflow, "session", current.ID)
			return Session{}, ErrSessionActive
		}
		slog.Warn("[WARN-CAPTURE] superseding abandoned session",
			"workflow", current.Workflow, "session", current.ID, "age", now.Sub(current.StartedAt))
	}
	session := &Session{
		ID:        o.newID(),
		Workflow:  workflow,
		Phase:     PhasePreparing,
		StartedAt: now,
	}
	o.active = session
	return *session, nil
}

// claim detaches the session an event belongs to. An empty event session id
// matches the active event-driven session.
func (o *Orchestrator) claim(ev protocol.Event) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	current := o.active
	if current == nil || !current.Workflow.eventDriven() {
		return nil
	}
	if ev.SessionID != "" && ev.SessionID != current.ID {
		return nil
	}
	switch {
	case ev.Name == protocol.EventRegionScanComplete && current.Workflow != WorkflowRegion,
		ev.Name == protocol.EventOCRScanComplete && current.Workflow != WorkflowOCR:
		return nil
	}
	claimed := *current
	current.Phase = PhasePresenting
	return &claimed
}

func (o *Orchestrator) end(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && o.active.ID == id {
		o.active = nil
	}
}

func (o *Orchestrator) setPhase(id string, phase Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && o.active.ID == id {
		o.active.Phase = phase
	}
}

// restore shows the window and logs a failure.
func (o *Orchestrator) restore(ctx context.Context, session Session) error {
	err := o.gateway.ShowWindow(context.WithoutCancel(ctx))
	if err != nil {
		slog.Warn("[WARN-CAPTURE] failed to restore window",
			"workflow", session.Workflow, "session", session.ID, "error", err)
	}
	return err
}

// recover restores the window best effort and surfaces primary.
func (o *Orchestrator) recover(ctx context.Context, session Session, primary error) error {
	o.setPhase(session.ID, PhaseRecovering)
	outcome := &RecoveryOutcome{
		Workflow:  session.Workflow,
		SessionID: session.ID,
		Primary:   primary,
		Secondary: o.restore(ctx, session),
	}
	slog.Error("[ERROR-CAPTURE] capture workflow failed",
		"workflow", session.Workflow, "session", session.ID, "error", primary)
	o.display.HideStatus()
	o.notifier.ShowError(session.Workflow.FailureTitle(), outcome.Message())
	return outcome
}

func (o *Orchestrator) waitMinimized(ctx context.Context) error {
	o.mu.Lock()
	delay := o.minimizeDelay
	o.mu.Unlock()
	if waiter, ok := o.gateway.(MinimizeWaiter); ok {
		if err := waiter.WaitWindowMinimized(ctx, delay); err != nil {
			return fmt.Errorf("wait for minimize: %w", err)
		}
		return nil
	}
	if err := o.sleep(ctx, delay); err != nil {
		return fmt.Errorf("wait for minimize: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
