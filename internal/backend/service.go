package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"snapqr/internal/protocol"
)

// Close behaviors understood by the host and the capture service.
const (
	CloseBehaviorExit = "exit"
	CloseBehaviorTray = "tray"
)

const minimizePollInterval = 20 * time.Millisecond

// WindowController performs window commands on the host window.
type WindowController interface {
	Minimize(ctx context.Context) error
	Show(ctx context.Context) error
}

// MinimizedChecker is implemented by window controllers that can report
// the minimized state.
type MinimizedChecker interface {
	IsMinimised(ctx context.Context) (bool, error)
}

// Caller invokes a command on the capture service.
type Caller interface {
	Call(ctx context.Context, command string, args any, result any) error
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// OnCloseBehavior runs after the capture service accepted a close
	// behavior. May be nil.
	OnCloseBehavior func(behavior string)
}

// Service is the remote command gateway seen by the control layer. Window
// commands run on the host window; everything else goes to the capture
// service.
type Service struct {
	window WindowController
	caller Caller
	opts   ServiceOptions

	mu            sync.Mutex
	closeBehavior string
}

// NewService returns a gateway with the exit close behavior applied.
func NewService(window WindowController, caller Caller, opts ServiceOptions) *Service {
	return &Service{
		window:        window,
		caller:        caller,
		opts:          opts,
		closeBehavior: CloseBehaviorExit,
	}
}

// CloseBehavior returns the last close behavior the capture service accepted.
func (s *Service) CloseBehavior() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeBehavior
}

func (s *Service) MinimizeWindow(ctx context.Context) error {
	if err := s.window.Minimize(ctx); err != nil {
		return fmt.Errorf("%s: %w", protocol.CommandMinimizeWindow, err)
	}
	return nil
}

func (s *Service) ShowWindow(ctx context.Context) error {
	if err := s.window.Show(ctx); err != nil {
		return fmt.Errorf("%s: %w", protocol.CommandShowWindow, err)
	}
	return nil
}

// WaitWindowMinimized polls the window until it reports minimized or max
// elapses. Without a MinimizedChecker it waits the full max.
func (s *Service) WaitWindowMinimized(ctx context.Context, max time.Duration) error {
	deadline := time.NewTimer(max)
	defer deadline.Stop()

	checker, ok := s.window.(MinimizedChecker)
	if !ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		}
	}

	ticker := time.NewTicker(minimizePollInterval)
	defer ticker.Stop()
	for {
		minimised, err := checker.IsMinimised(ctx)
		if err != nil {
			slog.Debug("[DEBUG-BACKEND] minimized check failed, falling back to delay", "error", err)
		} else if minimised {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			slog.Debug("[DEBUG-BACKEND] window not reported minimized before delay elapsed", "max", max)
			return nil
		case <-ticker.C:
		}
	}
}

// ScanFullScreen returns the decoded codes on screen. No codes is an empty
// list, never nil.
func (s *Service) ScanFullScreen(ctx context.Context) ([]protocol.QRResult, error) {
	var results []protocol.QRResult
	if err := s.caller.Call(ctx, protocol.CommandScanFullScreen, nil, &results); err != nil {
		return nil, err
	}
	if results == nil {
		results = []protocol.QRResult{}
	}
	return results, nil
}

func (s *Service) StartRegionSelection(ctx context.Context, sessionID string) error {
	return s.caller.Call(ctx, protocol.CommandStartRegionSelection,
		protocol.RegionSelectionArgs{SessionID: sessionID}, nil)
}

func (s *Service) StartOCRRegionSelection(ctx context.Context, sessionID string) error {
	return s.caller.Call(ctx, protocol.CommandStartOCRRegionSelection,
		protocol.RegionSelectionArgs{SessionID: sessionID}, nil)
}

// SetCloseBehavior forwards behavior to the capture service and, once
// accepted, records it and notifies the host.
func (s *Service) SetCloseBehavior(ctx context.Context, behavior string) error {
	behavior = strings.ToLower(strings.TrimSpace(behavior))
	if behavior != CloseBehaviorExit && behavior != CloseBehaviorTray {
		return fmt.Errorf("%s: %w: %q", protocol.CommandSetCloseBehavior, ErrInvalidCloseBehavior, behavior)
	}
	if err := s.caller.Call(ctx, protocol.CommandSetCloseBehavior,
		protocol.CloseBehaviorArgs{Behavior: behavior}, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.closeBehavior = behavior
	s.mu.Unlock()
	if s.opts.OnCloseBehavior != nil {
		s.opts.OnCloseBehavior(behavior)
	}
	return nil
}

func (s *Service) UpdateShortcuts(ctx context.Context, shortcuts protocol.ShortcutSet) error {
	return s.caller.Call(ctx, protocol.CommandUpdateShortcuts, shortcuts, nil)
}

// ApplySettings sends close behavior and shortcuts as one logical update.
// When the shortcut update fails the previous close behavior is re-sent so
// the capture service is left as it was.
func (s *Service) ApplySettings(ctx context.Context, closeBehavior string, shortcuts protocol.ShortcutSet) error {
	previous := s.CloseBehavior()
	if err := s.SetCloseBehavior(ctx, closeBehavior); err != nil {
		return err
	}
	if err := s.UpdateShortcuts(ctx, shortcuts); err != nil {
		if rbErr := s.SetCloseBehavior(ctx, previous); rbErr != nil {
			slog.Error("[ERROR-BACKEND] close behavior rollback failed", "previous", previous, "error", rbErr)
			return errors.Join(err, fmt.Errorf("rollback close behavior: %w", rbErr))
		}
		slog.Warn("[WARN-BACKEND] shortcut update failed, close behavior rolled back",
			"previous", previous, "error", err)
		return err
	}
	return nil
}
