package wsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"snapqr/internal/protocol"
)

// SelectionOutcome is how a simulated region selection ends.
type SelectionOutcome string

const (
	OutcomeComplete SelectionOutcome = "complete"
	OutcomeCancel   SelectionOutcome = "cancel"
	OutcomeError    SelectionOutcome = "error"
)

// ParseSelectionOutcome accepts complete, cancel or error.
func ParseSelectionOutcome(raw string) (SelectionOutcome, error) {
	switch SelectionOutcome(strings.ToLower(strings.TrimSpace(raw))) {
	case OutcomeComplete:
		return OutcomeComplete, nil
	case OutcomeCancel:
		return OutcomeCancel, nil
	case OutcomeError:
		return OutcomeError, nil
	default:
		return "", fmt.Errorf("unknown selection outcome %q", raw)
	}
}

// Emitter pushes events to the connected client.
type Emitter interface {
	Emit(event, sessionID string, payload any) error
}

// SimulatorOptions configures the canned capture behavior.
type SimulatorOptions struct {
	// Contents are the decoded codes reported by scans. Types are inferred
	// from the content.
	Contents []string
	OCRText  string
	// OCREngine is reported as the OCR result language.
	OCREngine      string
	SelectionDelay time.Duration
	Outcome        SelectionOutcome
	ErrorMessage   string
}

// Simulator is a Handler that imitates the capture service: scans return
// canned codes and region selections finish after a delay by emitting the
// completion, cancellation or error event tagged with the session id.
type Simulator struct {
	mu            sync.Mutex
	opts          SimulatorOptions
	emitter       Emitter
	closeBehavior string
	shortcuts     protocol.ShortcutSet
	commands      []string

	selections sync.WaitGroup
}

// NewSimulator returns a simulator; Attach must be called before region
// selections can complete.
func NewSimulator(opts SimulatorOptions) *Simulator {
	if opts.Outcome == "" {
		opts.Outcome = OutcomeComplete
	}
	if opts.OCREngine == "" {
		opts.OCREngine = "Simulated OCR"
	}
	if opts.ErrorMessage == "" {
		opts.ErrorMessage = "simulated capture failure"
	}
	return &Simulator{opts: opts, closeBehavior: "exit"}
}

// Attach sets the emitter used for selection outcomes and triggers.
func (s *Simulator) Attach(emitter Emitter) {
	s.mu.Lock()
	s.emitter = emitter
	s.mu.Unlock()
}

// SetOutcome changes how later selections end.
func (s *Simulator) SetOutcome(outcome SelectionOutcome) {
	s.mu.Lock()
	s.opts.Outcome = outcome
	s.mu.Unlock()
}

// State returns the applied close behavior and shortcuts.
func (s *Simulator) State() (string, protocol.ShortcutSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeBehavior, s.shortcuts
}

// Commands returns the command names received so far.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Wait blocks until scheduled selections have emitted their outcome.
func (s *Simulator) Wait() {
	s.selections.Wait()
}

// Trigger emits the global-shortcut event for workflow (full, region or ocr).
func (s *Simulator) Trigger(workflow string) error {
	var event string
	switch strings.ToLower(strings.TrimSpace(workflow)) {
	case "full":
		event = protocol.EventTriggerScanFull
	case "region":
		event = protocol.EventTriggerScanRegion
	case "ocr":
		event = protocol.EventTriggerOCRRegion
	default:
		return fmt.Errorf("unknown workflow %q", workflow)
	}
	return s.emit(event, "", nil)
}

func (s *Simulator) HandleCommand(ctx context.Context, command string, args json.RawMessage) (any, error) {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()

	switch command {
	case protocol.CommandMinimizeWindow, protocol.CommandShowWindow:
		slog.Debug("[DEBUG-SIM] window command", "command", command)
		return nil, nil
	case protocol.CommandScanFullScreen:
		return s.results(), nil
	case protocol.CommandStartRegionSelection, protocol.CommandStartOCRRegionSelection:
		var sel protocol.RegionSelectionArgs
		if len(args) > 0 {
			if err := json.Unmarshal(args, &sel); err != nil {
				return nil, fmt.Errorf("invalid selection args: %w", err)
			}
		}
		s.scheduleSelection(command == protocol.CommandStartOCRRegionSelection, sel.SessionID)
		return nil, nil
	case protocol.CommandSetCloseBehavior:
		var cb protocol.CloseBehaviorArgs
		if err := json.Unmarshal(args, &cb); err != nil {
			return nil, fmt.Errorf("invalid close behavior args: %w", err)
		}
		if cb.Behavior != "exit" && cb.Behavior != "tray" {
			return nil, fmt.Errorf("invalid close behavior %q", cb.Behavior)
		}
		s.mu.Lock()
		s.closeBehavior = cb.Behavior
		s.mu.Unlock()
		return nil, nil
	case protocol.CommandUpdateShortcuts:
		var set protocol.ShortcutSet
		if err := json.Unmarshal(args, &set); err != nil {
			return nil, fmt.Errorf("invalid shortcut args: %w", err)
		}
		if set.Fullscreen == "" || set.Region == "" || set.OCR == "" {
			return nil, fmt.Errorf("all three shortcuts are required")
		}
		if set.Fullscreen == set.Region || set.Fullscreen == set.OCR || set.Region == set.OCR {
			return nil, fmt.Errorf("shortcuts must be distinct")
		}
		s.mu.Lock()
		s.shortcuts = set
		s.mu.Unlock()
		slog.Info("[DEBUG-SIM] shortcuts registered",
			"fullscreen", set.Fullscreen, "region", set.Region, "ocr", set.OCR)
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported command %q", command)
	}
}

func (s *Simulator) results() []protocol.QRResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]protocol.QRResult, 0, len(s.opts.Contents))
	for _, content := range s.opts.Contents {
		results = append(results, protocol.QRResult{
			Content: content,
			Type:    protocol.QRTypeFromContent(content),
		})
	}
	return results
}

func (s *Simulator) scheduleSelection(ocr bool, sessionID string) {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()

	s.selections.Go(func() {
		if opts.SelectionDelay > 0 {
			time.Sleep(opts.SelectionDelay)
		}
		var err error
		switch {
		case opts.Outcome == OutcomeCancel:
			err = s.emit(protocol.EventRegionScanCancelled, sessionID, nil)
		case opts.Outcome == OutcomeError:
			err = s.emit(protocol.EventRegionScanError, sessionID, opts.ErrorMessage)
		case ocr:
			err = s.emit(protocol.EventOCRScanComplete, sessionID, protocol.OCRResult{
				Text:     opts.OCRText,
				Language: opts.OCREngine,
			})
		default:
			err = s.emit(protocol.EventRegionScanComplete, sessionID, s.results())
		}
		if err != nil {
			slog.Warn("[DEBUG-SIM] failed to emit selection outcome", "session", sessionID, "error", err)
		}
	})
}

func (s *Simulator) emit(event, sessionID string, payload any) error {
	s.mu.Lock()
	emitter := s.emitter
	s.mu.Unlock()
	if emitter == nil {
		return fmt.Errorf("simulator not attached")
	}
	return emitter.Emit(event, sessionID, payload)
}
