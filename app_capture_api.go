package main

import (
	"errors"
	"fmt"
	"log/slog"

	"snapqr/internal/capture"
	"snapqr/internal/presenter"
	"snapqr/internal/settings"
	"snapqr/internal/shortcut"
)

const copyFailedTitle = "Copy failed"

// ScanFull runs the full-screen QR workflow. Failures are shown as a modal
// by the orchestrator; the frontend only observes results:updated.
func (a *App) ScanFull() {
	a.runWorkflow(capture.WorkflowFull)
}

// ScanRegion starts a region QR selection.
func (a *App) ScanRegion() {
	a.runWorkflow(capture.WorkflowRegion)
}

// ScanOCR starts an OCR region selection.
func (a *App) ScanOCR() {
	a.runWorkflow(capture.WorkflowOCR)
}

func (a *App) runWorkflow(workflow capture.Workflow) {
	orchestrator, err := a.requireOrchestrator()
	if err != nil {
		slog.Warn("[WARN-CAPTURE] scan ignored", "workflow", workflow, "error", err)
		return
	}
	ctx := a.workContext()
	switch workflow {
	case capture.WorkflowFull:
		err = orchestrator.ScanFull(ctx)
	case capture.WorkflowRegion:
		err = orchestrator.ScanRegion(ctx)
	case capture.WorkflowOCR:
		err = orchestrator.ScanOCR(ctx)
	default:
		err = fmt.Errorf("unknown workflow %q", workflow)
	}

	var outcome *capture.RecoveryOutcome
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrSessionActive):
		slog.Info("[CAPTURE] scan ignored while another session is active", "workflow", workflow)
	case errors.As(err, &outcome):
		slog.Warn("[WARN-CAPTURE] scan failed", "workflow", workflow, "error", err)
	default:
		slog.Warn("[WARN-CAPTURE] scan not started", "workflow", workflow, "error", err)
	}
}

// GetResults returns the current results panel model.
func (a *App) GetResults() presenter.Model {
	return a.presenter.Model()
}

// ClearResults restores the waiting-for-scan state.
func (a *App) ClearResults() {
	a.presenter.Clear()
}

// CopyResult writes the content of the result at index to the clipboard.
// Failures are shown as a modal and reported as false.
func (a *App) CopyResult(index int) bool {
	item, ok := a.presenter.Item(index)
	if !ok {
		slog.Warn("[WARN-CAPTURE] copy requested for missing result", "index", index)
		return false
	}
	ctx, err := a.requireRuntimeContext()
	if err == nil {
		err = runtimeClipboardSetTextFn(ctx, item.Content)
	}
	if err != nil {
		slog.Warn("[WARN-CAPTURE] clipboard write failed", "index", index, "error", err)
		dialogNotifier{app: a}.ShowError(copyFailedTitle, err.Error())
		return false
	}
	slog.Debug("[DEBUG-CAPTURE] result copied", "index", index, "kind", item.Kind)
	return true
}

// ShortcutHints are the display chords shown next to the scan buttons.
type ShortcutHints struct {
	Fullscreen string `json:"fullscreen"`
	Region     string `json:"region"`
	OCR        string `json:"ocr"`
}

// GetShortcutHints returns the confirmed bindings for the scan buttons.
func (a *App) GetShortcutHints() ShortcutHints {
	current := settings.Default()
	if synchronizer, err := a.requireSynchronizer(); err == nil {
		current = synchronizer.Current()
	}
	return shortcutHintsFrom(current.Bindings())
}

func shortcutHintsFrom(bindings map[shortcut.Target]string) ShortcutHints {
	return ShortcutHints{
		Fullscreen: bindings[shortcut.TargetFullscreen],
		Region:     bindings[shortcut.TargetRegion],
		OCR:        bindings[shortcut.TargetOCR],
	}
}
