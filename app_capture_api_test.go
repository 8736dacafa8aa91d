package main

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"snapqr/internal/backend"
	"snapqr/internal/capture"
	"snapqr/internal/presenter"
	"snapqr/internal/protocol"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

func TestScanFullPresentsResultsAndRestoresWindow(t *testing.T) {
	rec := installRuntimeRecorder(t)
	caller := newFakeCaller()
	caller.results = []protocol.QRResult{{Content: "https://example.com", Type: protocol.QRTypeURL}}
	app := newWiredTestApp(t, caller)

	app.ScanFull()

	if got := caller.count(protocol.CommandScanFullScreen); got != 1 {
		t.Fatalf("scan_full_screen calls = %d, want 1", got)
	}
	calls := rec.windowCalls()
	minimise := slices.Index(calls, "minimise")
	show := slices.Index(calls, "show")
	if minimise < 0 || show < minimise {
		t.Fatalf("window calls = %v, want minimise before show", calls)
	}
	model := app.GetResults()
	if model.State != presenter.StateResults || len(model.Items) != 1 || model.Items[0].Label != "Link" {
		t.Fatalf("GetResults() = %+v, want one Link result", model)
	}
	if len(rec.eventsNamed("results:updated")) == 0 || len(rec.eventsNamed("status:changed")) == 0 {
		t.Fatal("expected results:updated and status:changed events")
	}
	if rec.dialogCount() != 0 {
		t.Fatalf("dialogs = %d, want 0", rec.dialogCount())
	}
}

func TestScanFullFailureShowsModalAfterRestoringWindow(t *testing.T) {
	rec := installRuntimeRecorder(t)
	caller := newFakeCaller()
	caller.setErr(protocol.CommandScanFullScreen, &backend.RemoteError{
		Command: protocol.CommandScanFullScreen,
		Message: "screen capture denied",
	})
	app := newWiredTestApp(t, caller)

	app.ScanFull()

	if !slices.Contains(rec.windowCalls(), "show") {
		t.Fatalf("window calls = %v, want show", rec.windowCalls())
	}
	if rec.dialogCount() != 1 {
		t.Fatalf("dialogs = %d, want 1", rec.dialogCount())
	}
	dialog := rec.dialogs[0]
	if dialog.Type != runtime.ErrorDialog || dialog.Title != capture.WorkflowFull.FailureTitle() {
		t.Fatalf("dialog = %+v, want error dialog titled %q", dialog, capture.WorkflowFull.FailureTitle())
	}
	if _, active := app.orchestrator.Active(); active {
		t.Fatal("session still active after failure")
	}
}

func TestShortcutTriggerRunsRegionWorkflowToCompletion(t *testing.T) {
	rec := installRuntimeRecorder(t)
	caller := newFakeCaller()
	app := newWiredTestApp(t, caller)

	app.bus.Publish(protocol.Event{Name: protocol.EventTriggerScanRegion})
	app.bus.Publish(protocol.Event{Name: protocol.EventTriggerScanRegion})
	if got := caller.count(protocol.CommandStartRegionSelection); got != 1 {
		t.Fatalf("start_region_selection calls = %d, want 1 while a session is active", got)
	}

	app.bus.Publish(protocol.Event{
		Name:      protocol.EventRegionScanComplete,
		SessionID: "s-1",
		Payload:   json.RawMessage(`[{"content":"hello","qr_type":"Text"},{"content":"https://a.example","qr_type":"Url"}]`),
	})

	model := app.GetResults()
	if len(model.Items) != 2 || model.Items[0].Label != "QR 1 - Text" || model.Items[1].Label != "QR 2 - Link" {
		t.Fatalf("GetResults() = %+v, want two numbered results", model)
	}
	if !slices.Contains(rec.windowCalls(), "show") {
		t.Fatalf("window calls = %v, want show after completion", rec.windowCalls())
	}
	if _, active := app.orchestrator.Active(); active {
		t.Fatal("session still active after completion")
	}
}

func TestRegionCancelRestoresWindowWithoutModal(t *testing.T) {
	rec := installRuntimeRecorder(t)
	app := newWiredTestApp(t, newFakeCaller())

	app.ScanRegion()
	app.bus.Publish(protocol.Event{Name: protocol.EventRegionScanCancelled, SessionID: "s-1"})

	if rec.dialogCount() != 0 {
		t.Fatalf("dialogs = %d, want 0", rec.dialogCount())
	}
	if !slices.Contains(rec.windowCalls(), "show") {
		t.Fatalf("window calls = %v, want show", rec.windowCalls())
	}
	if got := app.GetResults(); got.State != presenter.StateIdle {
		t.Fatalf("GetResults().State = %q, want idle", got.State)
	}
}

func TestOCRWithoutTextShowsEmptyState(t *testing.T) {
	installRuntimeRecorder(t)
	caller := newFakeCaller()
	app := newWiredTestApp(t, caller)

	app.bus.Publish(protocol.Event{Name: protocol.EventTriggerOCRRegion})
	if got := caller.count(protocol.CommandStartOCRRegionSelection); got != 1 {
		t.Fatalf("start_ocr_region_selection calls = %d, want 1", got)
	}
	app.bus.Publish(protocol.Event{
		Name:      protocol.EventOCRScanComplete,
		SessionID: "s-1",
		Payload:   json.RawMessage(`{"text":"  ","language":"WinOCR"}`),
	})

	model := app.GetResults()
	if model.State != presenter.StateEmpty || model.Message != presenter.MessageNoText {
		t.Fatalf("GetResults() = %+v, want empty state with %q", model, presenter.MessageNoText)
	}
}

func TestRegionErrorEventShowsModal(t *testing.T) {
	rec := installRuntimeRecorder(t)
	app := newWiredTestApp(t, newFakeCaller())

	app.ScanRegion()
	app.bus.Publish(protocol.Event{
		Name:      protocol.EventRegionScanError,
		SessionID: "s-1",
		Payload:   json.RawMessage(`"selection failed"`),
	})

	if rec.dialogCount() != 1 {
		t.Fatalf("dialogs = %d, want 1", rec.dialogCount())
	}
	if got := rec.dialogs[0].Title; got != capture.WorkflowRegion.FailureTitle() {
		t.Fatalf("dialog title = %q, want %q", got, capture.WorkflowRegion.FailureTitle())
	}
}

func TestCaptureEventForUnknownSessionIsDropped(t *testing.T) {
	rec := installRuntimeRecorder(t)
	app := newWiredTestApp(t, newFakeCaller())

	app.ScanRegion()
	app.bus.Publish(protocol.Event{
		Name:      protocol.EventRegionScanComplete,
		SessionID: "stale",
		Payload:   json.RawMessage(`[{"content":"x","qr_type":"Text"}]`),
	})

	if got := app.GetResults(); got.State != presenter.StateIdle {
		t.Fatalf("GetResults().State = %q, want idle", got.State)
	}
	if _, active := app.orchestrator.Active(); !active {
		t.Fatal("session ended by an event for another session")
	}
	if rec.dialogCount() != 0 {
		t.Fatalf("dialogs = %d, want 0", rec.dialogCount())
	}
}

func TestCopyResult(t *testing.T) {
	rec := installRuntimeRecorder(t)
	caller := newFakeCaller()
	caller.results = []protocol.QRResult{{Content: "WIFI:S:home;;", Type: protocol.QRTypeOther}}
	app := newWiredTestApp(t, caller)
	app.ScanFull()

	if !app.CopyResult(0) {
		t.Fatal("CopyResult(0) = false, want true")
	}
	if len(rec.clipboard) != 1 || rec.clipboard[0] != "WIFI:S:home;;" {
		t.Fatalf("clipboard = %v, want the result content", rec.clipboard)
	}
	if app.CopyResult(3) {
		t.Fatal("CopyResult(3) = true for a missing item")
	}
	if rec.dialogCount() != 0 {
		t.Fatalf("dialogs = %d after missing item, want 0", rec.dialogCount())
	}

	rec.clipboardErr = errors.New("clipboard locked")
	if app.CopyResult(0) {
		t.Fatal("CopyResult(0) = true when the clipboard fails")
	}
	if rec.dialogCount() != 1 || rec.dialogs[0].Title != copyFailedTitle {
		t.Fatalf("dialogs = %+v, want one %q dialog", rec.dialogs, copyFailedTitle)
	}
}

func TestClearResultsRestoresIdleState(t *testing.T) {
	installRuntimeRecorder(t)
	caller := newFakeCaller()
	caller.results = []protocol.QRResult{{Content: "a", Type: protocol.QRTypeText}}
	app := newWiredTestApp(t, caller)
	app.ScanFull()

	app.ClearResults()

	model := app.GetResults()
	if model.State != presenter.StateIdle || model.Message != presenter.MessageIdle || len(model.Items) != 0 {
		t.Fatalf("GetResults() = %+v, want idle", model)
	}
}

func TestScanBeforeStartupIsIgnored(t *testing.T) {
	installRuntimeRecorder(t)
	app := NewApp()
	app.ScanFull()
	app.ScanOCR()
	if got := app.GetResults(); got.State != presenter.StateIdle {
		t.Fatalf("GetResults().State = %q, want idle", got.State)
	}
}
