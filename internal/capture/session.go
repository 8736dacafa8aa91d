// Package capture sequences the capture workflows: window visibility, the
// remote scan commands and the presentation of results or failures.
//
// Every session ends with the main window shown, whether the workflow
// succeeded, was cancelled or failed. Restoration failures are logged and
// never replace the error that ended the session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snapqr/internal/protocol"
)

// Workflow identifies a capture workflow.
type Workflow string

const (
	WorkflowFull   Workflow = "full"
	WorkflowRegion Workflow = "region"
	WorkflowOCR    Workflow = "ocr"
)

// FailureTitle is the modal title used when the workflow fails.
func (w Workflow) FailureTitle() string {
	switch w {
	case WorkflowRegion:
		return "Region scan failed"
	case WorkflowOCR:
		return "OCR failed"
	default:
		return "Scan failed"
	}
}

// eventDriven reports whether the workflow completes through backend events.
func (w Workflow) eventDriven() bool {
	return w == WorkflowRegion || w == WorkflowOCR
}

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhasePreparing       Phase = "preparing"
	PhaseAwaitingBackend Phase = "awaiting-backend"
	PhasePresenting      Phase = "presenting"
	PhaseRecovering      Phase = "recovering"
)

// Session is one run of a workflow.
type Session struct {
	ID        string    `json:"id"`
	Workflow  Workflow  `json:"workflow"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"startedAt"`
}

var (
	// ErrSessionActive is returned when a workflow is triggered while another
	// session has not finished.
	ErrSessionActive = errors.New("capture session already active")
	// ErrNoSession is returned for completion events that match no active
	// session.
	ErrNoSession = errors.New("no capture session matches event")
)

// RecoveryOutcome describes a failed session. Primary is the failure that
// ended the session; Secondary is a window restoration failure, if any.
type RecoveryOutcome struct {
	Workflow  Workflow
	SessionID string
	Primary   error
	Secondary error
}

func (o *RecoveryOutcome) Error() string {
	return fmt.Sprintf("%s: %v", o.Workflow.FailureTitle(), o.Primary)
}

// Unwrap exposes only the primary failure.
func (o *RecoveryOutcome) Unwrap() error {
	return o.Primary
}

// Message is the text shown to the user.
func (o *RecoveryOutcome) Message() string {
	return o.Error()
}

// Gateway is the subset of remote commands the orchestrator drives.
type Gateway interface {
	MinimizeWindow(ctx context.Context) error
	ShowWindow(ctx context.Context) error
	ScanFullScreen(ctx context.Context) ([]protocol.QRResult, error)
	StartRegionSelection(ctx context.Context, sessionID string) error
	StartOCRRegionSelection(ctx context.Context, sessionID string) error
}

// MinimizeWaiter is implemented by gateways that can observe the window
// reaching the minimized state. WaitWindowMinimized returns once the window
// is minimized or max has elapsed.
type MinimizeWaiter interface {
	WaitWindowMinimized(ctx context.Context, max time.Duration) error
}

// Display receives presentation updates.
type Display interface {
	Clear()
	ShowQR(results []protocol.QRResult)
	ShowOCR(result *protocol.OCRResult)
	ShowStatus(text string)
	HideStatus()
}

// Notifier shows a blocking error message.
type Notifier interface {
	ShowError(title, message string)
}
