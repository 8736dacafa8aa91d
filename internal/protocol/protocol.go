package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Commands understood by the capture service.
const (
	CommandMinimizeWindow          = "minimize_window"
	CommandShowWindow              = "show_window"
	CommandScanFullScreen          = "scan_full_screen"
	CommandStartRegionSelection    = "start_region_selection"
	CommandStartOCRRegionSelection = "start_ocr_region_selection"
	CommandSetCloseBehavior        = "set_close_behavior"
	CommandUpdateShortcuts         = "update_shortcuts"
)

// Events pushed by the capture service.
const (
	EventTriggerScanFull     = "trigger_scan_full"
	EventTriggerScanRegion   = "trigger_scan_region"
	EventTriggerOCRRegion    = "trigger_ocr_region"
	EventRegionScanComplete  = "region_scan_complete"
	EventOCRScanComplete     = "ocr_scan_complete"
	EventRegionScanCancelled = "region_scan_cancelled"
	EventRegionScanError     = "region_scan_error"
)

// Frame types.
const (
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameEvent    = "event"
)

// Frame is the single JSON envelope exchanged over the capture service
// connection. Fields are populated according to Type.
type Frame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Command   string          `json:"command,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	OK        bool            `json:"ok,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Event is a decoded backend notification.
type Event struct {
	Name      string
	SessionID string
	Payload   json.RawMessage
}

// EventFromFrame converts an event frame. It returns an error for any other
// frame type or a frame without an event name.
func EventFromFrame(frame Frame) (Event, error) {
	if frame.Type != FrameEvent {
		return Event{}, fmt.Errorf("frame type %q is not an event", frame.Type)
	}
	name := strings.TrimSpace(frame.Event)
	if name == "" {
		return Event{}, errors.New("event frame without name")
	}
	return Event{
		Name:      name,
		SessionID: strings.TrimSpace(frame.SessionID),
		Payload:   frame.Payload,
	}, nil
}

// QRType classifies decoded QR content.
type QRType string

const (
	QRTypeURL   QRType = "Url"
	QRTypeText  QRType = "Text"
	QRTypeEmail QRType = "Email"
	QRTypePhone QRType = "Phone"
	QRTypeOther QRType = "Other"
)

// QRTypeFromContent infers the content type the same way the capture
// service labels decoded codes.
func QRTypeFromContent(content string) QRType {
	switch {
	case strings.HasPrefix(content, "http://"), strings.HasPrefix(content, "https://"):
		return QRTypeURL
	case strings.HasPrefix(content, "mailto:"):
		return QRTypeEmail
	case strings.HasPrefix(content, "tel:"):
		return QRTypePhone
	case strings.Contains(content, "://"):
		return QRTypeOther
	default:
		return QRTypeText
	}
}

// QRResult is one decoded code.
type QRResult struct {
	Content string `json:"content"`
	Type    QRType `json:"qr_type"`
}

// OCRResult is the text recognition outcome. Language carries the engine
// label reported by the capture service.
type OCRResult struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// RegionSelectionArgs tags a region or OCR selection with the session that
// started it. The capture service echoes SessionID on the completion event.
type RegionSelectionArgs struct {
	SessionID string `json:"session_id"`
}

// CloseBehaviorArgs is the argument of set_close_behavior.
type CloseBehaviorArgs struct {
	Behavior string `json:"behavior"`
}

// ShortcutSet is the argument of update_shortcuts. Values are canonical
// chords such as "ctrl+shift+s".
type ShortcutSet struct {
	Fullscreen string `json:"fullscreen_shortcut"`
	Region     string `json:"region_shortcut"`
	OCR        string `json:"ocr_shortcut"`
}

// DecodeQRResults decodes a region_scan_complete payload. A missing payload
// decodes to an empty list.
func (e Event) DecodeQRResults() ([]QRResult, error) {
	if isEmptyPayload(e.Payload) {
		return []QRResult{}, nil
	}
	var results []QRResult
	if err := json.Unmarshal(e.Payload, &results); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	if results == nil {
		results = []QRResult{}
	}
	return results, nil
}

// DecodeOCRResult decodes an ocr_scan_complete payload. A nil result means
// the capture service reported no recognition result at all.
func (e Event) DecodeOCRResult() (*OCRResult, error) {
	if isEmptyPayload(e.Payload) {
		return nil, nil
	}
	var result OCRResult
	if err := json.Unmarshal(e.Payload, &result); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return &result, nil
}

// DecodeMessage decodes a string payload such as the region_scan_error
// message. Non-string payloads are returned verbatim.
func (e Event) DecodeMessage() string {
	if isEmptyPayload(e.Payload) {
		return ""
	}
	var message string
	if err := json.Unmarshal(e.Payload, &message); err != nil {
		return strings.TrimSpace(string(e.Payload))
	}
	return strings.TrimSpace(message)
}

func isEmptyPayload(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// EncodeFrame marshals a frame for a text message.
func EncodeFrame(frame Frame) ([]byte, error) {
	return json.Marshal(frame)
}

// DecodeFrame unmarshals a text message into a frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, err
	}
	if frame.Type == "" {
		return Frame{}, errors.New("frame type is required")
	}
	return frame, nil
}

// MarshalArgs encodes command arguments. nil args encode to no field.
func MarshalArgs(args any) (json.RawMessage, error) {
	if args == nil {
		return nil, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
