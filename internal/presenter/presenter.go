// Package presenter projects scan and OCR payloads into the display model
// rendered by the results panel.
package presenter

import (
	"fmt"
	"strings"
	"sync"

	"snapqr/internal/protocol"
)

// State is the results panel mode.
type State string

const (
	StateIdle    State = "idle"
	StateEmpty   State = "empty"
	StateResults State = "results"
)

// Messages shown for the non-result states.
const (
	MessageIdle   = "Waiting for a scan"
	MessageNoQR   = "No QR code found"
	MessageNoText = "No text recognized"
)

// ItemKind distinguishes QR entries from OCR text.
type ItemKind string

const (
	KindQR  ItemKind = "qr"
	KindOCR ItemKind = "ocr"
)

// Item is one rendered result.
type Item struct {
	Index   int      `json:"index"`
	Kind    ItemKind `json:"kind"`
	Label   string   `json:"label"`
	Content string   `json:"content"`
}

// Model is the full results panel state.
type Model struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
	Items   []Item `json:"items"`
	Status  string `json:"status,omitempty"`
}

// IdleModel is the panel before any scan.
func IdleModel() Model {
	return Model{State: StateIdle, Message: MessageIdle, Items: []Item{}}
}

// TypeLabel returns the label for a QR content type.
func TypeLabel(t protocol.QRType) string {
	switch t {
	case protocol.QRTypeURL:
		return "Link"
	case protocol.QRTypeText:
		return "Text"
	case protocol.QRTypeEmail:
		return "Email"
	case protocol.QRTypePhone:
		return "Phone"
	default:
		return "Other"
	}
}

// QRModel renders a scan result list. With more than one result each label
// carries its position.
func QRModel(results []protocol.QRResult) Model {
	if len(results) == 0 {
		return Model{State: StateEmpty, Message: MessageNoQR, Items: []Item{}}
	}
	items := make([]Item, len(results))
	for i, r := range results {
		label := TypeLabel(r.Type)
		if len(results) > 1 {
			label = fmt.Sprintf("QR %d - %s", i+1, label)
		}
		items[i] = Item{Index: i, Kind: KindQR, Label: label, Content: r.Content}
	}
	return Model{State: StateResults, Items: items}
}

// OCRModel renders a recognition result. A nil result or whitespace-only
// text is the empty state.
func OCRModel(result *protocol.OCRResult) Model {
	if result == nil || strings.TrimSpace(result.Text) == "" {
		return Model{State: StateEmpty, Message: MessageNoText, Items: []Item{}}
	}
	label := strings.TrimSpace(result.Language)
	if label == "" {
		label = "OCR"
	}
	return Model{
		State: StateResults,
		Items: []Item{{Index: 0, Kind: KindOCR, Label: label, Content: result.Text}},
	}
}

// Presenter holds the current model and publishes every change.
type Presenter struct {
	mu      sync.Mutex
	model   Model
	publish func(Model)
}

// New returns a presenter in the idle state. publish may be nil.
func New(publish func(Model)) *Presenter {
	return &Presenter{model: IdleModel(), publish: publish}
}

// Model returns a copy of the current model.
func (p *Presenter) Model() Model {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneModel(p.model)
}

// Item returns the result at index.
func (p *Presenter) Item(index int) (Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.model.Items) {
		return Item{}, false
	}
	return p.model.Items[index], true
}

// Clear returns the panel to the idle state.
func (p *Presenter) Clear() {
	p.update(func(m *Model) {
		status := m.Status
		*m = IdleModel()
		m.Status = status
	})
}

// ShowQR replaces the panel with a scan result list.
func (p *Presenter) ShowQR(results []protocol.QRResult) {
	p.update(func(m *Model) { *m = QRModel(results) })
}

// ShowOCR replaces the panel with a recognition result.
func (p *Presenter) ShowOCR(result *protocol.OCRResult) {
	p.update(func(m *Model) { *m = OCRModel(result) })
}

// ShowStatus sets the transient status line.
func (p *Presenter) ShowStatus(text string) {
	p.update(func(m *Model) { m.Status = text })
}

// HideStatus clears the transient status line.
func (p *Presenter) HideStatus() {
	p.update(func(m *Model) { m.Status = "" })
}

func (p *Presenter) update(fn func(*Model)) {
	p.mu.Lock()
	fn(&p.model)
	snapshot := cloneModel(p.model)
	publish := p.publish
	p.mu.Unlock()
	if publish != nil {
		publish(snapshot)
	}
}

func cloneModel(m Model) Model {
	out := m
	out.Items = append([]Item{}, m.Items...)
	return out
}
