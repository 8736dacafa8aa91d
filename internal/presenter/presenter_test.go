package presenter

import (
	"testing"

	"snapqr/internal/protocol"
)

func TestQRModel(t *testing.T) {
	tests := []struct {
		name       string
		results    []protocol.QRResult
		wantState  State
		wantLabels []string
	}{
		{
			name:      "nil list",
			results:   nil,
			wantState: StateEmpty,
		},
		{
			name:       "single result has no number",
			results:    []protocol.QRResult{{Content: "https://example.com", Type: protocol.QRTypeURL}},
			wantState:  StateResults,
			wantLabels: []string{"Link"},
		},
		{
			name: "multiple results are numbered",
			results: []protocol.QRResult{
				{Content: "hello", Type: protocol.QRTypeText},
				{Content: "mailto:a@b.c", Type: protocol.QRTypeEmail},
				{Content: "tel:1", Type: protocol.QRTypePhone},
				{Content: "x://y", Type: protocol.QRType("Weird")},
			},
			wantState:  StateResults,
			wantLabels: []string{"QR 1 - Text", "QR 2 - Email", "QR 3 - Phone", "QR 4 - Other"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QRModel(tt.results)
			if got.State != tt.wantState {
				t.Fatalf("QRModel().State = %q, want %q", got.State, tt.wantState)
			}
			if got.Items == nil {
				t.Fatal("QRModel().Items is nil")
			}
			if len(got.Items) != len(tt.wantLabels) {
				t.Fatalf("QRModel() items = %d, want %d", len(got.Items), len(tt.wantLabels))
			}
			for i, want := range tt.wantLabels {
				if got.Items[i].Label != want {
					t.Fatalf("item %d label = %q, want %q", i, got.Items[i].Label, want)
				}
				if got.Items[i].Content != tt.results[i].Content {
					t.Fatalf("item %d content = %q", i, got.Items[i].Content)
				}
			}
			if tt.wantState == StateEmpty && got.Message != MessageNoQR {
				t.Fatalf("QRModel().Message = %q, want %q", got.Message, MessageNoQR)
			}
		})
	}
}

func TestOCRModel(t *testing.T) {
	tests := []struct {
		name      string
		result    *protocol.OCRResult
		wantState State
		wantLabel string
	}{
		{name: "nil result", result: nil, wantState: StateEmpty},
		{name: "empty text", result: &protocol.OCRResult{Text: "", Language: "WinOCR"}, wantState: StateEmpty},
		{name: "whitespace text", result: &protocol.OCRResult{Text: " \n\t ", Language: "WinOCR"}, wantState: StateEmpty},
		{name: "engine label", result: &protocol.OCRResult{Text: "hello", Language: "Windows OCR"}, wantState: StateResults, wantLabel: "Windows OCR"},
		{name: "missing engine label", result: &protocol.OCRResult{Text: "hello"}, wantState: StateResults, wantLabel: "OCR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OCRModel(tt.result)
			if got.State != tt.wantState {
				t.Fatalf("OCRModel().State = %q, want %q", got.State, tt.wantState)
			}
			if tt.wantState == StateEmpty {
				if len(got.Items) != 0 || got.Message != MessageNoText {
					t.Fatalf("OCRModel() = %+v, want no-text empty state", got)
				}
				return
			}
			if len(got.Items) != 1 || got.Items[0].Label != tt.wantLabel || got.Items[0].Kind != KindOCR {
				t.Fatalf("OCRModel() items = %+v", got.Items)
			}
		})
	}
}

func TestPresenterPublishesChanges(t *testing.T) {
	var published []Model
	p := New(func(m Model) { published = append(published, m) })

	p.ShowStatus("Detecting QR codes...")
	p.ShowQR([]protocol.QRResult{{Content: "a", Type: protocol.QRTypeText}})
	p.Clear()

	if len(published) != 3 {
		t.Fatalf("published %d models, want 3", len(published))
	}
	if published[0].Status != "Detecting QR codes..." {
		t.Fatalf("first model status = %q", published[0].Status)
	}
	if published[1].State != StateResults || published[1].Status != "" {
		t.Fatalf("second model = %+v, want results without status", published[1])
	}
	if published[2].State != StateIdle {
		t.Fatalf("third model state = %q, want idle", published[2].State)
	}
}

func TestPresenterClearKeepsStatus(t *testing.T) {
	p := New(nil)
	p.ShowStatus("Recognizing text...")
	p.Clear()
	if got := p.Model(); got.State != StateIdle || got.Status != "Recognizing text..." {
		t.Fatalf("Model() = %+v, want idle with status", got)
	}
	p.HideStatus()
	if got := p.Model(); got.Status != "" {
		t.Fatalf("Model().Status = %q, want empty", got.Status)
	}
}

func TestPresenterItem(t *testing.T) {
	p := New(nil)
	p.ShowQR([]protocol.QRResult{{Content: "first"}, {Content: "second"}})
	item, ok := p.Item(1)
	if !ok || item.Content != "second" {
		t.Fatalf("Item(1) = (%+v, %v)", item, ok)
	}
	if _, ok := p.Item(2); ok {
		t.Fatal("Item(2) reported out-of-range item")
	}
	if _, ok := p.Item(-1); ok {
		t.Fatal("Item(-1) reported negative index")
	}
}

func TestModelIsCopied(t *testing.T) {
	p := New(nil)
	p.ShowQR([]protocol.QRResult{{Content: "a"}})
	m := p.Model()
	m.Items[0].Content = "mutated"
	if item, _ := p.Item(0); item.Content != "a" {
		t.Fatalf("Model() aliased internal items: %q", item.Content)
	}
}
