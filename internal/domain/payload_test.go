package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodePayloadKeepsStyle(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"canvas_id":"6f1c1c58-61a4-4bd5-9f4a-2f2b0f6f9e2e","prompt":"floor plan","style":"blueprint","width":1024,"height":768,"max_shapes":12}`)
	p, err := DecodePayload(KindCanvasGeneration, raw)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	canvas, ok := p.(*CanvasGenerationPayload)
	if !ok {
		t.Fatalf("Expected *CanvasGenerationPayload, got %T", p)
	}
	if canvas.Style != "blueprint" || canvas.MaxShapes != 12 {
		t.Errorf("Unexpected payload: %+v", canvas)
	}
	if p.Kind() != KindCanvasGeneration {
		t.Errorf("Expected kind %s, got %s", KindCanvasGeneration, p.Kind())
	}
}

func TestEncodeResult(t *testing.T) {
	t.Parallel()

	valid := &CanvasGenerationResult{
		Shapes: []Shape{
			{Type: ShapeRect, X: 10, Y: 10, Width: 100, Height: 40, Fill: "#fde68a"},
			{Type: ShapeArrow, Points: []Point{{X: 0, Y: 0}, {X: 50, Y: 50}}},
			{Type: ShapeText, X: 20, Y: 20, Text: "Entrance"},
		},
		Summary: "A simple entrance diagram",
	}

	raw, err := EncodeResult(valid)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	decoded, err := DecodeResult(KindCanvasGeneration, raw)
	if err != nil {
		t.Fatalf("Expected no error decoding, got %v", err)
	}
	if got := decoded.(*CanvasGenerationResult); len(got.Shapes) != 3 {
		t.Errorf("Expected 3 shapes, got %d", len(got.Shapes))
	}

	tests := []struct {
		name   string
		result *CanvasGenerationResult
	}{
		{"no shapes", &CanvasGenerationResult{}},
		{"unknown shape", &CanvasGenerationResult{Shapes: []Shape{{Type: "star"}}}},
		{"line without points", &CanvasGenerationResult{Shapes: []Shape{{Type: ShapeLine}}}},
		{"empty text", &CanvasGenerationResult{Shapes: []Shape{{Type: ShapeText}}}},
		{"negative size", &CanvasGenerationResult{Shapes: []Shape{{Type: ShapeRect, Width: -1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := EncodeResult(tt.result); !errors.Is(err, ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodeResultUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := DecodeResult(Kind("nope"), json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}
