package gemini

import "github.com/phrazzld/sketchpad-api/internal/domain"

// promptData represents the data passed to the prompt template
type promptData struct {
	Prompt    string
	Style     string
	Width     int
	Height    int
	MaxShapes int
}

// ResponseSchema represents the expected structure of a canvas from the Gemini API
type ResponseSchema struct {
	// Shapes are the drawn canvas elements
	Shapes []domain.Shape `json:"shapes"`

	// Summary is a one sentence description of the drawing
	Summary string `json:"summary,omitempty"`
}
