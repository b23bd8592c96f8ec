package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Kind identifies the type of work a job performs. Payload and result
// encodings are keyed by kind.
type Kind string

// Known job kinds
const (
	KindCanvasGeneration Kind = "canvas_generation"
)

// Payload is the typed request data of a job.
type Payload interface {
	Kind() Kind
	Validate() error
}

// Result is the typed output of a completed job.
type Result interface {
	Kind() Kind
	Validate() error
}

type codec struct {
	payload func() Payload
	result  func() Result
}

var codecs = map[Kind]codec{
	KindCanvasGeneration: {
		payload: func() Payload { return &CanvasGenerationPayload{} },
		result:  func() Result { return &CanvasGenerationResult{} },
	},
}

var validate = validator.New()

// Valid reports whether k has a registered codec.
func (k Kind) Valid() bool {
	_, ok := codecs[k]
	return ok
}

// DecodePayload strictly decodes raw into the payload type registered for
// kind and validates it. Unknown fields are rejected.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	c, ok := codecs[kind]
	if !ok {
		return nil, NewValidationError("kind", fmt.Sprintf("%q is not supported", kind), ErrUnknownKind)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, NewValidationError("payload", "is required", nil)
	}

	p := c.payload()
	if err := decodeStrict(raw, p); err != nil {
		return nil, NewValidationError("payload", "is not valid JSON for "+string(kind), ErrInvalidFormat)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeResult decodes raw into the result type registered for kind.
func DecodeResult(kind Kind, raw json.RawMessage) (Result, error) {
	c, ok := codecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	r := c.result()
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("%w: result: %v", ErrInvalidFormat, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// EncodeResult validates r and returns the bytes that are stored on the job.
func EncodeResult(r Result) (json.RawMessage, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: result: %v", ErrInvalidFormat, err)
	}
	return raw, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after payload")
	}
	return nil
}

// structValidationError converts the first validator failure into a ValidationError.
func structValidationError(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return NewValidationError(prefix+"."+fe.Field(), fmt.Sprintf("failed on the '%s' rule", fe.Tag()), nil)
	}
	return NewValidationError(prefix, err.Error(), nil)
}

// DefaultMaxShapes is used when a canvas request does not set max_shapes.
const DefaultMaxShapes = 50

// CanvasGenerationPayload asks the generator to draw shapes onto a canvas.
type CanvasGenerationPayload struct {
	CanvasID  uuid.UUID `json:"canvas_id"`
	Prompt    string    `json:"prompt" validate:"required,min=1,max=4000"`
	Style     string    `json:"style,omitempty" validate:"omitempty,oneof=sketch flat isometric blueprint"`
	Width     int       `json:"width" validate:"required,min=1,max=8192"`
	Height    int       `json:"height" validate:"required,min=1,max=8192"`
	MaxShapes int       `json:"max_shapes,omitempty" validate:"omitempty,min=1,max=500"`
}

// Kind implements Payload.
func (p *CanvasGenerationPayload) Kind() Kind { return KindCanvasGeneration }

// Validate implements Payload and fills in defaults.
func (p *CanvasGenerationPayload) Validate() error {
	if p.CanvasID == uuid.Nil {
		return NewValidationError("payload.canvas_id", "is required", ErrInvalidID)
	}
	if err := validate.Struct(p); err != nil {
		return structValidationError("payload", err)
	}
	if p.MaxShapes == 0 {
		p.MaxShapes = DefaultMaxShapes
	}
	return nil
}

// ShapeType enumerates drawable primitives.
type ShapeType string

// Supported shape types
const (
	ShapeRect     ShapeType = "rect"
	ShapeEllipse  ShapeType = "ellipse"
	ShapeLine     ShapeType = "line"
	ShapeArrow    ShapeType = "arrow"
	ShapeText     ShapeType = "text"
	ShapeFreehand ShapeType = "freehand"
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one generated canvas element.
type Shape struct {
	Type   ShapeType `json:"type" validate:"required,oneof=rect ellipse line arrow text freehand"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Width  float64   `json:"width,omitempty" validate:"gte=0"`
	Height float64   `json:"height,omitempty" validate:"gte=0"`
	Points []Point   `json:"points,omitempty"`
	Text   string    `json:"text,omitempty"`
	Stroke string    `json:"stroke,omitempty"`
	Fill   string    `json:"fill,omitempty"`
}

// CanvasGenerationResult is the output of a canvas_generation job.
type CanvasGenerationResult struct {
	Shapes  []Shape `json:"shapes" validate:"required,min=1,dive"`
	Summary string  `json:"summary,omitempty"`
	Model   string  `json:"model,omitempty"`
}

// Kind implements Result.
func (r *CanvasGenerationResult) Kind() Kind { return KindCanvasGeneration }

// Validate implements Result.
func (r *CanvasGenerationResult) Validate() error {
	if err := validate.Struct(r); err != nil {
		return structValidationError("result", err)
	}
	for i, s := range r.Shapes {
		if (s.Type == ShapeLine || s.Type == ShapeArrow || s.Type == ShapeFreehand) && len(s.Points) < 2 {
			return NewValidationError(fmt.Sprintf("result.shapes[%d].points", i), "needs at least two points", nil)
		}
		if s.Type == ShapeText && s.Text == "" {
			return NewValidationError(fmt.Sprintf("result.shapes[%d].text", i), "is required for text shapes", nil)
		}
	}
	return nil
}
