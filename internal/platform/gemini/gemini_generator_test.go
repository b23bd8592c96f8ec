package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/config"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeModels records requests and replays a canned response.
type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	model    string
	prompt   string
	mimeType string
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if cfg != nil {
		f.mimeType = cfg.ResponseMIMEType
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func testTemplate(t *testing.T) *template.Template {
	t.Helper()
	tmpl, err := template.New("canvas").Option("missingkey=error").Parse(
		"Draw {{.Prompt}} on {{.Width}}x{{.Height}} with at most {{.MaxShapes}} shapes{{if .Style}} in {{.Style}} style{{end}}.")
	require.NoError(t, err)
	return tmpl
}

func newTestGenerator(t *testing.T, models *fakeModels) *GeminiGenerator {
	t.Helper()
	return newGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)), models, testTemplate(t), "gemini-test")
}

func canvasRequest(p *domain.CanvasGenerationPayload) generation.Request {
	return generation.Request{JobID: uuid.New(), OwnerID: uuid.New(), Attempt: 1, Payload: p}
}

func samplePayload() *domain.CanvasGenerationPayload {
	return &domain.CanvasGenerationPayload{
		CanvasID:  uuid.New(),
		Prompt:    "a lighthouse",
		Style:     "sketch",
		Width:     800,
		Height:    600,
		MaxShapes: 2,
	}
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse("```json\n" +
		`{"shapes":[{"type":"rect","x":1,"y":2,"width":3,"height":4},` +
		`{"type":"text","x":5,"y":6,"text":"hi"},` +
		`{"type":"ellipse","x":7,"y":8,"width":9,"height":9}],"summary":"a lighthouse"}` +
		"\n```")}
	gen := newTestGenerator(t, models)

	result, err := gen.Generate(context.Background(), canvasRequest(samplePayload()))
	require.NoError(t, err)

	canvas, ok := result.(*domain.CanvasGenerationResult)
	require.True(t, ok)
	assert.Len(t, canvas.Shapes, 2, "shapes are capped at max_shapes")
	assert.Equal(t, "a lighthouse", canvas.Summary)
	assert.Equal(t, "gemini-test", canvas.Model)

	assert.Equal(t, "gemini-test", models.model)
	assert.Equal(t, "application/json", models.mimeType)
	assert.Equal(t, "Draw a lighthouse on 800x600 with at most 2 shapes in sketch style.", models.prompt)
}

func TestGenerate_ResponseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want generation.Code
	}{
		{"nil response", nil, generation.CodeInvalidResponse},
		{"no candidates", &genai.GenerateContentResponse{}, generation.CodeInvalidResponse},
		{"not json", textResponse("here is your drawing!"), generation.CodeInvalidResponse},
		{"no shapes", textResponse(`{"shapes":[]}`), generation.CodeInvalidResponse},
		{"line without points", textResponse(`{"shapes":[{"type":"line","x":0,"y":0}]}`), generation.CodeInvalidResponse},
		{
			"prompt blocked",
			&genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			generation.CodeContentBlocked,
		},
		{
			"response blocked",
			&genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			},
			generation.CodeContentBlocked,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gen := newTestGenerator(t, &fakeModels{resp: tc.resp})
			_, err := gen.Generate(context.Background(), canvasRequest(samplePayload()))
			assert.Equal(t, tc.want, generation.CodeOf(err))
		})
	}
}

func TestGenerate_APIErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want generation.Code
	}{
		{"throttled", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "Too many requests per minute"}, generation.CodeRateLimited},
		{"quota", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "You exceeded your current quota"}, generation.CodeQuotaExhausted},
		{"bad key", genai.APIError{Code: 403, Status: "PERMISSION_DENIED", Message: "API key not valid"}, generation.CodeUnauthenticated},
		{"bad request", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, generation.CodeInvalidRequest},
		{"overloaded", genai.APIError{Code: 503, Status: "UNAVAILABLE"}, generation.CodeUnavailable},
		{"gateway timeout", genai.APIError{Code: 504, Status: "DEADLINE_EXCEEDED"}, generation.CodeTimeout},
		{"deadline", context.DeadlineExceeded, generation.CodeTimeout},
		{"other", errors.New("something odd"), generation.CodeUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gen := newTestGenerator(t, &fakeModels{err: tc.err})
			_, err := gen.Generate(context.Background(), canvasRequest(samplePayload()))
			require.Error(t, err)
			assert.Equal(t, tc.want, generation.CodeOf(err))
		})
	}
}

func TestGenerate_InvalidRequests(t *testing.T) {
	t.Parallel()

	gen := newTestGenerator(t, &fakeModels{})

	_, err := gen.Generate(context.Background(), generation.Request{Payload: nil})
	assert.ErrorIs(t, err, ErrUnsupportedPayload)
	assert.Equal(t, generation.CodeInvalidRequest, generation.CodeOf(err))

	p := samplePayload()
	p.Prompt = ""
	_, err = gen.Generate(context.Background(), canvasRequest(p))
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, stripCodeFence(`  {"a":1}  `))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, "", stripCodeFence("```"))
}

func TestNewGeminiGenerator_ConfigErrors(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	good := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(good, []byte("Draw {{.Prompt}}"), 0o600))
	broken := filepath.Join(dir, "broken.txt")
	require.NoError(t, os.WriteFile(broken, []byte("Draw {{.Prompt"), 0o600))

	tests := []struct {
		name string
		cfg  config.LLMConfig
	}{
		{"missing key", config.LLMConfig{ModelName: "m", PromptTemplatePath: good}},
		{"missing model", config.LLMConfig{GeminiAPIKey: "k", PromptTemplatePath: good}},
		{"missing template path", config.LLMConfig{GeminiAPIKey: "k", ModelName: "m"}},
		{"unreadable template", config.LLMConfig{GeminiAPIKey: "k", ModelName: "m", PromptTemplatePath: filepath.Join(dir, "nope")}},
		{"unparsable template", config.LLMConfig{GeminiAPIKey: "k", ModelName: "m", PromptTemplatePath: broken}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewGeminiGenerator(context.Background(), logger, tc.cfg)
			assert.ErrorIs(t, err, generation.ErrInvalidConfig)
		})
	}

	_, err := NewGeminiGenerator(context.Background(), nil, config.LLMConfig{})
	assert.Error(t, err)
}

func TestShippedPromptTemplateRenders(t *testing.T) {
	t.Parallel()

	tmpl, err := loadPromptTemplate(filepath.Join("..", "..", "..", "prompts", "canvas_template.txt"))
	require.NoError(t, err)

	gen := newGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeModels{}, tmpl, "m")
	prompt, err := gen.createPrompt(samplePayload())
	require.NoError(t, err)
	assert.True(t, strings.Contains(prompt, "a lighthouse"))
	assert.True(t, strings.Contains(prompt, "800 pixels wide"))
}
