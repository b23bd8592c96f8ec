package gemini

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/template"

	"github.com/phrazzld/sketchpad-api/internal/config"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/generation"
	"google.golang.org/genai"
)

var _ generation.Generator = (*GeminiGenerator)(nil)

// contentGenerator is the part of the genai client the generator uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API to draw canvases from text prompts.
type GeminiGenerator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// promptTemplate is the parsed template for creating prompts
	promptTemplate *template.Template

	// models is the Gemini API surface for making requests
	models contentGenerator

	// model is the name of the Gemini model to use
	model string
}

// NewGeminiGenerator creates a generator backed by the Gemini API.
//
// The prompt template is read and parsed here, so a missing or broken
// template fails at startup rather than on the first job.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := validateConfig(ctx, logger, cfg); err != nil {
		return nil, err
	}

	tmpl, err := loadPromptTemplate(cfg.PromptTemplatePath)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return newGenerator(logger, client.Models, tmpl, cfg.ModelName), nil
}

func newGenerator(logger *slog.Logger, models contentGenerator, tmpl *template.Template, model string) *GeminiGenerator {
	return &GeminiGenerator{
		logger:         logger.With("component", "gemini_generator", "model", model),
		promptTemplate: tmpl,
		models:         models,
		model:          model,
	}
}

func loadPromptTemplate(path string) (*template.Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
			generation.ErrInvalidConfig, path, err)
	}
	tmpl, err := template.New("canvas").Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			generation.ErrInvalidConfig, err)
	}
	return tmpl, nil
}

// Generate draws the canvas described by req.Payload. Each call is a single
// request; retries are left to the job engine.
func (g *GeminiGenerator) Generate(ctx context.Context, req generation.Request) (domain.Result, error) {
	payload, ok := req.Payload.(*domain.CanvasGenerationPayload)
	if !ok || payload == nil {
		return nil, generation.NewError(generation.CodeInvalidRequest, "unsupported payload", ErrUnsupportedPayload)
	}

	log := g.logger.With("job_id", req.JobID, "attempt", req.Attempt)

	prompt, err := g.createPrompt(payload)
	if err != nil {
		return nil, generation.NewError(generation.CodeInvalidRequest, "could not build prompt", err)
	}

	log.DebugContext(ctx, "calling Gemini", "prompt_length", len(prompt))
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		classified := classifyError(err)
		log.WarnContext(ctx, "Gemini call failed", "code", generation.CodeOf(classified))
		return nil, classified
	}

	result, err := parseResponse(resp, payload)
	if err != nil {
		log.WarnContext(ctx, "unusable Gemini response", "code", generation.CodeOf(err))
		return nil, err
	}
	result.Model = g.model

	log.InfoContext(ctx, "canvas generated", "shape_count", len(result.Shapes))
	return result, nil
}

// createPrompt executes the prompt template for payload.
func (g *GeminiGenerator) createPrompt(payload *domain.CanvasGenerationPayload) (string, error) {
	if payload.Prompt == "" {
		return "", ErrEmptyPrompt
	}

	maxShapes := payload.MaxShapes
	if maxShapes == 0 {
		maxShapes = domain.DefaultMaxShapes
	}

	var buf bytes.Buffer
	if err := g.promptTemplate.Execute(&buf, promptData{
		Prompt:    payload.Prompt,
		Style:     payload.Style,
		Width:     payload.Width,
		Height:    payload.Height,
		MaxShapes: maxShapes,
	}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
