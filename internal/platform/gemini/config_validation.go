package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/sketchpad-api/internal/config"
	"github.com/phrazzld/sketchpad-api/internal/generation"
)

// validateConfig checks the settings the generator cannot start without.
func validateConfig(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		logger.ErrorContext(ctx, "missing Gemini API key")
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.PromptTemplatePath == "" {
		return fmt.Errorf("%w: prompt template path cannot be empty", generation.ErrInvalidConfig)
	}
	return nil
}
