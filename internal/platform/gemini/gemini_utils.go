package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/generation"
	"google.golang.org/genai"
)

// parseResponse turns a Gemini response into a validated canvas result.
// Safety blocks are content_blocked; anything else that cannot be used is
// invalid_response.
func parseResponse(
	resp *genai.GenerateContentResponse,
	payload *domain.CanvasGenerationPayload,
) (*domain.CanvasGenerationResult, error) {
	if resp == nil {
		return nil, generation.NewError(generation.CodeInvalidResponse, "nil response", nil)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, generation.NewError(generation.CodeContentBlocked,
			fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason), nil)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, generation.NewError(generation.CodeInvalidResponse, "no content generated", nil)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return nil, generation.NewError(generation.CodeContentBlocked,
			fmt.Sprintf("response blocked: %s", candidate.FinishReason), nil)
	}
	if candidate.Content == nil {
		return nil, generation.NewError(generation.CodeInvalidResponse, "empty content in response", nil)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	raw := stripCodeFence(text.String())
	if raw == "" {
		return nil, generation.NewError(generation.CodeInvalidResponse, "response has no text", nil)
	}

	var parsed ResponseSchema
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&parsed); err != nil {
		return nil, generation.NewError(generation.CodeInvalidResponse, "response is not canvas JSON", err)
	}

	shapes := parsed.Shapes
	if limit := payload.MaxShapes; limit > 0 && len(shapes) > limit {
		shapes = shapes[:limit]
	}

	result := &domain.CanvasGenerationResult{
		Shapes:  shapes,
		Summary: parsed.Summary,
	}
	if err := result.Validate(); err != nil {
		return nil, generation.NewError(generation.CodeInvalidResponse, "canvas failed validation", err)
	}
	return result, nil
}

// stripCodeFence removes a surrounding ```json fence, which models add
// even when asked for JSON only.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
