// Package gemini provides an implementation of the generation.Generator
// interface that uses Google's Gemini API to draw canvases from text
// prompts.
//
// This package is an infrastructure adapter: it renders the prompt
// template for a canvas payload, sends one request per attempt, and turns
// the JSON reply into a validated domain.CanvasGenerationResult. Failures
// are returned as classified *generation.Error values (rate limiting,
// unavailability, safety blocks, unusable responses) so the job engine can
// decide whether to retry. The generator never retries on its own.
package gemini
