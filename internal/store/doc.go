// Package store defines the job persistence contract. Backends live under
// internal/platform and share ApplyMutation so that every implementation
// enforces the same state machine on compare-and-swap.
package store
