package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/service"
	"github.com/phrazzld/sketchpad-api/internal/store"
)

// MockJobService implements service.JobService for testing. Methods without
// a custom function return the default values below.
type MockJobService struct {
	SubmitFn      func(ctx context.Context, callerID uuid.UUID, req service.SubmitRequest) (*domain.Job, error)
	GetStatusFn   func(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error)
	GetResultFn   func(ctx context.Context, callerID, jobID uuid.UUID) (json.RawMessage, error)
	CancelFn      func(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error)
	RetryFn       func(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error)
	ListByOwnerFn func(ctx context.Context, callerID uuid.UUID, filter store.ListFilter) ([]*domain.Job, error)
	StatsFn       func(ctx context.Context, callerID uuid.UUID) (*store.JobStats, error)
	GlobalStatsFn func(ctx context.Context) (*store.JobStats, error)
	SweepFn       func(ctx context.Context) (int, error)

	// Default response values
	Job      *domain.Job
	Jobs     []*domain.Job
	Result   json.RawMessage
	JobStats *store.JobStats
	Swept    int
	Err      error

	// Call tracking for verification
	mu          sync.Mutex
	SubmitCalls []service.SubmitRequest
	ListFilters []store.ListFilter
	Callers     []uuid.UUID
}

var _ service.JobService = (*MockJobService)(nil)

func (m *MockJobService) record(caller uuid.UUID) {
	m.mu.Lock()
	m.Callers = append(m.Callers, caller)
	m.mu.Unlock()
}

// Submit implements service.JobService.
func (m *MockJobService) Submit(ctx context.Context, callerID uuid.UUID, req service.SubmitRequest) (*domain.Job, error) {
	m.record(callerID)
	m.mu.Lock()
	m.SubmitCalls = append(m.SubmitCalls, req)
	m.mu.Unlock()

	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, callerID, req)
	}
	return m.Job, m.Err
}

// GetStatus implements service.JobService.
func (m *MockJobService) GetStatus(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error) {
	m.record(callerID)
	if m.GetStatusFn != nil {
		return m.GetStatusFn(ctx, callerID, jobID)
	}
	return m.Job, m.Err
}

// GetResult implements service.JobService.
func (m *MockJobService) GetResult(ctx context.Context, callerID, jobID uuid.UUID) (json.RawMessage, error) {
	m.record(callerID)
	if m.GetResultFn != nil {
		return m.GetResultFn(ctx, callerID, jobID)
	}
	return m.Result, m.Err
}

// Cancel implements service.JobService.
func (m *MockJobService) Cancel(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error) {
	m.record(callerID)
	if m.CancelFn != nil {
		return m.CancelFn(ctx, callerID, jobID)
	}
	return m.Job, m.Err
}

// Retry implements service.JobService.
func (m *MockJobService) Retry(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error) {
	m.record(callerID)
	if m.RetryFn != nil {
		return m.RetryFn(ctx, callerID, jobID)
	}
	return m.Job, m.Err
}

// ListByOwner implements service.JobService.
func (m *MockJobService) ListByOwner(
	ctx context.Context,
	callerID uuid.UUID,
	filter store.ListFilter,
) ([]*domain.Job, error) {
	m.record(callerID)
	m.mu.Lock()
	m.ListFilters = append(m.ListFilters, filter)
	m.mu.Unlock()

	if m.ListByOwnerFn != nil {
		return m.ListByOwnerFn(ctx, callerID, filter)
	}
	return m.Jobs, m.Err
}

// Stats implements service.JobService.
func (m *MockJobService) Stats(ctx context.Context, callerID uuid.UUID) (*store.JobStats, error) {
	m.record(callerID)
	if m.StatsFn != nil {
		return m.StatsFn(ctx, callerID)
	}
	return m.JobStats, m.Err
}

// GlobalStats implements service.JobService.
func (m *MockJobService) GlobalStats(ctx context.Context) (*store.JobStats, error) {
	if m.GlobalStatsFn != nil {
		return m.GlobalStatsFn(ctx)
	}
	return m.JobStats, m.Err
}

// Sweep implements service.JobService.
func (m *MockJobService) Sweep(ctx context.Context) (int, error) {
	if m.SweepFn != nil {
		return m.SweepFn(ctx)
	}
	return m.Swept, m.Err
}
