package chain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/domain"
)

// MockAdapter is an in-memory Adapter for tests: a sync.RWMutex-guarded
// map plus Reset/test-inspection helpers.
type MockAdapter struct {
	mu sync.RWMutex

	statuses map[string]Status
	submits  []*domain.TransferRequest

	// FailNextSubmit, when non-nil, is returned (and cleared) on the next
	// call to Submit, letting tests inject a single failure.
	FailNextSubmit error

	// HealthErr, when non-nil, is returned by every HealthCheck call.
	HealthErr error
}

// NewMockAdapter creates a new mock chain adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{statuses: make(map[string]Status)}
}

func (m *MockAdapter) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HealthErr
}

func (m *MockAdapter) Submit(ctx context.Context, r *domain.TransferRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextSubmit != nil {
		err := m.FailNextSubmit
		m.FailNextSubmit = nil
		return "", err
	}

	sig := uuid.NewString()
	m.statuses[sig] = StatusPending
	m.submits = append(m.submits, r)
	return sig, nil
}

func (m *MockAdapter) GetStatus(ctx context.Context, signature string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.statuses[signature]
	if !ok {
		return StatusNotFound, nil
	}
	return status, nil
}

func (m *MockAdapter) WaitForConfirmation(ctx context.Context, signature string, timeout time.Duration) (Status, error) {
	deadline := time.Now().Add(timeout)
	for {
		status, err := m.GetStatus(ctx, signature)
		if err != nil {
			return status, err
		}
		if status == StatusConfirmed || status == StatusFailed {
			return status, nil
		}
		if time.Now().After(deadline) {
			return status, apperr.New(apperr.KindChainTimeout, "timed out waiting for confirmation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// SetStatus lets a test force a signature into a given state, simulating
// on-chain confirmation or failure.
func (m *MockAdapter) SetStatus(signature string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[signature] = status
}

// Submissions returns every transfer request Submit has been called with,
// in call order.
func (m *MockAdapter) Submissions() []*domain.TransferRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.TransferRequest, len(m.submits))
	copy(out, m.submits)
	return out
}

// Reset clears all recorded state.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = make(map[string]Status)
	m.submits = nil
	m.FailNextSubmit = nil
	m.HealthErr = nil
}
