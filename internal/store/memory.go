package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/domain"
)

// MemoryStore implements Store with sync.RWMutex-guarded maps and a
// copy-on-read/write pattern; suitable for tests and local development,
// not for production (no durability across restarts).
type MemoryStore struct {
	mu sync.RWMutex

	transfers   map[string]*domain.TransferRequest
	byNonce     map[string]string // fromAddress+"|"+nonce -> id
	bySignature map[string]string // signature -> id

	blocklist map[string]*domain.BlocklistEntry
	risk      map[string]*domain.WalletRiskProfile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transfers:   make(map[string]*domain.TransferRequest),
		byNonce:     make(map[string]string),
		bySignature: make(map[string]string),
		blocklist:   make(map[string]*domain.BlocklistEntry),
		risk:        make(map[string]*domain.WalletRiskProfile),
	}
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() {}

func copyTransfer(r *domain.TransferRequest) *domain.TransferRequest {
	cp := *r
	return &cp
}

func nonceKey(from, nonce string) string { return from + "|" + nonce }

func (m *MemoryStore) CreateTransferRequest(ctx context.Context, r *domain.TransferRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now

	key := nonceKey(r.FromAddress, r.Nonce)
	if _, exists := m.byNonce[key]; exists {
		return apperr.New(apperr.KindDuplicate, "transfer request with this (from_address, nonce) already exists")
	}

	m.transfers[r.ID] = copyTransfer(r)
	m.byNonce[key] = r.ID
	return nil
}

func (m *MemoryStore) GetTransferRequest(ctx context.Context, id string) (*domain.TransferRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.transfers[id]
	if !ok {
		return nil, apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	return copyTransfer(r), nil
}

func (m *MemoryStore) GetByNonce(ctx context.Context, fromAddress, nonce string) (*domain.TransferRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byNonce[nonceKey(fromAddress, nonce)]
	if !ok {
		return nil, nil
	}
	return copyTransfer(m.transfers[id]), nil
}

func (m *MemoryStore) ListTransferRequests(ctx context.Context, limit int, cursor string) (domain.Page[domain.TransferRequest], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*domain.TransferRequest, 0, len(m.transfers))
	for _, r := range m.transfers {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	start := 0
	if cursor != "" {
		cursorRow, ok := m.transfers[cursor]
		if !ok {
			return domain.Page[domain.TransferRequest]{}, apperr.New(apperr.KindValidation, "invalid cursor")
		}
		for i, r := range all {
			if r.CreatedAt.Before(cursorRow.CreatedAt) ||
				(r.CreatedAt.Equal(cursorRow.CreatedAt) && r.ID < cursorRow.ID) {
				start = i
				break
			}
			start = i + 1
		}
	}

	fetchLimit := limit + 1
	end := start + fetchLimit
	if end > len(all) {
		end = len(all)
	}
	slice := all[start:end]

	hasMore := len(slice) > limit
	if hasMore {
		slice = slice[:limit]
	}

	items := make([]domain.TransferRequest, len(slice))
	for i, r := range slice {
		items[i] = *copyTransfer(r)
	}

	page := domain.Page[domain.TransferRequest]{Items: items, HasMore: hasMore}
	if hasMore {
		page.NextCursor = items[len(items)-1].ID
	}
	return page, nil
}

func (m *MemoryStore) SetComplianceStatus(ctx context.Context, id string, status domain.ComplianceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	r.ComplianceStatus = status
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) MarkPendingSubmission(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	if r.BlockchainStatus.Terminal() {
		return nil
	}
	r.BlockchainStatus = domain.BlockchainPendingSubmission
	if lastError != "" {
		r.BlockchainLastError = &lastError
	}
	nr := nextRetryAt
	r.BlockchainNextRetry = &nr
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) MarkSubmitted(ctx context.Context, id string, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	if r.BlockchainStatus.Terminal() {
		return nil
	}
	r.BlockchainStatus = domain.BlockchainSubmitted
	r.BlockchainSignature = &signature
	r.BlockchainNextRetry = nil
	r.UpdatedAt = time.Now()
	m.bySignature[signature] = id
	return nil
}

func (m *MemoryStore) MarkConfirmed(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return false, apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	if r.BlockchainStatus != domain.BlockchainSubmitted {
		return false, nil
	}
	r.BlockchainStatus = domain.BlockchainConfirmed
	r.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return false, apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	if r.BlockchainStatus != domain.BlockchainSubmitted {
		return false, nil
	}
	r.BlockchainStatus = domain.BlockchainFailed
	r.BlockchainLastError = &reason
	r.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) MarkFailedFromRetryExhaustion(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	if r.BlockchainStatus.Terminal() {
		return nil
	}
	r.BlockchainStatus = domain.BlockchainFailed
	r.BlockchainLastError = &reason
	r.BlockchainNextRetry = nil
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetBySignature(ctx context.Context, signature string) (*domain.TransferRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySignature[signature]
	if !ok {
		return nil, nil
	}
	return copyTransfer(m.transfers[id]), nil
}

func (m *MemoryStore) ClaimPendingSubmissions(ctx context.Context, limit int, now time.Time) ([]*domain.TransferRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*domain.TransferRequest, 0)
	for _, r := range m.transfers {
		if r.ComplianceStatus != domain.ComplianceApproved {
			continue
		}
		if r.BlockchainStatus != domain.BlockchainPendingSubmission {
			continue
		}
		if r.BlockchainRetryCount >= domain.MaxRetries {
			continue
		}
		if r.BlockchainNextRetry != nil && r.BlockchainNextRetry.After(now) {
			continue
		}
		candidates = append(candidates, r)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]*domain.TransferRequest, 0, len(candidates))
	for _, r := range candidates {
		r.BlockchainStatus = domain.BlockchainProcessing
		r.UpdatedAt = now
		claimed = append(claimed, copyTransfer(r))
	}
	return claimed, nil
}

func (m *MemoryStore) IncrementRetryCount(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return 0, apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	r.BlockchainRetryCount++
	r.UpdatedAt = time.Now()
	return r.BlockchainRetryCount, nil
}

func (m *MemoryStore) ResetRetryCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	r.BlockchainRetryCount = 0
	r.BlockchainLastError = nil
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ClaimStaleSubmitted(ctx context.Context, limit int, cutoff time.Time) ([]*domain.TransferRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.TransferRequest, 0)
	for _, r := range m.transfers {
		if r.BlockchainStatus == domain.BlockchainSubmitted && r.UpdatedAt.Before(cutoff) {
			out = append(out, copyTransfer(r))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) TouchUpdatedAt(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[id]
	if !ok {
		return apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpsertBlocklistEntry(ctx context.Context, e *domain.BlocklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, ok := m.blocklist[e.Address]
	cp := *e
	if ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.blocklist[e.Address] = &cp
	return nil
}

func (m *MemoryStore) DeleteBlocklistEntry(ctx context.Context, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blocklist[address]
	if ok {
		delete(m.blocklist, address)
	}
	return ok, nil
}

func (m *MemoryStore) ListBlocklistEntries(ctx context.Context) ([]*domain.BlocklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.BlocklistEntry, 0, len(m.blocklist))
	for _, e := range m.blocklist {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (m *MemoryStore) GetRiskProfile(ctx context.Context, address string) (*domain.WalletRiskProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.risk[address]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpsertRiskProfile(ctx context.Context, p *domain.WalletRiskProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, ok := m.risk[p.Address]
	cp := *p
	if ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.risk[p.Address] = &cp
	return nil
}
