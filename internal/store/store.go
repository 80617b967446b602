// Package store defines the durable persistence interface for transfer
// requests, the blocklist, and wallet risk profiles, and provides two
// implementations: an in-memory store for tests and a Postgres store for
// production, as a capability interface (interface in this file,
// implementations in memory.go / postgres.go).
package store

import (
	"context"
	"time"

	"github.com/arcsign/compliance-relayer/internal/domain"
)

// Store is the durable-truth interface every subsystem talks to.
//
// Implementations MUST be safe for concurrent use.
type Store interface {
	HealthCheck(ctx context.Context) error

	// CreateTransferRequest persists a new row. Callers MUST have already
	// checked idempotency via GetByNonce.
	CreateTransferRequest(ctx context.Context, r *domain.TransferRequest) error

	GetTransferRequest(ctx context.Context, id string) (*domain.TransferRequest, error)

	// GetByNonce looks up the unique (from_address, nonce) pair for
	// idempotent submission.
	GetByNonce(ctx context.Context, fromAddress, nonce string) (*domain.TransferRequest, error)

	// ListTransferRequests performs keyset pagination on
	// (created_at DESC, id DESC). limit is the caller's already-clamped
	// page size; cursor is the id of the last row of the previous page,
	// or "" for the first page.
	ListTransferRequests(ctx context.Context, limit int, cursor string) (domain.Page[domain.TransferRequest], error)

	// SetComplianceStatus persists the outcome of the compliance screen.
	SetComplianceStatus(ctx context.Context, id string, status domain.ComplianceStatus) error

	// MarkPendingSubmission transitions a row to PendingSubmission with the
	// given last-error and next-retry-at, used both by the inline-submit
	// failure path and by the crank's blockhash-expiry resurrection.
	MarkPendingSubmission(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error

	// MarkSubmitted transitions a row to Submitted and records the
	// on-chain signature, used by both the inline-submit success path and
	// the worker.
	MarkSubmitted(ctx context.Context, id string, signature string) error

	// MarkConfirmed conditionally transitions a Submitted row to Confirmed.
	// Returns false (no error) if the row was not in Submitted state,
	// which lets the webhook and the crank race safely.
	MarkConfirmed(ctx context.Context, id string) (bool, error)

	// MarkFailed conditionally transitions a Submitted row to Failed with
	// a reason. Returns false (no error) if the row was not in Submitted.
	MarkFailed(ctx context.Context, id string, reason string) (bool, error)

	// MarkFailedFromRetryExhaustion transitions a PendingSubmission/
	// Processing row straight to Failed once blockchain_retry_count has
	// reached MaxRetries.
	MarkFailedFromRetryExhaustion(ctx context.Context, id string, reason string) error

	// GetBySignature looks up a row by blockchain_signature, used by the
	// webhook ingest.
	GetBySignature(ctx context.Context, signature string) (*domain.TransferRequest, error)

	// ClaimPendingSubmissions atomically selects up to limit rows eligible
	// for (re)submission and marks them Processing in the same statement,
	// so that no two workers ever claim the same row.
	ClaimPendingSubmissions(ctx context.Context, limit int, now time.Time) ([]*domain.TransferRequest, error)

	// IncrementRetryCount atomically increments blockchain_retry_count and
	// returns the new value.
	IncrementRetryCount(ctx context.Context, id string) (int, error)

	// ResetRetryCount clears blockchain_retry_count and
	// blockchain_last_error, used by the retry endpoint when retrying a
	// Failed row.
	ResetRetryCount(ctx context.Context, id string) error

	// ClaimStaleSubmitted selects up to limit Submitted rows whose
	// updated_at predates the stale-after cutoff, for the crank.
	ClaimStaleSubmitted(ctx context.Context, limit int, cutoff time.Time) ([]*domain.TransferRequest, error)

	// TouchUpdatedAt bumps updated_at without changing status, so the
	// crank does not immediately re-poll a still-pending row.
	TouchUpdatedAt(ctx context.Context, id string) error

	// Blocklist.
	UpsertBlocklistEntry(ctx context.Context, e *domain.BlocklistEntry) error
	DeleteBlocklistEntry(ctx context.Context, address string) (bool, error)
	ListBlocklistEntries(ctx context.Context) ([]*domain.BlocklistEntry, error)

	// Risk profiles.
	GetRiskProfile(ctx context.Context, address string) (*domain.WalletRiskProfile, error)
	UpsertRiskProfile(ctx context.Context, p *domain.WalletRiskProfile) error

	Close()
}
