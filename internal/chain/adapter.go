// Package chain provides the single Solana-focused submission surface this
// relayer needs: submit a transfer request and poll its confirmation
// status.
package chain

import (
	"context"
	"time"

	"github.com/arcsign/compliance-relayer/internal/domain"
)

// Status collapses the underlying chain's confirmation states down to the
// four the crank and webhook care about.
type Status string

const (
	StatusNotFound  Status = "not_found"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Adapter is the capability interface every submission path talks to.
// Implementations MUST be safe for concurrent use and MUST classify errors
// via apperr so retry/no-retry decisions stay centralized in the worker.
type Adapter interface {
	// HealthCheck verifies the underlying RPC endpoint is reachable.
	HealthCheck(ctx context.Context) error

	// Submit builds, signs (with the relayer's issuer key), and broadcasts
	// the transfer described by r, returning the transaction signature.
	//
	// Contract:
	//   - MUST try to complete within ctx's deadline
	//   - MUST return apperr-classified errors: InsufficientFunds and
	//     InvalidSignature are non-retryable; Timeout, RPCError, Connection
	//     are retryable
	Submit(ctx context.Context, r *domain.TransferRequest) (signature string, err error)

	// GetStatus polls the confirmation status of a previously-submitted
	// signature.
	GetStatus(ctx context.Context, signature string) (Status, error)

	// WaitForConfirmation blocks, repolling GetStatus, until the signature
	// reaches a terminal state or timeout elapses.
	WaitForConfirmation(ctx context.Context, signature string, timeout time.Duration) (Status, error)
}

// SubmissionStrategy selects how a built transaction reaches the network:
// the public mempool, or a private relay with a priority tip.
type SubmissionStrategy interface {
	// Send submits the fully-signed transaction bytes and returns the
	// signature that was assigned.
	Send(ctx context.Context, signedTx []byte) (signature string, err error)
}
