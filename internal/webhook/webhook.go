// Package webhook implements the on-chain event ingest: authenticated POST
// endpoints, one per provider, each carrying a shared secret checked
// byte-exact to avoid timing side-channels via stdlib crypto/subtle.
package webhook

import (
	"context"
	"crypto/subtle"

	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/metrics"
	"github.com/arcsign/compliance-relayer/internal/store"
)

// Event is a single on-chain transaction event reported by a provider.
type Event struct {
	Signature string `json:"signature"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
}

// Ingest processes webhook events for a configured set of providers.
type Ingest struct {
	store   store.Store
	metrics metrics.Recorder
	log     *zap.Logger
	secrets map[string]string // provider -> shared secret
}

// New constructs an Ingest with one shared secret per recognized provider.
func New(st store.Store, rec metrics.Recorder, log *zap.Logger, secrets map[string]string) *Ingest {
	return &Ingest{store: st, metrics: rec, log: log, secrets: secrets}
}

// Authenticate compares authHeader against the configured secret for
// provider byte-exact. A missing header, an unconfigured provider, or a
// mismatch are all authentication failures.
func (in *Ingest) Authenticate(provider, authHeader string) error {
	secret, ok := in.secrets[provider]
	if !ok || secret == "" {
		return apperr.New(apperr.KindAuthentication, "webhook provider not configured")
	}
	if authHeader == "" {
		return apperr.New(apperr.KindAuthentication, "missing Authorization header")
	}
	if subtle.ConstantTimeCompare([]byte(authHeader), []byte(secret)) != 1 {
		return apperr.New(apperr.KindAuthentication, "invalid Authorization header")
	}
	return nil
}

// Process applies a batch of events for provider. Unknown signatures are
// counted and skipped, not treated as fatal.
func (in *Ingest) Process(ctx context.Context, provider string, events []Event) error {
	for _, ev := range events {
		in.processOne(ctx, provider, ev)
	}
	return nil
}

func (in *Ingest) processOne(ctx context.Context, provider string, ev Event) {
	row, err := in.store.GetBySignature(ctx, ev.Signature)
	if err != nil {
		in.log.Error("webhook lookup by signature failed", zap.String("provider", provider), zap.String("signature", ev.Signature), zap.Error(err))
		return
	}
	if row == nil {
		in.metrics.RecordWebhookEvent(provider, false)
		return
	}
	in.metrics.RecordWebhookEvent(provider, true)

	if ev.Success {
		// Conditional update: a no-op if the row already left Submitted,
		// which makes this idempotent against crank races and replays.
		if _, err := in.store.MarkConfirmed(ctx, row.ID); err != nil {
			in.log.Error("webhook failed to mark confirmed", zap.String("id", row.ID), zap.Error(err))
		}
		return
	}

	reason := ev.Reason
	if reason == "" {
		reason = "transaction failed on-chain"
	}
	if _, err := in.store.MarkFailed(ctx, row.ID, reason); err != nil {
		in.log.Error("webhook failed to mark failed", zap.String("id", row.ID), zap.Error(err))
	}
}
