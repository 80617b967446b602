// Package crank implements the stale-transaction crank: the authority of
// last resort that reconciles Submitted rows against the chain when
// webhooks fail silently, using the same ticker-loop shape as
// internal/worker.
package crank

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/chain"
	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/metrics"
	"github.com/arcsign/compliance-relayer/internal/store"
)

// Config tunes the crank's cadence and batching.
type Config struct {
	PollInterval  time.Duration
	StaleAfter    time.Duration
	BatchSize     int
	ShutdownGrace time.Duration
}

// DefaultConfig sets the defaults: 60s poll, 90s stale-after, batch size
// 20.
func DefaultConfig() Config {
	return Config{
		PollInterval:  60 * time.Second,
		StaleAfter:    90 * time.Second,
		BatchSize:     20,
		ShutdownGrace: 10 * time.Second,
	}
}

// Crank runs a single background loop reconciling stale Submitted rows.
type Crank struct {
	cfg     Config
	store   store.Store
	adapter chain.Adapter
	metrics metrics.Recorder
	log     *zap.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// New constructs a Crank. It does not start until Start is called.
func New(cfg Config, st store.Store, adapter chain.Adapter, rec metrics.Recorder, log *zap.Logger) *Crank {
	return &Crank{
		cfg:      cfg,
		store:    st,
		adapter:  adapter,
		metrics:  rec,
		log:      log,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the crank loop in its own goroutine.
func (c *Crank) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop closes the shutdown channel and waits, up to ShutdownGrace, for the
// current cycle to finish.
func (c *Crank) Stop() {
	close(c.shutdown)
	select {
	case <-c.done:
	case <-time.After(c.cfg.ShutdownGrace):
		c.log.Warn("crank shutdown grace period elapsed; forcing close")
	}
}

func (c *Crank) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

func (c *Crank) runCycle(ctx context.Context) {
	cutoff := time.Now().Add(-c.cfg.StaleAfter)
	rows, err := c.store.ClaimStaleSubmitted(ctx, c.cfg.BatchSize, cutoff)
	if err != nil {
		c.log.Error("crank failed to select stale submitted rows", zap.Error(err))
		return
	}

	var confirmed, failed, resurrected int
	for _, row := range rows {
		switch c.reconcileRow(ctx, row, cutoff) {
		case outcomeConfirmed:
			confirmed++
		case outcomeFailed:
			failed++
		case outcomeResurrected:
			resurrected++
		}
	}

	c.metrics.RecordCrankCycle(len(rows), confirmed, failed, resurrected)
}

type reconcileOutcome int

const (
	outcomeNone reconcileOutcome = iota
	outcomeConfirmed
	outcomeFailed
	outcomeResurrected
)

func (c *Crank) reconcileRow(ctx context.Context, row *domain.TransferRequest, staleCutoff time.Time) reconcileOutcome {
	if row.BlockchainSignature == nil {
		c.log.Error("stale submitted row has no signature", zap.String("id", row.ID))
		return outcomeNone
	}

	status, err := c.adapter.GetStatus(ctx, *row.BlockchainSignature)
	if err != nil {
		c.log.Warn("crank failed to fetch signature status", zap.String("id", row.ID), zap.Error(err))
		return outcomeNone
	}

	switch status {
	case chain.StatusConfirmed:
		if _, err := c.store.MarkConfirmed(ctx, row.ID); err != nil {
			c.log.Error("crank failed to mark confirmed", zap.String("id", row.ID), zap.Error(err))
			return outcomeNone
		}
		return outcomeConfirmed

	case chain.StatusFailed:
		if _, err := c.store.MarkFailed(ctx, row.ID, "transaction failed on-chain"); err != nil {
			c.log.Error("crank failed to mark failed", zap.String("id", row.ID), zap.Error(err))
			return outcomeNone
		}
		return outcomeFailed

	case chain.StatusNotFound:
		// The blockhash window has passed with no trace of the signature:
		// resurrect so the worker re-submits with a fresh blockhash. The
		// crank is the only component allowed to do this.
		if _, err := c.store.IncrementRetryCount(ctx, row.ID); err != nil {
			c.log.Error("crank failed to increment retry count", zap.String("id", row.ID), zap.Error(err))
			return outcomeNone
		}
		if err := c.store.MarkPendingSubmission(ctx, row.ID, "blockhash expired before confirmation", time.Now()); err != nil {
			c.log.Error("crank failed to resurrect row", zap.String("id", row.ID), zap.Error(err))
			return outcomeNone
		}
		return outcomeResurrected

	default: // StatusPending
		if err := c.store.TouchUpdatedAt(ctx, row.ID); err != nil {
			c.log.Warn("crank failed to bump updated_at", zap.String("id", row.ID), zap.Error(err))
		}
		return outcomeNone
	}
}
