// Package worker implements the submission worker pool: a ticker-driven
// loop per worker, claiming rows atomically from the store and driving
// them through the chain adapter, with exponential backoff on failure.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/chain"
	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/metrics"
	"github.com/arcsign/compliance-relayer/internal/store"
)

// Config tunes pool concurrency and batching.
type Config struct {
	NumWorkers   int
	PollInterval time.Duration
	BatchSize    int
	ShutdownGrace time.Duration
}

// DefaultConfig sets a default poll_interval of ~1s.
func DefaultConfig() Config {
	return Config{
		NumWorkers:    4,
		PollInterval:  1 * time.Second,
		BatchSize:     10,
		ShutdownGrace: 10 * time.Second,
	}
}

// Pool runs NumWorkers goroutines, each independently polling the store for
// claimable rows and submitting them via the chain adapter.
type Pool struct {
	cfg     Config
	store   store.Store
	adapter chain.Adapter
	metrics metrics.Recorder
	log     *zap.Logger

	shutdown chan struct{}
	done     sync.WaitGroup
}

// New constructs a Pool. It does not start any goroutines until Start is
// called.
func New(cfg Config, st store.Store, adapter chain.Adapter, rec metrics.Recorder, log *zap.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		store:    st,
		adapter:  adapter,
		metrics:  rec,
		log:      log,
		shutdown: make(chan struct{}),
	}
}

// Start launches cfg.NumWorkers goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.done.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Stop closes the shutdown channel and waits, up to ShutdownGrace, for all
// workers to finish their in-flight row.
func (p *Pool) Stop() {
	close(p.shutdown)

	finished := make(chan struct{})
	go func() {
		p.done.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(p.cfg.ShutdownGrace):
		p.log.Warn("worker pool shutdown grace period elapsed; forcing close")
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.done.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCycle(ctx, id)
		}
	}
}

func (p *Pool) runCycle(ctx context.Context, workerID int) {
	claimed, err := p.store.ClaimPendingSubmissions(ctx, p.cfg.BatchSize, time.Now())
	if err != nil {
		p.log.Error("failed to claim pending submissions", zap.Int("worker", workerID), zap.Error(err))
		return
	}

	for _, row := range claimed {
		select {
		case <-p.shutdown:
			// Release the claimed row back so another worker (or a future
			// cycle, after restart) can pick it up.
			p.releaseRow(ctx, row)
			return
		default:
		}
		p.processRow(ctx, row)
	}
}

func (p *Pool) releaseRow(ctx context.Context, row *domain.TransferRequest) {
	if err := p.store.MarkPendingSubmission(ctx, row.ID, "worker shutting down", time.Now()); err != nil {
		p.log.Error("failed to release claimed row on shutdown", zap.String("id", row.ID), zap.Error(err))
	}
}

func (p *Pool) processRow(ctx context.Context, row *domain.TransferRequest) {
	start := time.Now()
	signature, err := p.adapter.Submit(ctx, row)
	p.metrics.RecordSubmission(time.Since(start), err == nil)

	if err == nil {
		if markErr := p.store.MarkSubmitted(ctx, row.ID, signature); markErr != nil {
			p.log.Error("failed to mark submitted", zap.String("id", row.ID), zap.Error(markErr))
		}
		return
	}

	p.handleFailure(ctx, row, err)
}

func (p *Pool) handleFailure(ctx context.Context, row *domain.TransferRequest, submitErr error) {
	p.metrics.RecordRetry()

	if !apperr.Retryable(submitErr) {
		if err := p.store.MarkFailedFromRetryExhaustion(ctx, row.ID, submitErr.Error()); err != nil {
			p.log.Error("failed to mark non-retryable failure", zap.String("id", row.ID), zap.Error(err))
		}
		return
	}

	n, err := p.store.IncrementRetryCount(ctx, row.ID)
	if err != nil {
		p.log.Error("failed to increment retry count", zap.String("id", row.ID), zap.Error(err))
		return
	}

	if n >= domain.MaxRetries {
		if err := p.store.MarkFailedFromRetryExhaustion(ctx, row.ID, submitErr.Error()); err != nil {
			p.log.Error("failed to mark retry-exhausted failure", zap.String("id", row.ID), zap.Error(err))
		}
		return
	}

	backoff := CalculateBackoff(n)
	nextRetry := time.Now().Add(backoff)
	if err := p.store.MarkPendingSubmission(ctx, row.ID, submitErr.Error(), nextRetry); err != nil {
		p.log.Error("failed to schedule retry", zap.String("id", row.ID), zap.Error(err))
	}
}

// CalculateBackoff computes backoff_seconds = min(2^min(n,8), 300).
func CalculateBackoff(retryCount int) time.Duration {
	exp := retryCount
	if exp > 8 {
		exp = 8
	}
	seconds := 1 << uint(exp)
	if seconds > 300 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}
