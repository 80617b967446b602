package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/chain"
	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/metrics"
	"github.com/arcsign/compliance-relayer/internal/store"
)

func TestCalculateBackoff(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 256 * time.Second},
		{10, 256 * time.Second},
		{100, 256 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CalculateBackoff(tc.retryCount), "retryCount=%d", tc.retryCount)
	}
}

func approvedPendingRow(t *testing.T, st store.Store) *domain.TransferRequest {
	t.Helper()
	r := &domain.TransferRequest{
		FromAddress:      "FromAddr",
		ToAddress:        "ToAddr",
		TransferDetails:  domain.TransferDetails{Kind: domain.TransferPublic, Public: &domain.PublicDetails{Amount: 1}},
		Nonce:            "018f2e2a-7c3d-7a4b-89ab-1234567890ab",
		ComplianceStatus: domain.ComplianceApproved,
		BlockchainStatus: domain.BlockchainPendingSubmission,
	}
	require.NoError(t, st.CreateTransferRequest(context.Background(), r))
	return r
}

func TestPoolSubmitsClaimedRow(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := chain.NewMockAdapter()
	row := approvedPendingRow(t, st)

	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ShutdownGrace = time.Second

	pool := New(cfg, st, adapter, metrics.NoOp{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := st.GetTransferRequest(context.Background(), row.ID)
		return err == nil && got.BlockchainStatus == domain.BlockchainSubmitted
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()

	assert.Len(t, adapter.Submissions(), 1)
}

func TestPoolRetriesOnRetryableFailure(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := chain.NewMockAdapter()
	adapter.FailNextSubmit = apperr.New(apperr.KindChainTimeout, "simulated timeout")
	row := approvedPendingRow(t, st)

	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ShutdownGrace = time.Second

	pool := New(cfg, st, adapter, metrics.NoOp{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := st.GetTransferRequest(context.Background(), row.ID)
		return err == nil && got.BlockchainRetryCount == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()
}

func BenchmarkCalculateBackoff(b *testing.B) {
	for i := 0; i < b.N; i++ {
		CalculateBackoff(i % 10)
	}
}
