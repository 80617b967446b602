package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/metrics"
	"github.com/arcsign/compliance-relayer/internal/store"
)

func TestAuthenticateSucceedsOnExactMatch(t *testing.T) {
	in := New(store.NewMemoryStore(), metrics.NoOp{}, zap.NewNop(), map[string]string{"helius": "s3cr3t"})
	require.NoError(t, in.Authenticate("helius", "s3cr3t"))
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	in := New(store.NewMemoryStore(), metrics.NoOp{}, zap.NewNop(), map[string]string{"helius": "s3cr3t"})
	err := in.Authenticate("helius", "wrong")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	in := New(store.NewMemoryStore(), metrics.NoOp{}, zap.NewNop(), map[string]string{"helius": "s3cr3t"})
	err := in.Authenticate("helius", "")
	require.Error(t, err)
}

func TestAuthenticateRejectsUnconfiguredProvider(t *testing.T) {
	in := New(store.NewMemoryStore(), metrics.NoOp{}, zap.NewNop(), map[string]string{"helius": "s3cr3t"})
	err := in.Authenticate("quicknode", "s3cr3t")
	require.Error(t, err)
}

func submittedRowForWebhook(t *testing.T, st store.Store) *domain.TransferRequest {
	t.Helper()
	ctx := context.Background()
	r := &domain.TransferRequest{
		FromAddress:      "FromAddr",
		ToAddress:        "ToAddr",
		TransferDetails:  domain.TransferDetails{Kind: domain.TransferPublic, Public: &domain.PublicDetails{Amount: 1}},
		Nonce:            "018f2e2a-7c3d-7a4b-89ab-00000000c001",
		ComplianceStatus: domain.ComplianceApproved,
		BlockchainStatus: domain.BlockchainPendingSubmission,
	}
	require.NoError(t, st.CreateTransferRequest(ctx, r))
	require.NoError(t, st.MarkSubmitted(ctx, r.ID, "webhook-sig-1"))
	return r
}

func TestProcessMarksConfirmedOnSuccess(t *testing.T) {
	st := store.NewMemoryStore()
	row := submittedRowForWebhook(t, st)
	in := New(st, metrics.NoOp{}, zap.NewNop(), nil)

	require.NoError(t, in.Process(context.Background(), "helius", []Event{{Signature: "webhook-sig-1", Success: true}}))

	got, err := st.GetTransferRequest(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockchainConfirmed, got.BlockchainStatus)
}

func TestProcessMarksFailedOnFailureWithReason(t *testing.T) {
	st := store.NewMemoryStore()
	row := submittedRowForWebhook(t, st)
	in := New(st, metrics.NoOp{}, zap.NewNop(), nil)

	require.NoError(t, in.Process(context.Background(), "helius", []Event{{Signature: "webhook-sig-1", Success: false, Reason: "insufficient funds"}}))

	got, err := st.GetTransferRequest(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockchainFailed, got.BlockchainStatus)
	require.NotNil(t, got.BlockchainLastError)
	assert.Equal(t, "insufficient funds", *got.BlockchainLastError)
}

func TestProcessIgnoresUnknownSignature(t *testing.T) {
	st := store.NewMemoryStore()
	in := New(st, metrics.NoOp{}, zap.NewNop(), nil)

	err := in.Process(context.Background(), "helius", []Event{{Signature: "never-submitted", Success: true}})
	require.NoError(t, err)
}

func TestProcessIsIdempotentAgainstReplay(t *testing.T) {
	st := store.NewMemoryStore()
	row := submittedRowForWebhook(t, st)
	in := New(st, metrics.NoOp{}, zap.NewNop(), nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, in.Process(context.Background(), "helius", []Event{{Signature: "webhook-sig-1", Success: true}}))
	}

	got, err := st.GetTransferRequest(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockchainConfirmed, got.BlockchainStatus)
}
