package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/store"
)

func newTransferRequest(nonce string) *domain.TransferRequest {
	return &domain.TransferRequest{
		FromAddress:      "FromAddr",
		ToAddress:        "ToAddr",
		TransferDetails:  domain.TransferDetails{Kind: domain.TransferPublic, Public: &domain.PublicDetails{Amount: 1}},
		Nonce:            nonce,
		ComplianceStatus: domain.CompliancePending,
		BlockchainStatus: domain.BlockchainPendingSubmission,
	}
}

// testDuplicateNonceRejected verifies that a store MUST reject a second
// CreateTransferRequest for the same (from_address, nonce) pair.
func testDuplicateNonceRejected(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	r := newTransferRequest("018f2e2a-7c3d-7a4b-89ab-0000000000a1")
	require.NoError(t, s.CreateTransferRequest(ctx, r))

	dup := newTransferRequest(r.Nonce)
	err := s.CreateTransferRequest(ctx, dup)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDuplicate, apperr.KindOf(err))
}

// testClaimPendingSubmissionsIsExclusive verifies that ClaimPendingSubmissions
// transitions a row out of PendingSubmission so a second claim in the same
// window does not also pick it up.
func testClaimPendingSubmissionsIsExclusive(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	r := newTransferRequest("018f2e2a-7c3d-7a4b-89ab-0000000000a2")
	r.ComplianceStatus = domain.ComplianceApproved
	require.NoError(t, s.CreateTransferRequest(ctx, r))

	now := time.Now()
	claimed, err := s.ClaimPendingSubmissions(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, domain.BlockchainProcessing, claimed[0].BlockchainStatus)

	claimedAgain, err := s.ClaimPendingSubmissions(ctx, 10, now)
	require.NoError(t, err)
	assert.Empty(t, claimedAgain)
}

// testMarkConfirmedIsConditional verifies MarkConfirmed only succeeds from
// Submitted state, letting the webhook and the crank race safely.
func testMarkConfirmedIsConditional(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	r := newTransferRequest("018f2e2a-7c3d-7a4b-89ab-0000000000a3")
	require.NoError(t, s.CreateTransferRequest(ctx, r))

	ok, err := s.MarkConfirmed(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, ok, "a PendingSubmission row must not confirm directly")

	require.NoError(t, s.MarkSubmitted(ctx, r.ID, "sig-a3"))
	ok, err = s.MarkConfirmed(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	okAgain, err := s.MarkConfirmed(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, okAgain, "confirming an already-Confirmed row is a no-op")
}

// testGetByNonceRoundTrips verifies idempotent-submission lookup.
func testGetByNonceRoundTrips(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	r := newTransferRequest("018f2e2a-7c3d-7a4b-89ab-0000000000a4")
	require.NoError(t, s.CreateTransferRequest(ctx, r))

	got, err := s.GetByNonce(ctx, r.FromAddress, r.Nonce)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)

	miss, err := s.GetByNonce(ctx, r.FromAddress, "no-such-nonce")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

// testListTransferRequestsPaginates verifies keyset pagination terminates
// and does not repeat or drop rows.
func testListTransferRequestsPaginates(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	const total = 5
	for i := 0; i < total; i++ {
		r := newTransferRequest("018f2e2a-7c3d-7a4b-89ab-0000000000b" + string(rune('0'+i)))
		require.NoError(t, s.CreateTransferRequest(ctx, r))
		time.Sleep(time.Millisecond)
	}

	seen := map[string]bool{}
	cursor := ""
	for i := 0; i < total+1; i++ {
		page, err := s.ListTransferRequests(ctx, 2, cursor)
		require.NoError(t, err)
		for _, item := range page.Items {
			assert.False(t, seen[item.ID], "row %s returned twice across pages", item.ID)
			seen[item.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	assert.GreaterOrEqual(t, len(seen), total)
}

// testBlocklistUpsertAndDelete verifies the blocklist CRUD surface.
func testBlocklistUpsertAndDelete(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	e := &domain.BlocklistEntry{Address: "blocked-addr-1", Reason: "ofac"}
	require.NoError(t, s.UpsertBlocklistEntry(ctx, e))

	entries, err := s.ListBlocklistEntries(ctx)
	require.NoError(t, err)
	found := false
	for _, got := range entries {
		if got.Address == e.Address {
			found = true
			assert.Equal(t, "ofac", got.Reason)
		}
	}
	assert.True(t, found)

	removed, err := s.DeleteBlocklistEntry(ctx, e.Address)
	require.NoError(t, err)
	assert.True(t, removed)

	removedAgain, err := s.DeleteBlocklistEntry(ctx, e.Address)
	require.NoError(t, err)
	assert.False(t, removedAgain)
}

// testRiskProfileUpsertRoundTrips verifies risk-profile persistence.
func testRiskProfileUpsertRoundTrips(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	score := 5
	level := "medium"
	p := &domain.WalletRiskProfile{Address: "risk-addr-1", RiskScore: &score, RiskLevel: &level}
	require.NoError(t, s.UpsertRiskProfile(ctx, p))

	got, err := s.GetRiskProfile(ctx, p.Address)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.RiskScore)
	assert.Equal(t, 5, *got.RiskScore)

	miss, err := s.GetRiskProfile(ctx, "no-such-addr")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

// testIncrementAndResetRetryCount verifies the worker's retry bookkeeping.
func testIncrementAndResetRetryCount(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	r := newTransferRequest("018f2e2a-7c3d-7a4b-89ab-0000000000a5")
	require.NoError(t, s.CreateTransferRequest(ctx, r))

	n, err := s.IncrementRetryCount(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.IncrementRetryCount(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.ResetRetryCount(ctx, r.ID))
	got, err := s.GetTransferRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BlockchainRetryCount)
	assert.Nil(t, got.BlockchainLastError)
}
