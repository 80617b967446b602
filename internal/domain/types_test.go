package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComplianceStatusValid(t *testing.T) {
	assert.True(t, CompliancePending.Valid())
	assert.True(t, ComplianceApproved.Valid())
	assert.True(t, ComplianceRejected.Valid())
	assert.False(t, ComplianceStatus("bogus").Valid())
}

func TestBlockchainStatusValidAndTerminal(t *testing.T) {
	assert.True(t, BlockchainPendingSubmission.Valid())
	assert.False(t, BlockchainStatus("bogus").Valid())

	assert.True(t, BlockchainConfirmed.Terminal())
	assert.True(t, BlockchainFailed.Terminal())
	assert.False(t, BlockchainPendingSubmission.Terminal())
	assert.False(t, BlockchainSubmitted.Terminal())
}

func TestAmountOrConfidential(t *testing.T) {
	public := TransferDetails{Kind: TransferPublic, Public: &PublicDetails{Amount: 1500}}
	assert.Equal(t, "1500", public.AmountOrConfidential())

	zero := TransferDetails{Kind: TransferPublic, Public: &PublicDetails{Amount: 0}}
	assert.Equal(t, "0", zero.AmountOrConfidential())

	confidential := TransferDetails{Kind: TransferConfidential, Confidential: &ConfidentialDetails{}}
	assert.Equal(t, "confidential", confidential.AmountOrConfidential())
}

func TestMintOrNative(t *testing.T) {
	r := &TransferRequest{}
	assert.Equal(t, "SOL", r.MintOrNative())

	mint := "So11111111111111111111111111111111111111112"
	r.TokenMint = &mint
	assert.Equal(t, mint, r.MintOrNative())

	empty := ""
	r.TokenMint = &empty
	assert.Equal(t, "SOL", r.MintOrNative())
}

func TestCanonicalMessage(t *testing.T) {
	mint := "MintAddr"
	r := &TransferRequest{
		FromAddress:     "FromAddr",
		ToAddress:       "ToAddr",
		TransferDetails: TransferDetails{Kind: TransferPublic, Public: &PublicDetails{Amount: 42}},
		TokenMint:       &mint,
	}
	assert.Equal(t, "FromAddr:ToAddr:42:MintAddr", r.CanonicalMessage())
}

func TestWalletRiskProfileStale(t *testing.T) {
	now := time.Now()
	fresh := &WalletRiskProfile{UpdatedAt: now.Add(-10 * time.Minute)}
	stale := &WalletRiskProfile{UpdatedAt: now.Add(-2 * time.Hour)}

	assert.False(t, fresh.Stale(now, time.Hour))
	assert.True(t, stale.Stale(now, time.Hour))
}
