package chain

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/apperr"
)

func TestNewSolanaAdapterRejectsInvalidIssuerKey(t *testing.T) {
	_, err := NewSolanaAdapter("https://api.devnet.solana.com", "not-a-valid-base58-key", nil, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestDecodeMintDecimals(t *testing.T) {
	raw := make([]byte, 45)
	raw[44] = 6
	decimals, ok := decodeMintDecimals(raw)
	require.True(t, ok)
	assert.Equal(t, uint8(6), decimals)

	_, ok = decodeMintDecimals(raw[:10])
	assert.False(t, ok)
}

func TestAppendLenPrefixed(t *testing.T) {
	dst := appendLenPrefixed(nil, []byte{0xaa, 0xbb})
	require.Len(t, dst, 4+2)
	assert.Equal(t, []byte{2, 0, 0, 0, 0xaa, 0xbb}, dst)

	dst = appendLenPrefixed(nil, nil)
	assert.Equal(t, []byte{0, 0, 0, 0}, dst)
}

func TestClassifySendErrorNil(t *testing.T) {
	assert.NoError(t, classifySendError(nil))
}

func TestDecodeTokenAccountAmount(t *testing.T) {
	raw := make([]byte, 72)
	binary.LittleEndian.PutUint64(raw[64:72], 123456)
	amount, ok := decodeTokenAccountAmount(raw)
	require.True(t, ok)
	assert.Equal(t, uint64(123456), amount)

	_, ok = decodeTokenAccountAmount(raw[:71])
	assert.False(t, ok)
}

func TestDeriveAssociatedTokenAddressDiffersByProgram(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	mint := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	legacy, err := deriveAssociatedTokenAddress(owner, mint, legacyTokenProgramID)
	require.NoError(t, err)
	token2022, err := deriveAssociatedTokenAddress(owner, mint, token2022ProgramID)
	require.NoError(t, err)

	assert.NotEqual(t, legacy, token2022)
}
