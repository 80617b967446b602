package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// PrivateRelayStrategy submits through a dedicated private endpoint
// (a staked/bundle relay) instead of the public RPC sendTransaction path.
// The tip amount is stored on the strategy but is not added to the
// transaction: neither this strategy nor SolanaAdapter appends a tip
// instruction. This strategy only controls where the signed bytes are sent.
type PrivateRelayStrategy struct {
	client *rpc.Client
	tip    uint64
}

// NewPrivateRelayStrategy builds a strategy that submits to relayURL.
func NewPrivateRelayStrategy(relayURL string, tipLamports uint64) *PrivateRelayStrategy {
	return &PrivateRelayStrategy{client: rpc.New(relayURL), tip: tipLamports}
}

func (s *PrivateRelayStrategy) Send(ctx context.Context, signedTx []byte) (string, error) {
	var tx solana.Transaction
	if err := tx.UnmarshalWithDecoder(solana.NewBinDecoder(signedTx)); err != nil {
		return "", err
	}
	sig, err := s.client.SendTransactionWithOpts(ctx, &tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}
