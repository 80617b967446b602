package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/domain"
)

// token2022ProgramID is the confidential-transfer-capable token program.
// Confidential transfers are only meaningful against token-2022 mints.
var token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// legacyTokenProgramID is the original SPL Token program, the owner of
// every mint that is not token-2022.
var legacyTokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXkQd5j6GRKARiRBCMsN")

// splAssociatedTokenAccountProgramID derives and owns every associated
// token account, regardless of which token program the underlying mint
// belongs to.
var splAssociatedTokenAccountProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

// confidentialTransferDiscriminator is the leading byte of the instruction
// data built for a confidential transfer, followed by the length-prefixed
// proof fields. This data does not follow the on-chain
// confidential-transfer-extension layout.
const confidentialTransferDiscriminator byte = 27

// SolanaAdapter implements Adapter against a live Solana RPC endpoint with
// a build→sign→send→poll flow, specialized to the associated-token-account
// / transfer_checked semantics this relayer needs.
type SolanaAdapter struct {
	rpcClient *rpc.Client
	issuer    solana.PrivateKey
	strategy  SubmissionStrategy
	log       *zap.Logger

	maxBlockhashAgeSlots uint64
}

// NewSolanaAdapter constructs a SolanaAdapter. issuerPrivateKeyBase58 is the
// relayer's signing key (base58, 64-byte Ed25519 keypair encoding).
func NewSolanaAdapter(rpcURL string, issuerPrivateKeyBase58 string, strategy SubmissionStrategy, log *zap.Logger) (*SolanaAdapter, error) {
	key, err := solana.PrivateKeyFromBase58(issuerPrivateKeyBase58)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "invalid issuer private key", err)
	}
	client := rpc.New(rpcURL)
	if strategy == nil {
		strategy = &publicMempoolStrategy{client: client}
	}
	return &SolanaAdapter{
		rpcClient:            client,
		issuer:                key,
		strategy:              strategy,
		log:                   log,
		maxBlockhashAgeSlots:  150,
	}, nil
}

func (a *SolanaAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.rpcClient.GetHealth(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindChainConnection, "blockchain RPC health check failed", err)
	}
	return nil
}

func (a *SolanaAdapter) Submit(ctx context.Context, r *domain.TransferRequest) (string, error) {
	from, err := solana.PublicKeyFromBase58(r.FromAddress)
	if err != nil {
		return "", apperr.Wrap(apperr.KindChainInvalidSig, "from_address is not a valid Solana public key", err)
	}
	to, err := solana.PublicKeyFromBase58(r.ToAddress)
	if err != nil {
		return "", apperr.Wrap(apperr.KindChainInvalidSig, "to_address is not a valid Solana public key", err)
	}

	instructions, err := a.buildInstructions(ctx, r, from, to)
	if err != nil {
		return "", err
	}

	latest, err := a.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", apperr.Wrap(apperr.KindChainRPCError, "failed to fetch latest blockhash", err)
	}

	tx, err := solana.NewTransaction(instructions, latest.Value.Blockhash, solana.TransactionPayer(a.issuer.PublicKey()))
	if err != nil {
		return "", apperr.Wrap(apperr.KindChainInvalidSig, "failed to build transaction", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(a.issuer.PublicKey()) {
			return &a.issuer
		}
		return nil
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindChainInvalidSig, "failed to sign transaction", err)
	}

	wireTx, err := tx.MarshalBinary()
	if err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "failed to serialize transaction", err)
	}

	signature, err := a.strategy.Send(ctx, wireTx)
	if err != nil {
		return "", classifySendError(err)
	}
	return signature, nil
}

// buildInstructions dispatches on transfer kind and token mint: native SOL,
// SPL token (transfer_checked, with idempotent ATA creation), or
// confidential transfer.
func (a *SolanaAdapter) buildInstructions(ctx context.Context, r *domain.TransferRequest, from, to solana.PublicKey) ([]solana.Instruction, error) {
	switch r.TransferDetails.Kind {
	case domain.TransferConfidential:
		return a.buildConfidentialInstructions(r, from, to)
	case domain.TransferPublic:
		if r.TokenMint == nil {
			return []solana.Instruction{
				system.NewTransferInstruction(r.TransferDetails.Public.Amount, from, to).Build(),
			}, nil
		}
		return a.buildTokenInstructions(ctx, r, from, to)
	default:
		return nil, apperr.New(apperr.KindValidation, "unknown transfer kind")
	}
}

func (a *SolanaAdapter) buildTokenInstructions(ctx context.Context, r *domain.TransferRequest, from, to solana.PublicKey) ([]solana.Instruction, error) {
	mint, err := solana.PublicKeyFromBase58(*r.TokenMint)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "token_mint is not a valid public key", err)
	}

	mintInfo, err := a.rpcClient.GetAccountInfo(ctx, mint)
	if err != nil || mintInfo == nil || mintInfo.Value == nil {
		return nil, apperr.Wrap(apperr.KindChainRPCError, "failed to fetch mint account", err)
	}
	tokenProgram := mintInfo.Value.Owner
	if !tokenProgram.Equals(legacyTokenProgramID) && !tokenProgram.Equals(token2022ProgramID) {
		return nil, apperr.New(apperr.KindValidation, "token_mint is not owned by a recognized token program")
	}
	decimals := uint8(9)
	if d, ok := decodeMintDecimals(mintInfo.Value.Data.GetBinary()); ok {
		decimals = d
	}

	sourceATA, err := deriveAssociatedTokenAddress(from, mint, tokenProgram)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindChainRPCError, "failed to derive source associated token account", err)
	}
	destATA, err := deriveAssociatedTokenAddress(to, mint, tokenProgram)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindChainRPCError, "failed to derive destination associated token account", err)
	}

	sourceInfo, err := a.rpcClient.GetAccountInfo(ctx, sourceATA)
	if err != nil || sourceInfo == nil || sourceInfo.Value == nil {
		return nil, apperr.New(apperr.KindChainInsufficient, "source associated token account does not exist")
	}
	balance, ok := decodeTokenAccountAmount(sourceInfo.Value.Data.GetBinary())
	if !ok || balance < r.TransferDetails.Public.Amount {
		return nil, apperr.New(apperr.KindChainInsufficient, "source associated token account has insufficient balance")
	}

	instructions := make([]solana.Instruction, 0, 2)

	destInfo, err := a.rpcClient.GetAccountInfo(ctx, destATA)
	if err != nil || destInfo == nil || destInfo.Value == nil {
		instructions = append(instructions, associated_token_account.NewCreateInstruction(
			a.issuer.PublicKey(), to, mint,
		).Build())
	}

	instructions = append(instructions, token.NewTransferCheckedInstruction(
		r.TransferDetails.Public.Amount,
		decimals,
		sourceATA,
		mint,
		destATA,
		from,
		nil,
	).Build())

	return instructions, nil
}

// deriveAssociatedTokenAddress derives the associated token account for
// owner/mint under tokenProgram, the same [owner, tokenProgram, mint] seed
// scheme every Solana SDK uses, so token-2022 mints resolve to a different
// address than legacy-program mints with the same owner and mint.
func deriveAssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		splAssociatedTokenAccountProgramID,
	)
	return addr, err
}

// decodeTokenAccountAmount reads the little-endian u64 token amount at
// offset 64 of an SPL/token-2022 token account (mint: 32 bytes, owner: 32
// bytes, amount: 8 bytes).
func decodeTokenAccountAmount(raw []byte) (uint64, bool) {
	if len(raw) < 72 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(raw[64:72]), true
}

// buildConfidentialInstructions wraps the four client-supplied proof fields
// into a single instruction addressed to the token-2022 confidential
// transfer extension. The proofs themselves are opaque to the relayer; it
// is a pass-through signer, not a verifier — verification happens on-chain.
func (a *SolanaAdapter) buildConfidentialInstructions(r *domain.TransferRequest, from, to solana.PublicKey) ([]solana.Instruction, error) {
	d := r.TransferDetails.Confidential
	if d == nil {
		return nil, apperr.New(apperr.KindValidation, "missing confidential transfer details")
	}
	mint := token2022ProgramID
	if r.TokenMint != nil {
		m, err := solana.PublicKeyFromBase58(*r.TokenMint)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "token_mint is not a valid public key", err)
		}
		mint = m
	}

	data := make([]byte, 0, 1+len(d.NewDecryptableAvailableBalance)+len(d.EqualityProof)+len(d.CiphertextValidityProof)+len(d.RangeProof)+16)
	data = append(data, confidentialTransferDiscriminator)
	data = appendLenPrefixed(data, d.NewDecryptableAvailableBalance)
	data = appendLenPrefixed(data, d.EqualityProof)
	data = appendLenPrefixed(data, d.CiphertextValidityProof)
	data = appendLenPrefixed(data, d.RangeProof)

	ix := solana.NewInstruction(token2022ProgramID, solana.AccountMetaSlice{
		solana.Meta(from).WRITE().SIGNER(),
		solana.Meta(to).WRITE(),
		solana.Meta(mint),
	}, data)
	return []solana.Instruction{ix}, nil
}

func appendLenPrefixed(dst []byte, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
}

func decodeMintDecimals(raw []byte) (uint8, bool) {
	// SPL mint layout: decimals is the single byte at offset 44.
	if len(raw) < 45 {
		return 0, false
	}
	return raw[44], true
}

func (a *SolanaAdapter) GetStatus(ctx context.Context, signature string) (Status, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return StatusNotFound, apperr.Wrap(apperr.KindValidation, "invalid signature format", err)
	}

	statuses, err := a.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return StatusPending, apperr.Wrap(apperr.KindChainRPCError, "failed to fetch signature status", err)
	}
	if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return StatusNotFound, nil
	}

	st := statuses.Value[0]
	if st.Err != nil {
		return StatusFailed, nil
	}
	if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}

func (a *SolanaAdapter) WaitForConfirmation(ctx context.Context, signature string, timeout time.Duration) (Status, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		status, err := a.GetStatus(ctx, signature)
		if err != nil {
			return status, err
		}
		if status == StatusConfirmed || status == StatusFailed {
			return status, nil
		}
		if time.Now().After(deadline) {
			return StatusPending, apperr.New(apperr.KindChainTimeout, "timed out waiting for confirmation")
		}
		select {
		case <-ctx.Done():
			return StatusPending, apperr.Wrap(apperr.KindChainTimeout, "context cancelled while waiting for confirmation", ctx.Err())
		case <-ticker.C:
		}
	}
}

func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *rpc.JsonRpcError
	if errors.As(err, &rpcErr) {
		switch {
		case rpcErr.Code == -32002 || rpcErr.Code == -32005:
			return apperr.Wrap(apperr.KindChainRPCError, "transaction simulation failed", err)
		case rpcErr.Code == -32003:
			return apperr.Wrap(apperr.KindChainInsufficient, "insufficient funds for transaction", err)
		}
	}
	return apperr.Wrap(apperr.KindChainRPCError, "failed to send transaction", err)
}

// publicMempoolStrategy submits directly via the configured RPC endpoint's
// standard sendTransaction method, as opposed to a private-relay bundle.
type publicMempoolStrategy struct {
	client *rpc.Client
}

func (s *publicMempoolStrategy) Send(ctx context.Context, signedTx []byte) (string, error) {
	var tx solana.Transaction
	if err := tx.UnmarshalWithDecoder(solana.NewBinDecoder(signedTx)); err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, "failed to decode signed transaction", err)
	}
	sig, err := s.client.SendTransactionWithOpts(ctx, &tx, rpc.TransactionOpts{SkipPreflight: true})
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}
