// Package domain holds the core entities of the compliance relayer:
// TransferRequest, BlocklistEntry, and WalletRiskProfile, along with their
// tagged-variant status enums. Types here carry stable snake_case wire
// names for JSON (de)serialization; nothing in this package talks to a
// database or the network.
package domain

import (
	"strconv"
	"time"
)

// ComplianceStatus is a tagged variant with a stable snake_case wire form.
type ComplianceStatus string

const (
	CompliancePending  ComplianceStatus = "pending"
	ComplianceApproved ComplianceStatus = "approved"
	ComplianceRejected ComplianceStatus = "rejected"
)

func (s ComplianceStatus) Valid() bool {
	switch s {
	case CompliancePending, ComplianceApproved, ComplianceRejected:
		return true
	}
	return false
}

// BlockchainStatus is a tagged variant with a stable snake_case wire form.
type BlockchainStatus string

const (
	BlockchainPending           BlockchainStatus = "pending"
	BlockchainPendingSubmission BlockchainStatus = "pending_submission"
	BlockchainProcessing        BlockchainStatus = "processing"
	BlockchainSubmitted         BlockchainStatus = "submitted"
	BlockchainConfirmed         BlockchainStatus = "confirmed"
	BlockchainFailed            BlockchainStatus = "failed"
)

func (s BlockchainStatus) Valid() bool {
	switch s {
	case BlockchainPending, BlockchainPendingSubmission, BlockchainProcessing,
		BlockchainSubmitted, BlockchainConfirmed, BlockchainFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal blockchain status. Spec invariant:
// a row never transitions away from a terminal state.
func (s BlockchainStatus) Terminal() bool {
	return s == BlockchainConfirmed || s == BlockchainFailed
}

// MaxRetries bounds blockchain_retry_count (spec invariant).
const MaxRetries = 10

// TransferKind discriminates the TransferDetails tagged union.
type TransferKind string

const (
	TransferPublic       TransferKind = "public"
	TransferConfidential TransferKind = "confidential"
)

// PublicDetails is the plaintext-amount transfer variant.
type PublicDetails struct {
	Amount uint64 `json:"amount"`
}

// ConfidentialDetails carries opaque zero-knowledge proof material that the
// relayer forwards without interpreting.
type ConfidentialDetails struct {
	NewDecryptableAvailableBalance []byte `json:"new_decryptable_available_balance"`
	EqualityProof                  []byte `json:"equality_proof"`
	CiphertextValidityProof        []byte `json:"ciphertext_validity_proof"`
	RangeProof                     []byte `json:"range_proof"`
}

// TransferDetails is a tagged union: exactly one of Public/Confidential is set.
type TransferDetails struct {
	Kind         TransferKind         `json:"kind"`
	Public       *PublicDetails       `json:"public,omitempty"`
	Confidential *ConfidentialDetails `json:"confidential,omitempty"`
}

// AmountOrConfidential renders the amount component of the canonical signing
// message: the decimal amount for a public transfer, or the literal string
// "confidential" otherwise.
func (d TransferDetails) AmountOrConfidential() string {
	if d.Kind == TransferPublic && d.Public != nil {
		return strconv.FormatUint(d.Public.Amount, 10)
	}
	return "confidential"
}

// TransferRequest is the central entity: one row per client transfer intent.
type TransferRequest struct {
	ID                   string           `json:"id"`
	FromAddress          string           `json:"from_address"`
	ToAddress            string           `json:"to_address"`
	TransferDetails      TransferDetails  `json:"transfer_details"`
	TokenMint            *string          `json:"token_mint"`
	ClientSignature      string           `json:"client_signature"`
	Nonce                string           `json:"nonce"`
	ComplianceStatus     ComplianceStatus `json:"compliance_status"`
	BlockchainStatus     BlockchainStatus `json:"blockchain_status"`
	BlockchainSignature  *string          `json:"blockchain_signature"`
	BlockchainRetryCount int              `json:"blockchain_retry_count"`
	BlockchainLastError  *string          `json:"blockchain_last_error"`
	BlockchainNextRetry  *time.Time       `json:"blockchain_next_retry_at"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// MintOrNative renders the mint component of the canonical signing message:
// the mint address, or the literal string "SOL" for a native transfer.
func (r *TransferRequest) MintOrNative() string {
	if r.TokenMint != nil && *r.TokenMint != "" {
		return *r.TokenMint
	}
	return "SOL"
}

// CanonicalMessage is the exact UTF-8 string the client signs:
// "{from}:{to}:{amount|"confidential"}:{mint|"SOL"}".
func (r *TransferRequest) CanonicalMessage() string {
	return r.FromAddress + ":" + r.ToAddress + ":" + r.TransferDetails.AmountOrConfidential() + ":" + r.MintOrNative()
}

// BlocklistEntry is an operator-curated deny-list row, unique on Address.
type BlocklistEntry struct {
	Address   string    `json:"address"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletRiskProfile is the cached, per-address aggregate of external
// screening signals, keyed by Address.
type WalletRiskProfile struct {
	Address             string    `json:"address"`
	RiskScore           *int      `json:"risk_score"`
	RiskLevel           *string   `json:"risk_level"`
	Reasoning           *string   `json:"reasoning"`
	HasSanctionedAssets bool      `json:"has_sanctioned_assets"`
	HeliusAssetsChecked bool      `json:"helius_assets_checked"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Stale reports whether the profile is older than ttl relative to now.
func (p *WalletRiskProfile) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.UpdatedAt) > ttl
}

// Page is a keyset-paginated result set.
type Page[T any] struct {
	Items      []T    `json:"items"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}
