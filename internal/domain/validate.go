package domain

import (
	"crypto/ed25519"
	"regexp"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/mr-tron/base58"
)

// uuidV7Pattern matches the canonical 8-4-4-4-12 hex layout with version
// nibble 7, the required nonce shape.
var uuidV7Pattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-7[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// IsUUIDv7Shaped reports whether nonce has the UUIDv7 layout.
func IsUUIDv7Shaped(nonce string) bool {
	return uuidV7Pattern.MatchString(nonce)
}

// ValidateSubmission checks the structural validity of a transfer intent
// before it is persisted: non-empty addresses, a positive amount for public
// transfers, all four proof fields present for confidential transfers, and
// a UUIDv7-shaped nonce. It does not verify the client signature.
func ValidateSubmission(r *TransferRequest) error {
	if r.FromAddress == "" {
		return apperr.New(apperr.KindValidation, "from_address is required")
	}
	if !ValidAddress(r.FromAddress) {
		return apperr.New(apperr.KindValidation, "from_address is not a valid base58 Solana address")
	}
	if r.ToAddress == "" {
		return apperr.New(apperr.KindValidation, "to_address is required")
	}
	if !ValidAddress(r.ToAddress) {
		return apperr.New(apperr.KindValidation, "to_address is not a valid base58 Solana address")
	}
	if !IsUUIDv7Shaped(r.Nonce) {
		return apperr.New(apperr.KindValidation, "nonce must be a UUIDv7-shaped string")
	}
	switch r.TransferDetails.Kind {
	case TransferPublic:
		if r.TransferDetails.Public == nil || r.TransferDetails.Public.Amount == 0 {
			return apperr.New(apperr.KindValidation, "amount must be greater than 0 for a public transfer")
		}
	case TransferConfidential:
		d := r.TransferDetails.Confidential
		if d == nil ||
			len(d.NewDecryptableAvailableBalance) == 0 ||
			len(d.EqualityProof) == 0 ||
			len(d.CiphertextValidityProof) == 0 ||
			len(d.RangeProof) == 0 {
			return apperr.New(apperr.KindValidation, "all four proof fields are required for a confidential transfer")
		}
	default:
		return apperr.New(apperr.KindValidation, "transfer_details.kind must be \"public\" or \"confidential\"")
	}
	return nil
}

// VerifyClientSignature checks r.ClientSignature as an Ed25519 signature by
// FromAddress (interpreted as a base58-encoded Ed25519 public key) over
// r.CanonicalMessage(). ClientSignature is expected to be base58-encoded.
func VerifyClientSignature(r *TransferRequest) error {
	pubKeyBytes, err := base58.Decode(r.FromAddress)
	if err != nil || len(pubKeyBytes) != ed25519.PublicKeySize {
		return apperr.New(apperr.KindValidation, "from_address is not a valid base58 Ed25519 public key")
	}
	sigBytes, err := base58.Decode(r.ClientSignature)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return apperr.New(apperr.KindValidation, "client_signature is not a valid base58 Ed25519 signature")
	}
	msg := r.CanonicalMessage()
	if !ed25519.Verify(ed25519.PublicKey(pubKeyBytes), []byte(msg), sigBytes) {
		return apperr.New(apperr.KindValidation, "client_signature does not verify against the canonical message")
	}
	return nil
}

// ValidAddress reports whether s decodes as a 32-byte base58 Solana address.
func ValidAddress(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}
