// Package apperr defines the error taxonomy shared across the relayer.
//
// Every error that crosses a package boundary in this module should be, or
// wrap, an *AppError so that the API layer can map it to a stable HTTP
// status and a stable snake_case "type" string without inspecting error
// strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindDuplicate      Kind = "duplicate"
	KindRateLimited    Kind = "rate_limited"
	KindConfiguration  Kind = "configuration"
	KindNotSupported   Kind = "not_supported"
	KindSerialization  Kind = "serialization"
	KindDeserialize    Kind = "deserialization"
	KindInternal       Kind = "internal"

	// Database sub-kinds.
	KindDBConnection Kind = "database_connection"
	KindDBQuery      Kind = "database_query"
	KindDBMigration  Kind = "database_migration"
	KindDBNotFound   Kind = "database_not_found"
	KindDBDuplicate  Kind = "database_duplicate"

	// Blockchain sub-kinds.
	KindChainConnection   Kind = "blockchain_connection"
	KindChainTimeout      Kind = "blockchain_timeout"
	KindChainRPCError     Kind = "blockchain_rpc_error"
	KindChainInsufficient Kind = "blockchain_insufficient_funds"
	KindChainInvalidSig   Kind = "blockchain_invalid_signature"
	KindChainTxFailed     Kind = "blockchain_transaction_failed"

	// External service sub-kinds.
	KindExtUnavailable  Kind = "external_service_unavailable"
	KindExtTimeout      Kind = "external_service_timeout"
	KindExtRateLimited  Kind = "external_service_rate_limited"
	KindExtNetwork      Kind = "external_service_network"
	KindExtConfig       Kind = "external_service_configuration"
	KindExtParse        Kind = "external_service_parse"
	KindExtAPI          Kind = "external_service_api"
)

// AppError is the single error type propagated across package boundaries.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New builds an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap builds an AppError of the given kind, keeping cause for %w chains.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// As extracts an *AppError from err, following the Unwrap chain.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal if err is not an AppError.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// Retryable reports whether a blockchain-classified error should be retried
// by the submission worker.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindChainTimeout, KindChainRPCError, KindChainConnection, KindDBConnection:
		return true
	default:
		return false
	}
}
