package api

import (
	"net/http"

	"github.com/arcsign/compliance-relayer/internal/apperr"
)

// ErrorDetail is the body of every non-2xx JSON response.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorDetail under an "error" key, the wire shape
// every endpoint uses for failures.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// statusForKind maps an apperr.Kind to a stable HTTP status, mirroring the
// AppError -> IntoResponse match in the source material's handlers.rs.
func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindDeserialize, apperr.KindSerialization:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound, apperr.KindDBNotFound:
		return http.StatusNotFound
	case apperr.KindDuplicate, apperr.KindDBDuplicate:
		return http.StatusConflict
	case apperr.KindRateLimited, apperr.KindExtRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindNotSupported:
		return http.StatusNotImplemented
	case apperr.KindChainInsufficient:
		return http.StatusPaymentRequired
	case apperr.KindChainTimeout, apperr.KindExtTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindChainConnection, apperr.KindDBConnection, apperr.KindExtUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindExtNetwork, apperr.KindExtAPI, apperr.KindExtConfig, apperr.KindExtParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
