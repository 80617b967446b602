package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arcsign/compliance-relayer/internal/apperr"
)

func TestStatusForKind(t *testing.T) {
	cases := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindDeserialize, http.StatusBadRequest},
		{apperr.KindSerialization, http.StatusBadRequest},
		{apperr.KindAuthentication, http.StatusUnauthorized},
		{apperr.KindAuthorization, http.StatusForbidden},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindDBNotFound, http.StatusNotFound},
		{apperr.KindDuplicate, http.StatusConflict},
		{apperr.KindDBDuplicate, http.StatusConflict},
		{apperr.KindRateLimited, http.StatusTooManyRequests},
		{apperr.KindExtRateLimited, http.StatusTooManyRequests},
		{apperr.KindNotSupported, http.StatusNotImplemented},
		{apperr.KindChainInsufficient, http.StatusPaymentRequired},
		{apperr.KindChainTimeout, http.StatusGatewayTimeout},
		{apperr.KindExtTimeout, http.StatusGatewayTimeout},
		{apperr.KindChainConnection, http.StatusServiceUnavailable},
		{apperr.KindDBConnection, http.StatusServiceUnavailable},
		{apperr.KindExtUnavailable, http.StatusServiceUnavailable},
		{apperr.KindExtNetwork, http.StatusBadGateway},
		{apperr.KindExtAPI, http.StatusBadGateway},
		{apperr.KindExtConfig, http.StatusBadGateway},
		{apperr.KindExtParse, http.StatusBadGateway},
		{apperr.KindInternal, http.StatusInternalServerError},
		{apperr.Kind("unmapped"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, statusForKind(tc.kind), "kind %s", tc.kind)
	}
}
