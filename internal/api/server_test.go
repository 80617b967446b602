package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/audit"
	"github.com/arcsign/compliance-relayer/internal/chain"
	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/metrics"
	"github.com/arcsign/compliance-relayer/internal/risk"
	"github.com/arcsign/compliance-relayer/internal/store"
	"github.com/arcsign/compliance-relayer/internal/webhook"
)

// testServer wires a Server against in-memory/mock collaborators, using
// real (not HTTP-mocked) subsystems for handler tests.
type testServer struct {
	*Server
	store   *store.MemoryStore
	adapter *chain.MockAdapter
	risk    *risk.MockProvider
	assets  *risk.MockAssetsProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	adapter := chain.NewMockAdapter()
	provider := risk.NewMockProvider()
	assets := risk.NewMockAssetsProvider()

	riskAgg, err := risk.NewAggregator(context.Background(), st, provider, assets, risk.DefaultConfig())
	require.NoError(t, err)

	log := zap.NewNop()
	auditLog, err := audit.NewLogger(filepath.Join(t.TempDir(), "audit.ndjson"))
	require.NoError(t, err)
	wh := webhook.New(st, metrics.NoOp{}, log, map[string]string{"helius": "test-secret"})

	cfg := DefaultConfig()
	cfg.EnableRateLimiting = false

	srv := New(cfg, st, adapter, riskAgg, wh, metrics.NoOp{}, auditLog, log)
	return &testServer{Server: srv, store: st, adapter: adapter, risk: provider, assets: assets}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	return rec
}

// signedSubmission builds a structurally valid, correctly-signed
// submitTransferRequest for address from.
func signedSubmission(t *testing.T, amount uint64) (submitTransferRequest, ed25519.PublicKey) {
	t.Helper()
	fromPub, fromPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	toPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	req := &domain.TransferRequest{
		FromAddress:     base58.Encode(fromPub),
		ToAddress:       base58.Encode(toPub),
		TransferDetails: domain.TransferDetails{Kind: domain.TransferPublic, Public: &domain.PublicDetails{Amount: amount}},
		Nonce:           "018f2e2a-7c3d-7a4b-89ab-1234567890ab",
	}
	sig := ed25519.Sign(fromPriv, []byte(req.CanonicalMessage()))

	return submitTransferRequest{
		FromAddress:     req.FromAddress,
		ToAddress:       req.ToAddress,
		TransferDetails: req.TransferDetails,
		ClientSignature: base58.Encode(sig),
		Nonce:           req.Nonce,
	}, fromPub
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}
