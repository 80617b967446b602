package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/store"
)

func newTestAggregator(t *testing.T) (*Aggregator, *MockProvider, *MockAssetsProvider, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	provider := NewMockProvider()
	assets := NewMockAssetsProvider()
	agg, err := NewAggregator(context.Background(), st, provider, assets, DefaultConfig())
	require.NoError(t, err)
	return agg, provider, assets, st
}

func TestScreenDenylistTakesPriority(t *testing.T) {
	agg, provider, _, _ := newTestAggregator(t)
	provider.SetScore("addr", 10, "critical", "should never be consulted")
	require.NoError(t, agg.AddToDenylist(context.Background(), &domain.BlocklistEntry{Address: "addr", Reason: "ofac"}))

	out, err := agg.Screen(context.Background(), "addr", true)
	require.NoError(t, err)
	assert.True(t, out.Blocked)
	assert.Equal(t, "ofac", out.BlockedReason)
	assert.Equal(t, domain.ComplianceRejected, out.ComplianceStatus)
}

func TestScreenApprovesLowRisk(t *testing.T) {
	agg, provider, _, _ := newTestAggregator(t)
	provider.SetScore("addr", 1, "low", "clean")

	out, err := agg.Screen(context.Background(), "addr", true)
	require.NoError(t, err)
	assert.False(t, out.Blocked)
	assert.Equal(t, domain.ComplianceApproved, out.ComplianceStatus)
}

func TestScreenRejectsAboveThreshold(t *testing.T) {
	agg, provider, _, _ := newTestAggregator(t)
	provider.SetScore("addr", 8, "high", "mixer exposure")

	out, err := agg.Screen(context.Background(), "addr", true)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplianceRejected, out.ComplianceStatus)
}

func TestScreenRejectsOnSanctionedAssets(t *testing.T) {
	agg, provider, assets, _ := newTestAggregator(t)
	provider.SetScore("addr", 0, "low", "clean")
	assets.SetSanctioned("addr", true)

	out, err := agg.Screen(context.Background(), "addr", true)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplianceRejected, out.ComplianceStatus)
	assert.True(t, out.Profile.HasSanctionedAssets)
}

func TestScreenUsesCacheWhenFresh(t *testing.T) {
	agg, provider, _, _ := newTestAggregator(t)
	provider.SetScore("addr", 1, "low", "clean")

	first, err := agg.Screen(context.Background(), "addr", false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	provider.SetScore("addr", 9, "high", "should not be re-fetched")
	second, err := agg.Screen(context.Background(), "addr", false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	require.NotNil(t, second.Profile.RiskScore)
	assert.Equal(t, 1, *second.Profile.RiskScore)
}

func TestScreenTolerantOfProviderFailureByDefault(t *testing.T) {
	agg, provider, _, _ := newTestAggregator(t)
	provider.SetError(errors.New("provider unreachable"))

	out, err := agg.Screen(context.Background(), "addr", true)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplianceApproved, out.ComplianceStatus)
}

func TestScreenStrictOnFailureRejects(t *testing.T) {
	st := store.NewMemoryStore()
	provider := NewMockProvider()
	provider.SetError(errors.New("provider unreachable"))
	assets := NewMockAssetsProvider()
	cfg := DefaultConfig()
	cfg.StrictOnFailure = true
	agg, err := NewAggregator(context.Background(), st, provider, assets, cfg)
	require.NoError(t, err)

	out, err := agg.Screen(context.Background(), "addr", true)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplianceRejected, out.ComplianceStatus)
}

func TestAddRemoveListDenylist(t *testing.T) {
	agg, _, _, _ := newTestAggregator(t)

	require.NoError(t, agg.AddToDenylist(context.Background(), &domain.BlocklistEntry{Address: "addr", Reason: "ofac"}))
	assert.Len(t, agg.ListDenylist(), 1)

	removed, err := agg.RemoveFromDenylist(context.Background(), "addr")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, agg.ListDenylist())

	removedAgain, err := agg.RemoveFromDenylist(context.Background(), "addr")
	require.NoError(t, err)
	assert.False(t, removedAgain)
}

func TestAddToDenylistRequiresAddress(t *testing.T) {
	agg, _, _, _ := newTestAggregator(t)
	err := agg.AddToDenylist(context.Background(), &domain.BlocklistEntry{Reason: "ofac"})
	assert.Error(t, err)
}

func TestNewAggregatorHydratesDenylist(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertBlocklistEntry(context.Background(), &domain.BlocklistEntry{Address: "pre-existing", Reason: "seeded"}))

	agg, err := NewAggregator(context.Background(), st, NewMockProvider(), NewMockAssetsProvider(), DefaultConfig())
	require.NoError(t, err)

	entries := agg.ListDenylist()
	require.Len(t, entries, 1)
	assert.Equal(t, "pre-existing", entries[0].Address)
}
