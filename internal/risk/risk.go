// Package risk implements the compliance screen and the pre-flight
// risk-check endpoint: a deny-list fast path, a TTL cache of wallet risk
// profiles, and a concurrent fan-out to an external risk provider and a
// sanctioned-assets provider when the cache misses.
//
// The deny-list uses a sync.RWMutex-guarded map with copy-on-read; the
// fan-out uses golang.org/x/sync/errgroup.
package risk

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/store"
)

// Provider is an external risk-scoring service (e.g. Range).
type Provider interface {
	Name() string
	Score(ctx context.Context, address string) (score int, level string, reasoning string, err error)
}

// AssetsProvider is an external sanctioned-assets screen (e.g. Helius).
//
// SupportsAssetsCheck resolves an ambiguity in the source material: a
// provider that always reports "not sanctioned" by default is
// indistinguishable from one that was never actually called. Providers
// that genuinely perform the check return true here; the NoAssetsProvider
// stub returns false so HeliusAssetsChecked can be trusted.
type AssetsProvider interface {
	Name() string
	HasSanctionedAssets(ctx context.Context, address string) (bool, error)
	SupportsAssetsCheck() bool
}

// Outcome is the result of one screen, carrying enough detail for both the
// synchronous compliance screen and the pre-flight risk-check endpoint.
type Outcome struct {
	Address string `json:"address"`

	Blocked       bool   `json:"blocked"`
	BlockedReason string `json:"blocked_reason,omitempty"`

	FromCache bool                     `json:"from_cache"`
	Profile   domain.WalletRiskProfile `json:"profile"`

	// ComplianceStatus is only meaningful when the screen is invoked from
	// the submit path (§4.1); risk_check leaves it zero-valued.
	ComplianceStatus domain.ComplianceStatus `json:"compliance_status,omitempty"`
}

// Config tunes the aggregator's tier policy and timeouts.
type Config struct {
	RiskScoreThreshold int
	CacheTTL           time.Duration
	ProviderTimeout    time.Duration
	StrictOnFailure    bool
}

// DefaultConfig sets the default risk_score threshold of 6.
func DefaultConfig() Config {
	return Config{
		RiskScoreThreshold: 6,
		CacheTTL:           1 * time.Hour,
		ProviderTimeout:    5 * time.Second,
		StrictOnFailure:    false,
	}
}

// Aggregator implements the screening hierarchy: deny-list, cache,
// concurrent provider fan-out, persist, tier policy.
type Aggregator struct {
	mu       sync.RWMutex
	denylist map[string]string // address -> reason

	store    store.Store
	risk     Provider
	assets   AssetsProvider
	cfg      Config
}

// NewAggregator constructs an Aggregator, hydrating the deny-list from st.
func NewAggregator(ctx context.Context, st store.Store, riskProvider Provider, assetsProvider AssetsProvider, cfg Config) (*Aggregator, error) {
	a := &Aggregator{
		denylist: make(map[string]string),
		store:    st,
		risk:     riskProvider,
		assets:   assetsProvider,
		cfg:      cfg,
	}
	entries, err := st.ListBlocklistEntries(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to hydrate deny-list", err)
	}
	for _, e := range entries {
		a.denylist[e.Address] = e.Reason
	}
	return a, nil
}

// Screen runs the full hierarchy and, if forCompliance is true, additionally
// applies the tier policy to produce a ComplianceStatus.
func (a *Aggregator) Screen(ctx context.Context, address string, forCompliance bool) (Outcome, error) {
	if reason, blocked := a.checkDenylist(address); blocked {
		out := Outcome{Address: address, Blocked: true, BlockedReason: reason}
		if forCompliance {
			out.ComplianceStatus = domain.ComplianceRejected
		}
		return out, nil
	}

	if cached, err := a.store.GetRiskProfile(ctx, address); err == nil && cached != nil && !cached.Stale(time.Now(), a.cfg.CacheTTL) {
		out := Outcome{Address: address, FromCache: true, Profile: *cached}
		if forCompliance {
			out.ComplianceStatus = a.applyTierPolicy(out.Profile, false, false)
		}
		return out, nil
	}

	profile, riskErr, assetsErr := a.fetchFromProviders(ctx, address)
	if err := a.store.UpsertRiskProfile(ctx, &profile); err != nil {
		// Upsert failure is discarded: it is not logged and does not fail
		// the response.
		_ = err
	}

	out := Outcome{Address: address, Profile: profile}
	if forCompliance {
		out.ComplianceStatus = a.applyTierPolicy(profile, riskErr != nil, assetsErr != nil)
	}
	return out, nil
}

func (a *Aggregator) checkDenylist(address string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	reason, ok := a.denylist[address]
	return reason, ok
}

// fetchFromProviders concurrently calls the risk provider and the assets
// provider, each under its own timeout, and tolerates either failing.
func (a *Aggregator) fetchFromProviders(ctx context.Context, address string) (domain.WalletRiskProfile, error, error) {
	now := time.Now()
	profile := domain.WalletRiskProfile{Address: address, CreatedAt: now, UpdatedAt: now}

	var riskErr, assetsErr error
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, a.cfg.ProviderTimeout)
		defer cancel()
		score, level, reasoning, err := a.risk.Score(callCtx, address)
		if err != nil {
			riskErr = err
			return nil
		}
		profile.RiskScore = &score
		profile.RiskLevel = &level
		profile.Reasoning = &reasoning
		return nil
	})

	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, a.cfg.ProviderTimeout)
		defer cancel()
		sanctioned, err := a.assets.HasSanctionedAssets(callCtx, address)
		if err != nil {
			assetsErr = err
			return nil
		}
		profile.HasSanctionedAssets = sanctioned
		profile.HeliusAssetsChecked = a.assets.SupportsAssetsCheck()
		return nil
	})

	_ = g.Wait()
	return profile, riskErr, assetsErr
}

// applyTierPolicy maps a risk score/level onto a compliance decision.
// Deny-list hits are handled earlier in Screen and never reach this
// function.
func (a *Aggregator) applyTierPolicy(p domain.WalletRiskProfile, riskFailed, assetsFailed bool) domain.ComplianceStatus {
	if p.HasSanctionedAssets {
		return domain.ComplianceRejected
	}
	if p.RiskScore != nil && *p.RiskScore >= a.cfg.RiskScoreThreshold {
		return domain.ComplianceRejected
	}
	if (riskFailed || assetsFailed) && a.cfg.StrictOnFailure {
		return domain.ComplianceRejected
	}
	return domain.ComplianceApproved
}

// AddToDenylist persists e then mirrors it into the in-memory set. Both
// steps must succeed; a DB failure leaves the in-memory state unchanged.
func (a *Aggregator) AddToDenylist(ctx context.Context, e *domain.BlocklistEntry) error {
	if e.Address == "" {
		return apperr.New(apperr.KindValidation, "address is required")
	}
	if err := a.store.UpsertBlocklistEntry(ctx, e); err != nil {
		return err
	}
	a.mu.Lock()
	a.denylist[e.Address] = e.Reason
	a.mu.Unlock()
	return nil
}

// RemoveFromDenylist deletes address from the DB first; if the DB affected
// a row, or the in-memory set already had the entry, it removes it from
// memory and reports success.
func (a *Aggregator) RemoveFromDenylist(ctx context.Context, address string) (bool, error) {
	affected, err := a.store.DeleteBlocklistEntry(ctx, address)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	_, hadEntry := a.denylist[address]
	delete(a.denylist, address)
	a.mu.Unlock()

	return affected || hadEntry, nil
}

// ListDenylist returns the in-memory snapshot.
func (a *Aggregator) ListDenylist() []domain.BlocklistEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.BlocklistEntry, 0, len(a.denylist))
	for addr, reason := range a.denylist {
		out = append(out, domain.BlocklistEntry{Address: addr, Reason: reason})
	}
	return out
}
