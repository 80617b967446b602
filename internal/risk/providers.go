package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arcsign/compliance-relayer/internal/apperr"
)

// RangeProvider implements Provider against the Range risk-scoring API
// using a plain *http.Client and manual request/response structs.
type RangeProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewRangeProvider constructs a RangeProvider. baseURL defaults to the
// production Range endpoint if empty.
func NewRangeProvider(apiKey, baseURL string) *RangeProvider {
	if baseURL == "" {
		baseURL = "https://api.range.org"
	}
	return &RangeProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *RangeProvider) Name() string { return "range" }

func (p *RangeProvider) Score(ctx context.Context, address string) (int, string, string, error) {
	reqBody, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return 0, "", "", apperr.Wrap(apperr.KindSerialization, "failed to encode range request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/risk/score", bytes.NewReader(reqBody))
	if err != nil {
		return 0, "", "", apperr.Wrap(apperr.KindExtAPI, "failed to build range request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, "", "", apperr.Wrap(apperr.KindExtNetwork, "range risk API request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", "", apperr.Wrap(apperr.KindExtNetwork, "failed to read range response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, "", "", apperr.New(apperr.KindExtRateLimited, "range API rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", "", apperr.New(apperr.KindExtAPI, fmt.Sprintf("range API returned %d: %s", resp.StatusCode, string(body)))
	}

	var result struct {
		RiskScore int    `json:"risk_score"`
		RiskLevel string `json:"risk_level"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, "", "", apperr.Wrap(apperr.KindExtParse, "failed to parse range response", err)
	}
	return result.RiskScore, result.RiskLevel, result.Reasoning, nil
}

// HeliusAssetsProvider implements AssetsProvider against Helius's
// digital-asset API, screening held assets against a sanctioned-mint list.
type HeliusAssetsProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewHeliusAssetsProvider constructs a HeliusAssetsProvider.
func NewHeliusAssetsProvider(apiKey, baseURL string) *HeliusAssetsProvider {
	if baseURL == "" {
		baseURL = "https://api.helius.xyz"
	}
	return &HeliusAssetsProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *HeliusAssetsProvider) Name() string                { return "helius" }
func (p *HeliusAssetsProvider) SupportsAssetsCheck() bool    { return true }

func (p *HeliusAssetsProvider) HasSanctionedAssets(ctx context.Context, address string) (bool, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getAssetsByOwner",
		"params": map[string]interface{}{
			"ownerAddress": address,
			"page":         1,
			"limit":        1000,
		},
	})
	if err != nil {
		return false, apperr.Wrap(apperr.KindSerialization, "failed to encode helius request", err)
	}

	url := fmt.Sprintf("%s/v0/rpc?api-key=%s", p.baseURL, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return false, apperr.Wrap(apperr.KindExtAPI, "failed to build helius request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, apperr.Wrap(apperr.KindExtNetwork, "helius assets API request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, apperr.Wrap(apperr.KindExtNetwork, "failed to read helius response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, apperr.New(apperr.KindExtAPI, fmt.Sprintf("helius API returned %d: %s", resp.StatusCode, string(body)))
	}

	var result struct {
		Result struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, apperr.Wrap(apperr.KindExtParse, "failed to parse helius response", err)
	}

	for _, item := range result.Result.Items {
		if sanctionedMints[item.ID] {
			return true, nil
		}
	}
	return false, nil
}

// sanctionedMints is the operator-curated set of mint addresses known to
// represent sanctioned assets.
var sanctionedMints = map[string]bool{}

// NoAssetsProvider is a stub for deployments that have not configured an
// assets provider. It never reports sanctioned assets and, per
// SupportsAssetsCheck, makes that explicit rather than implying a real
// check ran.
type NoAssetsProvider struct{}

func (NoAssetsProvider) Name() string             { return "none" }
func (NoAssetsProvider) SupportsAssetsCheck() bool { return false }
func (NoAssetsProvider) HasSanctionedAssets(ctx context.Context, address string) (bool, error) {
	return false, nil
}
