package jupiter_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/meridianlabs-xyz/route-hub/providers"
	"github.com/meridianlabs-xyz/route-hub/providers/jupiter"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fakeHTTP struct {
	body    string
	lastURL string
	calls   int
}

func (f *fakeHTTP) GetJSON(_ context.Context, url string, out any) error {
	f.calls++
	f.lastURL = url
	return json.Unmarshal([]byte(f.body), out)
}

func jupiterRegistry(t *testing.T) *registry.ChainRegistry {
	t.Helper()
	reg, err := registry.NewChainRegistry([]registry.CanonicalChain{
		{
			ID:            "solana",
			Family:        registry.FamilySVM,
			ProviderIDs:   map[string]string{"jupiter": "solana-mainnet"},
			DefaultGasUSD: 0.01,
		},
		{
			ID:          "bsc",
			Family:      registry.FamilyEVM,
			ProviderIDs: map[string]string{"oneinch": "56"},
		},
	})
	assert.NoError(t, err)
	return reg
}

func swapParams() providers.RouteParams {
	return providers.RouteParams{
		FromChainID:  "solana",
		FromToken:    solMint,
		FromDecimals: 9,
		ToChainID:    "solana",
		ToToken:      usdcMint,
		ToDecimals:   6,
		AmountHuman:  "0.5",
		SlippagePct:  0.5,
	}
}

func TestGetRouteSolanaSwap(t *testing.T) {
	http := &fakeHTTP{body: `{
		"outAmount": "74500000",
		"priceImpactPct": "0.0012",
		"routePlan": [
			{"swapInfo": {"label": "Orca"}},
			{"swapInfo": {"label": "Raydium"}}
		]
	}`}
	adapter := jupiter.New(http, jupiterRegistry(t), "https://example.test/v6", 3)

	route, err := adapter.GetRoute(context.Background(), swapParams())
	assert.NoError(t, err)
	assert.NotNil(t, route)

	assert.Equal(t, "jupiter", route.Provider)
	assert.Equal(t, "74.5", route.ToToken.Amount)
	assert.Equal(t, 2, route.HopCount())
	assert.Equal(t, "Orca", route.Steps[0].Venue)
	assert.Equal(t, "Raydium", route.Steps[1].Venue)
	assert.Equal(t, 0.12, route.PriceImpactPct)
	assert.True(t, route.Fees.GasEstimated)

	// 0.5 SOL at 9 decimals and tolerance in bps.
	assert.True(t, strings.Contains(http.lastURL, "amount=500000000"))
	assert.True(t, strings.Contains(http.lastURL, "slippageBps=50"))
}

func TestGetRouteValidatesMints(t *testing.T) {
	http := &fakeHTTP{}
	adapter := jupiter.New(http, jupiterRegistry(t), "", 3)

	params := swapParams()
	params.FromToken = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	_, err := adapter.GetRoute(context.Background(), params)
	assert.Error(t, err)
	assert.Equal(t, 0, http.calls)
}

func TestGetRouteEmptyPlanStillOneStep(t *testing.T) {
	http := &fakeHTTP{body: `{"outAmount": "74500000", "priceImpactPct": "0"}`}
	adapter := jupiter.New(http, jupiterRegistry(t), "", 3)

	route, err := adapter.GetRoute(context.Background(), swapParams())
	assert.NoError(t, err)
	assert.NotNil(t, route)
	assert.Equal(t, 1, route.HopCount())
	assert.Equal(t, "jupiter", route.Steps[0].Venue)
}

func TestSupports(t *testing.T) {
	adapter := jupiter.New(&fakeHTTP{}, jupiterRegistry(t), "", 3)

	assert.False(t, adapter.SupportsCrossChain())
	assert.True(t, adapter.SupportsChain("solana"))
	assert.False(t, adapter.SupportsChain("bsc"))
	assert.True(t, adapter.SupportsPair("solana", solMint, "solana", usdcMint))
	assert.False(t, adapter.SupportsPair("solana", "bad-mint!", "solana", usdcMint))
}
