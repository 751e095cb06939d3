package lifi_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/providers"
	"github.com/meridianlabs-xyz/route-hub/providers/lifi"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

const (
	wbnb = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

type fakeHTTP struct {
	body    string
	err     error
	lastURL string
	calls   int
}

func (f *fakeHTTP) GetJSON(_ context.Context, url string, out any) error {
	f.calls++
	f.lastURL = url
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.body), out)
}

func lifiRegistry(t *testing.T) *registry.ChainRegistry {
	t.Helper()
	reg, err := registry.NewChainRegistry([]registry.CanonicalChain{
		{
			ID:            "bsc",
			Family:        registry.FamilyEVM,
			ProviderIDs:   map[string]string{"lifi": "56"},
			DefaultGasUSD: 0.30,
		},
		{
			ID:            "ethereum",
			Family:        registry.FamilyEVM,
			ProviderIDs:   map[string]string{"lifi": "1"},
			DefaultGasUSD: 4.50,
		},
		{
			ID:     "polygon",
			Family: registry.FamilyEVM,
			// no lifi mapping
			ProviderIDs: map[string]string{"oneinch": "137"},
		},
	})
	assert.NoError(t, err)
	return reg
}

const crossChainQuote = `{
	"id": "quote-1",
	"tool": "stargate",
	"action": {"slippage": 0.005},
	"estimate": {
		"fromAmount": "1500000000000000000",
		"toAmount": "1492000000000000000",
		"executionDuration": 180,
		"feeCosts": [{"amountUSD": "1.20"}],
		"gasCosts": [{"amount": "2100000000000000", "amountUSD": "0.85"}]
	}
}`

func crossChainParams() providers.RouteParams {
	return providers.RouteParams{
		FromChainID:  "bsc",
		FromToken:    wbnb,
		FromDecimals: 18,
		ToChainID:    "ethereum",
		ToToken:      weth,
		ToDecimals:   18,
		AmountHuman:  "1.5",
		SlippagePct:  0.5,
	}
}

func TestGetRouteCrossChain(t *testing.T) {
	http := &fakeHTTP{body: crossChainQuote}
	adapter := lifi.New(http, lifiRegistry(t), "https://example.test/v1", 1)

	route, err := adapter.GetRoute(context.Background(), crossChainParams())
	assert.NoError(t, err)
	assert.NotNil(t, route)

	assert.Equal(t, "lifi", route.Provider)
	assert.Equal(t, "quote-1", route.RouteID)
	assert.Equal(t, "1.492", route.ToToken.Amount)
	assert.Equal(t, 1, len(route.Steps))
	assert.Equal(t, models.StepBridge, route.Steps[0].Type)
	assert.Equal(t, "stargate", route.Steps[0].Venue)
	assert.Equal(t, int64(180), route.EstimatedTimeS)

	// Provider-reported gas, not the fallback.
	assert.False(t, route.Fees.GasEstimated)
	assert.Equal(t, 0.85, route.Fees.GasUSD)
	assert.Equal(t, 1.2, route.Fees.ProtocolUSD)
}

func TestGetRouteBuildsProviderChainIDs(t *testing.T) {
	http := &fakeHTTP{body: crossChainQuote}
	adapter := lifi.New(http, lifiRegistry(t), "https://example.test/v1", 1)

	_, err := adapter.GetRoute(context.Background(), crossChainParams())
	assert.NoError(t, err)

	// The request carries the provider's numeric chain ids and the exact
	// base-unit amount.
	assert.True(t, strings.Contains(http.lastURL, "fromChain=56"))
	assert.True(t, strings.Contains(http.lastURL, "toChain=1"))
	assert.True(t, strings.Contains(http.lastURL, "fromAmount=1500000000000000000"))
}

func TestGetRouteUnsupportedChain(t *testing.T) {
	http := &fakeHTTP{body: crossChainQuote}
	adapter := lifi.New(http, lifiRegistry(t), "https://example.test/v1", 1)

	params := crossChainParams()
	params.ToChainID = "polygon"
	_, err := adapter.GetRoute(context.Background(), params)
	assert.Error(t, err)
	assert.Equal(t, 0, http.calls)
}

func TestGetRouteGasFallback(t *testing.T) {
	noGas := `{
		"id": "quote-2",
		"tool": "stargate",
		"estimate": {"toAmount": "1000000000000000000", "executionDuration": 60}
	}`
	http := &fakeHTTP{body: noGas}
	adapter := lifi.New(http, lifiRegistry(t), "https://example.test/v1", 1)

	route, err := adapter.GetRoute(context.Background(), crossChainParams())
	assert.NoError(t, err)
	assert.NotNil(t, route)

	assert.True(t, route.Fees.GasEstimated)
	assert.Equal(t, 0.30, route.Fees.GasUSD)
}

func TestGetRouteUpstreamError(t *testing.T) {
	http := &fakeHTTP{err: errors.New("status 502")}
	adapter := lifi.New(http, lifiRegistry(t), "https://example.test/v1", 1)

	_, err := adapter.GetRoute(context.Background(), crossChainParams())
	assert.Error(t, err)
}

func TestSupports(t *testing.T) {
	adapter := lifi.New(&fakeHTTP{}, lifiRegistry(t), "", 1)

	assert.True(t, adapter.SupportsCrossChain())
	assert.True(t, adapter.SupportsChain("bsc"))
	assert.False(t, adapter.SupportsChain("polygon"))
	assert.True(t, adapter.SupportsPair("bsc", wbnb, "ethereum", weth))
	assert.False(t, adapter.SupportsPair("bsc", wbnb, "polygon", weth))
}

func TestGetBridgeQuoteDestinationDecimals(t *testing.T) {
	// USDT is 18 decimals on BSC but 6 on Ethereum: the destination
	// amount must be decoded with the counterpart's count, not the
	// source token's.
	body := `{
		"id": "quote-3",
		"tool": "stargate",
		"estimate": {
			"fromAmount": "100000000000000000000",
			"toAmount": "99500000",
			"executionDuration": 240,
			"gasCosts": [{"amount": "1000000000000000", "amountUSD": "0.40"}]
		}
	}`
	http := &fakeHTTP{body: body}
	adapter := lifi.New(http, lifiRegistry(t), "https://example.test/v1", 1)

	quote, err := adapter.GetBridgeQuote(context.Background(), providers.BridgeParams{
		FromChainID:    "bsc",
		ToChainID:      "ethereum",
		Token:          "0x55d398326f99059fF775485246999027B3197955",
		TokenOnDest:    "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		Decimals:       18,
		DecimalsOnDest: 6,
		AmountHuman:    "100",
		SlippagePct:    0.5,
	})
	assert.NoError(t, err)
	assert.NotNil(t, quote)

	// 99500000 base units at 6 decimals is 99.5 tokens.
	assert.Equal(t, "99.5", quote.AmountOut)
	// The source side still used the 18-decimal encoding.
	assert.True(t, strings.Contains(http.lastURL, "fromAmount=100000000000000000000"))
}

func TestGetBridgeQuoteAmountContinuity(t *testing.T) {
	http := &fakeHTTP{body: crossChainQuote}
	adapter := lifi.New(http, lifiRegistry(t), "https://example.test/v1", 1)

	quote, err := adapter.GetBridgeQuote(context.Background(), providers.BridgeParams{
		FromChainID: "bsc",
		ToChainID:   "ethereum",
		Token:       wbnb,
		TokenOnDest: weth,
		Decimals:    18,
		AmountHuman: "1.5",
		SlippagePct: 0.5,
	})
	assert.NoError(t, err)
	assert.NotNil(t, quote)

	assert.Equal(t, "1.5", quote.AmountIn)
	assert.Equal(t, "1.492", quote.AmountOut)
	assert.Equal(t, models.StepBridge, quote.Step.Type)
	assert.Equal(t, int64(180), quote.EstimatedTimeS)
}

