package router_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/providers"
	"github.com/meridianlabs-xyz/route-hub/router"
)

// gateAdapter succeeds only at or above a minimum slippage tolerance,
// modelling a thin pool whose quotes revert below it.
type gateAdapter struct {
	name   string
	minPct float64
	route  *models.RouterRoute
	calls  []float64
}

func (g *gateAdapter) Name() string { return g.name }

func (g *gateAdapter) Priority() int { return 1 }

func (g *gateAdapter) SupportsCrossChain() bool { return false }

func (g *gateAdapter) SupportsChain(string) bool { return true }

func (g *gateAdapter) SupportsPair(string, string, string, string) bool { return true }

func (g *gateAdapter) GetRoute(_ context.Context, params providers.RouteParams) (*models.RouterRoute, error) {
	g.calls = append(g.calls, params.SlippagePct)
	if params.SlippagePct < g.minPct {
		return nil, router.NewError(router.CodeProviderUnavailable, "quote reverted")
	}
	route := *g.route
	route.SlippagePct = params.SlippagePct
	return &route, nil
}

// captureAdapter records the params every quote call received.
type captureAdapter struct {
	name  string
	route *models.RouterRoute
	got   []providers.RouteParams
}

func (c *captureAdapter) Name() string { return c.name }

func (c *captureAdapter) Priority() int { return 1 }

func (c *captureAdapter) SupportsCrossChain() bool { return false }

func (c *captureAdapter) SupportsChain(string) bool { return true }

func (c *captureAdapter) SupportsPair(string, string, string, string) bool { return true }

func (c *captureAdapter) GetRoute(_ context.Context, params providers.RouteParams) (*models.RouterRoute, error) {
	c.got = append(c.got, params)
	route := *c.route
	return &route, nil
}

// scheduleAdapter quotes a different output per tolerance and fails at
// tolerances it has no entry for.
type scheduleAdapter struct {
	name   string
	quotes map[float64]string // tolerance pct -> output amount
}

func (s *scheduleAdapter) Name() string { return s.name }

func (s *scheduleAdapter) Priority() int { return 1 }

func (s *scheduleAdapter) SupportsCrossChain() bool { return false }

func (s *scheduleAdapter) SupportsChain(string) bool { return true }

func (s *scheduleAdapter) SupportsPair(string, string, string, string) bool { return true }

func (s *scheduleAdapter) GetRoute(_ context.Context, params providers.RouteParams) (*models.RouterRoute, error) {
	out, ok := s.quotes[params.SlippagePct]
	if !ok {
		return nil, router.NewError(router.CodeProviderUnavailable, "quote reverted")
	}
	route := providerRoute(s.name, out)
	route.SlippagePct = params.SlippagePct
	return route, nil
}

// decimalsTable is a canned decimals source keyed by "chain|address".
type decimalsTable map[string]int

func (d decimalsTable) Decimals(_ context.Context, chainID, address string) (int, error) {
	v, ok := d[chainID+"|"+strings.ToLower(address)]
	if !ok {
		return 0, errors.New("unknown token")
	}
	return v, nil
}

func serviceWith(t *testing.T, adapters []providers.Adapter, opts ...func(*router.ServiceConfig)) *router.Service {
	t.Helper()
	cfg := router.DefaultServiceConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	agg := router.NewAggregator(adapters, nil, nil, time.Second)
	return router.NewService(cfg, composerRegistry(t), agg, nil, router.NewSlippageResolver(0, 0), nil, nil)
}

func sameChainRequest() *models.RouteRequest {
	return &models.RouteRequest{
		FromToken:  models.TokenRef{ChainID: "bsc", Address: twcAddr},
		ToToken:    models.TokenRef{ChainID: "bsc", Address: wbnbAddr},
		FromAmount: "1000",
	}
}

func TestServiceRejectsUnknownChain(t *testing.T) {
	adapter := &fakeAdapter{name: "lifi", route: providerRoute("lifi", "100")}
	svc := serviceWith(t, []providers.Adapter{adapter})

	req := sameChainRequest()
	req.FromToken.ChainID = "dogechain"
	resp, err := svc.GetRoute(context.Background(), req)
	assert.NoError(t, err)
	assert.Nil(t, resp.Route)
	assert.True(t, strings.Contains(resp.Error, "INVALID_REQUEST"))

	// Invalid requests never reach the fan-out.
	assert.Equal(t, int64(0), adapter.calls.Load())
}

func TestServiceRejectsMalformedToken(t *testing.T) {
	svc := serviceWith(t, nil)

	req := sameChainRequest()
	req.FromToken.Address = "not-an-address"
	resp, err := svc.GetRoute(context.Background(), req)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(resp.Error, "INVALID_REQUEST"))
}

func TestServiceRejectsBadAmountAndSlippage(t *testing.T) {
	svc := serviceWith(t, nil)

	req := sameChainRequest()
	req.FromAmount = "-5"
	resp, _ := svc.GetRoute(context.Background(), req)
	assert.True(t, strings.Contains(resp.Error, "INVALID_REQUEST"))

	req = sameChainRequest()
	tooMuch := 75.0
	req.Slippage = &tooMuch
	resp, _ = svc.GetRoute(context.Background(), req)
	assert.True(t, strings.Contains(resp.Error, "INVALID_REQUEST"))
}

func TestServiceSameChainPicksBest(t *testing.T) {
	rich := &fakeAdapter{name: "oneinch", priority: 2, route: providerRoute("oneinch", "101")}
	poor := &fakeAdapter{name: "lifi", priority: 1, route: providerRoute("lifi", "99")}
	svc := serviceWith(t, []providers.Adapter{poor, rich})

	resp, err := svc.GetRoute(context.Background(), sameChainRequest())
	assert.NoError(t, err)
	assert.NotNil(t, resp.Route)
	assert.Equal(t, "oneinch", resp.Route.Provider)
	assert.Equal(t, 1, len(resp.Alternatives))
	assert.Equal(t, "lifi", resp.Alternatives[0].Provider)
	assert.True(t, resp.ExpiresAt > resp.Timestamp)
}

func TestServiceImpactCeiling(t *testing.T) {
	hot := providerRoute("lifi", "100")
	hot.PriceImpactPct = 42.5
	svc := serviceWith(t, []providers.Adapter{&fakeAdapter{name: "lifi", route: hot}})

	resp, err := svc.GetRoute(context.Background(), sameChainRequest())
	assert.NoError(t, err)
	assert.Nil(t, resp.Route)
	assert.True(t, strings.Contains(resp.Error, "INSUFFICIENT_LIQUIDITY"))
	assert.True(t, strings.Contains(resp.Error, "42.50"))
}

func TestServiceAutoSlippage(t *testing.T) {
	// No liquidity source means the most tolerant tier: 5% start, the
	// doubled 10% attempt is the first to clear the gate.
	gate := &gateAdapter{name: "lifi", minPct: 10, route: providerRoute("lifi", "100")}
	svc := serviceWith(t, []providers.Adapter{gate})

	req := sameChainRequest()
	req.SlippageMode = models.SlippageModeAuto
	resp, err := svc.GetRoute(context.Background(), req)
	assert.NoError(t, err)
	assert.NotNil(t, resp.Route)
	assert.Equal(t, 10.0, resp.Route.SlippagePct)
	assert.DeepEqual(t, []float64{5, 10, 20}, gate.calls)
}

func TestServiceResolvesTokenDecimals(t *testing.T) {
	// A 6-decimal from-token must reach the adapters as 6, not the
	// 18-decimal default: the base-unit amount would otherwise be off
	// by a factor of 10^12.
	adapter := &captureAdapter{name: "lifi", route: providerRoute("lifi", "99")}
	agg := router.NewAggregator([]providers.Adapter{adapter}, nil, nil, time.Second)
	decimals := decimalsTable{
		"bsc|" + strings.ToLower(twcAddr):  6,
		"bsc|" + strings.ToLower(wbnbAddr): 18,
	}
	svc := router.NewService(router.DefaultServiceConfig(), composerRegistry(t), agg, nil,
		router.NewSlippageResolver(0, 0), decimals, nil)

	resp, err := svc.GetRoute(context.Background(), sameChainRequest())
	assert.NoError(t, err)
	assert.NotNil(t, resp.Route)

	assert.Equal(t, 1, len(adapter.got))
	assert.Equal(t, 6, adapter.got[0].FromDecimals)
	assert.Equal(t, 18, adapter.got[0].ToDecimals)
}

func TestServiceAutoSlippageAlternativesFollowWinner(t *testing.T) {
	// The 5% attempt wins on output, so its alternative set must come
	// back with it, not the set from whichever attempt ran last.
	winner := &scheduleAdapter{name: "oneinch", quotes: map[float64]string{5: "105", 10: "100", 20: "96"}}
	other := &scheduleAdapter{name: "lifi", quotes: map[float64]string{5: "90", 10: "104", 20: "95"}}
	svc := serviceWith(t, []providers.Adapter{winner, other})

	req := sameChainRequest()
	req.SlippageMode = models.SlippageModeAuto
	resp, err := svc.GetRoute(context.Background(), req)
	assert.NoError(t, err)
	assert.NotNil(t, resp.Route)
	assert.Equal(t, "oneinch", resp.Route.Provider)
	assert.Equal(t, "105", resp.Route.ToToken.Amount)
	assert.Equal(t, 5.0, resp.Route.SlippagePct)

	assert.Equal(t, 1, len(resp.Alternatives))
	assert.Equal(t, "lifi", resp.Alternatives[0].Provider)
	assert.Equal(t, "90", resp.Alternatives[0].ToToken.Amount)
}

func TestServiceAlwaysRouteEscalates(t *testing.T) {
	gate := &gateAdapter{name: "lifi", minPct: 10, route: providerRoute("lifi", "100")}
	svc := serviceWith(t, []providers.Adapter{gate}, func(cfg *router.ServiceConfig) {
		cfg.AlwaysRoute = true
	})

	// Fixed 0.5% fails, then the escalation finds a route at 10%.
	resp, err := svc.GetRoute(context.Background(), sameChainRequest())
	assert.NoError(t, err)
	assert.NotNil(t, resp.Route)
	assert.Equal(t, 10.0, resp.Route.SlippagePct)
}

func TestServiceNoRouteListsAttempts(t *testing.T) {
	gate := &gateAdapter{name: "lifi", minPct: 99, route: providerRoute("lifi", "100")}
	svc := serviceWith(t, []providers.Adapter{gate})

	resp, err := svc.GetRoute(context.Background(), sameChainRequest())
	assert.NoError(t, err)
	assert.Nil(t, resp.Route)
	assert.True(t, strings.Contains(resp.Error, "NO_PATH_FOUND"))
	assert.True(t, strings.Contains(resp.Error, "lifi"))
}

func crossChainRequest() *models.RouteRequest {
	return &models.RouteRequest{
		FromToken:  models.TokenRef{ChainID: "bsc", Address: twcAddr},
		ToToken:    models.TokenRef{ChainID: "ethereum", Address: usdtEthAddr},
		FromAmount: "1000",
	}
}

func TestServiceCrossChainPrefersComposedOnOutput(t *testing.T) {
	// The direct provider route pays 1400; the composed plan nets 1480.
	direct := providerRoute("lifi", "1400")
	adapter := &fakeAdapter{name: "lifi", crossChain: true, route: direct}
	agg := router.NewAggregator([]providers.Adapter{adapter}, nil, nil, time.Second)

	swaps := &fakeSwaps{routes: map[string]*models.RouterRoute{
		twcAddr:  legRoute(twcAddr, wbnbAddr, "1000", "2.5"),
		wethAddr: legRoute(wethAddr, usdtEthAddr, "2.48", "1480"),
	}}
	bridge := &fakeBridge{name: "lifi", quote: &models.BridgeQuote{Provider: "lifi", AmountOut: "2.48"}}
	composer := router.NewComposer(composerRegistry(t), swaps, []providers.BridgeProvider{bridge})

	svc := router.NewService(router.DefaultServiceConfig(), composerRegistry(t), agg, composer,
		router.NewSlippageResolver(0, 0), nil, nil)

	resp, err := svc.GetRoute(context.Background(), crossChainRequest())
	assert.NoError(t, err)
	assert.NotNil(t, resp.CrossChain)
	assert.Equal(t, "1480", resp.CrossChain.DestinationSwap.ToToken.Amount)
	// The provider route survives as the leading alternative.
	assert.Equal(t, 1, len(resp.Alternatives))
	assert.Equal(t, "lifi", resp.Alternatives[0].Provider)
}

func TestServiceCrossChainBridgeUnavailable(t *testing.T) {
	agg := router.NewAggregator(nil, nil, nil, time.Second)
	swaps := &fakeSwaps{routes: map[string]*models.RouterRoute{
		twcAddr: legRoute(twcAddr, wbnbAddr, "1000", "2.5"),
	}}
	composer := router.NewComposer(composerRegistry(t), swaps, nil)

	svc := router.NewService(router.DefaultServiceConfig(), composerRegistry(t), agg, composer,
		router.NewSlippageResolver(0, 0), nil, nil)

	resp, err := svc.GetRoute(context.Background(), crossChainRequest())
	assert.NoError(t, err)
	assert.Nil(t, resp.CrossChain)
	assert.True(t, strings.Contains(resp.Error, "BRIDGE_UNAVAILABLE"))
}
