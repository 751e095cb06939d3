package graph_test

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/meridianlabs-xyz/route-hub/amount"
	"github.com/meridianlabs-xyz/route-hub/graph"
	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

func testRegistry(t *testing.T) *registry.ChainRegistry {
	t.Helper()
	reg, err := registry.NewChainRegistry([]registry.CanonicalChain{
		{
			ID:     "bsc",
			Name:   "BNB Smart Chain",
			Family: "evm",
			Native: registry.NativeCurrency{
				Symbol:         "BNB",
				Decimals:       18,
				WrappedAddress: wbnb,
			},
			ProviderIDs:   map[string]string{"lifi": "56", "oneinch": "56"},
			Stablecoins:   []string{usdt},
			BlueChips:     []string{eth},
			DefaultGasUSD: 0.30,
		},
	})
	assert.NoError(t, err)
	return reg
}

func testBuilder(t *testing.T, reg *registry.ChainRegistry) *graph.Builder {
	t.Helper()
	tiers := &graph.Tiers{Hot: graph.NewHotCache(time.Minute)}
	return graph.NewBuilder(graph.DefaultBuilderConfig(), reg, nil, nil, tiers, nil, nil)
}

// twcScenario publishes the fixed two-pool graph: TWC/WBNB with $50k of
// liquidity and WBNB/ETH with $2M, no direct TWC/ETH pool.
func twcScenario(t *testing.T, b *graph.Builder) {
	t.Helper()
	s := graph.NewSnapshot("bsc")
	now := time.Now()
	s.AddNode(&graph.TokenNode{ChainID: "bsc", Address: twc, Symbol: "TWC", Decimals: 18, LiquidityUSD: 25_000, UpdatedAt: now})
	s.AddNode(&graph.TokenNode{ChainID: "bsc", Address: wbnb, Symbol: "WBNB", Decimals: 18, LiquidityUSD: 1_025_000, Category: graph.CategoryNativeWrapped, UpdatedAt: now})
	s.AddNode(&graph.TokenNode{ChainID: "bsc", Address: eth, Symbol: "ETH", Decimals: 18, LiquidityUSD: 1_000_000, Category: graph.CategoryBlueChip, UpdatedAt: now})

	twcPool := edgeBetween(twc, wbnb, "pancakeswap", 50_000)
	twcPool.Reserve0, twcPool.Reserve1 = orient(twcPool, twc, big.NewInt(5_000_000_000), big.NewInt(50_000_000))
	s.AddEdge(twcPool)

	ethPool := edgeBetween(wbnb, eth, "pancakeswap", 2_000_000)
	ethPool.Reserve0, ethPool.Reserve1 = orient(ethPool, wbnb, big.NewInt(2_000_000_000), big.NewInt(400_000_000))
	s.AddEdge(ethPool)

	b.GraphFor("bsc").Publish(s)
}

// orient returns (reserve0, reserve1) such that reserveFor belongs to the
// edge's TokenA slot.
func orient(e *graph.PairEdge, token string, reserveFor, reserveOther *big.Int) (*big.Int, *big.Int) {
	if e.TokenA == token {
		return reserveFor, reserveOther
	}
	return reserveOther, reserveFor
}

func TestFindRoutesTwoHopViaWrappedNative(t *testing.T) {
	reg := testRegistry(t)
	b := testBuilder(t, reg)
	twcScenario(t, b)

	engine := graph.NewEngine(b, reg)
	routes, err := engine.FindRoutes(graph.FindParams{
		ChainID:  "bsc",
		TokenIn:  twc,
		TokenOut: eth,
		AmountIn: big.NewInt(1_000_000),
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(routes))

	route := routes[0]
	assert.Equal(t, "graph", route.Provider)
	assert.Equal(t, 2, route.HopCount())
	assert.Equal(t, twc, route.FromToken.Address)
	assert.Equal(t, eth, route.ToToken.Address)
	assert.Equal(t, wbnb, route.Steps[0].Out.Address)
	assert.Equal(t, wbnb, route.Steps[1].In.Address)

	// Hop amounts chain: the second hop consumes exactly what the first
	// produced.
	assert.Equal(t, route.Steps[0].Out.Amount, route.Steps[1].In.Amount)

	// Gas came from the chain default, not a provider quote.
	assert.True(t, route.Fees.GasEstimated)
	assert.True(t, route.Fees.GasUSD > 0)
	assert.True(t, route.ExpiresAtUnix > time.Now().Unix())
}

func TestFindRoutesFeeReducesOutput(t *testing.T) {
	reg := testRegistry(t)
	b := testBuilder(t, reg)
	twcScenario(t, b)

	// Lossless two-hop conversion at spot prices:
	// 1_000_000 TWC * (50M/5000M) * (400M/2000M) = 2000 ETH base units.
	engine := graph.NewEngine(b, reg)
	routes, err := engine.FindRoutes(graph.FindParams{
		ChainID:  "bsc",
		TokenIn:  twc,
		TokenOut: eth,
		AmountIn: big.NewInt(1_000_000),
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(routes))

	outBase, err := amount.ToBaseUnits(routes[0].ToToken.Amount, 18)
	assert.NoError(t, err)
	outUnits, ok := new(big.Int).SetString(outBase, 10)
	assert.True(t, ok)
	assert.True(t, outUnits.Cmp(big.NewInt(2000)) < 0)
	assert.True(t, outUnits.Sign() > 0)
	assert.True(t, routes[0].PriceImpactPct >= 0)
}

func TestFindRoutesNoPathIsEmptyNotError(t *testing.T) {
	reg := testRegistry(t)
	b := testBuilder(t, reg)

	s := graph.NewSnapshot("bsc")
	s.AddNode(&graph.TokenNode{ChainID: "bsc", Address: twc, Decimals: 18})
	s.AddNode(&graph.TokenNode{ChainID: "bsc", Address: eth, Decimals: 18})
	b.GraphFor("bsc").Publish(s)

	engine := graph.NewEngine(b, reg)
	routes, err := engine.FindRoutes(graph.FindParams{
		ChainID:  "bsc",
		TokenIn:  twc,
		TokenOut: eth,
		AmountIn: big.NewInt(1_000_000),
	})
	assert.NoError(t, err)
	assert.NotNil(t, routes)
	assert.Equal(t, 0, len(routes))
}

func TestFindRoutesHopLimitExcludesLongPaths(t *testing.T) {
	reg := testRegistry(t)
	b := testBuilder(t, reg)
	twcScenario(t, b)

	engine := graph.NewEngine(b, reg)
	routes, err := engine.FindRoutes(graph.FindParams{
		ChainID:  "bsc",
		TokenIn:  twc,
		TokenOut: eth,
		AmountIn: big.NewInt(1_000_000),
		MaxHops:  1,
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(routes))
}

func TestFindRoutesDirectPreferredOnTie(t *testing.T) {
	reg := testRegistry(t)
	b := testBuilder(t, reg)
	twcScenario(t, b)

	// Add a direct TWC/ETH pool priced identically to the two-hop path's
	// spot rate so both candidates exist.
	s := b.GraphFor("bsc").Snapshot().Clone()
	direct := edgeBetween(twc, eth, "biswap", 75_000)
	direct.Reserve0, direct.Reserve1 = orient(direct, twc, big.NewInt(5_000_000_000), big.NewInt(10_000_000))
	s.AddEdge(direct)
	b.GraphFor("bsc").Publish(s)

	engine := graph.NewEngine(b, reg)
	routes, err := engine.FindRoutes(graph.FindParams{
		ChainID:  "bsc",
		TokenIn:  twc,
		TokenOut: eth,
		AmountIn: big.NewInt(1_000_000),
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(routes))

	// The direct pool pays one pool fee instead of two, so it wins, and a
	// multi-hop path never outranks a direct path of equal output.
	assert.Equal(t, 1, routes[0].HopCount())
	assert.Equal(t, "biswap", routes[0].Steps[0].Venue)
}

func TestFindRoutesLargeGraphUsesDijkstra(t *testing.T) {
	reg := testRegistry(t)
	b := testBuilder(t, reg)
	twcScenario(t, b)

	// Pad the snapshot over the BFS node limit with disconnected tokens;
	// the best path must not change.
	s := b.GraphFor("bsc").Snapshot().Clone()
	for i := 0; i < 1100; i++ {
		s.AddNode(&graph.TokenNode{
			ChainID: "bsc",
			Address: fmt.Sprintf("0x%040x", 0x10000+i),
		})
	}
	b.GraphFor("bsc").Publish(s)

	engine := graph.NewEngine(b, reg)
	routes, err := engine.FindRoutes(graph.FindParams{
		ChainID:  "bsc",
		TokenIn:  twc,
		TokenOut: eth,
		AmountIn: big.NewInt(1_000_000),
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(routes))
	assert.Equal(t, 2, routes[0].HopCount())
	assert.Equal(t, wbnb, routes[0].Steps[0].Out.Address)
}

func TestFindRoutesMaxRoutesCap(t *testing.T) {
	reg := testRegistry(t)
	b := testBuilder(t, reg)
	twcScenario(t, b)

	s := b.GraphFor("bsc").Snapshot().Clone()
	direct := edgeBetween(twc, eth, "biswap", 75_000)
	direct.Reserve0, direct.Reserve1 = orient(direct, twc, big.NewInt(5_000_000_000), big.NewInt(10_000_000))
	s.AddEdge(direct)
	b.GraphFor("bsc").Publish(s)

	engine := graph.NewEngine(b, reg)
	routes, err := engine.FindRoutes(graph.FindParams{
		ChainID:   "bsc",
		TokenIn:   twc,
		TokenOut:  eth,
		AmountIn:  big.NewInt(1_000_000),
		MaxRoutes: 1,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(routes))
}

func TestRouteShapeRoundTrips(t *testing.T) {
	reg := testRegistry(t)
	b := testBuilder(t, reg)
	twcScenario(t, b)

	engine := graph.NewEngine(b, reg)
	routes, err := engine.FindRoutes(graph.FindParams{
		ChainID:  "bsc",
		TokenIn:  twc,
		TokenOut: eth,
		AmountIn: big.NewInt(1_000_000),
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(routes))

	route := routes[0]
	for _, step := range route.Steps {
		assert.Equal(t, models.StepSwap, step.Type)
		assert.Equal(t, "bsc", step.ChainID)
		assert.Equal(t, "pancakeswap", step.Venue)
	}
	assert.Equal(t, "TWC", route.FromToken.Symbol)
	assert.Equal(t, "ETH", route.ToToken.Symbol)
	assert.True(t, route.ExchangeRate != "")
}
