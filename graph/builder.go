package graph

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridianlabs-xyz/route-hub/registry"
)

// PriceSource is the read-only price oracle collaborator. Implementations
// may be backed by an indexer, an aggregator API or a static table.
type PriceSource interface {
	TokenPriceUSD(ctx context.Context, chainID, address string) (decimal.Decimal, error)
}

// TokenMeta is the read-only token metadata collaborator.
type TokenMeta interface {
	Decimals(ctx context.Context, chainID, address string) (int, error)
}

// BuilderConfig tunes the graph builder.
type BuilderConfig struct {
	// MinLiquidityUSD is the floor for bulk-fetched pairs.
	MinLiquidityUSD float64
	// BulkLimit caps how many pairs one bulk fetch requests.
	BulkLimit int
	// RefreshInterval is the background rebuild cadence per chain.
	RefreshInterval time.Duration
	// EdgeTTL evicts edges that have not been refreshed.
	EdgeTTL time.Duration
	// VerifyPairs is the per-chain set of pinned high-value pairs whose
	// reserves are checked directly against the chain on every build.
	VerifyPairs map[string][][2]string
}

// DefaultBuilderConfig returns the production defaults.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		MinLiquidityUSD: 10_000,
		BulkLimit:       1_000,
		RefreshInterval: 5 * time.Minute,
		EdgeTTL:         30 * time.Minute,
	}
}

// Builder creates and refreshes per-chain liquidity graphs from bulk
// indexers and on-demand RPC checks. It is the single writer for every
// graph it owns; request-path readers only ever see published snapshots.
type Builder struct {
	cfg      BuilderConfig
	registry *registry.ChainRegistry
	indexers map[string]PairIndexer
	rpcs     map[string]ChainRPC
	tiers    *Tiers
	prices   PriceSource // may be nil
	meta     TokenMeta   // may be nil

	mu     sync.Mutex // guards graph publication, scoped to the swap
	graphs map[string]*Graph

	// decimalsCache keeps chain-read decimal counts; a token's decimals
	// never change, so entries are never evicted.
	decimalsCache sync.Map // "chain|address" (lowercase) -> int
}

// NewBuilder wires a builder. indexers and rpcs are keyed by canonical
// chain id; a chain missing from indexers runs in on-demand-only mode.
func NewBuilder(
	cfg BuilderConfig,
	reg *registry.ChainRegistry,
	indexers map[string]PairIndexer,
	rpcs map[string]ChainRPC,
	tiers *Tiers,
	prices PriceSource,
	meta TokenMeta,
) *Builder {
	graphs := make(map[string]*Graph)
	for _, chainID := range reg.AllChainIDs() {
		graphs[chainID] = NewGraph(chainID)
	}
	return &Builder{
		cfg:      cfg,
		registry: reg,
		indexers: indexers,
		rpcs:     rpcs,
		tiers:    tiers,
		prices:   prices,
		meta:     meta,
		graphs:   graphs,
	}
}

// GraphFor returns the graph handle for a chain, or nil for unknown chains.
func (b *Builder) GraphFor(chainID string) *Graph {
	return b.graphs[chainID]
}

// Decimals resolves a token's decimal count: the injected metadata source
// first, then the current graph snapshot, the registry's token tables, and
// finally the chain itself. Chain reads are cached for the process
// lifetime. The route service uses this to size base-unit amounts, so a
// wrong default here corrupts every quote for a non-18-decimal token.
func (b *Builder) Decimals(ctx context.Context, chainID, address string) (int, error) {
	if b.meta != nil {
		if d, err := b.meta.Decimals(ctx, chainID, address); err == nil {
			return d, nil
		}
	}
	if g := b.graphs[chainID]; g != nil {
		if node, ok := g.Snapshot().Node(address); ok {
			return node.Decimals, nil
		}
	}
	if d, ok := b.registry.TokenDecimals(chainID, address); ok {
		return d, nil
	}

	key := strings.ToLower(chainID + "|" + address)
	if cached, ok := b.decimalsCache.Load(key); ok {
		return cached.(int), nil
	}
	if reader, ok := b.rpcs[chainID].(DecimalsReader); ok {
		d, err := reader.TokenDecimals(ctx, address)
		if err != nil {
			return 0, fmt.Errorf("decimals for %s on %s: %w", address, chainID, err)
		}
		b.decimalsCache.Store(key, d)
		return d, nil
	}
	return 0, fmt.Errorf("no decimals source for %s on %s", address, chainID)
}

// GetNeighbors returns edges incident to a token on a chain above a
// liquidity floor, from the current snapshot.
func (b *Builder) GetNeighbors(chainID, token string, minLiquidityUSD float64) []*PairEdge {
	g := b.graphs[chainID]
	if g == nil {
		return nil
	}
	return g.Snapshot().Neighbors(token, minLiquidityUSD)
}

// BuildGraph populates or refreshes one chain's graph. Partial failure is
// never fatal: a chain whose indexer is unreachable still yields a graph
// (possibly empty) that on-demand fetches can populate later.
func (b *Builder) BuildGraph(ctx context.Context, chainID string) (Stats, error) {
	g := b.graphs[chainID]
	if g == nil {
		return Stats{}, fmt.Errorf("chain %s is not registered", chainID)
	}

	stats := Stats{ChainID: chainID}
	next := NewSnapshot(chainID)

	pairs, err := b.bulkFetch(ctx, chainID)
	if err != nil {
		builderLog.Warn().Err(err).Str("chain", chainID).Msg("Bulk pair fetch failed, degrading to on-demand mode")
		stats.Failures++
	}
	stats.BulkPairs = len(pairs)

	for i := range pairs {
		edge, nodes, err := b.pairToEdge(chainID, &pairs[i])
		if err != nil {
			builderLog.Debug().Err(err).Str("pool", pairs[i].ID).Msg("Skipping malformed pair")
			stats.Failures++
			continue
		}
		for _, n := range nodes {
			b.mergeNode(next, n)
		}
		next.AddEdge(edge)
		if edge.LiquidityUSD >= HotTierMinLiquidityUSD {
			b.tiers.Promote(edge)
		}
	}

	// Pinned high-value pairs get their reserves verified straight from
	// the chain, whatever the indexer said.
	stats.Verified = b.verifyPinnedPairs(ctx, chainID, next, &stats)

	// Edges that only exist because a request fetched them on demand are
	// carried forward until their TTL, so a rebuild does not forget pairs
	// the bulk indexer never reports.
	prev := g.Snapshot()
	now := time.Now()
	for key, e := range prev.edges {
		if _, exists := next.edges[key]; exists {
			continue
		}
		if now.Sub(e.UpdatedAt) > b.cfg.EdgeTTL {
			continue
		}
		copied := *e
		next.AddEdge(&copied)
		b.ensureNodes(ctx, next, &copied)
	}

	// An empty bulk result must not leave the graph silently empty when
	// RPC can still seed the common pairs.
	if next.EdgeCount() == 0 {
		seeded := b.seedCommonPairs(ctx, chainID, next)
		if seeded > 0 {
			builderLog.Info().Str("chain", chainID).Int("seeded", seeded).Msg("Seeded graph from common pairs")
		}
	}

	b.mu.Lock()
	g.Publish(next)
	b.mu.Unlock()

	b.tiers.Hot.Sweep()

	stats.Nodes = next.NodeCount()
	stats.Edges = next.EdgeCount()
	builderLog.Info().
		Str("chain", chainID).
		Int("nodes", stats.Nodes).
		Int("edges", stats.Edges).
		Int("verified", stats.Verified).
		Int("failures", stats.Failures).
		Msg("Graph built")
	return stats, nil
}

// Run refreshes every chain on the configured cadence until ctx is done.
func (b *Builder) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.RefreshInterval)
	defer ticker.Stop()

	b.refreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			builderLog.Info().Msg("Graph builder stopping")
			return
		case <-ticker.C:
			b.refreshAll(ctx)
		}
	}
}

func (b *Builder) refreshAll(ctx context.Context) {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for chainID := range b.graphs {
		group.Go(func() error {
			if _, err := b.BuildGraph(gctx, chainID); err != nil {
				builderLog.Warn().Err(err).Str("chain", chainID).Msg("Graph refresh failed")
			}
			return nil
		})
	}
	_ = group.Wait()
}

func (b *Builder) bulkFetch(ctx context.Context, chainID string) ([]IndexedPair, error) {
	indexer, ok := b.indexers[chainID]
	if !ok {
		return nil, nil
	}
	return indexer.TopPairs(ctx, b.cfg.MinLiquidityUSD, b.cfg.BulkLimit)
}

func (b *Builder) pairToEdge(chainID string, p *IndexedPair) (*PairEdge, []*TokenNode, error) {
	reserve0, ok0 := new(big.Int).SetString(p.Reserve0, 10)
	reserve1, ok1 := new(big.Int).SetString(p.Reserve1, 10)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("pair %s has non-integer reserves", p.ID)
	}
	liquidity, err := decimal.NewFromString(p.ReserveUSD)
	if err != nil {
		return nil, nil, fmt.Errorf("pair %s has invalid reserveUSD: %w", p.ID, err)
	}
	liquidityUSD, _ := liquidity.Float64()

	tokenA, tokenB := OrderTokens(p.Token0.ID, p.Token1.ID)
	if tokenA != p.Token0.ID {
		reserve0, reserve1 = reserve1, reserve0
	}

	feeBps := p.FeeBps
	if feeBps == 0 {
		feeBps = 30 // v2 default when the indexer omits the fee tier
	}

	now := time.Now()
	edge := &PairEdge{
		ChainID:      chainID,
		TokenA:       tokenA,
		TokenB:       tokenB,
		Venue:        p.Venue,
		PoolAddress:  p.ID,
		LiquidityUSD: liquidityUSD,
		Reserve0:     reserve0,
		Reserve1:     reserve1,
		FeeBps:       feeBps,
		UpdatedAt:    now,
	}

	half := liquidityUSD / 2
	nodes := []*TokenNode{
		{
			ChainID: chainID, Address: p.Token0.ID, Symbol: p.Token0.Symbol,
			Decimals: p.Decimals0(), LiquidityUSD: half,
			Category: b.categorize(chainID, p.Token0.ID), UpdatedAt: now,
		},
		{
			ChainID: chainID, Address: p.Token1.ID, Symbol: p.Token1.Symbol,
			Decimals: p.Decimals1(), LiquidityUSD: half,
			Category: b.categorize(chainID, p.Token1.ID), UpdatedAt: now,
		},
	}
	return edge, nodes, nil
}

// mergeNode accumulates per-token liquidity across edges.
func (b *Builder) mergeNode(s *Snapshot, node *TokenNode) {
	if existing, ok := s.Node(node.Address); ok {
		existing.LiquidityUSD += node.LiquidityUSD
		existing.UpdatedAt = node.UpdatedAt
		return
	}
	s.AddNode(node)
}

func (b *Builder) categorize(chainID, address string) TokenCategory {
	switch {
	case b.registry.IsWrappedNative(chainID, address):
		return CategoryNativeWrapped
	case b.registry.IsStablecoin(chainID, address):
		return CategoryStablecoin
	case b.registry.IsBlueChip(chainID, address):
		return CategoryBlueChip
	default:
		return CategoryOther
	}
}

func (b *Builder) verifyPinnedPairs(ctx context.Context, chainID string, s *Snapshot, stats *Stats) int {
	pinned := b.cfg.VerifyPairs[chainID]
	if len(pinned) == 0 {
		return 0
	}
	verified := 0
	for _, pair := range pinned {
		edge, err := b.fetchPairFromRPC(ctx, chainID, pair[0], pair[1])
		if err != nil {
			builderLog.Debug().Err(err).
				Str("chain", chainID).
				Str("tokenA", pair[0]).
				Str("tokenB", pair[1]).
				Msg("Pinned pair verification failed")
			stats.Failures++
			continue
		}
		if edge == nil {
			continue
		}
		// Carry the indexer's liquidity estimate when we already had the
		// edge; the RPC read is authoritative for the reserves.
		if existing, ok := s.Edge(edge.Venue, edge.TokenA, edge.TokenB); ok && edge.LiquidityUSD == 0 {
			edge.LiquidityUSD = existing.LiquidityUSD
		}
		s.AddEdge(edge)
		b.ensureNodes(ctx, s, edge)
		b.tiers.Promote(edge)
		verified++
	}
	return verified
}

// seedCommonPairs falls back to RPC-checking the wrapped native token
// against the chain's registered stablecoins and blue chips.
func (b *Builder) seedCommonPairs(ctx context.Context, chainID string, s *Snapshot) int {
	chain, err := b.registry.GetCanonicalChain(chainID)
	if err != nil || chain.Native.WrappedAddress == "" {
		return 0
	}
	counterparts := append(append([]string{}, chain.Stablecoins...), chain.BlueChips...)
	seeded := 0
	for _, counterpart := range counterparts {
		edge, err := b.fetchPairFromRPC(ctx, chainID, chain.Native.WrappedAddress, counterpart)
		if err != nil || edge == nil {
			continue
		}
		s.AddEdge(edge)
		b.ensureNodes(ctx, s, edge)
		b.tiers.Promote(edge)
		seeded++
	}
	return seeded
}

// FetchOnDemand attempts a single direct pair lookup when the graph has no
// edge for the pair. A fresh cache hit is used as-is; anything else goes to
// the chain. On success the edge is inserted into the published graph and
// promoted to the hot tier.
func (b *Builder) FetchOnDemand(ctx context.Context, chainID, tokenA, tokenB string) (*PairEdge, error) {
	g := b.graphs[chainID]
	if g == nil {
		return nil, fmt.Errorf("chain %s is not registered", chainID)
	}

	rpc, hasRPC := b.rpcs[chainID]
	venue := ""
	if hasRPC {
		venue = rpc.Venue()
	}

	if edge, stale := b.tiers.Lookup(EdgeKey(chainID, venue, tokenA, tokenB)); edge != nil {
		b.insertEdge(g, edge)
		return edge, nil
	} else if stale != nil && hasRPC {
		refreshed, err := b.refreshEdge(ctx, rpc, stale)
		if err == nil {
			b.tiers.Promote(refreshed)
			b.insertEdge(g, refreshed)
			return refreshed, nil
		}
		builderLog.Debug().Err(err).Str("pair", stale.Key()).Msg("Stale warm entry refresh failed")
	}

	if !hasRPC {
		return nil, fmt.Errorf("no RPC client for chain %s", chainID)
	}

	edge, err := b.fetchPairFromRPC(ctx, chainID, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if edge == nil {
		return nil, nil
	}
	b.tiers.Hot.Put(edge) // on-demand edges go hot regardless of liquidity
	if b.tiers.Warm != nil {
		if err := b.tiers.Warm.Put(edge); err != nil {
			cacheLog.Warn().Err(err).Str("pair", edge.Key()).Msg("Warm tier write failed")
		}
	}
	b.insertEdge(g, edge)
	return edge, nil
}

// insertEdge publishes a new snapshot containing the edge. The lock is
// scoped to the clone-and-swap only.
func (b *Builder) insertEdge(g *Graph, edge *PairEdge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := g.Snapshot().Clone()
	next.AddEdge(edge)
	b.ensureNodes(context.Background(), next, edge)
	g.Publish(next)
}

// ensureNodes makes both endpoints of an edge present as nodes so the
// pathfinder can traverse through them.
func (b *Builder) ensureNodes(ctx context.Context, s *Snapshot, edge *PairEdge) {
	now := time.Now()
	for _, address := range []string{edge.TokenA, edge.TokenB} {
		if _, ok := s.Node(address); ok {
			continue
		}
		decimals := 18
		if d, err := b.Decimals(ctx, edge.ChainID, address); err == nil {
			decimals = d
		}
		s.AddNode(&TokenNode{
			ChainID:      edge.ChainID,
			Address:      address,
			Decimals:     decimals,
			LiquidityUSD: edge.LiquidityUSD / 2,
			Category:     b.categorize(edge.ChainID, address),
			UpdatedAt:    now,
		})
	}
}

func (b *Builder) refreshEdge(ctx context.Context, rpc ChainRPC, edge *PairEdge) (*PairEdge, error) {
	reserve0, reserve1, token0, err := rpc.GetReserves(ctx, edge.PoolAddress)
	if err != nil {
		return nil, err
	}
	refreshed := *edge
	if strings.EqualFold(token0, edge.TokenA) {
		refreshed.Reserve0, refreshed.Reserve1 = reserve0, reserve1
	} else {
		refreshed.Reserve0, refreshed.Reserve1 = reserve1, reserve0
	}
	refreshed.LiquidityUSD = b.estimateLiquidityUSD(ctx, &refreshed)
	refreshed.UpdatedAt = time.Now()
	return &refreshed, nil
}

func (b *Builder) fetchPairFromRPC(ctx context.Context, chainID, tokenA, tokenB string) (*PairEdge, error) {
	rpc, ok := b.rpcs[chainID]
	if !ok {
		return nil, fmt.Errorf("no RPC client for chain %s", chainID)
	}
	pool, err := rpc.GetPairAddress(ctx, tokenA, tokenB)
	if err != nil {
		return nil, fmt.Errorf("pair lookup on %s: %w", chainID, err)
	}
	if pool == "" {
		return nil, nil
	}
	reserve0, reserve1, token0, err := rpc.GetReserves(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("reserves for %s: %w", pool, err)
	}

	a, bTok := OrderTokens(tokenA, tokenB)
	if !strings.EqualFold(token0, a) {
		reserve0, reserve1 = reserve1, reserve0
	}

	edge := &PairEdge{
		ChainID:     chainID,
		TokenA:      a,
		TokenB:      bTok,
		Venue:       rpc.Venue(),
		PoolAddress: pool,
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		FeeBps:      30,
		UpdatedAt:   time.Now(),
	}
	edge.LiquidityUSD = b.estimateLiquidityUSD(ctx, edge)
	return edge, nil
}

// estimateLiquidityUSD values a pool from its reserves. A stablecoin side
// is worth its face value doubled; otherwise the price source is consulted.
// Without either, the estimate is zero, which keeps the edge usable but
// out of the hot tier.
func (b *Builder) estimateLiquidityUSD(ctx context.Context, edge *PairEdge) float64 {
	for _, side := range []struct {
		token   string
		reserve *big.Int
	}{
		{edge.TokenA, edge.Reserve0},
		{edge.TokenB, edge.Reserve1},
	} {
		if b.registry.IsStablecoin(edge.ChainID, side.token) {
			return b.sideValueUSD(ctx, edge.ChainID, side.token, side.reserve, decimal.NewFromInt(1)) * 2
		}
	}
	if b.prices == nil {
		return 0
	}
	price, err := b.prices.TokenPriceUSD(ctx, edge.ChainID, edge.TokenA)
	if err != nil {
		return 0
	}
	return b.sideValueUSD(ctx, edge.ChainID, edge.TokenA, edge.Reserve0, price) * 2
}

func (b *Builder) sideValueUSD(ctx context.Context, chainID, token string, reserve *big.Int, priceUSD decimal.Decimal) float64 {
	decimals := 18
	if d, err := b.Decimals(ctx, chainID, token); err == nil {
		decimals = d
	}
	value := decimal.NewFromBigInt(reserve, int32(-decimals)).Mul(priceUSD)
	f, _ := value.Float64()
	return f
}
