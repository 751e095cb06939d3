package graph

import (
	"container/heap"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianlabs-xyz/route-hub/amount"
	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

const (
	// bfsNodeLimit is the graph size below which exhaustive BFS enumeration
	// is affordable.
	bfsNodeLimit = 1000
	// pruneNodeLimit is the size above which Dijkstra only expands edges
	// over the pruning liquidity floor.
	pruneNodeLimit = 10_000
	// pruneLiquidityFloorUSD is that floor.
	pruneLiquidityFloorUSD = 250_000
	// intermediaryLiquidityFloorUSD qualifies uncategorized tokens as
	// routing intermediaries.
	intermediaryLiquidityFloorUSD = 1_000_000
	// maxIntermediaries caps the candidate set per request.
	maxIntermediaries = 10

	defaultMaxHops   = 3
	routeTTL         = 30 * time.Second
	swapTimeSeconds  = 30
	graphProviderTag = "graph"
)

// FindParams describes one pathfinding request over a chain graph.
type FindParams struct {
	ChainID   string
	TokenIn   string
	TokenOut  string
	AmountIn  *big.Int // base units of TokenIn
	MaxHops   int      // 0 means the default of 3
	MaxRoutes int      // 0 means all found
}

// Engine finds swap paths over published graph snapshots. It is stateless
// across requests; every call reads whatever snapshot is current.
type Engine struct {
	builder  *Builder
	registry *registry.ChainRegistry
}

// NewEngine wires a pathfinder over a builder's graphs.
func NewEngine(b *Builder, reg *registry.ChainRegistry) *Engine {
	return &Engine{builder: b, registry: reg}
}

// pathResult is one concrete path with its simulated amounts.
type pathResult struct {
	edges     []*PairEdge
	tokens    []string // len(edges)+1, tokens[0] = tokenIn
	amounts   []*big.Int
	amountOut *big.Int
}

// FindRoutes returns candidate routes for swapping AmountIn of TokenIn into
// TokenOut on one chain, best simulated output first. No path is not an
// error: the result is simply empty.
func (e *Engine) FindRoutes(params FindParams) ([]*models.RouterRoute, error) {
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}
	g := e.builder.GraphFor(params.ChainID)
	if g == nil {
		return nil, fmt.Errorf("chain %s is not registered", params.ChainID)
	}
	snap := g.Snapshot()

	maxHops := params.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}

	var paths []*pathResult
	switch {
	case snap.NodeCount() < bfsNodeLimit:
		paths = e.enumeratePaths(snap, params, maxHops)
	default:
		paths = e.dijkstraPaths(snap, params, maxHops)
	}
	if len(paths) == 0 {
		return []*models.RouterRoute{}, nil
	}

	// Best output first; a direct pair wins ties against multi-hop paths
	// that happen to land on the same amount.
	sort.SliceStable(paths, func(i, j int) bool {
		cmp := paths[i].amountOut.Cmp(paths[j].amountOut)
		if cmp != 0 {
			return cmp > 0
		}
		return len(paths[i].edges) < len(paths[j].edges)
	})
	if params.MaxRoutes > 0 && len(paths) > params.MaxRoutes {
		paths = paths[:params.MaxRoutes]
	}

	routes := make([]*models.RouterRoute, 0, len(paths))
	for _, p := range paths {
		route, err := e.toRoute(snap, params, p)
		if err != nil {
			pathLog.Debug().Err(err).Str("chain", params.ChainID).Msg("Dropping unconvertible path")
			continue
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// intermediaries returns the candidate set of pass-through tokens, in
// priority order: wrapped native, stablecoins, blue chips, then anything
// with enough pooled liquidity. Capped at maxIntermediaries.
func (e *Engine) intermediaries(snap *Snapshot, tokenIn, tokenOut string) []string {
	seen := map[string]bool{
		strings.ToLower(tokenIn):  true,
		strings.ToLower(tokenOut): true,
	}
	var out []string
	add := func(address string) {
		key := strings.ToLower(address)
		if seen[key] || len(out) >= maxIntermediaries {
			return
		}
		seen[key] = true
		out = append(out, address)
	}

	for _, cat := range []TokenCategory{CategoryNativeWrapped, CategoryStablecoin, CategoryBlueChip} {
		for _, n := range snap.NodesByCategory(cat) {
			add(n.Address)
		}
	}
	for _, n := range snap.NodesByCategory(CategoryOther) {
		if n.LiquidityUSD >= intermediaryLiquidityFloorUSD {
			add(n.Address)
		}
	}
	return out
}

// enumeratePaths walks every simple path from tokenIn to tokenOut up to
// maxHops, restricting interior tokens to the candidate intermediaries.
// Direct pairs are always tried regardless of the candidate set.
func (e *Engine) enumeratePaths(snap *Snapshot, params FindParams, maxHops int) []*pathResult {
	allowed := make(map[string]bool)
	for _, c := range e.intermediaries(snap, params.TokenIn, params.TokenOut) {
		allowed[strings.ToLower(c)] = true
	}
	target := strings.ToLower(params.TokenOut)

	var results []*pathResult
	seenPaths := make(map[string]bool)

	var walk func(token string, hops int, edges []*PairEdge, tokens []string, visited map[string]bool)
	walk = func(token string, hops int, edges []*PairEdge, tokens []string, visited map[string]bool) {
		if hops >= maxHops {
			return
		}
		for _, edge := range snap.adjacency[nodeKey(token)] {
			next := edge.Other(token)
			nextKey := strings.ToLower(next)
			if visited[nextKey] {
				continue
			}
			pathEdges := append(append([]*PairEdge{}, edges...), edge)
			pathTokens := append(append([]string{}, tokens...), next)
			if nextKey == target {
				if p := e.simulate(params, pathEdges, pathTokens); p != nil {
					sig := pathSignature(pathEdges)
					if !seenPaths[sig] {
						seenPaths[sig] = true
						results = append(results, p)
					}
				}
				continue
			}
			if !allowed[nextKey] {
				continue
			}
			visited[nextKey] = true
			walk(next, hops+1, pathEdges, pathTokens, visited)
			delete(visited, nextKey)
		}
	}

	visited := map[string]bool{strings.ToLower(params.TokenIn): true}
	walk(params.TokenIn, 0, nil, []string{params.TokenIn}, visited)
	return results
}

func pathSignature(edges []*PairEdge) string {
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = e.Key()
	}
	return strings.Join(parts, ">")
}

// simulate runs the swap amounts along a path. Any hop that cannot produce
// a positive output kills the path.
func (e *Engine) simulate(params FindParams, edges []*PairEdge, tokens []string) *pathResult {
	amounts := make([]*big.Int, len(tokens))
	amounts[0] = params.AmountIn
	for i, edge := range edges {
		out, err := SwapOutput(edge, tokens[i], amounts[i])
		if err != nil || out.Sign() <= 0 {
			return nil
		}
		amounts[i+1] = out
	}
	return &pathResult{
		edges:     edges,
		tokens:    tokens,
		amounts:   amounts,
		amountOut: amounts[len(amounts)-1],
	}
}

// dijkstraPaths finds the best path on large graphs with a cost of
// -log(output ratio) per hop, so the cheapest path is the one with the
// highest compounded output. Above pruneNodeLimit only well-funded edges
// are expanded.
func (e *Engine) dijkstraPaths(snap *Snapshot, params FindParams, maxHops int) []*pathResult {
	prune := snap.NodeCount() > pruneNodeLimit
	target := strings.ToLower(params.TokenOut)

	type visitKey struct {
		token string
		hops  int
	}
	dist := make(map[visitKey]float64)

	pq := &pathQueue{}
	heap.Init(pq)
	heap.Push(pq, &pathItem{
		token:  params.TokenIn,
		amount: params.AmountIn,
		tokens: []string{params.TokenIn},
	})

	var best *pathResult
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pathItem)
		tokenKey := strings.ToLower(item.token)
		if tokenKey == target {
			best = &pathResult{
				edges:     item.edges,
				tokens:    item.tokens,
				amounts:   item.amounts(params.AmountIn),
				amountOut: item.amount,
			}
			break
		}
		if len(item.edges) >= maxHops {
			continue
		}
		key := visitKey{token: tokenKey, hops: len(item.edges)}
		if seen, ok := dist[key]; ok && seen <= item.cost {
			continue
		}
		dist[key] = item.cost

		for _, edge := range snap.adjacency[nodeKey(item.token)] {
			if prune && edge.LiquidityUSD < pruneLiquidityFloorUSD && !strings.EqualFold(edge.Other(item.token), params.TokenOut) {
				continue
			}
			next := edge.Other(item.token)
			if item.onPath(next) {
				continue
			}
			out, err := SwapOutput(edge, item.token, item.amount)
			if err != nil || out.Sign() <= 0 {
				continue
			}
			ratio := ratioFloat(out, item.amount)
			if ratio <= 0 {
				continue
			}
			heap.Push(pq, &pathItem{
				token:  next,
				amount: out,
				cost:   item.cost - math.Log(ratio),
				edges:  append(append([]*PairEdge{}, item.edges...), edge),
				tokens: append(append([]string{}, item.tokens...), next),
			})
		}
	}

	var results []*pathResult
	if best != nil {
		results = append(results, best)
	}

	// The direct pair is always a candidate even when Dijkstra favored a
	// multi-hop path.
	for _, edge := range snap.DirectEdges(params.TokenIn, params.TokenOut) {
		if best != nil && len(best.edges) == 1 && best.edges[0].Key() == edge.Key() {
			continue
		}
		if p := e.simulate(params, []*PairEdge{edge}, []string{params.TokenIn, params.TokenOut}); p != nil {
			results = append(results, p)
		}
	}
	return results
}

func ratioFloat(out, in *big.Int) float64 {
	r, _ := new(big.Float).Quo(new(big.Float).SetInt(out), new(big.Float).SetInt(in)).Float64()
	return r
}

// pathItem is one frontier entry of the Dijkstra search.
type pathItem struct {
	token  string
	amount *big.Int
	cost   float64
	edges  []*PairEdge
	tokens []string
}

func (p *pathItem) onPath(token string) bool {
	for _, t := range p.tokens {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

// amounts re-derives the per-hop amounts of a finished item.
func (p *pathItem) amounts(amountIn *big.Int) []*big.Int {
	out := make([]*big.Int, len(p.tokens))
	out[0] = amountIn
	current := amountIn
	for i, edge := range p.edges {
		next, err := SwapOutput(edge, p.tokens[i], current)
		if err != nil {
			return out
		}
		out[i+1] = next
		current = next
	}
	return out
}

type pathQueue []*pathItem

func (q pathQueue) Len() int           { return len(q) }
func (q pathQueue) Less(i, j int) bool { return q[i].cost < q[j].cost }
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(*pathItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// toRoute converts a simulated path into the canonical route shape.
func (e *Engine) toRoute(snap *Snapshot, params FindParams, p *pathResult) (*models.RouterRoute, error) {
	steps := make([]models.RouteStep, 0, len(p.edges))
	compoundedKeep := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	for i, edge := range p.edges {
		in, err := e.tokenAmount(snap, params.ChainID, p.tokens[i], p.amounts[i])
		if err != nil {
			return nil, err
		}
		out, err := e.tokenAmount(snap, params.ChainID, p.tokens[i+1], p.amounts[i+1])
		if err != nil {
			return nil, err
		}
		steps = append(steps, models.RouteStep{
			Type:    models.StepSwap,
			ChainID: params.ChainID,
			In:      in,
			Out:     out,
			Venue:   edge.Venue,
		})

		impact, err := PriceImpactPct(edge, p.tokens[i], p.amounts[i], p.amounts[i+1])
		if err == nil {
			keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(impact).Div(hundred))
			compoundedKeep = compoundedKeep.Mul(keep)
		}
	}

	fromToken := steps[0].In
	toToken := steps[len(steps)-1].Out

	fromDec, err := decimal.NewFromString(fromToken.Amount)
	if err != nil || fromDec.IsZero() {
		return nil, fmt.Errorf("route has unusable input amount %q", fromToken.Amount)
	}
	toDec, err := decimal.NewFromString(toToken.Amount)
	if err != nil {
		return nil, fmt.Errorf("route has unusable output amount %q", toToken.Amount)
	}

	impactPct, _ := decimal.NewFromInt(1).Sub(compoundedKeep).Mul(hundred).Float64()
	if impactPct < 0 {
		impactPct = 0
	}

	gasUSD := 0.0
	if chain, err := e.registry.GetCanonicalChain(params.ChainID); err == nil {
		gasUSD = chain.DefaultGasUSD * float64(len(p.edges))
	}

	now := time.Now()
	return &models.RouterRoute{
		Provider:       graphProviderTag,
		RouteID:        fmt.Sprintf("%s:%s", params.ChainID, pathSignature(p.edges)),
		FromToken:      fromToken,
		ToToken:        toToken,
		Steps:          steps,
		ExchangeRate:   toDec.Div(fromDec).String(),
		PriceImpactPct: impactPct,
		Fees: models.FeeBreakdown{
			GasUSD:       gasUSD,
			GasEstimated: true,
			TotalUSD:     gasUSD,
		},
		EstimatedTimeS: int64(swapTimeSeconds * len(p.edges)),
		ExpiresAtUnix:  now.Add(routeTTL).Unix(),
	}, nil
}

func (e *Engine) tokenAmount(snap *Snapshot, chainID, address string, raw *big.Int) (models.TokenAmount, error) {
	decimals := 18
	symbol := ""
	if node, ok := snap.Node(address); ok {
		decimals = node.Decimals
		symbol = node.Symbol
	}
	human, err := amount.FromBaseUnits(raw.String(), decimals)
	if err != nil {
		return models.TokenAmount{}, fmt.Errorf("format amount for %s: %w", address, err)
	}
	return models.TokenAmount{
		ChainID:  chainID,
		Address:  address,
		Symbol:   symbol,
		Decimals: decimals,
		Amount:   human,
	}, nil
}
