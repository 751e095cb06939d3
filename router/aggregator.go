package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianlabs-xyz/route-hub/amount"
	"github.com/meridianlabs-xyz/route-hub/graph"
	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/providers"
)

const (
	// defaultDeadline is the shared budget for one aggregation fan-out.
	defaultDeadline = 9 * time.Second
	// maxFanOut bounds concurrent provider calls per request.
	maxFanOut = 8
)

// PathSource produces graph-derived candidate routes for one chain.
// Satisfied by *graph.Engine.
type PathSource interface {
	FindRoutes(params graph.FindParams) ([]*models.RouterRoute, error)
}

// OnDemandFetcher is the graph builder slice the aggregator's empty-set
// fallback uses.
type OnDemandFetcher interface {
	FetchOnDemand(ctx context.Context, chainID, tokenA, tokenB string) (*graph.PairEdge, error)
}

// Aggregator fans one request out to every eligible provider adapter and
// the pathfinding engine under a shared deadline, and merges whatever
// completes in time.
type Aggregator struct {
	adapters []providers.Adapter
	paths    PathSource
	fetcher  OnDemandFetcher
	deadline time.Duration
}

// NewAggregator wires an aggregator. Adapters are tried in priority order;
// paths and fetcher may be nil when a deployment runs provider-only.
func NewAggregator(adapters []providers.Adapter, paths PathSource, fetcher OnDemandFetcher, deadline time.Duration) *Aggregator {
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	sorted := make([]providers.Adapter, len(adapters))
	copy(sorted, adapters)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Aggregator{adapters: sorted, paths: paths, fetcher: fetcher, deadline: deadline}
}

// Result is one aggregation outcome: the merged candidate set plus a record
// of every source that contributed nothing and why.
type Result struct {
	Candidates []*models.RouterRoute
	Failures   []sourceFailure
}

// FailureSummary renders the per-source failures into one descriptive
// message listing which sources were tried and why each failed.
func (r *Result) FailureSummary() string {
	if len(r.Failures) == 0 {
		return "no candidate sources were eligible"
	}
	parts := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		parts[i] = f.String()
	}
	return "tried " + strings.Join(parts, "; ")
}

// Aggregate produces the full candidate set for one request. Provider
// failures and timeouts are recorded, never propagated: a provider that
// contributes nothing is simply absent from the candidates. An empty result
// after the first pass triggers the on-demand graph fallback and one
// pathfinding re-run before giving up.
func (a *Aggregator) Aggregate(ctx context.Context, params providers.RouteParams) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	result := &Result{}
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxFanOut)

	for _, adapter := range a.eligible(params) {
		group.Go(func() error {
			route, err := adapter.GetRoute(gctx, params)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				aggLog.Debug().Err(err).Str("provider", adapter.Name()).Msg("Provider contributed nothing")
				result.Failures = append(result.Failures, sourceFailure{
					Source: adapter.Name(),
					Err:    WrapError(CodeProviderUnavailable, "provider call failed", err),
				})
			case route == nil:
				result.Failures = append(result.Failures, sourceFailure{
					Source: adapter.Name(),
					Err:    NewError(CodeProviderUnavailable, "no route for pair"),
				})
			default:
				result.Candidates = append(result.Candidates, route)
			}
			return nil
		})
	}

	if a.paths != nil && params.SameChain() {
		group.Go(func() error {
			routes, err := a.findPaths(params)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, sourceFailure{Source: "graph", Err: err})
				return nil
			}
			if len(routes) == 0 {
				result.Failures = append(result.Failures, sourceFailure{
					Source: "graph",
					Err:    NewError(CodeNoPathFound, "no path in liquidity graph"),
				})
				return nil
			}
			result.Candidates = append(result.Candidates, routes...)
			return nil
		})
	}

	_ = group.Wait()

	// Empty is not terminal yet: fetch the pair on demand and re-run the
	// engine once before reporting no route.
	if len(result.Candidates) == 0 && params.SameChain() && a.fetcher != nil && a.paths != nil {
		a.onDemandFallback(ctx, params, result)
	}

	aggLog.Info().
		Str("from", params.FromToken).
		Str("to", params.ToToken).
		Int("candidates", len(result.Candidates)).
		Int("failures", len(result.Failures)).
		Msg("Aggregation complete")
	return result, nil
}

// eligible filters adapters on chain/pair support for both endpoints.
func (a *Aggregator) eligible(params providers.RouteParams) []providers.Adapter {
	var out []providers.Adapter
	for _, adapter := range a.adapters {
		if !params.SameChain() && !adapter.SupportsCrossChain() {
			continue
		}
		if !adapter.SupportsChain(params.FromChainID) || !adapter.SupportsChain(params.ToChainID) {
			continue
		}
		if !adapter.SupportsPair(params.FromChainID, params.FromToken, params.ToChainID, params.ToToken) {
			continue
		}
		out = append(out, adapter)
	}
	return out
}

func (a *Aggregator) findPaths(params providers.RouteParams) ([]*models.RouterRoute, error) {
	base, err := amount.ToBaseUnits(params.AmountHuman, params.FromDecimals)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", params.AmountHuman, err)
	}
	routes, err := a.paths.FindRoutes(graph.FindParams{
		ChainID:   params.FromChainID,
		TokenIn:   params.FromToken,
		TokenOut:  params.ToToken,
		AmountIn:  amount.MustBig(base),
		MaxHops:   params.MaxHops,
		MaxRoutes: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("pathfinding: %w", err)
	}
	for _, r := range routes {
		r.SlippagePct = params.SlippagePct
	}
	return routes, nil
}

// onDemandFallback is the most expensive rung of the fallback ladder: one
// direct RPC pair fetch, then one pathfinding re-run.
func (a *Aggregator) onDemandFallback(ctx context.Context, params providers.RouteParams, result *Result) {
	edge, err := a.fetcher.FetchOnDemand(ctx, params.FromChainID, params.FromToken, params.ToToken)
	if err != nil {
		result.Failures = append(result.Failures, sourceFailure{
			Source: "on-demand-fetch",
			Err:    fmt.Errorf("pair fetch failed: %w", err),
		})
		return
	}
	if edge == nil {
		result.Failures = append(result.Failures, sourceFailure{
			Source: "on-demand-fetch",
			Err:    NewError(CodeNoPathFound, "no pool exists for pair"),
		})
		return
	}

	aggLog.Info().Str("pair", edge.Key()).Msg("On-demand fetch found a pool, re-running pathfinder")
	routes, err := a.findPaths(params)
	if err != nil || len(routes) == 0 {
		result.Failures = append(result.Failures, sourceFailure{
			Source: "graph-rerun",
			Err:    NewError(CodeNoPathFound, "no path after on-demand fetch"),
		})
		return
	}
	result.Candidates = append(result.Candidates, routes...)
}
