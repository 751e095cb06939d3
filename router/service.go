package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianlabs-xyz/route-hub/graph"
	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/providers"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

// ServiceConfig tunes the route service facade.
type ServiceConfig struct {
	// MaxPriceImpactPct is the safety ceiling above which a route is
	// reported as InsufficientLiquidity instead of returned.
	MaxPriceImpactPct float64
	// AlwaysRoute escalates a failed fixed-slippage request into the auto
	// resolver before reporting failure. Configurable because always
	// forcing a route at up to 30% tolerance is not always in the user's
	// interest.
	AlwaysRoute bool
	// DefaultSlippagePct applies when the request carries no tolerance.
	DefaultSlippagePct float64
	// ResponseTTL bounds how long a returned route may be trusted.
	ResponseTTL time.Duration
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxPriceImpactPct:  15,
		AlwaysRoute:        false,
		DefaultSlippagePct: 0.5,
		ResponseTTL:        30 * time.Second,
	}
}

// DecimalsSource resolves a token's decimal count. Satisfied by the graph
// builder's token metadata collaborator.
type DecimalsSource interface {
	Decimals(ctx context.Context, chainID, address string) (int, error)
}

// LiquiditySource exposes pair liquidity for the slippage tier lookup.
// Satisfied by *graph.Builder.
type LiquiditySource interface {
	GetNeighbors(chainID, token string, minLiquidityUSD float64) []*graph.PairEdge
}

// Service is the facade the HTTP layer calls: it validates a RouteRequest,
// drives the aggregator (and composer for cross-chain requests), and maps
// every failure into the response payload.
type Service struct {
	cfg        ServiceConfig
	registry   *registry.ChainRegistry
	aggregator *Aggregator
	composer   *Composer
	resolver   *SlippageResolver
	decimals   DecimalsSource
	liquidity  LiquiditySource
}

// NewService wires the facade. composer may be nil when the deployment
// handles no cross-chain traffic; decimals and liquidity may be nil and
// degrade to defaults.
func NewService(
	cfg ServiceConfig,
	reg *registry.ChainRegistry,
	aggregator *Aggregator,
	composer *Composer,
	resolver *SlippageResolver,
	decimals DecimalsSource,
	liquidity LiquiditySource,
) *Service {
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = 30 * time.Second
	}
	if cfg.DefaultSlippagePct <= 0 {
		cfg.DefaultSlippagePct = 0.5
	}
	return &Service{
		cfg:        cfg,
		registry:   reg,
		aggregator: aggregator,
		composer:   composer,
		resolver:   resolver,
		decimals:   decimals,
		liquidity:  liquidity,
	}
}

// GetRoute handles one route request end to end. Errors are embedded in
// the response payload; the returned error is reserved for context
// cancellation.
func (s *Service) GetRoute(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error) {
	now := time.Now()
	resp := &models.RouteResponse{
		Timestamp: now.Unix(),
		ExpiresAt: now.Add(s.cfg.ResponseTTL).Unix(),
	}

	params, err := s.validate(ctx, req)
	if err != nil {
		// Invalid requests fail immediately, before any fan-out.
		resp.Error = err.Error()
		return resp, nil
	}

	if params.SameChain() {
		s.routeSameChain(ctx, req, params, resp)
	} else {
		s.routeCrossChain(ctx, req, params, resp)
	}
	return resp, nil
}

// validate checks the request and resolves it into adapter params. Every
// failure is a typed InvalidRequest error.
func (s *Service) validate(ctx context.Context, req *models.RouteRequest) (providers.RouteParams, error) {
	var params providers.RouteParams

	fromChain, err := s.registry.GetCanonicalChain(req.FromToken.ChainID)
	if err != nil {
		return params, WrapError(CodeInvalidRequest, fmt.Sprintf("from chain %q", req.FromToken.ChainID), err)
	}
	toChain, err := s.registry.GetCanonicalChain(req.ToToken.ChainID)
	if err != nil {
		return params, WrapError(CodeInvalidRequest, fmt.Sprintf("to chain %q", req.ToToken.ChainID), err)
	}
	if _, err := providers.NormalizeTokenID(fromChain.Family, req.FromToken.Address); err != nil {
		return params, WrapError(CodeInvalidRequest, "from token", err)
	}
	if _, err := providers.NormalizeTokenID(toChain.Family, req.ToToken.Address); err != nil {
		return params, WrapError(CodeInvalidRequest, "to token", err)
	}

	amountDec, err := decimal.NewFromString(req.FromAmount)
	if err != nil || !amountDec.IsPositive() {
		return params, NewError(CodeInvalidRequest, fmt.Sprintf("amount %q must be a positive decimal", req.FromAmount))
	}

	if req.MaxHops < 0 || req.MaxHops > 4 {
		return params, NewError(CodeInvalidRequest, fmt.Sprintf("max_hops %d out of range [0, 4]", req.MaxHops))
	}

	slippage := s.cfg.DefaultSlippagePct
	if req.Slippage != nil {
		slippage = *req.Slippage
		if slippage <= 0 || slippage > 50 {
			return params, NewError(CodeInvalidRequest, fmt.Sprintf("slippage %.2f%% out of range (0, 50]", slippage))
		}
	}

	params = providers.RouteParams{
		FromChainID:  req.FromToken.ChainID,
		FromToken:    req.FromToken.Address,
		FromDecimals: s.tokenDecimals(ctx, req.FromToken.ChainID, req.FromToken.Address),
		ToChainID:    req.ToToken.ChainID,
		ToToken:      req.ToToken.Address,
		ToDecimals:   s.tokenDecimals(ctx, req.ToToken.ChainID, req.ToToken.Address),
		AmountHuman:  req.FromAmount,
		SlippagePct:  slippage,
		Recipient:    req.Recipient,
		MaxHops:      req.MaxHops,
	}
	return params, nil
}

func (s *Service) tokenDecimals(ctx context.Context, chainID, address string) int {
	if s.decimals != nil {
		if d, err := s.decimals.Decimals(ctx, chainID, address); err == nil {
			return d
		}
	}
	return 18
}

func (s *Service) routeSameChain(ctx context.Context, req *models.RouteRequest, params providers.RouteParams, resp *models.RouteResponse) {
	order := req.Order
	if order == "" {
		order = models.OrderRecommended
	}

	var best *models.RouterRoute
	var alternatives []models.RouterRoute
	var failure error

	if req.SlippageMode == models.SlippageModeAuto && s.resolver != nil {
		best, alternatives, failure = s.resolveAuto(ctx, params, order)
	} else {
		best, alternatives, failure = s.aggregateOnce(ctx, params, order)
		if best == nil && s.cfg.AlwaysRoute && s.resolver != nil {
			serviceLog.Info().Msg("No route at requested tolerance, escalating to auto slippage")
			best, alternatives, failure = s.resolveAuto(ctx, params, order)
		}
	}

	if best == nil {
		resp.Error = s.noRouteMessage(failure)
		return
	}
	if best.PriceImpactPct > s.cfg.MaxPriceImpactPct {
		err := &Error{
			Code:      CodeInsufficientLiquidity,
			Message:   fmt.Sprintf("price impact %.2f%% exceeds the %.2f%% ceiling", best.PriceImpactPct, s.cfg.MaxPriceImpactPct),
			ImpactPct: best.PriceImpactPct,
		}
		resp.Error = err.Error()
		return
	}

	resp.Route = best
	resp.Alternatives = alternatives
}

// aggregateOnce runs one fan-out at the params' tolerance.
func (s *Service) aggregateOnce(ctx context.Context, params providers.RouteParams, order models.RouteOrder) (*models.RouterRoute, []models.RouterRoute, error) {
	result, err := s.aggregator.Aggregate(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Candidates) == 0 {
		return nil, nil, NewError(CodeNoPathFound, result.FailureSummary())
	}
	best, alternatives := SelectBest(result.Candidates, order)
	return best, alternatives, nil
}

// resolveAuto drives the slippage state machine, re-aggregating per attempt.
// The resolver picks the best route across attempts, so alternatives are
// keyed per attempt and the set belonging to the winning route is returned,
// not whichever attempt happened to run last.
func (s *Service) resolveAuto(ctx context.Context, params providers.RouteParams, order models.RouteOrder) (*models.RouterRoute, []models.RouterRoute, error) {
	altsByRoute := make(map[*models.RouterRoute][]models.RouterRoute)
	best, applied, err := s.resolver.Resolve(ctx, s.pairLiquidityUSD(params), func(ctx context.Context, slippagePct float64) (*models.RouterRoute, error) {
		attempt := params
		attempt.SlippagePct = slippagePct
		route, alts, err := s.aggregateOnce(ctx, attempt, order)
		if err != nil {
			return nil, err
		}
		altsByRoute[route] = alts
		return route, nil
	})
	if err != nil {
		return nil, nil, err
	}
	serviceLog.Debug().Float64("applied_pct", applied).Msg("Auto slippage applied")
	return best, altsByRoute[best], nil
}

// pairLiquidityUSD estimates the pair's liquidity for the slippage tier:
// the deepest direct pool between the endpoints, zero when none is known
// (which maps to the most tolerant tier).
func (s *Service) pairLiquidityUSD(params providers.RouteParams) float64 {
	if s.liquidity == nil {
		return 0
	}
	bestLiquidity := 0.0
	for _, edge := range s.liquidity.GetNeighbors(params.FromChainID, params.FromToken, 0) {
		if strings.EqualFold(edge.Other(params.FromToken), params.ToToken) && edge.LiquidityUSD > bestLiquidity {
			bestLiquidity = edge.LiquidityUSD
		}
	}
	return bestLiquidity
}

func (s *Service) routeCrossChain(ctx context.Context, req *models.RouteRequest, params providers.RouteParams, resp *models.RouteResponse) {
	order := req.Order
	if order == "" {
		order = models.OrderRecommended
	}

	best, alternatives, aggErr := s.aggregateOnce(ctx, params, order)

	var composed *models.CrossChainRoute
	var composeErr error
	if s.composer != nil {
		composed, composeErr = s.composer.Compose(ctx, params)
		if composeErr != nil {
			serviceLog.Debug().Err(composeErr).Msg("Cross-chain composition failed")
		}
	}

	switch {
	case best == nil && composed == nil:
		// Bridge failure is reported distinctly from no-route when the
		// request was cross-chain and composition was the failing part.
		if composeErr != nil && CodeOf(composeErr) == CodeBridgeUnavailable {
			resp.Error = composeErr.Error()
		} else {
			resp.Error = s.noRouteMessage(aggErr)
		}
	case composed != nil && (best == nil || composedBeatsRoute(composed, best)):
		resp.CrossChain = composed
		if best != nil {
			resp.Alternatives = append([]models.RouterRoute{*best}, alternatives...)
		}
	default:
		resp.Route = best
		resp.Alternatives = alternatives
		if composed != nil {
			resp.CrossChain = composed
		}
	}
}

// composedBeatsRoute compares a composed plan against the best provider
// route on final output amount.
func composedBeatsRoute(composed *models.CrossChainRoute, route *models.RouterRoute) bool {
	return amountGreater(composedOutput(composed), route.ToToken.Amount)
}

func composedOutput(c *models.CrossChainRoute) string {
	if c.DestinationSwap != nil {
		return c.DestinationSwap.ToToken.Amount
	}
	return c.Bridge.AmountOut
}

func (s *Service) noRouteMessage(err error) string {
	if err == nil {
		return NewError(CodeNoPathFound, "no route could be assembled").Error()
	}
	if _, ok := AsError(err); ok {
		return err.Error()
	}
	return WrapError(CodeNoPathFound, "no route could be assembled", err).Error()
}

// BestSameChain implements SameChainRouter for the composer's legs.
func (s *Service) BestSameChain(ctx context.Context, params providers.RouteParams) (*models.RouterRoute, error) {
	best, _, err := s.aggregateOnce(ctx, params, models.OrderRecommended)
	if err != nil {
		return nil, err
	}
	return best, nil
}
