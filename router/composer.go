package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridianlabs-xyz/route-hub/amount"
	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/providers"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

// SameChainRouter produces the best same-chain route for one leg of a
// composed cross-chain plan.
type SameChainRouter interface {
	BestSameChain(ctx context.Context, params providers.RouteParams) (*models.RouterRoute, error)
}

// Composer stitches a source-chain swap, one bridge transfer and a
// destination-chain swap into a CrossChainRoute. The three legs run
// strictly in sequence: each leg is quoted with the previous leg's actual
// output amount, never the originally requested input.
type Composer struct {
	registry *registry.ChainRegistry
	swaps    SameChainRouter
	bridges  []providers.BridgeProvider
}

// NewComposer wires a composer over the registered bridge sources.
func NewComposer(reg *registry.ChainRegistry, swaps SameChainRouter, bridges []providers.BridgeProvider) *Composer {
	return &Composer{registry: reg, swaps: swaps, bridges: bridges}
}

// Compose builds a cross-chain plan for params, or a typed error:
// BridgeUnavailable when no bridge source quotes the transfer, NoPathFound
// when a same-chain leg cannot be routed.
func (c *Composer) Compose(ctx context.Context, params providers.RouteParams) (*models.CrossChainRoute, error) {
	if params.SameChain() {
		return nil, fmt.Errorf("compose called for a same-chain request")
	}

	intermediate, err := c.pickIntermediate(params.FromChainID, params.ToChainID)
	if err != nil {
		return nil, err
	}
	counterpart := intermediate.Counterparts[params.ToChainID]

	// Leg 1: fromToken -> intermediate on the source chain. Skipped when
	// the input already is the intermediate.
	var sourceSwap *models.RouterRoute
	bridgeAmount := params.AmountHuman
	if !strings.EqualFold(params.FromToken, intermediate.Address) {
		sourceSwap, err = c.swaps.BestSameChain(ctx, providers.RouteParams{
			FromChainID:  params.FromChainID,
			FromToken:    params.FromToken,
			FromDecimals: params.FromDecimals,
			ToChainID:    params.FromChainID,
			ToToken:      intermediate.Address,
			ToDecimals:   intermediate.Decimals,
			AmountHuman:  params.AmountHuman,
			SlippagePct:  params.SlippagePct,
		})
		if err != nil {
			return nil, WrapError(CodeNoPathFound, "source-chain leg has no route", err)
		}
		bridgeAmount = sourceSwap.ToToken.Amount
	}

	// Leg 2: bridge the source leg's actual output.
	bridge, err := c.bestBridgeQuote(ctx, providers.BridgeParams{
		FromChainID:    params.FromChainID,
		ToChainID:      params.ToChainID,
		Token:          intermediate.Address,
		TokenOnDest:    counterpart.Address,
		Decimals:       intermediate.Decimals,
		DecimalsOnDest: counterpart.Decimals,
		AmountHuman:    bridgeAmount,
		SlippagePct:    params.SlippagePct,
		Recipient:      params.Recipient,
	})
	if err != nil {
		return nil, err
	}

	// Leg 3: counterpart -> toToken on the destination chain, from the
	// bridge's actual output.
	var destSwap *models.RouterRoute
	if !strings.EqualFold(params.ToToken, counterpart.Address) {
		destSwap, err = c.swaps.BestSameChain(ctx, providers.RouteParams{
			FromChainID:  params.ToChainID,
			FromToken:    counterpart.Address,
			FromDecimals: counterpart.Decimals,
			ToChainID:    params.ToChainID,
			ToToken:      params.ToToken,
			ToDecimals:   params.ToDecimals,
			AmountHuman:  bridge.AmountOut,
			SlippagePct:  params.SlippagePct,
		})
		if err != nil {
			return nil, WrapError(CodeNoPathFound, "destination-chain leg has no route", err)
		}
	}

	route := &models.CrossChainRoute{
		SourceSwap:      sourceSwap,
		Bridge:          *bridge,
		DestinationSwap: destSwap,
	}
	if err := checkContinuity(route, params.AmountHuman); err != nil {
		return nil, err
	}

	route.TotalFeeUSD = bridge.FeeUSD
	route.TotalTimeS = bridge.EstimatedTimeS
	if sourceSwap != nil {
		route.TotalFeeUSD += sourceSwap.Fees.TotalUSD
		route.TotalTimeS += sourceSwap.EstimatedTimeS
	}
	if destSwap != nil {
		route.TotalFeeUSD += destSwap.Fees.TotalUSD
		route.TotalTimeS += destSwap.EstimatedTimeS
	}

	composerLog.Info().
		Str("intermediate", intermediate.Symbol).
		Str("bridge", bridge.Provider).
		Msg("Cross-chain route composed")
	return route, nil
}

// pickIntermediate selects the transfer token: the registry lists bridge
// tokens in priority order (wrapped native of the source chain first, then
// major stablecoins).
func (c *Composer) pickIntermediate(fromChainID, toChainID string) (registry.BridgeToken, error) {
	candidates := c.registry.BridgeTokensFor(fromChainID, toChainID)
	if len(candidates) == 0 {
		return registry.BridgeToken{}, NewError(CodeBridgeUnavailable,
			fmt.Sprintf("no bridgeable token connects %s to %s", fromChainID, toChainID))
	}
	return candidates[0], nil
}

// bestBridgeQuote fans the transfer out to every bridge source and ranks
// the quotes by output amount, then speed, then fee.
func (c *Composer) bestBridgeQuote(ctx context.Context, params providers.BridgeParams) (*models.BridgeQuote, error) {
	var quotes []*models.BridgeQuote
	var failures []sourceFailure

	for _, bridge := range c.bridges {
		if !bridge.SupportsChain(params.FromChainID) || !bridge.SupportsChain(params.ToChainID) {
			continue
		}
		quote, err := bridge.GetBridgeQuote(ctx, params)
		if err != nil {
			composerLog.Debug().Err(err).Str("bridge", bridge.Name()).Msg("Bridge quote failed")
			failures = append(failures, sourceFailure{Source: bridge.Name(), Err: err})
			continue
		}
		if quote == nil {
			failures = append(failures, sourceFailure{Source: bridge.Name(), Err: fmt.Errorf("no quote for pair")})
			continue
		}
		quotes = append(quotes, quote)
	}

	if len(quotes) == 0 {
		msg := fmt.Sprintf("no bridge quote from %s to %s", params.FromChainID, params.ToChainID)
		if len(failures) > 0 {
			parts := make([]string, len(failures))
			for i, f := range failures {
				parts[i] = f.String()
			}
			msg += " (tried " + strings.Join(parts, "; ") + ")"
		}
		return nil, NewError(CodeBridgeUnavailable, msg)
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		if quotes[i].AmountOut != quotes[j].AmountOut {
			return amountGreater(quotes[i].AmountOut, quotes[j].AmountOut)
		}
		if quotes[i].EstimatedTimeS != quotes[j].EstimatedTimeS {
			return quotes[i].EstimatedTimeS < quotes[j].EstimatedTimeS
		}
		return quotes[i].FeeUSD < quotes[j].FeeUSD
	})
	return quotes[0], nil
}

func amountEqual(a, b string) bool {
	return amount.Normalize(a) == amount.Normalize(b)
}

func amountGreater(a, b string) bool {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA != nil || errB != nil {
		return errB != nil && errA == nil
	}
	return da.GreaterThan(db)
}

// checkContinuity enforces the amount-continuity invariant between legs.
func checkContinuity(route *models.CrossChainRoute, requestAmount string) error {
	expectedIn := requestAmount
	if route.SourceSwap != nil {
		expectedIn = route.SourceSwap.ToToken.Amount
	}
	if !amountEqual(route.Bridge.AmountIn, expectedIn) {
		return fmt.Errorf("bridge amount in %s does not match source leg output %s",
			route.Bridge.AmountIn, expectedIn)
	}
	if route.DestinationSwap != nil && !amountEqual(route.DestinationSwap.FromToken.Amount, route.Bridge.AmountOut) {
		return fmt.Errorf("destination leg input %s does not match bridge output %s",
			route.DestinationSwap.FromToken.Amount, route.Bridge.AmountOut)
	}
	return nil
}
