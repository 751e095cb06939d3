package router

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/meridianlabs-xyz/route-hub/models"
)

// Slippage resolution is a bounded state machine, not a loop that runs
// until something works: Initial -> Attempt(n) -> Resolved | Exhausted,
// with the tolerance doubling per attempt up to a hard ceiling and a fixed
// attempt cap.

const (
	// DefaultSlippageAttempts caps the resolver's attempt count.
	DefaultSlippageAttempts = 3
	// DefaultSlippageCeilingPct is the hard tolerance ceiling.
	DefaultSlippageCeilingPct = 30.0
)

// slippage tier table: lower liquidity starts with a higher tolerance.
var slippageTiers = []struct {
	minLiquidityUSD float64
	initialPct      float64
}{
	{1_000_000, 0.5},
	{100_000, 1.0},
	{10_000, 2.5},
	{0, 5.0},
}

// InitialSlippagePct returns the starting tolerance for a pair's liquidity
// tier.
func InitialSlippagePct(liquidityUSD float64) float64 {
	for _, tier := range slippageTiers {
		if liquidityUSD >= tier.minLiquidityUSD {
			return tier.initialPct
		}
	}
	return slippageTiers[len(slippageTiers)-1].initialPct
}

// SlippageResolver finds the smallest workable tolerance for a route when
// slippage mode is auto.
type SlippageResolver struct {
	maxAttempts int
	ceilingPct  float64
}

// NewSlippageResolver builds a resolver; zero values select the defaults.
func NewSlippageResolver(maxAttempts int, ceilingPct float64) *SlippageResolver {
	if maxAttempts <= 0 {
		maxAttempts = DefaultSlippageAttempts
	}
	if ceilingPct <= 0 {
		ceilingPct = DefaultSlippageCeilingPct
	}
	return &SlippageResolver{maxAttempts: maxAttempts, ceilingPct: ceilingPct}
}

// AttemptFunc runs one quote attempt at a tolerance. nil route with nil
// error means "no route at this tolerance".
type AttemptFunc func(ctx context.Context, slippagePct float64) (*models.RouterRoute, error)

// Resolve walks the attempt schedule: the liquidity tier picks the starting
// tolerance, each following attempt doubles it, capped at the ceiling.
// Among attempts that succeeded the best output wins, not the first: a
// higher tolerance sometimes surfaces a strictly better route, so all
// successes are compared. The applied tolerance is returned alongside.
func (r *SlippageResolver) Resolve(ctx context.Context, liquidityUSD float64, attempt AttemptFunc) (*models.RouterRoute, float64, error) {
	tolerance := InitialSlippagePct(liquidityUSD)

	var (
		best        *models.RouterRoute
		bestOutput  decimal.Decimal
		appliedPct  float64
		lastFailure error
	)

	for n := 1; n <= r.maxAttempts; n++ {
		if tolerance > r.ceilingPct {
			tolerance = r.ceilingPct
		}
		if err := ctx.Err(); err != nil {
			break
		}

		route, err := attempt(ctx, tolerance)
		switch {
		case err != nil:
			lastFailure = err
			slippageLog.Debug().Err(err).Float64("tolerance_pct", tolerance).Int("attempt", n).Msg("Slippage attempt failed")
		case route == nil:
			lastFailure = NewError(CodeNoPathFound, "no route at tolerance")
		default:
			output, perr := decimal.NewFromString(route.ToToken.Amount)
			if perr == nil && (best == nil || output.GreaterThan(bestOutput)) {
				best = route
				bestOutput = output
				appliedPct = tolerance
			}
		}

		if tolerance >= r.ceilingPct {
			break
		}
		tolerance *= 2
	}

	if best == nil {
		if lastFailure == nil {
			lastFailure = NewError(CodeNoPathFound, "no route at any tolerance")
		}
		return nil, 0, WrapError(CodeNoPathFound, "slippage attempts exhausted", lastFailure)
	}

	best.SlippagePct = appliedPct
	slippageLog.Info().Float64("applied_pct", appliedPct).Msg("Slippage resolved")
	return best, appliedPct, nil
}
