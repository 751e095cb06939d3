package graph

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var bpsDenominator = big.NewInt(10000)

// SwapOutput computes the constant-product output for selling amountIn of
// tokenIn into edge, with the pool fee deducted from the input:
//
//	out = (in * (10000-fee) * reserveOut) / (reserveIn*10000 + in*(10000-fee))
//
// The result is always strictly below the lossless proportional amount.
func SwapOutput(edge *PairEdge, tokenIn string, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}
	reserveIn, reserveOut, ok := edge.ReservesFor(tokenIn)
	if !ok {
		return nil, fmt.Errorf("token %s is not an endpoint of pair %s/%s", tokenIn, edge.TokenA, edge.TokenB)
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("pair %s/%s on %s has no reserves", edge.TokenA, edge.TokenB, edge.Venue)
	}
	if edge.FeeBps >= 10000 {
		return nil, fmt.Errorf("pair fee %d bps is not a valid fee", edge.FeeBps)
	}

	feeMultiplier := big.NewInt(int64(10000 - edge.FeeBps))
	inWithFee := new(big.Int).Mul(amountIn, feeMultiplier)
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, bpsDenominator)
	denominator.Add(denominator, inWithFee)

	return numerator.Quo(numerator, denominator), nil
}

// PriceImpactPct returns the percentage deviation of the executed price from
// the pool's pre-trade spot price for a swap of amountIn -> amountOut.
//
//	spot     = reserveOut / reserveIn
//	executed = amountOut / amountIn
//	impact   = (1 - executed/spot) * 100
func PriceImpactPct(edge *PairEdge, tokenIn string, amountIn, amountOut *big.Int) (float64, error) {
	reserveIn, reserveOut, ok := edge.ReservesFor(tokenIn)
	if !ok {
		return 0, fmt.Errorf("token %s is not an endpoint of pair %s/%s", tokenIn, edge.TokenA, edge.TokenB)
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountIn.Sign() <= 0 {
		return 0, fmt.Errorf("cannot compute price impact on empty pool")
	}

	spot := decimal.NewFromBigInt(reserveOut, 0).Div(decimal.NewFromBigInt(reserveIn, 0))
	if spot.IsZero() {
		return 0, fmt.Errorf("cannot compute price impact with zero spot price")
	}
	executed := decimal.NewFromBigInt(amountOut, 0).Div(decimal.NewFromBigInt(amountIn, 0))
	impact := decimal.NewFromInt(1).Sub(executed.Div(spot)).Mul(decimal.NewFromInt(100))

	f, _ := impact.Float64()
	if f < 0 {
		f = 0
	}
	return f, nil
}

// SupportsAmount reports whether the pool can plausibly absorb amountIn
// without the price impact exceeding maxImpactPct.
func SupportsAmount(edge *PairEdge, tokenIn string, amountIn *big.Int, maxImpactPct float64) bool {
	out, err := SwapOutput(edge, tokenIn, amountIn)
	if err != nil {
		return false
	}
	impact, err := PriceImpactPct(edge, tokenIn, amountIn, out)
	if err != nil {
		return false
	}
	return impact <= maxImpactPct
}
