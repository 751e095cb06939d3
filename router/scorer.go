package router

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/meridianlabs-xyz/route-hub/models"
)

// Scoring is deliberately simple and conservative: output amount dominates,
// fees and time act as tie-pressure. Sophisticated multi-objective
// optimization is deferred; the score lives behind one pure function so it
// can be replaced without touching any caller.

// ScoreWeights are the linear weights of the score function.
type ScoreWeights struct {
	Output float64
	FeeUSD float64
	TimeS  float64
}

// DefaultWeights returns the RECOMMENDED weighting.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{Output: 1.0, FeeUSD: 0.05, TimeS: 0.001}
}

// WeightsFor adjusts the default weighting for a user ordering preference.
func WeightsFor(order models.RouteOrder) ScoreWeights {
	w := DefaultWeights()
	switch order {
	case models.OrderFastest:
		w.TimeS *= 200
	case models.OrderCheapest:
		w.FeeUSD *= 50
	}
	return w
}

// Score maps one route onto the comparable scale:
//
//	score = output*w1 - feeUSD*w2 - timeS*w3
//
// Pure: same route and weights, same score, no side effects.
func Score(route *models.RouterRoute, w ScoreWeights) float64 {
	output := 0.0
	if v, err := decimal.NewFromString(route.ToToken.Amount); err == nil {
		output, _ = v.Float64()
	}
	return output*w.Output - route.Fees.TotalUSD*w.FeeUSD - float64(route.EstimatedTimeS)*w.TimeS
}

// SelectBest ranks candidates and returns the top route plus up to three
// runners-up. The result is independent of input order: ties on score fall
// back to fewer hops, then lower estimated time, then the route id, so two
// permutations of the same candidate set always pick the same route.
func SelectBest(candidates []*models.RouterRoute, order models.RouteOrder) (*models.RouterRoute, []models.RouterRoute) {
	if len(candidates) == 0 {
		return nil, nil
	}
	w := WeightsFor(order)

	ranked := make([]*models.RouterRoute, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := Score(ranked[i], w), Score(ranked[j], w)
		if si != sj {
			return si > sj
		}
		if hi, hj := ranked[i].HopCount(), ranked[j].HopCount(); hi != hj {
			return hi < hj
		}
		if ranked[i].EstimatedTimeS != ranked[j].EstimatedTimeS {
			return ranked[i].EstimatedTimeS < ranked[j].EstimatedTimeS
		}
		return ranked[i].RouteID < ranked[j].RouteID
	})

	best := ranked[0]
	alternatives := make([]models.RouterRoute, 0, 3)
	for _, r := range ranked[1:] {
		if len(alternatives) == 3 {
			break
		}
		alternatives = append(alternatives, *r)
	}
	return best, alternatives
}
