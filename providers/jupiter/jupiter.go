// Package jupiter adapts the Jupiter Solana DEX aggregator API.
package jupiter

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/providers"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

const (
	ProviderName = "jupiter"

	defaultBaseURL = "https://quote-api.jup.ag/v6"
	routeTTL       = 20 * time.Second
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "jupiter-adapter").Logger()
}

type quoteClient interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Adapter implements providers.Adapter for Solana swaps. Mint addresses are
// validated as base58 before any request leaves the process.
type Adapter struct {
	http     quoteClient
	registry *registry.ChainRegistry
	baseURL  string
	priority int
}

func New(http quoteClient, reg *registry.ChainRegistry, baseURL string, priority int) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{http: http, registry: reg, baseURL: baseURL, priority: priority}
}

func (a *Adapter) Name() string { return ProviderName }

func (a *Adapter) Priority() int { return a.priority }

func (a *Adapter) SupportsCrossChain() bool { return false }

func (a *Adapter) SupportsChain(chainID string) bool {
	chain, err := a.registry.GetCanonicalChain(chainID)
	if err != nil || chain.Family != registry.FamilySVM {
		return false
	}
	_, err = providers.ChainIDForProvider(a.registry, ProviderName, chainID)
	return err == nil
}

func (a *Adapter) SupportsPair(fromChain, fromToken, toChain, toToken string) bool {
	if fromChain != toChain || !a.SupportsChain(fromChain) {
		return false
	}
	if _, err := providers.NormalizeSolanaMint(fromToken); err != nil {
		return false
	}
	if _, err := providers.NormalizeSolanaMint(toToken); err != nil {
		return false
	}
	return true
}

// quoteResponse is the subset of the Jupiter quote shape the adapter reads.
type quoteResponse struct {
	OutAmount      string  `json:"outAmount"`
	PriceImpactPct string  `json:"priceImpactPct"`
	TimeTaken      float64 `json:"timeTaken"`
	RoutePlan      []struct {
		SwapInfo struct {
			Label string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

// GetRoute implements providers.Adapter.
func (a *Adapter) GetRoute(ctx context.Context, params providers.RouteParams) (*models.RouterRoute, error) {
	if !params.SameChain() {
		return nil, nil
	}
	if _, err := providers.ChainIDForProvider(a.registry, ProviderName, params.FromChainID); err != nil {
		return nil, err
	}
	inputMint, err := providers.NormalizeSolanaMint(params.FromToken)
	if err != nil {
		return nil, err
	}
	outputMint, err := providers.NormalizeSolanaMint(params.ToToken)
	if err != nil {
		return nil, err
	}
	amountBase, err := providers.AmountToProvider(params.AmountHuman, params.FromDecimals)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", params.AmountHuman, err)
	}

	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", amountBase)
	q.Set("slippageBps", strconv.Itoa(int(params.SlippagePct*100)))

	var quote quoteResponse
	if err := a.http.GetJSON(ctx, a.baseURL+"/quote?"+q.Encode(), &quote); err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	if quote.OutAmount == "" || quote.OutAmount == "0" {
		return nil, nil
	}
	return a.toRoute(&quote, params)
}

func (a *Adapter) toRoute(quote *quoteResponse, params providers.RouteParams) (*models.RouterRoute, error) {
	outHuman, err := providers.AmountFromProvider(quote.OutAmount, params.ToDecimals)
	if err != nil {
		return nil, fmt.Errorf("jupiter outAmount %q: %w", quote.OutAmount, err)
	}

	from := models.TokenAmount{
		ChainID:  params.FromChainID,
		Address:  params.FromToken,
		Decimals: params.FromDecimals,
		Amount:   params.AmountHuman,
	}
	to := models.TokenAmount{
		ChainID:  params.ToChainID,
		Address:  params.ToToken,
		Decimals: params.ToDecimals,
		Amount:   outHuman,
	}

	// Jupiter's plan legs all execute inside one transaction; each leg
	// becomes one swap step so hop counts stay comparable across sources.
	steps := make([]models.RouteStep, 0, len(quote.RoutePlan))
	for _, leg := range quote.RoutePlan {
		steps = append(steps, models.RouteStep{
			Type:    models.StepSwap,
			ChainID: params.FromChainID,
			In:      from,
			Out:     to,
			Venue:   leg.SwapInfo.Label,
		})
	}
	if len(steps) == 0 {
		steps = append(steps, models.RouteStep{
			Type:    models.StepSwap,
			ChainID: params.FromChainID,
			In:      from,
			Out:     to,
			Venue:   ProviderName,
		})
	}

	impact := 0.0
	if v, err := decimal.NewFromString(quote.PriceImpactPct); err == nil {
		impact, _ = v.Mul(decimal.NewFromInt(100)).Float64()
	} else {
		log.Debug().Str("raw", quote.PriceImpactPct).Msg("Unparseable price impact in quote")
	}

	in, err := decimal.NewFromString(params.AmountHuman)
	if err != nil || in.IsZero() {
		return nil, fmt.Errorf("cannot derive exchange rate from input %q", params.AmountHuman)
	}
	out, err := decimal.NewFromString(outHuman)
	if err != nil {
		return nil, fmt.Errorf("cannot derive exchange rate from output %q", outHuman)
	}

	return &models.RouterRoute{
		Provider:       ProviderName,
		RouteID:        fmt.Sprintf("%s:%s>%s", ProviderName, inputMintShort(params.FromToken), inputMintShort(params.ToToken)),
		FromToken:      from,
		ToToken:        to,
		Steps:          steps,
		ExchangeRate:   out.Div(in).String(),
		PriceImpactPct: impact,
		SlippagePct:    params.SlippagePct,
		Fees:           providers.FallbackGasFee(a.registry, params.FromChainID, len(steps)),
		EstimatedTimeS: 10,
		ExpiresAtUnix:  time.Now().Add(routeTTL).Unix(),
	}, nil
}

func inputMintShort(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:8]
}
