// Package oneinch adapts the 1inch EVM DEX aggregator API.
package oneinch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/providers"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

const (
	ProviderName = "oneinch"

	defaultBaseURL = "https://api.1inch.dev/swap/v6.0"
	routeTTL       = 30 * time.Second
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "oneinch-adapter").Logger()
}

type quoteClient interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Adapter implements providers.Adapter for same-chain EVM swaps.
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

// SupportsCrossChain is false: 1inch only quotes swaps within one chain.
func (a *Adapter) SupportsCrossChain() bool { return false }

func (a *Adapter) SupportsChain(chainID string) bool {
	chain, err := a.registry.GetCanonicalChain(chainID)
	if err != nil || chain.Family != registry.FamilyEVM {
		return false
	}
	_, err = providers.ChainIDForProvider(a.registry, ProviderName, chainID)
	return err == nil
}

func (a *Adapter) SupportsPair(fromChain, _ string, toChain, _ string) bool {
	return fromChain == toChain && a.SupportsChain(fromChain)
}

// quoteResponse is the subset of the 1inch quote shape the adapter reads.
type quoteResponse struct {
	DstAmount string `json:"dstAmount"`
	Gas       int64  `json:"gas"`
	Protocols [][]struct {
		Name string `json:"name"`
	} `json:"protocols"`
}

// GetRoute implements providers.Adapter.
func (a *Adapter) GetRoute(ctx context.Context, params providers.RouteParams) (*models.RouterRoute, error) {
	if !params.SameChain() {
		return nil, nil
	}
	chainID, err := providers.ChainIDForProvider(a.registry, ProviderName, params.FromChainID)
	if err != nil {
		return nil, err
	}
	src, err := providers.NormalizeEVMAddress(params.FromToken)
	if err != nil {
		return nil, err
	}
	dst, err := providers.NormalizeEVMAddress(params.ToToken)
	if err != nil {
		return nil, err
	}
	amountBase, err := providers.AmountToProvider(params.AmountHuman, params.FromDecimals)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", params.AmountHuman, err)
	}

	q := url.Values{}
	q.Set("src", src)
	q.Set("dst", dst)
	q.Set("amount", amountBase)
	q.Set("includeGas", "true")
	q.Set("includeProtocols", "true")

	var quote quoteResponse
	if err := a.http.GetJSON(ctx, fmt.Sprintf("%s/%s/quote?%s", a.baseURL, chainID, q.Encode()), &quote); err != nil {
		return nil, fmt.Errorf("oneinch quote: %w", err)
	}
	if quote.DstAmount == "" || quote.DstAmount == "0" {
		return nil, nil
	}
	return a.toRoute(&quote, params)
}

func (a *Adapter) toRoute(quote *quoteResponse, params providers.RouteParams) (*models.RouterRoute, error) {
	outHuman, err := providers.AmountFromProvider(quote.DstAmount, params.ToDecimals)
	if err != nil {
		return nil, fmt.Errorf("oneinch dstAmount %q: %w", quote.DstAmount, err)
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

	venue := ProviderName
	if len(quote.Protocols) > 0 && len(quote.Protocols[0]) > 0 {
		venue = quote.Protocols[0][0].Name
	}

	// The quote endpoint reports gas units, not cost; convert with the
	// chain default and keep the estimated flag set.
	fees := providers.FallbackGasFee(a.registry, params.FromChainID, 1)
	if quote.Gas == 0 {
		log.Debug().Str("chain", params.FromChainID).Msg("Quote carried no gas units, using chain default")
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
		Provider:  ProviderName,
		RouteID:   fmt.Sprintf("%s:%s:%s", ProviderName, params.FromChainID, params.FromToken),
		FromToken: from,
		ToToken:   to,
		Steps: []models.RouteStep{{
			Type:    models.StepSwap,
			ChainID: params.FromChainID,
			In:      from,
			Out:     to,
			Venue:   venue,
		}},
		ExchangeRate:   out.Div(in).String(),
		SlippagePct:    params.SlippagePct,
		Fees:           fees,
		EstimatedTimeS: 30,
		ExpiresAtUnix:  time.Now().Add(routeTTL).Unix(),
	}, nil
}
