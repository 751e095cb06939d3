// Package lifi adapts the LI.FI cross-chain aggregator API.
package lifi

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
	// ProviderName is the name this adapter reports in route results.
	ProviderName = "lifi"

	defaultBaseURL = "https://li.quest/v1"
	routeTTL       = 60 * time.Second
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "lifi-adapter").Logger()
}

// quoteClient is the HTTP slice the adapter needs; satisfied by
// *httpx.Client and by test fakes.
type quoteClient interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Adapter implements providers.Adapter and providers.BridgeProvider over
// the LI.FI quote API.
type Adapter struct {
	http     quoteClient
	registry *registry.ChainRegistry
	baseURL  string
	priority int
}

// New builds the adapter. An empty baseURL selects the public API.
func New(http quoteClient, reg *registry.ChainRegistry, baseURL string, priority int) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{http: http, registry: reg, baseURL: baseURL, priority: priority}
}

func (a *Adapter) Name() string { return ProviderName }

func (a *Adapter) Priority() int { return a.priority }

func (a *Adapter) SupportsCrossChain() bool { return true }

func (a *Adapter) SupportsChain(chainID string) bool {
	_, err := providers.ChainIDForProvider(a.registry, ProviderName, chainID)
	return err == nil
}

func (a *Adapter) SupportsPair(fromChain, _ string, toChain, _ string) bool {
	return a.SupportsChain(fromChain) && a.SupportsChain(toChain)
}

// quoteResponse is the subset of the LI.FI quote shape the adapter reads.
type quoteResponse struct {
	ID       string `json:"id"`
	Tool     string `json:"tool"`
	Estimate struct {
		FromAmount        string `json:"fromAmount"`
		ToAmount          string `json:"toAmount"`
		ExecutionDuration int64  `json:"executionDuration"`
		FeeCosts          []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"feeCosts"`
		GasCosts []struct {
			Amount    string `json:"amount"`
			AmountUSD string `json:"amountUSD"`
		} `json:"gasCosts"`
	} `json:"estimate"`
	Action struct {
		Slippage float64 `json:"slippage"`
	} `json:"action"`
}

// GetRoute implements providers.Adapter.
func (a *Adapter) GetRoute(ctx context.Context, params providers.RouteParams) (*models.RouterRoute, error) {
	fromChain, err := providers.ChainIDForProvider(a.registry, ProviderName, params.FromChainID)
	if err != nil {
		return nil, err
	}
	toChain, err := providers.ChainIDForProvider(a.registry, ProviderName, params.ToChainID)
	if err != nil {
		return nil, err
	}
	fromToken, toToken, err := a.normalizeTokens(params)
	if err != nil {
		return nil, err
	}
	amountBase, err := providers.AmountToProvider(params.AmountHuman, params.FromDecimals)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", params.AmountHuman, err)
	}

	q := url.Values{}
	q.Set("fromChain", fromChain)
	q.Set("toChain", toChain)
	q.Set("fromToken", fromToken)
	q.Set("toToken", toToken)
	q.Set("fromAmount", amountBase)
	q.Set("slippage", strconv.FormatFloat(params.SlippagePct/100, 'f', -1, 64))
	if params.Recipient != "" {
		q.Set("toAddress", params.Recipient)
	}

	var quote quoteResponse
	if err := a.http.GetJSON(ctx, a.baseURL+"/quote?"+q.Encode(), &quote); err != nil {
		return nil, fmt.Errorf("lifi quote: %w", err)
	}
	if quote.Estimate.ToAmount == "" {
		return nil, nil
	}
	return a.toRoute(&quote, params)
}

func (a *Adapter) normalizeTokens(params providers.RouteParams) (string, string, error) {
	fromChain, err := a.registry.GetCanonicalChain(params.FromChainID)
	if err != nil {
		return "", "", err
	}
	toChain, err := a.registry.GetCanonicalChain(params.ToChainID)
	if err != nil {
		return "", "", err
	}
	fromToken, err := providers.NormalizeTokenID(fromChain.Family, params.FromToken)
	if err != nil {
		return "", "", err
	}
	toToken, err := providers.NormalizeTokenID(toChain.Family, params.ToToken)
	if err != nil {
		return "", "", err
	}
	return fromToken, toToken, nil
}

func (a *Adapter) toRoute(quote *quoteResponse, params providers.RouteParams) (*models.RouterRoute, error) {
	outHuman, err := providers.AmountFromProvider(quote.Estimate.ToAmount, params.ToDecimals)
	if err != nil {
		return nil, fmt.Errorf("lifi toAmount %q: %w", quote.Estimate.ToAmount, err)
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

	stepType := models.StepSwap
	if params.FromChainID != params.ToChainID {
		stepType = models.StepBridge
	}

	fees := a.fees(quote, params)
	rate, err := exchangeRate(params.AmountHuman, outHuman)
	if err != nil {
		return nil, err
	}

	return &models.RouterRoute{
		Provider:  ProviderName,
		RouteID:   quote.ID,
		FromToken: from,
		ToToken:   to,
		Steps: []models.RouteStep{{
			Type:    stepType,
			ChainID: params.FromChainID,
			In:      from,
			Out:     to,
			Venue:   quote.Tool,
		}},
		ExchangeRate:   rate,
		SlippagePct:    params.SlippagePct,
		Fees:           fees,
		EstimatedTimeS: quote.Estimate.ExecutionDuration,
		ExpiresAtUnix:  time.Now().Add(routeTTL).Unix(),
	}, nil
}

// fees sums LI.FI's itemized fee and gas costs, falling back to the chain
// default when the quote carries no gas data.
func (a *Adapter) fees(quote *quoteResponse, params providers.RouteParams) models.FeeBreakdown {
	protocolUSD := decimal.Zero
	for _, f := range quote.Estimate.FeeCosts {
		if v, err := decimal.NewFromString(f.AmountUSD); err == nil {
			protocolUSD = protocolUSD.Add(v)
		}
	}
	gasUSD := decimal.Zero
	gasNative := ""
	for _, g := range quote.Estimate.GasCosts {
		if v, err := decimal.NewFromString(g.AmountUSD); err == nil {
			gasUSD = gasUSD.Add(v)
		}
		if gasNative == "" {
			gasNative = g.Amount
		}
	}

	if gasUSD.IsZero() {
		fallback := providers.FallbackGasFee(a.registry, params.FromChainID, 1)
		fallback.ProtocolUSD, _ = protocolUSD.Float64()
		fallback.TotalUSD += fallback.ProtocolUSD
		log.Debug().Str("chain", params.FromChainID).Msg("Quote carried no gas data, using chain default")
		return fallback
	}

	protocol, _ := protocolUSD.Float64()
	gas, _ := gasUSD.Float64()
	return models.FeeBreakdown{
		ProtocolUSD: protocol,
		GasNative:   gasNative,
		GasUSD:      gas,
		TotalUSD:    protocol + gas,
	}
}

func exchangeRate(inHuman, outHuman string) (string, error) {
	in, err := decimal.NewFromString(inHuman)
	if err != nil || in.IsZero() {
		return "", fmt.Errorf("cannot derive exchange rate from input %q", inHuman)
	}
	out, err := decimal.NewFromString(outHuman)
	if err != nil {
		return "", fmt.Errorf("cannot derive exchange rate from output %q", outHuman)
	}
	return out.Div(in).String(), nil
}

// GetBridgeQuote implements providers.BridgeProvider. The amount quoted is
// whatever the caller passes in, which for composed routes is the actual
// output of the source-chain leg.
func (a *Adapter) GetBridgeQuote(ctx context.Context, params providers.BridgeParams) (*models.BridgeQuote, error) {
	// The destination side of the transfer is denominated in the
	// counterpart's decimals, not the source token's.
	destDecimals := params.DecimalsOnDest
	if destDecimals == 0 {
		destDecimals = params.Decimals
	}
	route, err := a.GetRoute(ctx, providers.RouteParams{
		FromChainID:  params.FromChainID,
		FromToken:    params.Token,
		FromDecimals: params.Decimals,
		ToChainID:    params.ToChainID,
		ToToken:      params.TokenOnDest,
		ToDecimals:   destDecimals,
		AmountHuman:  params.AmountHuman,
		SlippagePct:  params.SlippagePct,
		Recipient:    params.Recipient,
	})
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, nil
	}
	return &models.BridgeQuote{
		Provider:       ProviderName,
		FromChainID:    params.FromChainID,
		ToChainID:      params.ToChainID,
		Token:          params.Token,
		AmountIn:       params.AmountHuman,
		AmountOut:      route.ToToken.Amount,
		FeeUSD:         route.Fees.TotalUSD,
		EstimatedTimeS: route.EstimatedTimeS,
		Step: models.RouteStep{
			Type:    models.StepBridge,
			ChainID: params.FromChainID,
			In:      route.FromToken,
			Out:     route.ToToken,
			Venue:   route.Steps[0].Venue,
		},
	}, nil
}
