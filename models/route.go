package models

// SlippageMode selects how the router treats the slippage tolerance.
type SlippageMode string

const (
	SlippageModeFixed SlippageMode = "fixed"
	SlippageModeAuto  SlippageMode = "auto"
)

// RouteOrder biases the scorer towards a user preference.
type RouteOrder string

const (
	OrderRecommended RouteOrder = "RECOMMENDED"
	OrderFastest     RouteOrder = "FASTEST"
	OrderCheapest    RouteOrder = "CHEAPEST"
)

// TokenRef identifies a token endpoint of a route request.
type TokenRef struct {
	ChainID string `json:"chain_id"` // canonical chain id, e.g. "bsc", "ethereum"
	Address string `json:"address"`  // contract address or mint
}

// RouteRequest - POST body
type RouteRequest struct {
	FromToken    TokenRef     `json:"from_token"`
	ToToken      TokenRef     `json:"to_token"`
	FromAmount   string       `json:"from_amount"` // human-readable decimal string, e.g. "1.5"
	Slippage     *float64     `json:"slippage,omitempty"`      // percent, e.g. 0.5 for 0.5%
	SlippageMode SlippageMode `json:"slippage_mode,omitempty"` // defaults to "fixed"
	Recipient    string       `json:"recipient,omitempty"`
	Order        RouteOrder   `json:"order,omitempty"` // defaults to RECOMMENDED
	MaxHops      int          `json:"max_hops,omitempty"`
}

// TokenAmount is a token endpoint with its human-readable amount attached.
type TokenAmount struct {
	ChainID  string `json:"chain_id"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals int    `json:"decimals"`
	Amount   string `json:"amount"` // human-readable decimal string
}

// StepType classifies one step of a route.
type StepType string

const (
	StepSwap   StepType = "swap"
	StepBridge StepType = "bridge"
	StepWrap   StepType = "wrap"
	StepUnwrap StepType = "unwrap"
)

// RouteStep is one executable step of a route.
type RouteStep struct {
	Type    StepType    `json:"type"`
	ChainID string      `json:"chain_id"`
	In      TokenAmount `json:"in"`
	Out     TokenAmount `json:"out"`
	Venue   string      `json:"venue,omitempty"` // pool/DEX/bridge label
}

// FeeBreakdown itemizes the cost of a route.
// GasEstimated marks gas values produced by the fallback estimator rather
// than reported by the provider; callers must not treat the two as
// equal-confidence numbers.
type FeeBreakdown struct {
	ProtocolUSD  float64 `json:"protocol_usd"`
	GasNative    string  `json:"gas_native,omitempty"` // base units of the chain's native currency
	GasUSD       float64 `json:"gas_usd"`
	GasEstimated bool    `json:"gas_estimated,omitempty"`
	TotalUSD     float64 `json:"total_usd"`
}

// RouterRoute is the canonical, provider-agnostic route result.
// It is ephemeral: re-derived per request, never persisted by the core.
type RouterRoute struct {
	Provider        string       `json:"provider"` // source name: "lifi", "graph", ...
	RouteID         string       `json:"route_id"`
	FromToken       TokenAmount  `json:"from_token"`
	ToToken         TokenAmount  `json:"to_token"`
	Steps           []RouteStep  `json:"steps"`
	ExchangeRate    string       `json:"exchange_rate"`           // toAmount / fromAmount, decimal string
	PriceImpactPct  float64      `json:"price_impact_pct"`        // percent
	SlippagePct     float64      `json:"slippage_pct"`            // applied tolerance, percent
	Fees            FeeBreakdown `json:"fees"`
	EstimatedTimeS  int64        `json:"estimated_time_s"`
	ExpiresAtUnix   int64        `json:"expires_at_unix"`
}

// HopCount returns the number of swap hops in the route.
func (r *RouterRoute) HopCount() int {
	n := 0
	for _, s := range r.Steps {
		if s.Type == StepSwap {
			n++
		}
	}
	return n
}

// BridgeQuote is the normalized result of querying one bridge source.
type BridgeQuote struct {
	Provider       string      `json:"provider"`
	FromChainID    string      `json:"from_chain_id"`
	ToChainID      string      `json:"to_chain_id"`
	Token          string      `json:"token"` // bridged token symbol or address on source chain
	AmountIn       string      `json:"amount_in"`  // human-readable
	AmountOut      string      `json:"amount_out"` // human-readable
	FeeUSD         float64     `json:"fee_usd"`
	EstimatedTimeS int64       `json:"estimated_time_s"`
	Step           RouteStep   `json:"step"`
}

// CrossChainRoute stitches a source-chain swap, a bridge transfer and a
// destination-chain swap into one plan. SourceSwap and DestinationSwap are
// nil when the corresponding endpoint already is the bridged token.
//
// Invariant: Bridge.AmountIn == SourceSwap.ToToken.Amount (or the raw input
// amount when SourceSwap is nil), and DestinationSwap.FromToken.Amount ==
// Bridge.AmountOut.
type CrossChainRoute struct {
	SourceSwap      *RouterRoute `json:"source_swap,omitempty"`
	Bridge          BridgeQuote  `json:"bridge"`
	DestinationSwap *RouterRoute `json:"destination_swap,omitempty"`
	TotalFeeUSD     float64      `json:"total_fee_usd"`
	TotalTimeS      int64        `json:"total_time_s"`
}

// RouteResponse - unified response for the route endpoint.
// Either Route is set, or Error describes why no route could be assembled
// after all fallbacks.
type RouteResponse struct {
	Route        *RouterRoute     `json:"route,omitempty"`
	CrossChain   *CrossChainRoute `json:"cross_chain,omitempty"`
	Alternatives []RouterRoute    `json:"alternatives,omitempty"`
	Error        string           `json:"error,omitempty"`
	Timestamp    int64            `json:"timestamp"`
	ExpiresAt    int64            `json:"expires_at"`
}
