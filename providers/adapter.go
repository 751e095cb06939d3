// Package providers defines the contract every external routing source
// satisfies and the parameter transforms shared by the concrete adapters.
package providers

import (
	"context"

	"github.com/meridianlabs-xyz/route-hub/models"
)

// RouteParams is the canonical request handed to an adapter. Amounts are
// human-readable decimal strings; each adapter converts to its own amount
// encoding with the token's decimal count.
type RouteParams struct {
	FromChainID  string
	FromToken    string
	FromDecimals int
	ToChainID    string
	ToToken      string
	ToDecimals   int
	AmountHuman  string
	SlippagePct  float64
	Recipient    string
	// MaxHops caps graph-derived paths; zero means the engine default.
	MaxHops int
}

// SameChain reports whether both endpoints live on one chain.
func (p *RouteParams) SameChain() bool {
	return p.FromChainID == p.ToChainID
}

// Adapter is the uniform contract for one external routing/bridging source.
// New sources are added by implementing this interface, never by branching
// on a provider name inside shared logic.
type Adapter interface {
	// Name identifies the provider in logs and route results.
	Name() string
	// SupportsChain reports whether the provider has an id mapping for the
	// canonical chain.
	SupportsChain(chainID string) bool
	// SupportsPair reports whether the provider can quote this exact pair.
	SupportsPair(fromChain, fromToken, toChain, toToken string) bool
	// SupportsCrossChain reports whether the provider quotes routes whose
	// endpoints are on different chains.
	SupportsCrossChain() bool
	// Priority orders providers; lower is tried first.
	Priority() int
	// GetRoute returns a normalized route, or (nil, nil) when the provider
	// has no route for the pair. Errors and timeouts are reported through
	// err and never abort the wider aggregation.
	GetRoute(ctx context.Context, params RouteParams) (*models.RouterRoute, error)
}

// BridgeParams is the request shape for one cross-chain transfer quote.
// AmountHuman is the actual output of the source-chain leg, never the
// original request input.
type BridgeParams struct {
	FromChainID string
	ToChainID   string
	Token       string // token address on the source chain
	TokenOnDest string // counterpart address on the destination chain
	// Decimals is the token's decimal count on the source chain;
	// DecimalsOnDest is the counterpart's on the destination chain. The
	// same token is encoded differently per chain, so amounts reported by
	// the destination side must be decoded with DecimalsOnDest.
	Decimals       int
	DecimalsOnDest int
	AmountHuman    string
	SlippagePct    float64
	Recipient      string
}

// BridgeProvider is implemented by adapters that can quote a bare
// cross-chain transfer leg for the composer.
type BridgeProvider interface {
	Name() string
	SupportsChain(chainID string) bool
	GetBridgeQuote(ctx context.Context, params BridgeParams) (*models.BridgeQuote, error)
}
