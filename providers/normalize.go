package providers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianlabs-xyz/route-hub/amount"
	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/registry"
)

// The three parameter transforms (chain id, token id, amount) live here as
// standalone functions so each can be tested in isolation, away from any
// HTTP client.

// ChainIDForProvider translates a canonical chain id into the provider's
// native identifier. It never guesses: a chain the provider has no mapping
// for is an error.
func ChainIDForProvider(reg *registry.ChainRegistry, provider, canonicalID string) (string, error) {
	id, err := reg.GetProviderChainID(canonicalID, provider)
	if err != nil {
		return "", fmt.Errorf("chain %s is not supported by %s: %w", canonicalID, provider, err)
	}
	return id, nil
}

// NormalizeEVMAddress validates and lowercases an EVM contract address.
func NormalizeEVMAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%q is not a valid EVM address", address)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// base58 alphabet excludes 0, O, I and l.
var solanaMintPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// NormalizeSolanaMint validates a base58 Solana mint address. Mints are
// passed through unchanged when valid; base58 is case-sensitive so no
// folding happens.
func NormalizeSolanaMint(mint string) (string, error) {
	if !solanaMintPattern.MatchString(mint) {
		return "", fmt.Errorf("%q is not a valid Solana mint address", mint)
	}
	return mint, nil
}

// NormalizeTokenID applies the chain-family-appropriate token transform.
func NormalizeTokenID(family, address string) (string, error) {
	switch family {
	case registry.FamilyEVM:
		return NormalizeEVMAddress(address)
	case registry.FamilySVM:
		return NormalizeSolanaMint(address)
	default:
		return "", fmt.Errorf("unknown chain family %q", family)
	}
}

// AmountToProvider converts a human-readable decimal string into the
// fixed-point integer string providers expect. Exact; no floats involved.
func AmountToProvider(human string, decimals int) (string, error) {
	return amount.ToBaseUnits(human, decimals)
}

// AmountFromProvider converts a provider's fixed-point integer string back
// into a human-readable decimal string.
func AmountFromProvider(base string, decimals int) (string, error) {
	return amount.FromBaseUnits(base, decimals)
}

// FallbackGasFee builds the conservative, chain-default gas estimate used
// when a provider omits gas data. The result is always flagged as
// estimated so callers never mistake it for a provider-reported value, and
// it is never a silent zero for a registered chain.
func FallbackGasFee(reg *registry.ChainRegistry, chainID string, hops int) models.FeeBreakdown {
	if hops < 1 {
		hops = 1
	}
	gasUSD := 0.0
	if chain, err := reg.GetCanonicalChain(chainID); err == nil {
		gasUSD = chain.DefaultGasUSD * float64(hops)
	}
	return models.FeeBreakdown{
		GasUSD:       gasUSD,
		GasEstimated: true,
		TotalUSD:     gasUSD,
	}
}
