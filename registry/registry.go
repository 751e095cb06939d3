// Package registry holds the canonical chain table: one stable internal id
// per chain, each provider's native identifier for it, and native-currency
// metadata. The table is immutable after load.
package registry

import (
	"fmt"
	"strings"
)

// Address families.
const (
	FamilyEVM = "evm"
	FamilySVM = "svm"
)

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Symbol   string `json:"symbol" toml:"symbol"`
	Decimals int    `json:"decimals" toml:"decimals"`
	// WrappedAddress is the canonical wrapped form of the native currency
	// (e.g. WETH, WBNB). Pathfinding uses it as the first intermediary.
	WrappedAddress string `json:"wrapped_address" toml:"wrapped_address"`
}

// CanonicalChain is one chain known to the router.
type CanonicalChain struct {
	// ID is the stable internal identifier, e.g. "ethereum", "bsc", "solana".
	ID   string `json:"id" toml:"id"`
	Name string `json:"name" toml:"name"`
	// Family is the address family: "evm" or "svm".
	Family string         `json:"family" toml:"family"`
	Native NativeCurrency `json:"native" toml:"native"`
	// ProviderIDs maps a provider name to that provider's identifier for
	// this chain ("56", "eip155:56", "solana-mainnet", ...). A provider
	// missing from the map does not support the chain.
	ProviderIDs map[string]string `json:"provider_ids" toml:"provider_ids"`
	// Stablecoins and BlueChips are token addresses used as preferred
	// swap intermediaries, in priority order after the wrapped native.
	Stablecoins []string `json:"stablecoins" toml:"stablecoins"`
	BlueChips   []string `json:"blue_chips" toml:"blue_chips"`
	// BridgeTokens are tokens with recognized counterparts on other
	// chains, usable as the transfer unit of a cross-chain leg. Listed in
	// composer priority order (wrapped native first, then stablecoins).
	BridgeTokens []BridgeToken `json:"bridge_tokens" toml:"bridge_tokens"`
	// RPCURL is the JSON-RPC endpoint used for on-demand pair checks.
	RPCURL string `json:"rpc_url" toml:"rpc_url"`
	// FactoryAddress is the uniswap-v2-compatible factory queried over
	// RPCURL; FactoryVenue names the venue those pools belong to.
	FactoryAddress string `json:"factory_address" toml:"factory_address"`
	FactoryVenue   string `json:"factory_venue" toml:"factory_venue"`
	// IndexerURL is the bulk pair indexer endpoint for this chain.
	IndexerURL string `json:"indexer_url" toml:"indexer_url"`
	// IndexerBackupURLs are tried when the primary indexer is down.
	IndexerBackupURLs []string `json:"indexer_backup_urls" toml:"indexer_backup_urls"`
	// DefaultGasUSD is the conservative fallback gas estimate for one swap
	// on this chain, used when a provider reports no gas data.
	DefaultGasUSD float64 `json:"default_gas_usd" toml:"default_gas_usd"`
}

// BridgeToken is one bridgeable token on one chain.
type BridgeToken struct {
	Address  string `json:"address" toml:"address"`
	Symbol   string `json:"symbol" toml:"symbol"`
	Decimals int    `json:"decimals" toml:"decimals"`
	// Counterparts maps a destination canonical chain id to the token's
	// form on that chain. Decimal counts differ across chains for the
	// same token (USDT is 18 on BSC, 6 on Ethereum), so the counterpart
	// carries its own.
	Counterparts map[string]BridgeCounterpart `json:"counterparts" toml:"counterparts"`
}

// BridgeCounterpart locates a bridge token on a destination chain.
type BridgeCounterpart struct {
	Address  string `json:"address" toml:"address"`
	Decimals int    `json:"decimals" toml:"decimals"`
}

// ChainRegistry is a read-only lookup over the canonical chain table.
type ChainRegistry struct {
	chains map[string]CanonicalChain
}

// ErrChainUnsupported is returned when a provider has no identifier mapping
// for a chain. Callers must treat it as "skip this provider", never guess.
type ErrChainUnsupported struct {
	ChainID  string
	Provider string
}

func (e *ErrChainUnsupported) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("chain %s is not registered", e.ChainID)
	}
	return fmt.Sprintf("provider %s does not support chain %s", e.Provider, e.ChainID)
}

// NewChainRegistry builds a registry from a chain list.
func NewChainRegistry(chains []CanonicalChain) (*ChainRegistry, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("no chains to register")
	}
	m := make(map[string]CanonicalChain, len(chains))
	for _, c := range chains {
		if c.ID == "" {
			return nil, fmt.Errorf("chain %q has empty id", c.Name)
		}
		if _, dup := m[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chain id %s", c.ID)
		}
		m[c.ID] = c
	}
	return &ChainRegistry{chains: m}, nil
}

// GetCanonicalChain returns the chain for a canonical id.
func (r *ChainRegistry) GetCanonicalChain(id string) (CanonicalChain, error) {
	chain, ok := r.chains[id]
	if !ok {
		return CanonicalChain{}, &ErrChainUnsupported{ChainID: id}
	}
	return chain, nil
}

// GetProviderChainID translates a canonical chain id into the identifier a
// provider uses natively. Returns ErrChainUnsupported when no mapping exists.
func (r *ChainRegistry) GetProviderChainID(canonicalID, provider string) (string, error) {
	chain, ok := r.chains[canonicalID]
	if !ok {
		return "", &ErrChainUnsupported{ChainID: canonicalID}
	}
	id, ok := chain.ProviderIDs[provider]
	if !ok || id == "" {
		return "", &ErrChainUnsupported{ChainID: canonicalID, Provider: provider}
	}
	return id, nil
}

// AllChainIDs returns every registered canonical id.
func (r *ChainRegistry) AllChainIDs() []string {
	ids := make([]string, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}

// IsStablecoin reports whether the address is a registered stablecoin on the
// chain. Comparison is case-insensitive (EVM addresses are checksum-cased).
func (r *ChainRegistry) IsStablecoin(chainID, address string) bool {
	chain, ok := r.chains[chainID]
	if !ok {
		return false
	}
	for _, s := range chain.Stablecoins {
		if strings.EqualFold(s, address) {
			return true
		}
	}
	return false
}

// IsBlueChip reports whether the address is a registered blue-chip token on
// the chain.
func (r *ChainRegistry) IsBlueChip(chainID, address string) bool {
	chain, ok := r.chains[chainID]
	if !ok {
		return false
	}
	for _, b := range chain.BlueChips {
		if strings.EqualFold(b, address) {
			return true
		}
	}
	return false
}

// BridgeTokensFor returns the chain's bridgeable tokens that have a
// counterpart on the destination chain, in composer priority order.
func (r *ChainRegistry) BridgeTokensFor(fromChainID, toChainID string) []BridgeToken {
	chain, ok := r.chains[fromChainID]
	if !ok {
		return nil
	}
	var out []BridgeToken
	for _, bt := range chain.BridgeTokens {
		if cp, ok := bt.Counterparts[toChainID]; ok && cp.Address != "" {
			out = append(out, bt)
		}
	}
	return out
}

// TokenDecimals returns the registered decimal count for an address on a
// chain: the wrapped native currency, a listed bridge token, or a bridge
// counterpart another chain maps onto this one. ok is false when the
// registry does not know the token.
func (r *ChainRegistry) TokenDecimals(chainID, address string) (int, bool) {
	chain, ok := r.chains[chainID]
	if !ok {
		return 0, false
	}
	if chain.Native.WrappedAddress != "" && strings.EqualFold(chain.Native.WrappedAddress, address) {
		return chain.Native.Decimals, true
	}
	for _, bt := range chain.BridgeTokens {
		if strings.EqualFold(bt.Address, address) {
			return bt.Decimals, true
		}
	}
	for _, other := range r.chains {
		if other.ID == chainID {
			continue
		}
		for _, bt := range other.BridgeTokens {
			if cp, ok := bt.Counterparts[chainID]; ok && strings.EqualFold(cp.Address, address) {
				return cp.Decimals, true
			}
		}
	}
	return 0, false
}

// IsWrappedNative reports whether the address is the chain's wrapped native
// currency.
func (r *ChainRegistry) IsWrappedNative(chainID, address string) bool {
	chain, ok := r.chains[chainID]
	if !ok {
		return false
	}
	return chain.Native.WrappedAddress != "" && strings.EqualFold(chain.Native.WrappedAddress, address)
}
