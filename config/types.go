package config

import "time"

// ServiceConfig holds the full route-hub process configuration.
type ServiceConfig struct {
	// rpc configs
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `toml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	// metrics
	EnableMetrics bool `toml:"enable_metrics" mapstructure:"enable_metrics"`

	// chain registry source: a local file path, or a go-getter URL that is
	// downloaded into data_dir first
	RegistryPath string `toml:"registry_path" mapstructure:"registry_path"`
	RegistryURL  string `toml:"registry_url" mapstructure:"registry_url"`

	// DataDir holds the warm cache database and downloaded registries
	DataDir string `toml:"data_dir" mapstructure:"data_dir"`

	Routing RoutingConfig `toml:"routing" mapstructure:"routing"`
	Graph   GraphConfig   `toml:"graph" mapstructure:"graph"`

	// per-chain endpoints, keyed by canonical chain id
	Chains map[string]ChainEndpoints `toml:"chains" mapstructure:"chains"`

	Providers ProvidersConfig `toml:"providers" mapstructure:"providers"`
}

// RoutingConfig tunes the route service.
type RoutingConfig struct {
	// MaxPriceImpactPct rejects routes above this impact as
	// insufficient liquidity
	MaxPriceImpactPct float64 `toml:"max_price_impact_pct" mapstructure:"max_price_impact_pct"`
	// AlwaysRoute escalates failed fixed-slippage requests into the
	// auto resolver
	AlwaysRoute        bool    `toml:"always_route" mapstructure:"always_route"`
	DefaultSlippagePct float64 `toml:"default_slippage_pct" mapstructure:"default_slippage_pct"`
	// AggregateDeadlineMS bounds one provider fan-out, in milliseconds
	AggregateDeadlineMS int `toml:"aggregate_deadline_ms" mapstructure:"aggregate_deadline_ms"`
}

// GraphConfig tunes the liquidity graph builder.
type GraphConfig struct {
	MinLiquidityUSD    float64 `toml:"min_liquidity_usd" mapstructure:"min_liquidity_usd"`
	BulkLimit          int     `toml:"bulk_limit" mapstructure:"bulk_limit"`
	RefreshIntervalSec int     `toml:"refresh_interval_sec" mapstructure:"refresh_interval_sec"`
	EdgeTTLSec         int     `toml:"edge_ttl_sec" mapstructure:"edge_ttl_sec"`
}

// ChainEndpoints holds one chain's data sources.
type ChainEndpoints struct {
	// IndexerURLs are tried in order until one answers
	IndexerURLs []string `toml:"indexer_urls" mapstructure:"indexer_urls"`
	RPCURL      string   `toml:"rpc_url" mapstructure:"rpc_url"`
}

// ProvidersConfig enables and tunes the external quote sources.
type ProvidersConfig struct {
	LiFi    ProviderConfig `toml:"lifi" mapstructure:"lifi"`
	OneInch ProviderConfig `toml:"oneinch" mapstructure:"oneinch"`
	Jupiter ProviderConfig `toml:"jupiter" mapstructure:"jupiter"`
}

// ProviderConfig is one adapter's settings. Priority orders adapters in
// the fan-out; lower runs first.
type ProviderConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	BaseURL  string `toml:"base_url" mapstructure:"base_url"`
	APIKey   string `toml:"api_key" mapstructure:"api_key"`
	Priority int    `toml:"priority" mapstructure:"priority"`
}

// RefreshInterval returns the graph refresh cadence with a floor so a
// zero config cannot hammer the indexers.
func (g GraphConfig) RefreshInterval() time.Duration {
	if g.RefreshIntervalSec < 30 {
		return 5 * time.Minute
	}
	return time.Duration(g.RefreshIntervalSec) * time.Second
}

// EdgeTTL returns how long a cached edge stays usable.
func (g GraphConfig) EdgeTTL() time.Duration {
	if g.EdgeTTLSec <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(g.EdgeTTLSec) * time.Second
}

// AggregateDeadline returns the shared fan-out budget.
func (r RoutingConfig) AggregateDeadline() time.Duration {
	if r.AggregateDeadlineMS <= 0 {
		return 9 * time.Second
	}
	return time.Duration(r.AggregateDeadlineMS) * time.Millisecond
}
