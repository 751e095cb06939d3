package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadServiceConfig loads the route-hub config from the given path, or from
// ROUTEHUB_* environment variables when no path is given.
func LoadServiceConfig(configPath *string) (*ServiceConfig, error) {
	v := viper.New()

	if configPath == nil {
		// if no file expect envs
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}
	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func loadEnv(v *viper.Viper) (*ServiceConfig, error) {
	// godot might fail if .env file is missing but
	// env can be applied through docker, systemd or other means, so skip error
	_ = godotenv.Load()
	v.SetEnvPrefix("ROUTEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config ServiceConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env values
// when no config file is loaded (env-only mode).
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "allowed_origins", "enable_metrics",
		"rate_per_minute", "max_concurrent_requests",
		"registry_path", "registry_url", "data_dir",
		"routing.max_price_impact_pct", "routing.always_route",
		"routing.default_slippage_pct", "routing.aggregate_deadline_ms",
		"graph.min_liquidity_usd", "graph.bulk_limit",
		"graph.refresh_interval_sec", "graph.edge_ttl_sec",
		"providers.lifi.enabled", "providers.lifi.base_url",
		"providers.lifi.api_key", "providers.lifi.priority",
		"providers.oneinch.enabled", "providers.oneinch.base_url",
		"providers.oneinch.api_key", "providers.oneinch.priority",
		"providers.jupiter.enabled", "providers.jupiter.base_url",
		"providers.jupiter.api_key", "providers.jupiter.priority",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*ServiceConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ServiceConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}

	return &config, nil
}

func verifyConfig(config *ServiceConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if config.Host == "" {
		return fmt.Errorf("host is required")
	}

	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required")
	}

	if config.RegistryPath == "" && config.RegistryURL == "" {
		return fmt.Errorf("one of registry_path or registry_url is required")
	}

	if config.Routing.MaxPriceImpactPct < 0 || config.Routing.MaxPriceImpactPct > 100 {
		return fmt.Errorf("routing.max_price_impact_pct must be between 0 and 100")
	}

	if config.Routing.DefaultSlippagePct < 0 || config.Routing.DefaultSlippagePct > 50 {
		return fmt.Errorf("routing.default_slippage_pct must be between 0 and 50")
	}

	for chainID, endpoints := range config.Chains {
		for _, url := range endpoints.IndexerURLs {
			if url == "" {
				return fmt.Errorf("chains.%s.indexer_urls must not contain empty entries", chainID)
			}
		}
	}

	return nil
}
