package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianlabs-xyz/route-hub/config"
	"github.com/meridianlabs-xyz/route-hub/graph"
	"github.com/meridianlabs-xyz/route-hub/httpx"
	"github.com/meridianlabs-xyz/route-hub/providers"
	"github.com/meridianlabs-xyz/route-hub/providers/jupiter"
	"github.com/meridianlabs-xyz/route-hub/providers/lifi"
	"github.com/meridianlabs-xyz/route-hub/providers/oneinch"
	"github.com/meridianlabs-xyz/route-hub/registry"
	"github.com/meridianlabs-xyz/route-hub/router"
	"github.com/meridianlabs-xyz/route-hub/rpc"
)

var log zerolog.Logger

func init() {
	// Initialize zerolog with console writer
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "./routehub.toml", "config file for the route hub")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting Route Hub")

	cfg, err := config.LoadServiceConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	reg, err := loadRegistry(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load chain registry")
	}
	log.Info().Int("count", len(reg.AllChainIDs())).Msg("Loaded chains")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	builder, warm := buildGraphStack(cfg, reg)
	if warm != nil {
		defer warm.Close()
	}

	// Background graph refresh
	go builder.Run(ctx)

	engine := graph.NewEngine(builder, reg)
	adapters := buildAdapters(cfg, reg)

	aggregator := router.NewAggregator(adapters, engine, builder, cfg.Routing.AggregateDeadline())

	serviceCfg := router.DefaultServiceConfig()
	if cfg.Routing.MaxPriceImpactPct > 0 {
		serviceCfg.MaxPriceImpactPct = cfg.Routing.MaxPriceImpactPct
	}
	if cfg.Routing.DefaultSlippagePct > 0 {
		serviceCfg.DefaultSlippagePct = cfg.Routing.DefaultSlippagePct
	}
	serviceCfg.AlwaysRoute = cfg.Routing.AlwaysRoute

	resolver := router.NewSlippageResolver(0, 0)

	// The service routes the composer's same-chain legs, so wire it in two
	// steps: service first, composer second. The builder doubles as the
	// decimals and liquidity source: it resolves decimal counts from its
	// snapshots, the registry and the chain RPCs.
	service := router.NewService(serviceCfg, reg, aggregator, nil, resolver, builder, builder)
	composer := router.NewComposer(reg, service, bridgeProviders(adapters))
	service = router.NewService(serviceCfg, reg, aggregator, composer, resolver, builder, builder)

	serverConfig := buildServerConfig(cfg)
	server, err := rpc.NewServer(serverConfig, service, reg, builder)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// loadRegistry reads the chain registry from the configured path, fetching
// it first when a remote source is configured.
func loadRegistry(cfg *config.ServiceConfig) (*registry.ChainRegistry, error) {
	path := cfg.RegistryPath
	if cfg.RegistryURL != "" {
		dst := filepath.Join(dataDir(cfg), "registry")
		log.Info().Str("url", cfg.RegistryURL).Msg("Downloading chain registry")
		if err := registry.DownloadRegistry(cfg.RegistryURL, dst); err != nil {
			return nil, err
		}
		found, err := registry.FindRegistryFile(dst)
		if err != nil {
			return nil, err
		}
		path = found
	}
	return registry.LoadFromFile(path)
}

// buildGraphStack wires the cache tiers, per-chain indexers and RPC
// checkers, and the graph builder.
func buildGraphStack(cfg *config.ServiceConfig, reg *registry.ChainRegistry) (*graph.Builder, *graph.WarmStore) {
	builderCfg := graph.DefaultBuilderConfig()
	if cfg.Graph.MinLiquidityUSD > 0 {
		builderCfg.MinLiquidityUSD = cfg.Graph.MinLiquidityUSD
	}
	if cfg.Graph.BulkLimit > 0 {
		builderCfg.BulkLimit = cfg.Graph.BulkLimit
	}
	builderCfg.RefreshInterval = cfg.Graph.RefreshInterval()
	builderCfg.EdgeTTL = cfg.Graph.EdgeTTL()

	hot := graph.NewHotCache(builderCfg.EdgeTTL)
	var warm *graph.WarmStore
	dir := dataDir(cfg)
	store, err := graph.OpenWarmStore(
		filepath.Join(dir, "warm-cache.db"),
		filepath.Join(dir, "warm-cache.lock"),
		builderCfg.EdgeTTL,
	)
	if err != nil {
		log.Warn().Err(err).Msg("Warm cache unavailable, running hot-only")
	} else {
		warm = store
	}

	indexers := make(map[string]graph.PairIndexer)
	rpcs := make(map[string]graph.ChainRPC)
	for _, chainID := range reg.AllChainIDs() {
		chain, _ := reg.GetCanonicalChain(chainID)

		indexerURL := chain.IndexerURL
		backups := chain.IndexerBackupURLs
		rpcURL := chain.RPCURL
		if endpoints, ok := cfg.Chains[chainID]; ok {
			if len(endpoints.IndexerURLs) > 0 {
				indexerURL = endpoints.IndexerURLs[0]
				backups = endpoints.IndexerURLs[1:]
			}
			if endpoints.RPCURL != "" {
				rpcURL = endpoints.RPCURL
			}
		}

		if indexerURL != "" {
			client, err := graph.NewIndexerClient(indexerURL, backups, 10*time.Second)
			if err != nil {
				log.Warn().Err(err).Str("chain", chainID).Msg("Indexer client unavailable")
			} else {
				indexers[chainID] = client
			}
		}

		if chain.Family == registry.FamilyEVM && rpcURL != "" && chain.FactoryAddress != "" {
			checker, err := graph.DialEVMChainRPC(rpcURL, chain.FactoryAddress, chain.FactoryVenue)
			if err != nil {
				log.Warn().Err(err).Str("chain", chainID).Msg("Chain RPC unavailable")
			} else {
				rpcs[chainID] = checker
			}
		}
	}

	builder := graph.NewBuilder(builderCfg, reg, indexers, rpcs,
		&graph.Tiers{Hot: hot, Warm: warm}, nil, nil)
	return builder, warm
}

// buildAdapters wires the enabled provider adapters in config priority
// order. One transient retry per provider call; the aggregator's shared
// deadline covers the lot.
func buildAdapters(cfg *config.ServiceConfig, reg *registry.ChainRegistry) []providers.Adapter {
	client := httpx.New(10*time.Second, 1)

	var adapters []providers.Adapter
	if cfg.Providers.LiFi.Enabled {
		c := client
		if key := cfg.Providers.LiFi.APIKey; key != "" {
			c = c.WithHeader("x-lifi-api-key", key)
		}
		adapters = append(adapters, lifi.New(c, reg, cfg.Providers.LiFi.BaseURL, cfg.Providers.LiFi.Priority))
	}
	if cfg.Providers.OneInch.Enabled {
		c := client
		if key := cfg.Providers.OneInch.APIKey; key != "" {
			c = c.WithHeader("Authorization", "Bearer "+key)
		}
		adapters = append(adapters, oneinch.New(c, reg, cfg.Providers.OneInch.BaseURL, cfg.Providers.OneInch.Priority))
	}
	if cfg.Providers.Jupiter.Enabled {
		c := client
		if key := cfg.Providers.Jupiter.APIKey; key != "" {
			c = c.WithHeader("x-api-key", key)
		}
		adapters = append(adapters, jupiter.New(c, reg, cfg.Providers.Jupiter.BaseURL, cfg.Providers.Jupiter.Priority))
	}

	for _, a := range adapters {
		log.Info().Str("provider", a.Name()).Int("priority", a.Priority()).Msg("Provider adapter enabled")
	}
	return adapters
}

// bridgeProviders collects the adapters that can also quote bare bridge
// transfers for the cross-chain composer.
func bridgeProviders(adapters []providers.Adapter) []providers.BridgeProvider {
	var bridges []providers.BridgeProvider
	for _, a := range adapters {
		if bridge, ok := a.(providers.BridgeProvider); ok && a.SupportsCrossChain() {
			bridges = append(bridges, bridge)
		}
	}
	return bridges
}

func dataDir(cfg *config.ServiceConfig) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return "./data"
}

// buildServerConfig converts the loaded ServiceConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.ServiceConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.EnableMetrics,
	}

	// Set rate limiting if configured
	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrentRequests = &cfg.MaxConcurrentRequests
	}

	return serverConfig
}
