package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/meridianlabs-xyz/route-hub/graph"
	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/registry"
	"github.com/meridianlabs-xyz/route-hub/router"
)

var Logger zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// ServerConfig holds configuration for the route server
type ServerConfig struct {
	Address               string
	AllowedOrigins        []string
	EnableMetrics         bool
	RatePerMinute         *int
	MaxConcurrentRequests *int
	RequestTimeout        time.Duration
}

// DefaultServerConfig returns a default server configuration
func DefaultServerConfig() *ServerConfig {
	rateLimit := 0
	maxConcurrentRequests := 200
	return &ServerConfig{
		Address:               "localhost:8080",
		AllowedOrigins:        []string{"http://localhost:3000", "http://localhost:8080"},
		EnableMetrics:         true,
		RatePerMinute:         &rateLimit,
		MaxConcurrentRequests: &maxConcurrentRequests,
		RequestTimeout:        60 * time.Second,
	}
}

// RouteProvider is the service slice the HTTP layer needs.
type RouteProvider interface {
	GetRoute(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error)
}

// Server wraps the HTTP server and provides lifecycle management
type Server struct {
	config     *ServerConfig
	httpServer *http.Server
	mux        *chi.Mux
	routes     RouteProvider
	registry   *registry.ChainRegistry
	builder    *graph.Builder
}

// NewServer creates a new route server with the given configuration.
// builder may be nil when the deployment runs provider-only; the graph
// stats endpoint then reports empty graphs.
func NewServer(
	config *ServerConfig,
	routes RouteProvider,
	reg *registry.ChainRegistry,
	builder *graph.Builder,
) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		config:   config,
		routes:   routes,
		registry: reg,
		builder:  builder,
	}

	mux := chi.NewMux()

	// Add zerolog middleware (replaces chi's default logger)
	mux.Use(zerologMiddleware)

	// Add recovery middleware with zerolog
	mux.Use(zerologRecoverer)

	// Standard middleware
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Compress(5))
	mux.Use(middleware.Timeout(config.RequestTimeout))
	mux.Use(realIPMiddleware)

	// Rate limiting
	if config.RatePerMinute != nil && *config.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(*config.RatePerMinute, 1*time.Minute))
	}
	if config.MaxConcurrentRequests != nil && *config.MaxConcurrentRequests > 0 {
		mux.Use(middleware.Throttle(*config.MaxConcurrentRequests))
	}

	// Prometheus metrics endpoint
	if config.EnableMetrics {
		mux.Handle("/server/metrics", promhttp.Handler())
		Logger.Info().Msg("Metrics endpoint enabled: /server/metrics")
	}

	// Health check endpoint
	mux.HandleFunc("/server/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"route-hub"}`))
	})

	// Readiness probe: ready once at least one chain graph holds edges,
	// or immediately when no builder is wired.
	mux.HandleFunc("/server/ready", s.handleReady)

	mux.Route("/v1", func(r chi.Router) {
		r.Use(noCacheMiddleware)
		r.Post("/route", s.handleRoute)
		r.Get("/chains", s.handleChains)
		r.Get("/graph/stats", s.handleGraphStats)
	})

	s.mux = mux

	// Setup CORS for browser clients
	corsHandler := newCORSHandler(config.AllowedOrigins, mux)

	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           corsHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Handler exposes the chi mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins serving requests without TLS
func (s *Server) Start() error {
	s.logServerInfo("http")
	return s.httpServer.ListenAndServe()
}

// StartTLS begins serving requests with TLS
func (s *Server) StartTLS(certFile, keyFile string) error {
	s.logServerInfo("https")
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

// logServerInfo logs server startup information
func (s *Server) logServerInfo(protocol string) {
	Logger.Info().
		Str("address", s.config.Address).
		Str("protocol", protocol).
		Msg("Route Hub server starting")

	Logger.Info().Msg("Available endpoints:")
	Logger.Info().Msg("\tRoute: POST /v1/route")
	Logger.Info().Msg("\tChains: GET /v1/chains")
	Logger.Info().Msg("\tGraph stats: GET /v1/graph/stats")
	Logger.Info().Msg("\tHealth: /server/health")
	Logger.Info().Msg("\tReady: /server/ready")

	if s.config.EnableMetrics {
		Logger.Info().Msg("\tMetrics: /server/metrics")
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	Logger.Info().Msg("Shutting down route server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		Logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	Logger.Info().Msg("Server shutdown complete")
	return nil
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req models.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "INVALID_REQUEST: malformed JSON body: " + err.Error(),
		})
		return
	}

	resp, err := s.routes.GetRoute(r.Context(), &req)
	if err != nil {
		// Only context cancellation reaches here; routing failures are
		// embedded in the response payload.
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "request aborted: " + err.Error(),
		})
		return
	}

	status := http.StatusOK
	if strings.HasPrefix(resp.Error, string(router.CodeInvalidRequest)) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// chainInfo is the public shape of one supported chain.
type chainInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Family string `json:"family"`
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.AllChainIDs()
	chains := make([]chainInfo, 0, len(ids))
	for _, id := range ids {
		chain, err := s.registry.GetCanonicalChain(id)
		if err != nil {
			continue
		}
		chains = append(chains, chainInfo{ID: chain.ID, Name: chain.Name, Family: chain.Family})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chains": chains})
}

// graphStats is the public shape of one chain graph's size.
type graphStats struct {
	ChainID string `json:"chain_id"`
	Nodes   int    `json:"nodes"`
	Edges   int    `json:"edges"`
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]graphStats, 0)
	if s.builder != nil {
		for _, id := range s.registry.AllChainIDs() {
			g := s.builder.GraphFor(id)
			if g == nil {
				continue
			}
			snap := g.Snapshot()
			stats = append(stats, graphStats{ChainID: id, Nodes: snap.NodeCount(), Edges: snap.EdgeCount()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"graphs": stats})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := true
	if s.builder != nil {
		ready = false
		for _, id := range s.registry.AllChainIDs() {
			g := s.builder.GraphFor(id)
			if g != nil && g.Snapshot().EdgeCount() > 0 {
				ready = true
				break
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"building"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}
