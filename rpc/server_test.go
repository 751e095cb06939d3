package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/meridianlabs-xyz/route-hub/models"
	"github.com/meridianlabs-xyz/route-hub/registry"
	"github.com/meridianlabs-xyz/route-hub/rpc"
)

type fakeRoutes struct {
	resp *models.RouteResponse
	last *models.RouteRequest
}

func (f *fakeRoutes) GetRoute(_ context.Context, req *models.RouteRequest) (*models.RouteResponse, error) {
	f.last = req
	return f.resp, nil
}

func testServer(t *testing.T, routes rpc.RouteProvider) *rpc.Server {
	t.Helper()
	reg, err := registry.NewChainRegistry([]registry.CanonicalChain{
		{ID: "bsc", Name: "BNB Smart Chain", Family: registry.FamilyEVM},
		{ID: "solana", Name: "Solana", Family: registry.FamilySVM},
	})
	assert.NoError(t, err)

	cfg := rpc.DefaultServerConfig()
	srv, err := rpc.NewServer(cfg, routes, reg, nil)
	assert.NoError(t, err)
	return srv
}

func TestRouteEndpoint(t *testing.T) {
	routes := &fakeRoutes{resp: &models.RouteResponse{
		Route: &models.RouterRoute{Provider: "lifi", RouteID: "r1"},
	}}
	srv := testServer(t, routes)

	body := `{"from_token":{"chain_id":"bsc","address":"0xab"},"to_token":{"chain_id":"bsc","address":"0xcd"},"from_amount":"1.5"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.5", routes.last.FromAmount)
	assert.True(t, strings.Contains(rec.Header().Get("Cache-Control"), "no-store"))

	var resp models.RouteResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "lifi", resp.Route.Provider)
}

func TestRouteEndpointMalformedBody(t *testing.T) {
	srv := testServer(t, &fakeRoutes{})

	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "INVALID_REQUEST"))
}

func TestRouteEndpointInvalidRequestStatus(t *testing.T) {
	routes := &fakeRoutes{resp: &models.RouteResponse{
		Error: "INVALID_REQUEST: amount \"x\" must be a positive decimal",
	}}
	srv := testServer(t, routes)

	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(`{"from_amount":"x"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouteEndpointNoRouteStaysOK(t *testing.T) {
	routes := &fakeRoutes{resp: &models.RouteResponse{
		Error: "NO_PATH_FOUND: tried lifi: timeout",
	}}
	srv := testServer(t, routes)

	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	// Routing failures are payload, not transport errors.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "NO_PATH_FOUND"))
}

func TestChainsEndpoint(t *testing.T) {
	srv := testServer(t, &fakeRoutes{})

	req := httptest.NewRequest(http.MethodGet, "/v1/chains", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Chains []struct {
			ID     string `json:"id"`
			Family string `json:"family"`
		} `json:"chains"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 2, len(payload.Chains))
}

func TestHealthAndReady(t *testing.T) {
	srv := testServer(t, &fakeRoutes{})

	req := httptest.NewRequest(http.MethodGet, "/server/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "healthy"))

	// No builder wired means the server is immediately ready.
	req = httptest.NewRequest(http.MethodGet, "/server/ready", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGraphStatsEmptyWithoutBuilder(t *testing.T) {
	srv := testServer(t, &fakeRoutes{})

	req := httptest.NewRequest(http.MethodGet, "/v1/graph/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Graphs []any `json:"graphs"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 0, len(payload.Graphs))
}
