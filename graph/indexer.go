package graph

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/meridianlabs-xyz/route-hub/httpx"
)

// IndexedPair is one pair row as returned by a bulk pair indexer. Numeric
// fields arrive as strings, the way subgraph-style indexers report them.
type IndexedPair struct {
	ID         string `json:"id"` // pool address
	Venue      string `json:"venue"`
	FeeBps     uint32 `json:"fee_bps"`
	ReserveUSD string `json:"reserveUSD"`
	Reserve0   string `json:"reserve0"`
	Reserve1   string `json:"reserve1"`
	Token0     struct {
		ID       string `json:"id"`
		Symbol   string `json:"symbol"`
		Decimals string `json:"decimals"`
	} `json:"token0"`
	Token1 struct {
		ID       string `json:"id"`
		Symbol   string `json:"symbol"`
		Decimals string `json:"decimals"`
	} `json:"token1"`
}

// Decimals0 parses token0's decimal count, defaulting to 18.
func (p *IndexedPair) Decimals0() int { return parseDecimals(p.Token0.Decimals) }

// Decimals1 parses token1's decimal count, defaulting to 18.
func (p *IndexedPair) Decimals1() int { return parseDecimals(p.Token1.Decimals) }

func parseDecimals(s string) int {
	d, err := strconv.Atoi(s)
	if err != nil || d < 0 {
		return 18
	}
	return d
}

// PairIndexer is the bulk source of tradeable pairs for one chain.
type PairIndexer interface {
	// TopPairs returns pairs with pooled liquidity at or above the USD
	// floor, best first. An empty slice is a valid answer.
	TopPairs(ctx context.Context, minLiquidityUSD float64, limit int) ([]IndexedPair, error)
}

// IndexerClient queries an HTTP pair indexer with endpoint failover. It
// keeps a primary URL and rotates to backups when the primary errors,
// restoring the primary on the next successful probe.
type IndexerClient struct {
	http       *httpx.Client
	primaryURL string
	backupURLs []string

	mu         sync.RWMutex
	currentURL string
}

// NewIndexerClient builds a client over a primary endpoint and optional
// backups.
func NewIndexerClient(primaryURL string, backupURLs []string, timeout time.Duration) (*IndexerClient, error) {
	if _, err := url.Parse(primaryURL); err != nil {
		return nil, fmt.Errorf("invalid indexer URL %q: %w", primaryURL, err)
	}
	valid := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.Parse(u); err != nil {
			indexerLog.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		valid = append(valid, u)
	}
	return &IndexerClient{
		http:       httpx.New(timeout, 1),
		primaryURL: primaryURL,
		backupURLs: valid,
		currentURL: primaryURL,
	}, nil
}

type topPairsResponse struct {
	Pairs []IndexedPair `json:"pairs"`
}

// TopPairs implements PairIndexer.
func (c *IndexerClient) TopPairs(ctx context.Context, minLiquidityUSD float64, limit int) ([]IndexedPair, error) {
	query := fmt.Sprintf("/pairs?minReserveUSD=%s&limit=%d",
		url.QueryEscape(strconv.FormatFloat(minLiquidityUSD, 'f', -1, 64)), limit)

	var out topPairsResponse
	if err := c.getWithFailover(ctx, query, &out); err != nil {
		return nil, err
	}
	return out.Pairs, nil
}

// getWithFailover tries the current endpoint, then walks the remaining
// endpoints in order. The first endpoint that answers becomes current.
func (c *IndexerClient) getWithFailover(ctx context.Context, path string, out any) error {
	c.mu.RLock()
	current := c.currentURL
	c.mu.RUnlock()

	endpoints := []string{current}
	for _, u := range append([]string{c.primaryURL}, c.backupURLs...) {
		if u != current {
			endpoints = append(endpoints, u)
		}
	}

	var lastErr error
	for _, endpoint := range endpoints {
		err := c.http.GetJSON(ctx, endpoint+path, out)
		if err == nil {
			if endpoint != current {
				c.mu.Lock()
				c.currentURL = endpoint
				c.mu.Unlock()
				indexerLog.Info().Str("url", endpoint).Msg("Failover to indexer endpoint")
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		indexerLog.Debug().Err(err).Str("url", endpoint).Msg("Indexer endpoint failed")
	}
	return fmt.Errorf("all indexer endpoints failed: %w", lastErr)
}
