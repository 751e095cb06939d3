package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// The cache is tiered:
//
//	hot  - in-process, short TTL: bulk pairs above the liquidity floor,
//	       plus any pair fetched on demand whatever its liquidity, since
//	       a requested pair is hot by definition until its TTL lapses
//	warm - shared sqlite store, medium TTL, medium-liquidity pairs
//	cold - no cache at all; an on-demand RPC fetch that is persisted briefly
//
// A pair read from a colder tier is promoted to a warmer tier only after its
// reserves have been refreshed. Stale entries are never copied upward.

// HotTierMinLiquidityUSD is the promotion floor for bulk-fetched pairs.
// On-demand fetches bypass it.
const HotTierMinLiquidityUSD = 100_000

// HotCache is the in-process tier.
type HotCache struct {
	mu      sync.RWMutex
	entries map[string]hotEntry
	ttl     time.Duration
}

type hotEntry struct {
	edge     *PairEdge
	storedAt time.Time
}

// NewHotCache creates the hot tier with the given TTL.
func NewHotCache(ttl time.Duration) *HotCache {
	return &HotCache{
		entries: make(map[string]hotEntry),
		ttl:     ttl,
	}
}

// Get returns a live entry, or nil when absent or expired.
func (c *HotCache) Get(key string) *PairEdge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Since(entry.storedAt) > c.ttl {
		return nil
	}
	return entry.edge
}

// Put stores a freshly refreshed edge. The lock covers only the insert.
func (c *HotCache) Put(edge *PairEdge) {
	c.mu.Lock()
	c.entries[edge.Key()] = hotEntry{edge: edge, storedAt: time.Now()}
	c.mu.Unlock()
}

// Sweep drops expired entries. Called by the builder's refresh loop.
func (c *HotCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if time.Since(entry.storedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries, including expired ones not yet swept.
func (c *HotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// warmEdge is the serialized form of a PairEdge in the warm store.
// Reserves travel as integer strings.
type warmEdge struct {
	ChainID      string  `json:"chain_id"`
	TokenA       string  `json:"token_a"`
	TokenB       string  `json:"token_b"`
	Venue        string  `json:"venue"`
	PoolAddress  string  `json:"pool_address"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	Reserve0     string  `json:"reserve0"`
	Reserve1     string  `json:"reserve1"`
	FeeBps       uint32  `json:"fee_bps"`
	UpdatedAt    int64   `json:"updated_at_unix"`
}

// WarmStore is the shared sqlite-backed tier. Writes are serialized across
// processes with a file lock.
type WarmStore struct {
	db   *sql.DB
	lock *flock.Flock
	ttl  time.Duration
}

// OpenWarmStore opens (and initializes) the warm tier database.
func OpenWarmStore(path, lockPath string, ttl time.Duration) (*WarmStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS pair_edges (key TEXT PRIMARY KEY, value BLOB NOT NULL, stored_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &WarmStore{db: db, lock: flock.New(lockPath), ttl: ttl}
	_ = store.Prune()
	return store, nil
}

// Close releases the database handle.
func (s *WarmStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes fully expired entries to keep the file bounded.
func (s *WarmStore) Prune() error {
	cutoff := time.Now().Add(-s.ttl).Unix()
	if _, err := s.db.Exec("DELETE FROM pair_edges WHERE stored_at < ?", cutoff); err != nil {
		return fmt.Errorf("prune warm cache: %w", err)
	}
	return nil
}

// Get returns the cached edge and whether it is still within TTL. A stale
// hit is returned with fresh=false so the caller can decide to refresh; it
// must not be promoted as-is.
func (s *WarmStore) Get(key string) (edge *PairEdge, fresh bool, err error) {
	var value []byte
	var storedUnix int64
	row := s.db.QueryRow("SELECT value, stored_at FROM pair_edges WHERE key = ?", key)
	if err := row.Scan(&value, &storedUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("warm cache read: %w", err)
	}

	var stored warmEdge
	if err := json.Unmarshal(value, &stored); err != nil {
		return nil, false, fmt.Errorf("warm cache decode: %w", err)
	}

	reserve0, ok0 := new(big.Int).SetString(stored.Reserve0, 10)
	reserve1, ok1 := new(big.Int).SetString(stored.Reserve1, 10)
	if !ok0 || !ok1 {
		return nil, false, fmt.Errorf("warm cache entry %s has corrupt reserves", key)
	}

	age := time.Since(time.Unix(storedUnix, 0))
	return &PairEdge{
		ChainID:      stored.ChainID,
		TokenA:       stored.TokenA,
		TokenB:       stored.TokenB,
		Venue:        stored.Venue,
		PoolAddress:  stored.PoolAddress,
		LiquidityUSD: stored.LiquidityUSD,
		Reserve0:     reserve0,
		Reserve1:     reserve1,
		FeeBps:       stored.FeeBps,
		UpdatedAt:    time.Unix(stored.UpdatedAt, 0),
	}, age <= s.ttl, nil
}

// Put stores an edge under the file lock.
func (s *WarmStore) Put(edge *PairEdge) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock warm cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock warm cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	value, err := json.Marshal(warmEdge{
		ChainID:      edge.ChainID,
		TokenA:       edge.TokenA,
		TokenB:       edge.TokenB,
		Venue:        edge.Venue,
		PoolAddress:  edge.PoolAddress,
		LiquidityUSD: edge.LiquidityUSD,
		Reserve0:     edge.Reserve0.String(),
		Reserve1:     edge.Reserve1.String(),
		FeeBps:       edge.FeeBps,
		UpdatedAt:    edge.UpdatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("warm cache encode: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO pair_edges (key, value, stored_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			stored_at=excluded.stored_at
	`, edge.Key(), value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("warm cache write: %w", err)
	}
	return nil
}

// Tiers bundles the cache tiers handed to the builder. Warm may be nil when
// no shared store is configured; the builder then degrades to hot-only.
type Tiers struct {
	Hot  *HotCache
	Warm *WarmStore
}

// Promote stores a freshly refreshed edge into the tier its liquidity
// deserves. Callers must only pass edges whose reserves were just fetched.
func (t *Tiers) Promote(edge *PairEdge) {
	if edge.LiquidityUSD >= HotTierMinLiquidityUSD {
		t.Hot.Put(edge)
	}
	if t.Warm != nil {
		if err := t.Warm.Put(edge); err != nil {
			cacheLog.Warn().Err(err).Str("pair", edge.Key()).Msg("Warm tier write failed")
		}
	}
}

// Lookup consults hot then warm. Only fresh entries are returned; a stale
// warm hit is reported through needsRefresh so the caller can re-verify it
// before use.
func (t *Tiers) Lookup(key string) (edge *PairEdge, needsRefresh *PairEdge) {
	if e := t.Hot.Get(key); e != nil {
		return e, nil
	}
	if t.Warm == nil {
		return nil, nil
	}
	e, fresh, err := t.Warm.Get(key)
	if err != nil {
		cacheLog.Warn().Err(err).Str("pair", key).Msg("Warm tier read failed")
		return nil, nil
	}
	if e == nil {
		return nil, nil
	}
	if fresh {
		return e, nil
	}
	return nil, e
}
