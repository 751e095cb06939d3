// Package graph maintains the per-chain liquidity graph: tokens as nodes,
// tradeable pairs as edges. Readers always traverse one immutable snapshot;
// the builder publishes a new snapshot atomically when the graph changes.
package graph

import (
	"math/big"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// TokenCategory is the coarse bucket used to prioritize swap intermediaries.
type TokenCategory int

const (
	CategoryOther TokenCategory = iota
	CategoryBlueChip
	CategoryStablecoin
	CategoryNativeWrapped
)

// TokenNode is one token on one chain. Identity = (ChainID, Address).
type TokenNode struct {
	ChainID      string
	Address      string
	Symbol       string
	Decimals     int
	LiquidityUSD float64
	Category     TokenCategory
	UpdatedAt    time.Time
}

// PairEdge is an undirected tradeable pair.
// Identity = (TokenA, TokenB, ChainID, Venue), with TokenA < TokenB after
// case folding. Reserve0 belongs to TokenA, Reserve1 to TokenB.
// Reserves and LiquidityUSD always carry the same UpdatedAt: they are only
// ever written together.
type PairEdge struct {
	ChainID      string
	TokenA       string
	TokenB       string
	Venue        string
	PoolAddress  string
	LiquidityUSD float64
	Reserve0     *big.Int
	Reserve1     *big.Int
	FeeBps       uint32
	UpdatedAt    time.Time
}

// Key returns the canonical edge identity key.
func (e *PairEdge) Key() string {
	return EdgeKey(e.ChainID, e.Venue, e.TokenA, e.TokenB)
}

// Other returns the opposite endpoint of the edge, or "" if token is not an
// endpoint.
func (e *PairEdge) Other(token string) string {
	switch {
	case strings.EqualFold(e.TokenA, token):
		return e.TokenB
	case strings.EqualFold(e.TokenB, token):
		return e.TokenA
	default:
		return ""
	}
}

// ReservesFor returns (reserveIn, reserveOut) oriented for a swap selling
// tokenIn. ok is false when tokenIn is not an endpoint.
func (e *PairEdge) ReservesFor(tokenIn string) (reserveIn, reserveOut *big.Int, ok bool) {
	switch {
	case strings.EqualFold(e.TokenA, tokenIn):
		return e.Reserve0, e.Reserve1, true
	case strings.EqualFold(e.TokenB, tokenIn):
		return e.Reserve1, e.Reserve0, true
	default:
		return nil, nil, false
	}
}

// OrderTokens returns the two addresses in canonical edge order.
func OrderTokens(a, b string) (string, string) {
	if strings.ToLower(a) <= strings.ToLower(b) {
		return a, b
	}
	return b, a
}

// EdgeKey builds the canonical identity key for an edge.
func EdgeKey(chainID, venue, tokenA, tokenB string) string {
	a, b := OrderTokens(tokenA, tokenB)
	return chainID + "|" + venue + "|" + strings.ToLower(a) + "|" + strings.ToLower(b)
}

func nodeKey(address string) string {
	return strings.ToLower(address)
}

// Snapshot is one immutable view of a chain's liquidity graph.
type Snapshot struct {
	ChainID   string
	BuiltAt   time.Time
	nodes     map[string]*TokenNode
	adjacency map[string][]*PairEdge
	edges     map[string]*PairEdge
}

// NewSnapshot creates an empty snapshot for a chain.
func NewSnapshot(chainID string) *Snapshot {
	return &Snapshot{
		ChainID:   chainID,
		BuiltAt:   time.Now(),
		nodes:     make(map[string]*TokenNode),
		adjacency: make(map[string][]*PairEdge),
		edges:     make(map[string]*PairEdge),
	}
}

// AddNode inserts or replaces a token node. Only the builder calls this,
// and only before the snapshot is published.
func (s *Snapshot) AddNode(node *TokenNode) {
	s.nodes[nodeKey(node.Address)] = node
}

// AddEdge inserts or replaces a pair edge and indexes it on both endpoints.
func (s *Snapshot) AddEdge(edge *PairEdge) {
	key := edge.Key()
	if _, exists := s.edges[key]; exists {
		s.removeFromAdjacency(edge)
	}
	s.edges[key] = edge
	s.adjacency[nodeKey(edge.TokenA)] = append(s.adjacency[nodeKey(edge.TokenA)], edge)
	s.adjacency[nodeKey(edge.TokenB)] = append(s.adjacency[nodeKey(edge.TokenB)], edge)
}

func (s *Snapshot) removeFromAdjacency(edge *PairEdge) {
	key := edge.Key()
	for _, endpoint := range []string{nodeKey(edge.TokenA), nodeKey(edge.TokenB)} {
		list := s.adjacency[endpoint]
		for i, e := range list {
			if e.Key() == key {
				s.adjacency[endpoint] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// Node returns the token node for an address.
func (s *Snapshot) Node(address string) (*TokenNode, bool) {
	n, ok := s.nodes[nodeKey(address)]
	return n, ok
}

// Edge returns the edge between two tokens on a venue.
func (s *Snapshot) Edge(venue, tokenA, tokenB string) (*PairEdge, bool) {
	e, ok := s.edges[EdgeKey(s.ChainID, venue, tokenA, tokenB)]
	return e, ok
}

// DirectEdges returns every venue's edge between two tokens, best liquidity
// first.
func (s *Snapshot) DirectEdges(tokenA, tokenB string) []*PairEdge {
	var out []*PairEdge
	for _, e := range s.adjacency[nodeKey(tokenA)] {
		if strings.EqualFold(e.Other(tokenA), tokenB) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LiquidityUSD > out[j].LiquidityUSD })
	return out
}

// Neighbors returns edges incident to token with liquidity at or above the
// floor, sorted descending by liquidity.
func (s *Snapshot) Neighbors(token string, minLiquidityUSD float64) []*PairEdge {
	var out []*PairEdge
	for _, e := range s.adjacency[nodeKey(token)] {
		if e.LiquidityUSD >= minLiquidityUSD {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LiquidityUSD > out[j].LiquidityUSD })
	return out
}

// NodeCount reports the number of token nodes.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount reports the number of pair edges.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// NodesByCategory returns all nodes in a category, best liquidity first.
func (s *Snapshot) NodesByCategory(cat TokenCategory) []*TokenNode {
	var out []*TokenNode
	for _, n := range s.nodes {
		if n.Category == cat {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LiquidityUSD > out[j].LiquidityUSD })
	return out
}

// Clone copies the snapshot so the builder can extend it and publish the
// copy without disturbing readers of the original.
func (s *Snapshot) Clone() *Snapshot {
	next := NewSnapshot(s.ChainID)
	for _, n := range s.nodes {
		copied := *n
		next.AddNode(&copied)
	}
	for _, e := range s.edges {
		copied := *e
		next.AddEdge(&copied)
	}
	return next
}

// PruneExpired drops edges older than ttl and nodes left without edges.
// Returns the number of edges removed.
func (s *Snapshot) PruneExpired(ttl time.Duration, now time.Time) int {
	removed := 0
	for key, e := range s.edges {
		if now.Sub(e.UpdatedAt) > ttl {
			s.removeFromAdjacency(e)
			delete(s.edges, key)
			removed++
		}
	}
	for key := range s.nodes {
		if len(s.adjacency[key]) == 0 {
			delete(s.nodes, key)
			delete(s.adjacency, key)
		}
	}
	return removed
}

// Graph is the long-lived handle for one chain. Readers load the current
// snapshot; the single writer (the builder) swaps in replacements.
type Graph struct {
	chainID string
	current atomic.Pointer[Snapshot]
}

// NewGraph creates a graph with an empty initial snapshot.
func NewGraph(chainID string) *Graph {
	g := &Graph{chainID: chainID}
	g.current.Store(NewSnapshot(chainID))
	return g
}

// ChainID returns the chain this graph covers.
func (g *Graph) ChainID() string { return g.chainID }

// Snapshot returns the current read-only view.
func (g *Graph) Snapshot() *Snapshot { return g.current.Load() }

// Publish atomically replaces the current snapshot.
func (g *Graph) Publish(s *Snapshot) { g.current.Store(s) }

// Stats summarizes a build or refresh result.
type Stats struct {
	ChainID   string `json:"chain_id"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
	BulkPairs int    `json:"bulk_pairs"`
	Verified  int    `json:"verified"`
	Failures  int    `json:"failures"`
}
