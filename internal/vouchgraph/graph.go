package vouchgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrMissingProfileID is returned when a record lacks a giver or receiver
var ErrMissingProfileID = errors.New("vouch record missing profile id")

// Node carries the optional attributes known for a profile
type Node struct {
	ID              int64
	ReputationScore *float64
	DisplayName     string
}

// Edge aggregates every vouch from one giver to one receiver
type Edge struct {
	From       int64
	To         int64
	Weight     float64
	Count      int
	EarliestAt *time.Time
	Staked     bool
	Archived   bool
}

type edgeKey struct {
	from, to int64
}

// Graph is a directed, weighted vouch graph. It is immutable once built
// and safe for concurrent reads.
type Graph struct {
	order []int64
	nodes map[int64]*Node
	succ  map[int64][]int64
	pred  map[int64][]int64
	edges map[edgeKey]*Edge
	// edge insertion order, for deterministic iteration
	edgeOrder []edgeKey
}

func newGraph() *Graph {
	return &Graph{
		nodes: make(map[int64]*Node),
		succ:  make(map[int64][]int64),
		pred:  make(map[int64][]int64),
		edges: make(map[edgeKey]*Edge),
	}
}

// Build creates the vouch graph from raw records.
// A nil converter falls back to WeiToEth.
func Build(records []Record, convert UnitConverter) (*Graph, error) {
	if convert == nil {
		convert = WeiToEth
	}

	g := newGraph()
	for i, rec := range records {
		if rec.GiverID <= 0 || rec.ReceiverID <= 0 {
			return nil, fmt.Errorf("record %d: %w", i, ErrMissingProfileID)
		}

		g.ensureNode(rec.GiverID)
		g.ensureNode(rec.ReceiverID)

		key := edgeKey{rec.GiverID, rec.ReceiverID}
		e, ok := g.edges[key]
		if !ok {
			e = &Edge{
				From:     rec.GiverID,
				To:       rec.ReceiverID,
				Staked:   rec.Staked,
				Archived: rec.Archived,
			}
			g.edges[key] = e
			g.edgeOrder = append(g.edgeOrder, key)
			g.succ[rec.GiverID] = append(g.succ[rec.GiverID], rec.ReceiverID)
			g.pred[rec.ReceiverID] = append(g.pred[rec.ReceiverID], rec.GiverID)
		}
		e.Weight += convert(rec.Balance)
		e.Count++

		if ts, ok := rec.ResolveTime(); ok {
			if e.EarliestAt == nil || ts.Before(*e.EarliestAt) {
				t := ts
				e.EarliestAt = &t
			}
		}

		g.attach(rec.GiverID, rec.Giver)
		g.attach(rec.ReceiverID, rec.Receiver)
	}

	return g, nil
}

func (g *Graph) ensureNode(id int64) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &Node{ID: id}
	g.order = append(g.order, id)
}

// attach sets node attributes the first time a record supplies them
func (g *Graph) attach(id int64, info *UserInfo) {
	if info == nil {
		return
	}
	n := g.nodes[id]
	if n.ReputationScore != nil {
		return
	}
	score := 0.0
	if info.Score != nil {
		score = *info.Score
	}
	n.ReputationScore = &score
	n.DisplayName = info.Username
}

// NodeCount returns the number of profiles
func (g *Graph) NodeCount() int { return len(g.order) }

// EdgeCount returns the number of distinct giver/receiver pairs
func (g *Graph) EdgeCount() int { return len(g.edgeOrder) }

// Nodes returns profile ids in encounter order
func (g *Graph) Nodes() []int64 {
	out := make([]int64, len(g.order))
	copy(out, g.order)
	return out
}

// Node returns the attributes of a profile
func (g *Graph) Node(id int64) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// HasNode reports whether the profile appears in the graph
func (g *Graph) HasNode(id int64) bool {
	_, ok := g.nodes[id]
	return ok
}

// Edges returns all edges in insertion order
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, k := range g.edgeOrder {
		out = append(out, *g.edges[k])
	}
	return out
}

// Edge returns the aggregated edge from u to v
func (g *Graph) Edge(u, v int64) (Edge, bool) {
	e, ok := g.edges[edgeKey{u, v}]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Successors returns the profiles u vouched for. The slice must not be modified.
func (g *Graph) Successors(u int64) []int64 { return g.succ[u] }

// Predecessors returns the profiles that vouched for v. The slice must not be modified.
func (g *Graph) Predecessors(v int64) []int64 { return g.pred[v] }

// InDegree returns the number of distinct givers for v
func (g *Graph) InDegree(v int64) int { return len(g.pred[v]) }

// OutDegree returns the number of distinct receivers for u
func (g *Graph) OutDegree(u int64) int { return len(g.succ[u]) }

// Exclusions is a case-insensitive set of display names that are never scored
type Exclusions map[string]struct{}

// NewExclusions builds an exclusion set from display names
func NewExclusions(names ...string) Exclusions {
	ex := make(Exclusions, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			ex[n] = struct{}{}
		}
	}
	return ex
}

// Contains reports whether the display name is excluded
func (e Exclusions) Contains(name string) bool {
	if len(e) == 0 || name == "" {
		return false
	}
	_, ok := e[strings.ToLower(name)]
	return ok
}

// IsKnownNonRiskParticipant reports whether the profile's display name is
// in the exclusion set.
func (g *Graph) IsKnownNonRiskParticipant(id int64, ex Exclusions) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	return ex.Contains(n.DisplayName)
}

// Stats summarises graph size and degree
type Stats struct {
	Nodes        int     `json:"nodes"`
	Edges        int     `json:"edges"`
	Density      float64 `json:"density"`
	AvgInDegree  float64 `json:"avg_in_degree"`
	AvgOutDegree float64 `json:"avg_out_degree"`
}

// Stats computes the graph-level summary
func (g *Graph) Stats() Stats {
	n := g.NodeCount()
	if n == 0 {
		return Stats{}
	}
	e := g.EdgeCount()
	s := Stats{
		Nodes:        n,
		Edges:        e,
		AvgInDegree:  float64(e) / float64(n),
		AvgOutDegree: float64(e) / float64(n),
	}
	if n > 1 {
		s.Density = float64(e) / float64(n*(n-1))
	}
	return s
}

// DegreeCount pairs a profile with a degree
type DegreeCount struct {
	ProfileID int64 `json:"profile_id"`
	Count     int   `json:"count"`
}

// TopByInDegree returns the n profiles with most distinct vouchers.
// Ties keep encounter order.
func (g *Graph) TopByInDegree(n int) []DegreeCount {
	out := make([]DegreeCount, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, DegreeCount{ProfileID: id, Count: g.InDegree(id)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
