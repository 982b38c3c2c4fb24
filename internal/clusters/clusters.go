package clusters

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
)

const minCommunitySize = 3

// Options configures the Louvain partition
type Options struct {
	Seed       uint64
	Resolution float64
}

// DefaultOptions returns a fixed seed and unit resolution
func DefaultOptions() Options {
	return Options{Seed: 42, Resolution: 1.0}
}

// Community is a set of profiles, sorted by id
type Community []int64

// Cluster is a community flagged as isolated
type Cluster struct {
	Members    []int64 `json:"members"`
	Size       int     `json:"size"`
	Insularity float64 `json:"insularity"`
}

// Membership is the isolated-community data kept for one profile
type Membership struct {
	Insularity float64
	Size       int
}

// Memberships maps a profile to its isolated community. Read-only once built.
type Memberships map[int64]Membership

// Communities partitions the undirected view of g by modularity.
// Degenerate graphs yield an empty partition.
func Communities(g *vouchgraph.Graph, opts Options) []Community {
	if g.NodeCount() < 2 {
		return nil
	}
	if opts.Resolution <= 0 {
		opts.Resolution = 1.0
	}

	ug := simple.NewUndirectedGraph()
	for _, id := range g.Nodes() {
		ug.AddNode(simple.Node(id))
	}
	edges := 0
	for _, e := range g.Edges() {
		if e.From == e.To {
			continue
		}
		ug.SetEdge(ug.NewEdge(simple.Node(e.From), simple.Node(e.To)))
		edges++
	}
	if edges == 0 {
		return nil
	}

	src := rand.NewPCG(opts.Seed, opts.Seed)
	reduced := community.Modularize(ug, opts.Resolution, src)

	var out []Community
	for _, nodes := range reduced.Communities() {
		if len(nodes) == 0 {
			continue
		}
		c := make(Community, 0, len(nodes))
		for _, n := range nodes {
			c = append(c, n.ID())
		}
		sort.Slice(c, func(i, j int) bool { return c[i] < c[j] })
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Insularity is the share of a community's edges that stay inside it.
// Internal edges are seen from both endpoints and counted once.
func Insularity(g *vouchgraph.Graph, members []int64) float64 {
	in := make(map[int64]struct{}, len(members))
	for _, id := range members {
		in[id] = struct{}{}
	}

	internal, external := 0, 0
	for _, id := range members {
		for _, s := range g.Successors(id) {
			if _, ok := in[s]; ok {
				internal++
			} else {
				external++
			}
		}
		for _, p := range g.Predecessors(id) {
			if _, ok := in[p]; ok {
				internal++
			} else {
				external++
			}
		}
	}
	internal /= 2

	total := internal + external
	if total == 0 {
		return 0
	}
	return float64(internal) / float64(total)
}

// FindIsolated returns communities of at least three profiles whose
// insularity reaches threshold.
func FindIsolated(g *vouchgraph.Graph, threshold float64, opts Options) []Cluster {
	var out []Cluster
	for _, c := range Communities(g, opts) {
		if len(c) < minCommunitySize {
			continue
		}
		ins := Insularity(g, c)
		if ins >= threshold {
			out = append(out, Cluster{Members: c, Size: len(c), Insularity: ins})
		}
	}
	return out
}

// Precompute partitions once and records every profile in an isolated community
func Precompute(g *vouchgraph.Graph, threshold float64, opts Options) Memberships {
	m := make(Memberships)
	for _, c := range FindIsolated(g, threshold, opts) {
		for _, id := range c.Members {
			m[id] = Membership{Insularity: c.Insularity, Size: c.Size}
		}
	}
	return m
}

// Score rates a profile by the insularity and size of its isolated community
func Score(m Memberships, id int64) float64 {
	mem, ok := m[id]
	if !ok || mem.Size == 0 {
		return 0
	}
	base := mem.Insularity * 100
	sizeFactor := math.Min(1, 10/float64(mem.Size))
	return math.Min(100, base*(0.5+0.5*sizeFactor))
}
