package rings

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
)

// checkEvery is how many BFS expansions run between deadline checks
const checkEvery = 1024

// Options bounds the ring search
type Options struct {
	MaxLength int
	MaxRings  int
	Budget    time.Duration
}

// DefaultOptions returns the standard search bounds
func DefaultOptions() Options {
	return Options{MaxLength: 5, MaxRings: 10000, Budget: 60 * time.Second}
}

// Ring is a directed cycle; consecutive members (and last to first) are linked
type Ring []int64

// Result is the outcome of a ring search. Truncated is set when the budget
// or the ring cap stopped the search early.
type Result struct {
	Rings     []Ring
	Truncated bool
}

type frontier struct {
	node int64
	path []int64
}

// Find enumerates short directed cycles, deduplicated by member set.
// Origins are visited by descending total degree. Running out of budget or
// reaching MaxRings ends the search with a partial result, never an error.
func Find(ctx context.Context, g *vouchgraph.Graph, opts Options) Result {
	def := DefaultOptions()
	if opts.MaxLength <= 0 {
		opts.MaxLength = def.MaxLength
	}
	if opts.MaxRings <= 0 {
		opts.MaxRings = def.MaxRings
	}
	if opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	var res Result
	seen := make(map[string]struct{})
	expansions := 0

	for _, origin := range originsByDegree(g) {
		if ctx.Err() != nil {
			res.Truncated = true
			break
		}

		found, stopped := searchFrom(ctx, g, origin, opts.MaxLength, &expansions)
		for _, r := range found {
			key := setKey(r)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.Rings = append(res.Rings, r)
			if len(res.Rings) >= opts.MaxRings {
				res.Truncated = true
				return res
			}
		}
		if stopped {
			res.Truncated = true
			break
		}
	}

	return res
}

func originsByDegree(g *vouchgraph.Graph) []int64 {
	nodes := g.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return g.InDegree(nodes[i])+g.OutDegree(nodes[i]) > g.InDegree(nodes[j])+g.OutDegree(nodes[j])
	})
	return nodes
}

// searchFrom runs the BFS for one origin. The visited check is scoped to
// the current path.
func searchFrom(ctx context.Context, g *vouchgraph.Graph, origin int64, maxLen int, expansions *int) ([]Ring, bool) {
	var found []Ring

	for _, next := range g.Successors(origin) {
		if next == origin {
			continue
		}
		queue := []frontier{{node: next, path: []int64{origin, next}}}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			*expansions++
			if *expansions%checkEvery == 0 && ctx.Err() != nil {
				return found, true
			}

			for _, succ := range g.Successors(cur.node) {
				if succ == origin {
					if len(cur.path) >= 3 {
						r := make(Ring, len(cur.path))
						copy(r, cur.path)
						found = append(found, r)
					}
					continue
				}
				if len(cur.path) >= maxLen || onPath(cur.path, succ) {
					continue
				}
				path := make([]int64, len(cur.path)+1)
				copy(path, cur.path)
				path[len(cur.path)] = succ
				queue = append(queue, frontier{node: succ, path: path})
			}
		}
	}

	return found, false
}

func onPath(path []int64, id int64) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

func setKey(r Ring) string {
	ids := make([]int64, len(r))
	copy(ids, r)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// Contains reports whether the profile is a ring member
func (r Ring) Contains(id int64) bool {
	return onPath(r, id)
}

// Stats summarises a ring search
type Stats struct {
	TotalRings         int         `json:"total_rings"`
	RingsBySize        map[int]int `json:"rings_by_size"`
	ProfilesInRings    int         `json:"profiles_in_rings"`
	PctProfilesInRings float64     `json:"pct_profiles_in_rings"`
	Truncated          bool        `json:"truncated"`
}

// ComputeStats builds the ring summary for a graph of nodeCount profiles
func ComputeStats(res Result, nodeCount int) Stats {
	s := Stats{
		TotalRings:  len(res.Rings),
		RingsBySize: make(map[int]int),
		Truncated:   res.Truncated,
	}
	members := make(map[int64]struct{})
	for _, r := range res.Rings {
		s.RingsBySize[len(r)]++
		for _, id := range r {
			members[id] = struct{}{}
		}
	}
	s.ProfilesInRings = len(members)
	if nodeCount > 0 {
		s.PctProfilesInRings = float64(s.ProfilesInRings) / float64(nodeCount) * 100
	}
	return s
}
