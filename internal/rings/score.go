package rings

import (
	"math"
	"time"

	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
)

const (
	cheapRingStake  = 0.1
	costlyRingStake = 1.0
	fastFormation   = 7 * 24 * time.Hour
	organicGrowth   = 90 * 24 * time.Hour
)

// Index maps a profile to the rings it belongs to. It is read-only after
// NewIndex returns.
type Index struct {
	rings  []Ring
	member map[int64][]int
}

// NewIndex indexes rings by member
func NewIndex(rs []Ring) *Index {
	idx := &Index{rings: rs, member: make(map[int64][]int)}
	for i, r := range rs {
		for _, id := range r {
			idx.member[id] = append(idx.member[id], i)
		}
	}
	return idx
}

// RingsFor returns the rings containing the profile
func (idx *Index) RingsFor(id int64) []Ring {
	if idx == nil {
		return nil
	}
	positions := idx.member[id]
	out := make([]Ring, 0, len(positions))
	for _, p := range positions {
		out = append(out, idx.rings[p])
	}
	return out
}

func baseScore(size int) float64 {
	switch size {
	case 3:
		return 40
	case 4:
		return 30
	case 5:
		return 20
	default:
		return 0
	}
}

// StakeModifier scales a ring by the total stake around it. A ring with no
// stake data at all is left unscaled.
func StakeModifier(g *vouchgraph.Graph, r Ring) float64 {
	total := 0.0
	for i := range r {
		e, ok := g.Edge(r[i], r[(i+1)%len(r)])
		if ok {
			total += e.Weight
		}
	}
	switch {
	case total == 0:
		return 1.0
	case total < cheapRingStake:
		return 1.3
	case total > costlyRingStake:
		return 0.7
	default:
		return 1.0
	}
}

// TemporalModifier scales a ring by how quickly its edges formed
func TemporalModifier(g *vouchgraph.Graph, r Ring) float64 {
	var earliest, latest time.Time
	n := 0
	for i := range r {
		e, ok := g.Edge(r[i], r[(i+1)%len(r)])
		if !ok || e.EarliestAt == nil {
			continue
		}
		ts := *e.EarliestAt
		if n == 0 || ts.Before(earliest) {
			earliest = ts
		}
		if n == 0 || ts.After(latest) {
			latest = ts
		}
		n++
	}
	if n < 2 {
		return 1.0
	}

	span := latest.Sub(earliest)
	switch {
	case span < fastFormation:
		return 1.3
	case span > organicGrowth:
		return 0.8
	default:
		return 1.0
	}
}

// Score returns the ring risk score of a profile in [0,100]
func Score(g *vouchgraph.Graph, id int64, idx *Index) float64 {
	score := 0.0
	for _, r := range idx.RingsFor(id) {
		base := baseScore(len(r))
		if base == 0 {
			continue
		}
		score += base * StakeModifier(g, r) * TemporalModifier(g, r)
	}
	return math.Min(100, score)
}
