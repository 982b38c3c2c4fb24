package stakes

import (
	"math"

	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"gonum.org/v1/gonum/stat"
)

// emptyNetworkMean stands in for the network mean when there are no edges
const emptyNetworkMean = 0.1

// Options configures stake analysis
type Options struct {
	TinyStake   float64
	MinIncoming int
}

// DefaultOptions returns the standard stake thresholds
func DefaultOptions() Options {
	return Options{TinyStake: 0.01, MinIncoming: 3}
}

// Analyzer scores profiles against the network's mean stake. The mean is
// computed once; the analyzer is safe for concurrent use.
type Analyzer struct {
	g           *vouchgraph.Graph
	opts        Options
	networkMean float64
}

// NewAnalyzer computes the network-wide mean edge weight
func NewAnalyzer(g *vouchgraph.Graph, opts Options) *Analyzer {
	a := &Analyzer{g: g, opts: opts, networkMean: emptyNetworkMean}
	edges := g.Edges()
	if len(edges) > 0 {
		weights := make([]float64, len(edges))
		for i, e := range edges {
			weights[i] = e.Weight
		}
		a.networkMean = stat.Mean(weights, nil)
	}
	return a
}

// NetworkMean returns the mean edge weight across the graph
func (a *Analyzer) NetworkMean() float64 { return a.networkMean }

// IncomingStakes returns the weight of every edge into the profile
func (a *Analyzer) IncomingStakes(id int64) []float64 {
	preds := a.g.Predecessors(id)
	out := make([]float64, 0, len(preds))
	for _, p := range preds {
		if e, ok := a.g.Edge(p, id); ok {
			out = append(out, e.Weight)
		}
	}
	return out
}

// Score rates a profile by how cheap its incoming vouches are
func (a *Analyzer) Score(id int64) float64 {
	incoming := a.IncomingStakes(id)
	if len(incoming) < a.opts.MinIncoming || len(incoming) == 0 {
		return 0
	}

	avg := stat.Mean(incoming, nil)
	score := 0.0

	if a.networkMean > 0 {
		switch {
		case avg < a.networkMean*0.1:
			score += 50
		case avg < a.networkMean*0.3:
			score += 30
		case avg < a.networkMean*0.5:
			score += 15
		}
	}

	tiny := 0
	for _, s := range incoming {
		if s < a.opts.TinyStake {
			tiny++
		}
	}
	ratio := float64(tiny) / float64(len(incoming))
	switch {
	case ratio > 0.8:
		score += 50
	case ratio > 0.5:
		score += 30
	case ratio > 0.3:
		score += 15
	}

	return math.Min(100, score)
}
