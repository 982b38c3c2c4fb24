package reciprocity

import "github.com/richxcame/trust-ring-detector/internal/vouchgraph"

// minReceived is the in-degree below which no signal is produced
const minReceived = 5

// Ratio is vouches given over vouches received. A profile nobody vouched
// for is neutral (1.0).
func Ratio(g *vouchgraph.Graph, id int64) float64 {
	received := g.InDegree(id)
	if received == 0 {
		return 1.0
	}
	return float64(g.OutDegree(id)) / float64(received)
}

// Score flags farming (receiving without giving) and, more mildly, boosting
func Score(g *vouchgraph.Graph, id int64) float64 {
	received := g.InDegree(id)
	if received < minReceived {
		return 0
	}

	ratio := Ratio(g, id)
	switch {
	case ratio < 0.05 && received > 20:
		return 80
	case ratio < 0.10 && received > 10:
		return 60
	case ratio < 0.20:
		return 40
	case ratio > 10:
		return 20
	default:
		return 0
	}
}
