package scoring

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWeights is returned for negative or non-finite detector weights
var ErrInvalidWeights = errors.New("invalid detector weights")

// Weights are the per-detector multipliers of the composite score
type Weights struct {
	Ring        float64 `json:"ring"`
	Cluster     float64 `json:"cluster"`
	Burst       float64 `json:"burst"`
	Stake       float64 `json:"stake"`
	Reciprocity float64 `json:"reciprocity"`
}

// DefaultWeights returns the standard convex weighting
func DefaultWeights() Weights {
	return Weights{Ring: 0.30, Cluster: 0.25, Burst: 0.20, Stake: 0.15, Reciprocity: 0.10}
}

// Validate rejects negative or non-finite weights. Weights need not sum to one.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"ring":        w.Ring,
		"cluster":     w.Cluster,
		"burst":       w.Burst,
		"stake":       w.Stake,
		"reciprocity": w.Reciprocity,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeights, name, v)
		}
	}
	return nil
}

// Breakdown holds the five detector scores of a profile
type Breakdown struct {
	Ring        float64
	Cluster     float64
	Burst       float64
	Stake       float64
	Reciprocity float64
}

// Composite combines detector scores, clamped to [0,100]
func Composite(b Breakdown, w Weights) float64 {
	c := w.Ring*b.Ring +
		w.Cluster*b.Cluster +
		w.Burst*b.Burst +
		w.Stake*b.Stake +
		w.Reciprocity*b.Reciprocity
	return math.Max(0, math.Min(100, c))
}

// Level is a risk category
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
	LevelMinimal  Level = "minimal"
	LevelOfficial Level = "official"
)

// Levels lists every level in reporting order
var Levels = []Level{LevelCritical, LevelHigh, LevelMedium, LevelLow, LevelMinimal, LevelOfficial}

// LevelFor maps a composite score to a risk level
func LevelFor(score float64) Level {
	switch {
	case score >= 70:
		return LevelCritical
	case score >= 50:
		return LevelHigh
	case score >= 30:
		return LevelMedium
	case score >= 10:
		return LevelLow
	default:
		return LevelMinimal
	}
}

// Round2 rounds to two decimals for export
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
