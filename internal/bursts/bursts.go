package bursts

import (
	"fmt"
	"time"

	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"gonum.org/v1/gonum/stat"
)

// Options configures burst detection
type Options struct {
	StdThreshold float64
	MinRecords   int
	MinWindows   int
}

// DefaultOptions returns the standard burst thresholds
func DefaultOptions() Options {
	return Options{StdThreshold: 3.0, MinRecords: 10, MinWindows: 3}
}

// Index groups records by receiver so each profile's vouches are found once
type Index struct {
	byReceiver map[int64][]vouchgraph.Record
}

// NewIndex groups records by receiver
func NewIndex(records []vouchgraph.Record) *Index {
	idx := &Index{byReceiver: make(map[int64][]vouchgraph.Record)}
	for _, r := range records {
		idx.byReceiver[r.ReceiverID] = append(idx.byReceiver[r.ReceiverID], r)
	}
	return idx
}

// Received returns the records received by a profile
func (idx *Index) Received(id int64) []vouchgraph.Record {
	if idx == nil {
		return nil
	}
	return idx.byReceiver[id]
}

// WeekKey returns the Monday-first calendar week of t as "YYYY-WW".
// Days before the first Monday of the year fall in week 00.
func WeekKey(t time.Time) string {
	t = t.UTC()
	yday := t.YearDay() - 1
	mondayBased := (int(t.Weekday()) + 6) % 7
	week := (yday + 7 - mondayBased) / 7
	return fmt.Sprintf("%04d-%02d", t.Year(), week)
}

// WindowCounts counts timestamped records per calendar week
func WindowCounts(records []vouchgraph.Record) map[string]int {
	windows := make(map[string]int)
	for _, r := range records {
		if ts, ok := r.ResolveTime(); ok {
			windows[WeekKey(ts)]++
		}
	}
	return windows
}

// Detect reports whether the busiest week is an outlier, along with its size.
// Too few records or windows, or equal counts in every window, never flag.
func Detect(received []vouchgraph.Record, opts Options) (bool, int) {
	if len(received) < opts.MinRecords {
		return false, 0
	}

	windows := WindowCounts(received)
	if len(windows) < opts.MinWindows {
		return false, 0
	}

	counts := make([]float64, 0, len(windows))
	maxCount := 0
	for _, c := range windows {
		counts = append(counts, float64(c))
		if c > maxCount {
			maxCount = c
		}
	}

	mean, std := stat.PopMeanStdDev(counts, nil)
	if std == 0 {
		return false, 0
	}

	z := (float64(maxCount) - mean) / std
	return z > opts.StdThreshold, maxCount
}

// Score maps a burst to a risk score
func Score(flagged bool, size int) float64 {
	if !flagged {
		return 0
	}
	switch {
	case size >= 50:
		return 100
	case size >= 30:
		return 80
	case size >= 20:
		return 60
	case size >= 10:
		return 40
	default:
		return 20
	}
}

// ScoreProfile detects and scores bursts for one profile
func (idx *Index) ScoreProfile(id int64, opts Options) float64 {
	return Score(Detect(idx.Received(id), opts))
}
