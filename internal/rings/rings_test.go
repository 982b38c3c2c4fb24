package rings

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wei = 1_000_000_000_000_000_000

func edge(from, to int64) vouchgraph.Record {
	return vouchgraph.Record{GiverID: from, ReceiverID: to}
}

func stakedEdge(from, to int64, amount int64, ts *time.Time) vouchgraph.Record {
	return vouchgraph.Record{GiverID: from, ReceiverID: to, Balance: big.NewInt(amount), CreatedAt: ts}
}

func build(t *testing.T, records ...vouchgraph.Record) *vouchgraph.Graph {
	t.Helper()
	g, err := vouchgraph.Build(records, nil)
	require.NoError(t, err)
	return g
}

func day(n int) *time.Time {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return &ts
}

func TestFind_Triangle(t *testing.T) {
	g := build(t, edge(1, 2), edge(2, 3), edge(3, 1))

	res := Find(context.Background(), g, DefaultOptions())

	require.Len(t, res.Rings, 1)
	assert.ElementsMatch(t, []int64{1, 2, 3}, res.Rings[0])
	assert.False(t, res.Truncated)

	idx := NewIndex(res.Rings)
	assert.Equal(t, 40.0, Score(g, 1, idx))
	assert.Equal(t, 40.0, Score(g, 3, idx))
}

func TestFind_NoRings(t *testing.T) {
	g := build(t, edge(1, 2), edge(2, 3), edge(1, 3), edge(4, 5))

	res := Find(context.Background(), g, DefaultOptions())

	assert.Empty(t, res.Rings)
	idx := NewIndex(res.Rings)
	for _, id := range g.Nodes() {
		assert.Equal(t, 0.0, Score(g, id, idx))
	}
}

func TestFind_MutualPairIsNotARing(t *testing.T) {
	g := build(t, edge(1, 2), edge(2, 1))

	res := Find(context.Background(), g, DefaultOptions())
	assert.Empty(t, res.Rings)
}

func TestFind_RespectsMaxLength(t *testing.T) {
	g := build(t, edge(1, 2), edge(2, 3), edge(3, 4), edge(4, 5), edge(5, 6), edge(6, 1))

	res := Find(context.Background(), g, DefaultOptions())
	assert.Empty(t, res.Rings)

	opts := DefaultOptions()
	opts.MaxLength = 6
	res = Find(context.Background(), g, opts)
	require.Len(t, res.Rings, 1)
	assert.Len(t, res.Rings[0], 6)
}

func TestFind_SizesScoreByLength(t *testing.T) {
	g := build(t,
		edge(1, 2), edge(2, 3), edge(3, 4), edge(4, 1),
		edge(10, 11), edge(11, 12), edge(12, 13), edge(13, 14), edge(14, 10),
	)

	res := Find(context.Background(), g, DefaultOptions())
	require.Len(t, res.Rings, 2)

	idx := NewIndex(res.Rings)
	assert.Equal(t, 30.0, Score(g, 1, idx))
	assert.Equal(t, 20.0, Score(g, 12, idx))
}

func TestFind_DeduplicatesByMemberSet(t *testing.T) {
	// Both directions around the same three profiles
	g := build(t, edge(1, 2), edge(2, 3), edge(3, 1), edge(2, 1), edge(3, 2), edge(1, 3))

	res := Find(context.Background(), g, DefaultOptions())

	threes := 0
	for _, r := range res.Rings {
		if len(r) == 3 {
			threes++
		}
	}
	assert.Equal(t, 1, threes)
}

func TestFind_RingCap(t *testing.T) {
	g := build(t,
		edge(1, 2), edge(2, 3), edge(3, 1),
		edge(4, 5), edge(5, 6), edge(6, 4),
	)

	opts := DefaultOptions()
	opts.MaxRings = 1
	res := Find(context.Background(), g, opts)

	assert.Len(t, res.Rings, 1)
	assert.True(t, res.Truncated)
}

func TestFind_CancelledContextTruncates(t *testing.T) {
	g := build(t, edge(1, 2), edge(2, 3), edge(3, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Find(ctx, g, DefaultOptions())
	assert.Empty(t, res.Rings)
	assert.True(t, res.Truncated)
}

func TestFind_Deterministic(t *testing.T) {
	g := build(t,
		edge(1, 2), edge(2, 3), edge(3, 1), edge(3, 4), edge(4, 1),
		edge(2, 5), edge(5, 1), edge(4, 5), edge(5, 3),
	)

	first := Find(context.Background(), g, DefaultOptions())
	second := Find(context.Background(), g, DefaultOptions())
	assert.Equal(t, first.Rings, second.Rings)
}

func TestScore_StakeModifier(t *testing.T) {
	cheap := build(t,
		stakedEdge(1, 2, wei/100, nil), stakedEdge(2, 3, wei/100, nil), stakedEdge(3, 1, wei/100, nil),
	)
	res := Find(context.Background(), cheap, DefaultOptions())
	assert.InDelta(t, 52.0, Score(cheap, 1, NewIndex(res.Rings)), 1e-9)

	costly := build(t,
		stakedEdge(1, 2, wei, nil), stakedEdge(2, 3, wei, nil), stakedEdge(3, 1, wei, nil),
	)
	res = Find(context.Background(), costly, DefaultOptions())
	assert.InDelta(t, 28.0, Score(costly, 1, NewIndex(res.Rings)), 1e-9)

	middle := build(t,
		stakedEdge(1, 2, wei/5, nil), stakedEdge(2, 3, wei/5, nil), stakedEdge(3, 1, wei/5, nil),
	)
	res = Find(context.Background(), middle, DefaultOptions())
	assert.InDelta(t, 40.0, Score(middle, 1, NewIndex(res.Rings)), 1e-9)
}

func TestScore_TemporalModifier(t *testing.T) {
	tests := []struct {
		name string
		ts   [3]*time.Time
		want float64
	}{
		{"fast formation", [3]*time.Time{day(0), day(1), day(2)}, 52},
		{"organic growth", [3]*time.Time{day(0), day(50), day(120)}, 32},
		{"in between", [3]*time.Time{day(0), day(10), day(30)}, 40},
		{"single timestamp", [3]*time.Time{day(0), nil, nil}, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := int64(wei / 5)
			g := build(t,
				stakedEdge(1, 2, amount, tt.ts[0]),
				stakedEdge(2, 3, amount, tt.ts[1]),
				stakedEdge(3, 1, amount, tt.ts[2]),
			)
			res := Find(context.Background(), g, DefaultOptions())
			assert.InDelta(t, tt.want, Score(g, 2, NewIndex(res.Rings)), 1e-9)
		})
	}
}

func TestScore_CappedAt100(t *testing.T) {
	g := build(t,
		edge(1, 2), edge(2, 1+100), edge(1+100, 1),
		edge(1, 3), edge(3, 1+101), edge(1+101, 1),
		edge(1, 4), edge(4, 1+102), edge(1+102, 1),
	)

	res := Find(context.Background(), g, DefaultOptions())
	require.Len(t, res.Rings, 3)
	assert.Equal(t, 100.0, Score(g, 1, NewIndex(res.Rings)))
	assert.Equal(t, 40.0, Score(g, 2, NewIndex(res.Rings)))
}

func TestComputeStats(t *testing.T) {
	g := build(t, edge(1, 2), edge(2, 3), edge(3, 1), edge(3, 4), edge(4, 5))
	res := Find(context.Background(), g, DefaultOptions())

	s := ComputeStats(res, g.NodeCount())
	assert.Equal(t, 1, s.TotalRings)
	assert.Equal(t, map[int]int{3: 1}, s.RingsBySize)
	assert.Equal(t, 3, s.ProfilesInRings)
	assert.InDelta(t, 60.0, s.PctProfilesInRings, 1e-9)

	assert.Equal(t, 0.0, ComputeStats(Result{}, 0).PctProfilesInRings)
}
