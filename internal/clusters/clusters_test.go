package clusters

import (
	"testing"

	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, pairs ...[2]int64) *vouchgraph.Graph {
	t.Helper()
	records := make([]vouchgraph.Record, 0, len(pairs))
	for _, p := range pairs {
		records = append(records, vouchgraph.Record{GiverID: p[0], ReceiverID: p[1]})
	}
	g, err := vouchgraph.Build(records, nil)
	require.NoError(t, err)
	return g
}

func mutual(a, b int64) [][2]int64 {
	return [][2]int64{{a, b}, {b, a}}
}

func twoTriangles(t *testing.T, extra ...[2]int64) *vouchgraph.Graph {
	var pairs [][2]int64
	pairs = append(pairs, mutual(1, 2)...)
	pairs = append(pairs, mutual(2, 3)...)
	pairs = append(pairs, mutual(3, 1)...)
	pairs = append(pairs, mutual(4, 5)...)
	pairs = append(pairs, mutual(5, 6)...)
	pairs = append(pairs, mutual(6, 4)...)
	pairs = append(pairs, extra...)
	return build(t, pairs...)
}

func TestInsularity_ClosedCommunity(t *testing.T) {
	g := build(t, [2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 1})

	assert.Equal(t, 1.0, Insularity(g, []int64{1, 2, 3}))
}

func TestInsularity_DropsWithBridge(t *testing.T) {
	closed := build(t, [2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 1})
	bridged := build(t, [2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 1}, [2]int64{3, 4})
	inbound := build(t, [2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 1}, [2]int64{4, 1})

	base := Insularity(closed, []int64{1, 2, 3})
	assert.Less(t, Insularity(bridged, []int64{1, 2, 3}), base)
	assert.Less(t, Insularity(inbound, []int64{1, 2, 3}), base)
	assert.InDelta(t, 0.75, Insularity(bridged, []int64{1, 2, 3}), 1e-12)
}

func TestInsularity_NoEdges(t *testing.T) {
	g := build(t, [2]int64{1, 2})
	assert.Equal(t, 0.0, Insularity(g, []int64{99}))
}

func TestCommunities_Degenerate(t *testing.T) {
	empty := build(t)
	assert.Empty(t, Communities(empty, DefaultOptions()))

	single := build(t, [2]int64{1, 1})
	assert.Empty(t, Communities(single, DefaultOptions()))
}

func TestCommunities_SeparatesComponents(t *testing.T) {
	g := twoTriangles(t)

	comms := Communities(g, DefaultOptions())
	require.Len(t, comms, 2)
	assert.Equal(t, Community{1, 2, 3}, comms[0])
	assert.Equal(t, Community{4, 5, 6}, comms[1])
}

func TestCommunities_DeterministicForSeed(t *testing.T) {
	g := twoTriangles(t, [2]int64{3, 4}, [2]int64{6, 7}, [2]int64{7, 8}, [2]int64{8, 6})

	first := Communities(g, DefaultOptions())
	second := Communities(g, DefaultOptions())
	assert.Equal(t, first, second)
}

func TestFindIsolated(t *testing.T) {
	g := twoTriangles(t, [2]int64{10, 11})

	isolated := FindIsolated(g, 0.8, DefaultOptions())
	require.Len(t, isolated, 2)
	for _, c := range isolated {
		assert.Equal(t, 3, c.Size)
		assert.Equal(t, 1.0, c.Insularity)
	}
}

func TestPrecomputeAndScore(t *testing.T) {
	g := twoTriangles(t, [2]int64{10, 11})

	m := Precompute(g, 0.7, DefaultOptions())
	assert.Len(t, m, 6)
	assert.Equal(t, 100.0, Score(m, 1))
	assert.Equal(t, 0.0, Score(m, 10))
	assert.Equal(t, 0.0, Score(m, 404))
}

func TestScore_SizeFactor(t *testing.T) {
	m := Memberships{
		1: {Insularity: 0.9, Size: 20},
		2: {Insularity: 0.8, Size: 10},
		3: {Insularity: 1.0, Size: 4},
	}

	assert.InDelta(t, 67.5, Score(m, 1), 1e-9)
	assert.InDelta(t, 80.0, Score(m, 2), 1e-9)
	assert.InDelta(t, 100.0, Score(m, 3), 1e-9)
}
