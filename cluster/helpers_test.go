package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTestPointsDeterministic(t *testing.T) {
	bounds := Bounds{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10}

	a := GenerateTestPoints(200, bounds, 99)
	b := GenerateTestPoints(200, bounds, 99)
	assert.Equal(t, a, b)

	c := GenerateTestPoints(200, bounds, 100)
	assert.NotEqual(t, a, c)

	ids := make(map[uint32]bool, len(a))
	for _, p := range a {
		assert.GreaterOrEqual(t, p.X, bounds.MinX)
		assert.LessOrEqual(t, p.X, bounds.MaxX)
		assert.GreaterOrEqual(t, p.Y, bounds.MinY)
		assert.LessOrEqual(t, p.Y, bounds.MaxY)
		assert.False(t, ids[p.ID], "duplicate ID %d", p.ID)
		ids[p.ID] = true
	}
}

func TestSummarizePartition(t *testing.T) {
	it := &Iteration{
		Order: 9,
		Clusters: []Cluster{
			{ID: 1, Members: []Point{{ID: 1, X: 0, Y: 0}, {ID: 2, X: 2, Y: 0}}},
			{ID: 2, Members: []Point{{ID: 3, X: 10, Y: 10}, {ID: 4, X: 10, Y: 14}, {ID: 5, X: 10, Y: 12}}},
		},
		Pending: []Point{{ID: 6, X: 1, Y: 1}},
		Noise:   []Point{{ID: 7, X: 50, Y: 50}},
	}

	got := SummarizePartition(it)
	assert.Equal(t, 9, got.Order)
	assert.Equal(t, 7, got.TotalPoints)
	assert.Equal(t, 2, got.NumClusters)
	assert.Equal(t, 1, got.NumPending)
	assert.Equal(t, 1, got.NumNoise)
	assert.InDelta(t, 2.5, got.MeanClusterSize, 1e-9)
	assert.InDelta(t, 1.0/7.0, got.NoiseRatio, 1e-9)
	assert.Greater(t, got.MeanSpread, 0.0)
}

func TestSummarizePartitionEmpty(t *testing.T) {
	got := SummarizePartition(&Iteration{Order: 1})
	assert.Equal(t, 0, got.TotalPoints)
	assert.Equal(t, 0.0, got.MeanClusterSize)
	assert.Equal(t, 0.0, got.NoiseRatio)
}

func TestIterationToGeoJSON(t *testing.T) {
	it := &Iteration{
		Order: 3,
		Clusters: []Cluster{
			{
				ID:       11,
				Name:     "cluster-1",
				Members:  []Point{{ID: 1, X: 0, Y: 0}, {ID: 2, X: 1, Y: 0}},
				Frontier: []Point{{ID: 2, X: 1, Y: 0}},
			},
		},
		Pending: []Point{{ID: 3, X: 5, Y: 5}},
		Noise:   []Point{{ID: 4, X: 9, Y: 9}},
	}

	fc := it.ToGeoJSON()
	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 4)

	states := make(map[uint32]string)
	frontier := make(map[uint32]bool)
	for _, f := range fc.Features {
		id := f.Properties["id"].(uint32)
		states[id] = f.Properties["state"].(string)
		if v, ok := f.Properties["frontier"].(bool); ok {
			frontier[id] = v
		}
	}

	assert.Equal(t, "clustered", states[1])
	assert.Equal(t, "clustered", states[2])
	assert.Equal(t, "pending", states[3])
	assert.Equal(t, "noise", states[4])
	assert.False(t, frontier[1])
	assert.True(t, frontier[2])
}
