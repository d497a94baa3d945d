package cluster

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bruteWithin(points []Point, x, y, r float64) []uint32 {
	var ids []uint32
	rSq := r * r
	for _, p := range points {
		dx := p.X - x
		dy := p.Y - y
		if dx*dx+dy*dy <= rSq {
			ids = append(ids, p.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func withinIDs(points []Point) []uint32 {
	var ids []uint32
	for _, p := range points {
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestKDTreeWithinMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	points := make([]Point, 500)
	for i := range points {
		points[i] = Point{
			ID: uint32(i + 1),
			X:  r.Float64()*200 - 100,
			Y:  r.Float64()*200 - 100,
		}
	}

	tree := NewKDTree(points)
	require.Len(t, tree.Points, len(points))

	for q := 0; q < 50; q++ {
		x := r.Float64()*220 - 110
		y := r.Float64()*220 - 110
		radius := r.Float64() * 30

		want := bruteWithin(points, x, y, radius)
		got := withinIDs(tree.Within(x, y, radius))
		assert.Equal(t, want, got, "query (%f, %f) r=%f", x, y, radius)
	}
}

func TestKDTreeWithinZeroRadius(t *testing.T) {
	points := []Point{
		{ID: 1, X: 1, Y: 1},
		{ID: 2, X: 1, Y: 1},
		{ID: 3, X: 2, Y: 2},
	}
	tree := NewKDTree(points)

	got := withinIDs(tree.Within(1, 1, 0))
	assert.Equal(t, []uint32{1, 2}, got)
	assert.Empty(t, tree.Within(5, 5, 0))
}

func TestKDTreeEmpty(t *testing.T) {
	tree := NewKDTree(nil)
	assert.Empty(t, tree.Within(0, 0, 10))
}

func TestKDTreeBounds(t *testing.T) {
	points := []Point{
		{ID: 1, X: -10, Y: 5},
		{ID: 2, X: 10, Y: -5},
		{ID: 3, X: 0, Y: 0},
	}
	tree := NewKDTree(points)

	assert.Equal(t, -10.0, tree.Bounds.MinX)
	assert.Equal(t, 10.0, tree.Bounds.MaxX)
	assert.Equal(t, -5.0, tree.Bounds.MinY)
	assert.Equal(t, 5.0, tree.Bounds.MaxY)
}

func TestKDTreeDoesNotObserveInputMutation(t *testing.T) {
	points := []Point{
		{ID: 1, X: 0, Y: 0},
		{ID: 2, X: 1, Y: 1},
	}
	tree := NewKDTree(points)
	points[0].X = 1000

	got := withinIDs(tree.Within(0, 0, 0.5))
	assert.Equal(t, []uint32{1}, got)
}
