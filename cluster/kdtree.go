package cluster

import (
	"math"
	"sort"
)

// KDNode is one node in the flat node arena. Left and Right are indexes
// into the nodes slice, -1 for none. PointIdx indexes the points slice.
type KDNode struct {
	PointIdx int32
	Left     int32
	Right    int32
	Axis     uint8
}

// KDTree is a static 2D kd-tree over the scanner's point set, used as a
// drop-in replacement for the linear neighbor scan. Points are copied
// at construction; the tree never observes later slice mutation.
type KDTree struct {
	Nodes  []KDNode
	Points []Point
	Bounds Bounds
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Extend expands bounds to include another point.
func (b *Bounds) Extend(x, y float64) {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
}

// NewKDTree builds a balanced kd-tree by recursive median split.
func NewKDTree(points []Point) *KDTree {
	tree := &KDTree{
		Nodes:  make([]KDNode, 0, len(points)),
		Points: make([]Point, len(points)),
	}
	copy(tree.Points, points)

	bounds := Bounds{
		MinX: math.Inf(1),
		MinY: math.Inf(1),
		MaxX: math.Inf(-1),
		MaxY: math.Inf(-1),
	}
	for _, p := range points {
		bounds.Extend(p.X, p.Y)
	}
	tree.Bounds = bounds

	if len(points) > 0 {
		tree.buildNodes(0, len(points)-1, 0)
	}
	return tree
}

func (t *KDTree) buildNodes(start, end, depth int) int32 {
	if start > end {
		return -1
	}

	axis := depth % 2
	median := (start + end) / 2
	sortPointsRange(t.Points[start:end+1], axis)

	nodeIdx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, KDNode{
		PointIdx: int32(median),
		Axis:     uint8(axis),
		Left:     -1,
		Right:    -1,
	})

	left := t.buildNodes(start, median-1, depth+1)
	right := t.buildNodes(median+1, end, depth+1)
	t.Nodes[nodeIdx].Left = left
	t.Nodes[nodeIdx].Right = right
	return nodeIdx
}

func sortPointsRange(points []Point, axis int) {
	if axis == 0 {
		sort.Slice(points, func(i, j int) bool {
			return points[i].X < points[j].X
		})
	} else {
		sort.Slice(points, func(i, j int) bool {
			return points[i].Y < points[j].Y
		})
	}
}

// Within returns every point at Euclidean distance <= r from (x, y),
// including a point exactly at (x, y) if present.
func (t *KDTree) Within(x, y, r float64) []Point {
	if len(t.Nodes) == 0 || r < 0 {
		return nil
	}
	var out []Point
	t.within(0, x, y, r, r*r, &out)
	return out
}

func (t *KDTree) within(nodeIdx int32, x, y, r, rSq float64, out *[]Point) {
	if nodeIdx < 0 {
		return
	}
	node := t.Nodes[nodeIdx]
	p := t.Points[node.PointIdx]

	dx := p.X - x
	dy := p.Y - y
	if dx*dx+dy*dy <= rSq {
		*out = append(*out, p)
	}

	// signed distance from the query to the splitting plane
	var delta float64
	if node.Axis == 0 {
		delta = x - p.X
	} else {
		delta = y - p.Y
	}

	if delta <= 0 {
		t.within(node.Left, x, y, r, rSq, out)
		if -delta <= r {
			t.within(node.Right, x, y, r, rSq, out)
		}
	} else {
		t.within(node.Right, x, y, r, rSq, out)
		if delta <= r {
			t.within(node.Left, x, y, r, rSq, out)
		}
	}
}
