// Package cluster implements a step-driven, density-based clustering
// algorithm over 2D points. A Scanner advances one iteration at a time,
// returning immutable snapshots of partial progress so a caller can
// inspect, render, or persist the run between steps.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for scanner construction and protocol misuse.
var (
	// ErrBadEpsilon is returned when Epsilon is negative or not finite.
	ErrBadEpsilon = errors.New("cluster: epsilon must be finite and non-negative")

	// ErrBadMinPoints is returned when MinPoints is less than 1.
	ErrBadMinPoints = errors.New("cluster: minPoints must be at least 1")

	// ErrBadCoordinate is returned when a point carries a NaN or Inf coordinate.
	ErrBadCoordinate = errors.New("cluster: point coordinate is not finite")

	// ErrDuplicateID is returned when two input points share an ID.
	ErrDuplicateID = errors.New("cluster: duplicate point ID")

	// ErrScanComplete is returned by Next after the terminal result
	// was already delivered.
	ErrScanComplete = errors.New("cluster: scan already complete")

	// ErrForeignIteration is returned when the previous iteration was
	// not produced by this scanner.
	ErrForeignIteration = errors.New("cluster: iteration not produced by this scanner")

	// ErrStaleIteration is returned when the previous iteration is not
	// the scanner's latest snapshot.
	ErrStaleIteration = errors.New("cluster: iteration is not the latest snapshot")
)

// Point is an immutable 2D input point. Two points are the same point
// iff their IDs match; coordinates play no part in identity.
type Point struct {
	ID uint32  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Cluster is a growing set of points plus the subset added in the most
// recent expansion round (the frontier). The frontier drives the next
// round's candidate search and is always a subset of Members.
type Cluster struct {
	ID       uint32  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Members  []Point `json:"members"`
	Frontier []Point `json:"frontier"`
}

// Iteration is a value snapshot of one scan step. Every input point is
// in exactly one of Pending, some cluster's Members, or Noise. Once
// returned by Next an iteration is never mutated by the scanner.
type Iteration struct {
	Order    int       `json:"order"`
	Clusters []Cluster `json:"clusters"`
	Pending  []Point   `json:"pending"`
	Noise    []Point   `json:"noise"`

	owner *Scanner
}

// ScanOptions configures a Scanner. Epsilon is the neighbor distance
// threshold; an Epsilon of 0 treats only coincident points as neighbors.
// MinPoints is the minimum neighborhood size, counting the point itself,
// required to seed or grow a cluster. MinPoints of 1 is the degenerate
// case where every point qualifies as a seed and no noise is produced.
// Seed fixes the random pick order for reproducible runs; 0 seeds from
// the clock. UseIndex routes neighbor queries through a kd-tree instead
// of a linear scan; results are identical either way.
type ScanOptions struct {
	Epsilon   float64
	MinPoints int
	Seed      int64
	UseIndex  bool
}

// Scanner owns a fixed point set and drives the clustering run. One
// Next call is one atomic step; a Scanner is not safe for concurrent
// Next calls. Use separate scanners for concurrent runs.
type Scanner struct {
	points []Point
	opts   ScanOptions
	rng    *rand.Rand
	index  *KDTree

	// active cluster being expanded, if any
	activeID  uint32
	hasActive bool

	nextSeq   int
	lastOrder int
	done      bool
}

// NewScanner validates options and the point set and returns a scanner
// positioned before the first iteration. The point slice is copied.
func NewScanner(points []Point, opts ScanOptions) (*Scanner, error) {
	if opts.Epsilon < 0 || math.IsNaN(opts.Epsilon) || math.IsInf(opts.Epsilon, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrBadEpsilon, opts.Epsilon)
	}
	if opts.MinPoints < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrBadMinPoints, opts.MinPoints)
	}

	seen := make(map[uint32]bool, len(points))
	for _, p := range points {
		if !isFinite(p.X) || !isFinite(p.Y) {
			return nil, fmt.Errorf("%w: point %d at (%v, %v)", ErrBadCoordinate, p.ID, p.X, p.Y)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = true
	}

	owned := make([]Point, len(points))
	copy(owned, points)

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Scanner{
		points:  owned,
		opts:    opts,
		rng:     rand.New(rand.NewSource(seed)),
		nextSeq: 1,
	}
	if opts.UseIndex {
		s.index = NewKDTree(owned)
	}
	return s, nil
}

// Points returns the scanner's input set.
func (s *Scanner) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Options returns the configuration fixed at construction.
func (s *Scanner) Options() ScanOptions { return s.opts }

// Next advances the scan by one step. Pass nil for the first call and
// the previously returned iteration thereafter. A (nil, nil) result is
// the terminal signal: the last non-nil iteration holds the complete
// partition. Calling Next again after that returns ErrScanComplete.
func (s *Scanner) Next(prev *Iteration) (*Iteration, error) {
	if s.done {
		return nil, ErrScanComplete
	}

	if prev == nil {
		if s.lastOrder != 0 {
			return nil, fmt.Errorf("%w: scan already started, expected iteration %d", ErrStaleIteration, s.lastOrder)
		}
		if len(s.points) == 0 {
			s.done = true
			return nil, nil
		}
		next := &Iteration{
			Order:   1,
			Pending: append([]Point(nil), s.points...),
			owner:   s,
		}
		s.seekCluster(next)
		s.lastOrder = next.Order
		return next, nil
	}

	if prev.owner != s {
		return nil, ErrForeignIteration
	}
	if prev.Order != s.lastOrder {
		return nil, fmt.Errorf("%w: got iteration %d, latest is %d", ErrStaleIteration, prev.Order, s.lastOrder)
	}

	if len(prev.Pending) == 0 {
		s.done = true
		return nil, nil
	}

	next := s.snapshot(prev)
	if s.hasActive {
		s.expandCluster(next)
	} else {
		s.seekCluster(next)
	}
	s.lastOrder = next.Order
	return next, nil
}

// snapshot deep-copies prev into a fresh iteration with the next order
// index. The copy owns its slices so mutating it never touches history.
func (s *Scanner) snapshot(prev *Iteration) *Iteration {
	next := &Iteration{
		Order:    prev.Order + 1,
		Clusters: make([]Cluster, len(prev.Clusters)),
		Pending:  append([]Point(nil), prev.Pending...),
		Noise:    append([]Point(nil), prev.Noise...),
		owner:    s,
	}
	for i, c := range prev.Clusters {
		next.Clusters[i] = Cluster{
			ID:       c.ID,
			Name:     c.Name,
			Members:  append([]Point(nil), c.Members...),
			Frontier: append([]Point(nil), c.Frontier...),
		}
	}
	return next
}

// expandCluster grows the active cluster by one round: every core point
// on the frontier contributes its neighbors, the union is filtered to
// still-pending points, and the survivors become the new frontier. An
// empty round finishes the cluster and clears the active marker.
func (s *Scanner) expandCluster(next *Iteration) {
	c := next.clusterByID(s.activeID)
	if c == nil {
		// active marker without a matching cluster cannot happen via
		// the public API; treat it as a finished cluster
		s.hasActive = false
		return
	}

	pending := make(map[uint32]bool, len(next.Pending))
	for _, p := range next.Pending {
		pending[p.ID] = true
	}

	var grown []Point
	taken := make(map[uint32]bool)
	for _, f := range c.Frontier {
		nbrs := s.Neighbors(f)
		if len(nbrs)+1 < s.opts.MinPoints {
			continue
		}
		for _, n := range nbrs {
			if taken[n.ID] || !pending[n.ID] {
				continue
			}
			taken[n.ID] = true
			grown = append(grown, n)
		}
	}

	if len(grown) == 0 {
		s.hasActive = false
		return
	}

	next.Pending = removePoints(next.Pending, taken)
	c.Members = append(c.Members, grown...)
	c.Frontier = grown
}

// seekCluster picks a random pending point and either seeds a new
// cluster from it or classifies it as noise. Only still-pending
// neighbors join the new cluster so the pending/members/noise sets
// stay disjoint; the core-point test counts every neighbor regardless.
func (s *Scanner) seekCluster(next *Iteration) {
	i := s.rng.Intn(len(next.Pending))
	seed := next.Pending[i]
	next.Pending = append(next.Pending[:i], next.Pending[i+1:]...)

	nbrs := s.Neighbors(seed)
	if len(nbrs)+1 < s.opts.MinPoints {
		next.Noise = append(next.Noise, seed)
		return
	}

	pending := make(map[uint32]bool, len(next.Pending))
	for _, p := range next.Pending {
		pending[p.ID] = true
	}

	members := []Point{seed}
	var frontier []Point
	taken := make(map[uint32]bool)
	for _, n := range nbrs {
		if !pending[n.ID] {
			continue
		}
		taken[n.ID] = true
		members = append(members, n)
		frontier = append(frontier, n)
	}
	next.Pending = removePoints(next.Pending, taken)

	c := Cluster{
		ID:       uuid.New().ID(),
		Name:     fmt.Sprintf("cluster-%d", s.nextSeq),
		Members:  members,
		Frontier: frontier,
	}
	s.nextSeq++
	next.Clusters = append(next.Clusters, c)
	s.activeID = c.ID
	s.hasActive = true
}

// Neighbors returns every other input point within Epsilon of p,
// scanning the full original set. The kd-tree path and the linear scan
// return the same set.
func (s *Scanner) Neighbors(p Point) []Point {
	if s.index != nil {
		within := s.index.Within(p.X, p.Y, s.opts.Epsilon)
		nbrs := within[:0]
		for _, q := range within {
			if q.ID != p.ID {
				nbrs = append(nbrs, q)
			}
		}
		return nbrs
	}

	var nbrs []Point
	epsSq := s.opts.Epsilon * s.opts.Epsilon
	for _, q := range s.points {
		if q.ID == p.ID {
			continue
		}
		dx := q.X - p.X
		dy := q.Y - p.Y
		if dx*dx+dy*dy <= epsSq {
			nbrs = append(nbrs, q)
		}
	}
	return nbrs
}

// clusterByID returns a pointer into the iteration's cluster list.
func (it *Iteration) clusterByID(id uint32) *Cluster {
	for i := range it.Clusters {
		if it.Clusters[i].ID == id {
			return &it.Clusters[i]
		}
	}
	return nil
}

// Done reports whether the iteration is a complete partition: nothing
// pending and no cluster mid-expansion.
func (it *Iteration) Done() bool {
	return len(it.Pending) == 0 && (it.owner == nil || !it.owner.hasActive)
}

// TotalPoints counts every point across pending, members, and noise.
func (it *Iteration) TotalPoints() int {
	n := len(it.Pending) + len(it.Noise)
	for _, c := range it.Clusters {
		n += len(c.Members)
	}
	return n
}

func removePoints(points []Point, drop map[uint32]bool) []Point {
	kept := points[:0]
	for _, p := range points {
		if !drop[p.ID] {
			kept = append(kept, p)
		}
	}
	return kept
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
