package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// GenerateTestPoints creates n points inside bounds: roughly 80% drawn
// from a handful of gaussian blobs, the rest uniform background that
// tends to end up as noise. A fixed seed reproduces the same set.
func GenerateTestPoints(n int, bounds Bounds, seed int64) []Point {
	r := rand.New(rand.NewSource(seed))
	points := make([]Point, 0, n)

	numBlobs := 3 + r.Intn(3)
	spanX := bounds.MaxX - bounds.MinX
	spanY := bounds.MaxY - bounds.MinY
	sigma := math.Min(spanX, spanY) / 40

	type blob struct{ cx, cy float64 }
	blobs := make([]blob, numBlobs)
	for i := range blobs {
		blobs[i] = blob{
			cx: bounds.MinX + spanX*(0.1+0.8*r.Float64()),
			cy: bounds.MinY + spanY*(0.1+0.8*r.Float64()),
		}
	}

	clamp := func(v, lo, hi float64) float64 {
		return math.Max(lo, math.Min(hi, v))
	}

	id := uint32(1)
	blobPoints := n * 8 / 10
	for i := 0; i < blobPoints; i++ {
		b := blobs[r.Intn(numBlobs)]
		points = append(points, Point{
			ID: id,
			X:  clamp(b.cx+r.NormFloat64()*sigma, bounds.MinX, bounds.MaxX),
			Y:  clamp(b.cy+r.NormFloat64()*sigma, bounds.MinY, bounds.MaxY),
		})
		id++
	}
	for len(points) < n {
		points = append(points, Point{
			ID: id,
			X:  bounds.MinX + spanX*r.Float64(),
			Y:  bounds.MinY + spanY*r.Float64(),
		})
		id++
	}
	return points
}

// PartitionSummary aggregates one iteration for display dashboards.
type PartitionSummary struct {
	Order           int     `json:"order"`
	TotalPoints     int     `json:"totalPoints"`
	NumClusters     int     `json:"numClusters"`
	NumPending      int     `json:"numPending"`
	NumNoise        int     `json:"numNoise"`
	MeanClusterSize float64 `json:"meanClusterSize"`
	StdClusterSize  float64 `json:"stdClusterSize"`
	MeanSpread      float64 `json:"meanSpread"`
	NoiseRatio      float64 `json:"noiseRatio"`
}

// SummarizePartition computes size and spread statistics over an
// iteration's clusters. Spread is the mean member distance from the
// cluster centroid, averaged over clusters.
func SummarizePartition(it *Iteration) PartitionSummary {
	summary := PartitionSummary{
		Order:       it.Order,
		TotalPoints: it.TotalPoints(),
		NumClusters: len(it.Clusters),
		NumPending:  len(it.Pending),
		NumNoise:    len(it.Noise),
	}
	if summary.TotalPoints > 0 {
		summary.NoiseRatio = float64(summary.NumNoise) / float64(summary.TotalPoints)
	}
	if len(it.Clusters) == 0 {
		return summary
	}

	sizes := make([]float64, len(it.Clusters))
	spreads := make([]float64, 0, len(it.Clusters))
	for i, c := range it.Clusters {
		sizes[i] = float64(len(c.Members))
		if spread, ok := clusterSpread(c); ok {
			spreads = append(spreads, spread)
		}
	}

	summary.MeanClusterSize = stat.Mean(sizes, nil)
	if len(sizes) > 1 {
		summary.StdClusterSize = stat.StdDev(sizes, nil)
	}
	if len(spreads) > 0 {
		summary.MeanSpread = stat.Mean(spreads, nil)
	}
	return summary
}

func clusterSpread(c Cluster) (float64, bool) {
	if len(c.Members) == 0 {
		return 0, false
	}
	var cx, cy float64
	for _, p := range c.Members {
		cx += p.X
		cy += p.Y
	}
	inv := 1.0 / float64(len(c.Members))
	cx *= inv
	cy *= inv

	var sum float64
	for _, p := range c.Members {
		sum += math.Hypot(p.X-cx, p.Y-cy)
	}
	return sum * inv, true
}

// GeoJSON types
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// ToGeoJSON renders the iteration as a FeatureCollection with one
// feature per point, tagged with its state so a display layer can
// color clusters, frontier, noise, and pending points differently.
func (it *Iteration) ToGeoJSON() *FeatureCollection {
	features := make([]Feature, 0, it.TotalPoints())

	appendPoint := func(p Point, props map[string]interface{}) {
		props["id"] = p.ID
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{p.X, p.Y},
			},
			Properties: props,
		})
	}

	for _, c := range it.Clusters {
		frontier := make(map[uint32]bool, len(c.Frontier))
		for _, p := range c.Frontier {
			frontier[p.ID] = true
		}
		for _, p := range c.Members {
			appendPoint(p, map[string]interface{}{
				"state":        "clustered",
				"cluster_id":   c.ID,
				"cluster_name": c.Name,
				"frontier":     frontier[p.ID],
			})
		}
	}
	for _, p := range it.Pending {
		appendPoint(p, map[string]interface{}{"state": "pending"})
	}
	for _, p := range it.Noise {
		appendPoint(p, map[string]interface{}{"state": "noise"})
	}

	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
