package cluster

import (
	"runtime"
	"testing"
)

// benchmarkScan drives a full scan to completion with either the linear
// neighbor search or the kd-tree index.
func benchmarkScan(b *testing.B, numPoints int, useIndex bool) {
	points := GenerateTestPoints(numPoints, Bounds{MinX: -100, MinY: -100, MaxX: 100, MaxY: 100}, 42)
	opts := ScanOptions{Epsilon: 3, MinPoints: 3, Seed: 42, UseIndex: useIndex}

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := NewScanner(points, opts)
		if err != nil {
			b.Fatalf("NewScanner failed: %v", err)
		}
		var current *Iteration
		for {
			next, err := s.Next(current)
			if err != nil {
				b.Fatalf("Next failed: %v", err)
			}
			if next == nil {
				break
			}
			current = next
		}
	}
	b.StopTimer()

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
	b.ReportMetric(allocMB, "MB/op")
}

func BenchmarkScanSmall_Linear(b *testing.B) {
	benchmarkScan(b, 500, false)
}

func BenchmarkScanSmall_Indexed(b *testing.B) {
	benchmarkScan(b, 500, true)
}

func BenchmarkScanMedium_Linear(b *testing.B) {
	benchmarkScan(b, 5000, false)
}

func BenchmarkScanMedium_Indexed(b *testing.B) {
	benchmarkScan(b, 5000, true)
}

func BenchmarkScanLarge_Indexed(b *testing.B) {
	benchmarkScan(b, 20000, true)
}

func BenchmarkNeighborsLinear(b *testing.B) {
	points := GenerateTestPoints(10000, Bounds{MinX: -100, MinY: -100, MaxX: 100, MaxY: 100}, 7)
	s, err := NewScanner(points, ScanOptions{Epsilon: 5, MinPoints: 3, Seed: 7})
	if err != nil {
		b.Fatalf("NewScanner failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Neighbors(points[i%len(points)])
	}
}

func BenchmarkNeighborsIndexed(b *testing.B) {
	points := GenerateTestPoints(10000, Bounds{MinX: -100, MinY: -100, MaxX: 100, MaxY: 100}, 7)
	s, err := NewScanner(points, ScanOptions{Epsilon: 5, MinPoints: 3, Seed: 7, UseIndex: true})
	if err != nil {
		b.Fatalf("NewScanner failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Neighbors(points[i%len(points)])
	}
}
