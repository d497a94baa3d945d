package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"web/denscan/cluster"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile = flag.String("memprofile", "", "write memory profile to file")
	numPoints  = flag.Int("points", 10000, "number of points to generate")
	epsilon    = flag.Float64("epsilon", 3.0, "neighbor distance threshold")
	minPoints  = flag.Int("minpoints", 3, "minimum neighborhood size")
	useIndex   = flag.Bool("index", false, "use the kd-tree neighbor index")
	testall    = flag.Bool("testall", false, "test all configurations")
)

// runFullScan drives one scan to completion and reports step count,
// duration, and the final partition shape.
func runFullScan(numPoints int, epsilon float64, minPoints int, useIndex bool) (time.Duration, error) {
	points := cluster.GenerateTestPoints(numPoints,
		cluster.Bounds{MinX: -100, MinY: -100, MaxX: 100, MaxY: 100}, 42)

	s, err := cluster.NewScanner(points, cluster.ScanOptions{
		Epsilon:   epsilon,
		MinPoints: minPoints,
		Seed:      42,
		UseIndex:  useIndex,
	})
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var current *cluster.Iteration
	steps := 0
	for {
		next, err := s.Next(current)
		if err != nil {
			return 0, err
		}
		if next == nil {
			break
		}
		current = next
		steps++
	}
	duration := time.Since(start)

	summary := cluster.SummarizePartition(current)
	fmt.Printf("Scan of %d points finished in %v (%d steps)\n", numPoints, duration, steps)
	fmt.Printf("Clusters: %d, noise: %d, mean cluster size: %.1f\n",
		summary.NumClusters, summary.NumNoise, summary.MeanClusterSize)
	return duration, nil
}

func runSingleProfile() {
	method := "linear"
	if *useIndex {
		method = "kd-tree"
	}
	fmt.Printf("Profiling %d points (epsilon=%.2f, minPoints=%d, %s neighbor search)\n",
		*numPoints, *epsilon, *minPoints, method)

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	if _, err := runFullScan(*numPoints, *epsilon, *minPoints, *useIndex); err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		return
	}

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
	fmt.Printf("Memory allocated: %.2f MB\n", allocMB)
}

func runProfileBattery() {
	pointCounts := []int{1000, 5000, 20000, 50000}

	fmt.Println("Running comprehensive profile battery...")
	fmt.Println("=======================================")

	fmt.Printf("%-10s | %-10s | %-15s | %-12s | %-10s\n",
		"Points", "Method", "Duration", "Memory (MB)", "GC Runs")
	fmt.Printf("%s\n", "----------------------------------------------------------------")

	for _, points := range pointCounts {
		for _, indexed := range []bool{false, true} {
			method := "Linear"
			if indexed {
				method = "KDTree"
			}

			var memStatsBefore, memStatsAfter runtime.MemStats
			runtime.ReadMemStats(&memStatsBefore)

			duration, err := runFullScan(points, *epsilon, *minPoints, indexed)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
				continue
			}

			runtime.ReadMemStats(&memStatsAfter)
			memMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
			gcRuns := memStatsAfter.NumGC - memStatsBefore.NumGC

			fmt.Printf("%-10d | %-10s | %-15s | %-12.2f | %-10d\n",
				points, method, duration, memMB, gcRuns)
		}
		fmt.Printf("%s\n", "----------------------------------------------------------------")
	}
}

func main() {
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			return
		}
		defer f.Close()

		fmt.Println("Starting CPU profiling...")
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	if *testall {
		runProfileBattery()
	} else {
		runSingleProfile()
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC() // Get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
		}
	}
}
