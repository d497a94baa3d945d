package cluster

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepN(t *testing.T, s *Scanner, it *Iteration, n int) *Iteration {
	t.Helper()
	for i := 0; i < n; i++ {
		next, err := s.Next(it)
		require.NoError(t, err)
		require.NotNil(t, next, "scan ended before %d steps", n)
		it = next
	}
	return it
}

func driveToEnd(t *testing.T, s *Scanner, it *Iteration) *Iteration {
	t.Helper()
	for {
		next, err := s.Next(it)
		require.NoError(t, err)
		if next == nil {
			return it
		}
		it = next
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	points := GenerateTestPoints(80, Bounds{MinX: 0, MinY: 0, MaxX: 40, MaxY: 40}, 17)
	s, err := NewScanner(points, ScanOptions{Epsilon: 3, MinPoints: 3, Seed: 5})
	require.NoError(t, err)

	mid := stepN(t, s, nil, 6)

	path := filepath.Join(t.TempDir(), "scan.zst")
	require.NoError(t, s.SaveCompressed(mid, path))

	loaded, restored, err := LoadCompressedScan(path)
	require.NoError(t, err)

	assert.Equal(t, mid.Order, restored.Order)
	assert.Equal(t, len(mid.Clusters), len(restored.Clusters))
	assert.Equal(t, mid.Pending, restored.Pending)
	assert.Equal(t, mid.Noise, restored.Noise)
	for i := range mid.Clusters {
		assert.Equal(t, mid.Clusters[i].ID, restored.Clusters[i].ID)
		assert.Equal(t, mid.Clusters[i].Name, restored.Clusters[i].Name)
		assert.Equal(t, mid.Clusters[i].Members, restored.Clusters[i].Members)
		assert.Equal(t, mid.Clusters[i].Frontier, restored.Clusters[i].Frontier)
	}

	opts := loaded.Options()
	assert.Equal(t, 3.0, opts.Epsilon)
	assert.Equal(t, 3, opts.MinPoints)
	assert.Equal(t, points, loaded.Points())
}

func TestResumedScanCompletesPartition(t *testing.T) {
	points := GenerateTestPoints(60, Bounds{MinX: -20, MinY: -20, MaxX: 20, MaxY: 20}, 23)
	s, err := NewScanner(points, ScanOptions{Epsilon: 2.5, MinPoints: 2, Seed: 12})
	require.NoError(t, err)

	mid := stepN(t, s, nil, 4)

	path := filepath.Join(t.TempDir(), "scan.zst")
	require.NoError(t, s.SaveCompressed(mid, path))

	loaded, restored, err := LoadCompressedScan(path)
	require.NoError(t, err)

	final := driveToEnd(t, loaded, restored)
	require.NotNil(t, final)
	assert.Empty(t, final.Pending)
	assert.Equal(t, len(points), final.TotalPoints())

	// a restored iteration keeps working against the loaded scanner only
	_, err = s.Next(restored)
	assert.ErrorIs(t, err, ErrForeignIteration)
}

func TestSaveRejectsStaleIteration(t *testing.T) {
	points := GenerateTestPoints(30, Bounds{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}, 2)
	s, err := NewScanner(points, ScanOptions{Epsilon: 1.5, MinPoints: 2, Seed: 3})
	require.NoError(t, err)

	first := stepN(t, s, nil, 1)
	stepN(t, s, first, 1)

	path := filepath.Join(t.TempDir(), "scan.zst")
	err = s.SaveCompressed(first, path)
	assert.ErrorIs(t, err, ErrStaleIteration)
}

func TestMMapSaveLoadRoundTrip(t *testing.T) {
	points := GenerateTestPoints(50, Bounds{MinX: 0, MinY: 0, MaxX: 25, MaxY: 25}, 31)
	s, err := NewScanner(points, ScanOptions{Epsilon: 2, MinPoints: 2, Seed: 19})
	require.NoError(t, err)

	mid := stepN(t, s, nil, 5)

	path := filepath.Join(t.TempDir(), "scan.bin")
	require.NoError(t, s.SaveMMap(mid, path))

	loaded, restored, err := LoadMMapScan(path)
	require.NoError(t, err)

	assert.Equal(t, mid.Order, restored.Order)
	assert.Equal(t, mid.Pending, restored.Pending)
	assert.Equal(t, mid.Noise, restored.Noise)
	require.Equal(t, len(mid.Clusters), len(restored.Clusters))
	for i := range mid.Clusters {
		assert.Equal(t, mid.Clusters[i].Members, restored.Clusters[i].Members)
		assert.Equal(t, mid.Clusters[i].Frontier, restored.Clusters[i].Frontier)
	}

	final := driveToEnd(t, loaded, restored)
	assert.Empty(t, final.Pending)
	assert.Equal(t, len(points), final.TotalPoints())
}
