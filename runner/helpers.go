package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScanInfo describes one saved scan file.
type ScanInfo struct {
	ID        string    `json:"id"`
	NumPoints int       `json:"numPoints"`
	Timestamp time.Time `json:"timestamp"`
	FileSize  int64     `json:"fileSize"`
}

func newScanID() string {
	return uuid.New().String()[:8] // first 8 chars are plenty for a live-scan key
}

// generateScanFilename builds a path of the form
// scan-{numPoints}p-{timestamp}-{id}.zst inside dir.
func generateScanFilename(dir string, numPoints int) string {
	timestamp := time.Now().Format("20060102-150405")
	id := uuid.New().String()[:8]
	return filepath.Join(dir, fmt.Sprintf("scan-%dp-%s-%s.zst", numPoints, timestamp, id))
}

// parseScanFilename recovers ScanInfo from a filename produced by
// generateScanFilename. The bool result is false for foreign files.
func parseScanFilename(name string, size int64) (ScanInfo, bool) {
	if filepath.Ext(name) != ".zst" {
		return ScanInfo{}, false
	}
	base := strings.TrimSuffix(name, ".zst")
	parts := strings.Split(base, "-")
	// scan-{numPoints}p-{date}-{time}-{id}
	if len(parts) != 5 || parts[0] != "scan" {
		return ScanInfo{}, false
	}

	numPoints, err := strconv.Atoi(strings.TrimSuffix(parts[1], "p"))
	if err != nil {
		return ScanInfo{}, false
	}
	timestamp, err := time.Parse("20060102-150405", parts[2]+"-"+parts[3])
	if err != nil {
		return ScanInfo{}, false
	}

	return ScanInfo{
		ID:        parts[4],
		NumPoints: numPoints,
		Timestamp: timestamp,
		FileSize:  size,
	}, true
}

// listScanFiles returns every saved scan in dir, newest first.
func listScanFiles(dir string) ([]ScanInfo, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read save directory: %v", err)
	}

	infos := make([]ScanInfo, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		fi, err := file.Info()
		if err != nil {
			continue
		}
		if info, ok := parseScanFilename(file.Name(), fi.Size()); ok {
			infos = append(infos, info)
		}
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

// findScanFile locates a saved scan by its file ID.
func findScanFile(dir, fileID string) (string, ScanInfo, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", ScanInfo{}, fmt.Errorf("failed to read save directory: %v", err)
	}
	for _, file := range files {
		if file.IsDir() || !strings.Contains(file.Name(), fileID) {
			continue
		}
		fi, err := file.Info()
		if err != nil {
			continue
		}
		if info, ok := parseScanFilename(file.Name(), fi.Size()); ok {
			return filepath.Join(dir, file.Name()), info, nil
		}
	}
	return "", ScanInfo{}, fmt.Errorf("scan file with ID %s not found", fileID)
}
