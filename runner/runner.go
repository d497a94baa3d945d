// Package runner manages live clustering scans: creation, stepping,
// persistence, and eviction of inactive runs.
package runner

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"web/denscan/cluster"

	"go.uber.org/zap"
)

// ErrScanNotFound is returned when no live scan matches the given ID.
var ErrScanNotFound = errors.New("runner: scan not found")

// liveScan pairs a scanner with its latest snapshot.
type liveScan struct {
	scanner  *cluster.Scanner
	current  *cluster.Iteration
	finished bool
}

// ScanRunner holds live scans keyed by short IDs. All methods are safe
// for concurrent use; stepping one scan is serialized by the runner's
// lock because a scanner itself must not be advanced concurrently.
type ScanRunner struct {
	mu           sync.RWMutex
	scans        map[string]*liveScan
	lastAccessed map[string]time.Time
	maxScans     int
	saveDir      string
	log          *zap.Logger
}

// NewScanRunner creates a runner that keeps at most maxScans live scans
// and persists snapshots under saveDir. A background goroutine reaps
// scans untouched for 30 minutes.
func NewScanRunner(maxScans int, saveDir string, log *zap.Logger) (*ScanRunner, error) {
	if err := os.MkdirAll(saveDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create save directory: %v", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &ScanRunner{
		scans:        make(map[string]*liveScan),
		lastAccessed: make(map[string]time.Time),
		maxScans:     maxScans,
		saveDir:      saveDir,
		log:          log,
	}
	go r.cleanupInactiveScans()
	return r, nil
}

// CreateScan starts a new scan over the given points and returns its ID.
func (r *ScanRunner) CreateScan(points []cluster.Point, opts cluster.ScanOptions) (string, error) {
	scanner, err := cluster.NewScanner(points, opts)
	if err != nil {
		return "", err
	}

	id := newScanID()
	r.mu.Lock()
	r.evictOldestLocked()
	r.scans[id] = &liveScan{scanner: scanner}
	r.lastAccessed[id] = time.Now()
	r.mu.Unlock()

	r.log.Info("created scan",
		zap.String("id", id),
		zap.Int("points", len(points)),
		zap.Float64("epsilon", opts.Epsilon),
		zap.Int("minPoints", opts.MinPoints))
	return id, nil
}

// Step advances a scan by one iteration. The returned done flag is true
// once the scan has delivered its terminal signal; the iteration is
// then the final partition.
func (r *ScanRunner) Step(id string) (*cluster.Iteration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ls, ok := r.scans[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	r.lastAccessed[id] = time.Now()

	if ls.finished {
		return ls.current, true, nil
	}

	next, err := ls.scanner.Next(ls.current)
	if err != nil {
		return nil, false, err
	}
	if next == nil {
		ls.finished = true
		r.log.Info("scan finished",
			zap.String("id", id),
			zap.Int("iterations", iterOrder(ls.current)))
		return ls.current, true, nil
	}
	ls.current = next
	return next, false, nil
}

// Run drives a scan to completion and returns the final iteration.
func (r *ScanRunner) Run(id string) (*cluster.Iteration, error) {
	for {
		it, done, err := r.Step(id)
		if err != nil {
			return nil, err
		}
		if done {
			return it, nil
		}
	}
}

// Current returns a scan's latest iteration without advancing it. The
// iteration is nil before the first step.
func (r *ScanRunner) Current(id string) (*cluster.Iteration, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ls, ok := r.scans[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	return ls.current, ls.finished, nil
}

// Summary returns partition statistics for a scan's latest iteration.
func (r *ScanRunner) Summary(id string) (cluster.PartitionSummary, error) {
	it, _, err := r.Current(id)
	if err != nil {
		return cluster.PartitionSummary{}, err
	}
	if it == nil {
		return cluster.PartitionSummary{}, fmt.Errorf("runner: scan %s has not been stepped yet", id)
	}
	return cluster.SummarizePartition(it), nil
}

// Save persists a scan's latest iteration and resume state to the save
// directory, returning the file path.
func (r *ScanRunner) Save(id string) (string, error) {
	r.mu.RLock()
	ls, ok := r.scans[id]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	if ls.current == nil {
		return "", fmt.Errorf("runner: scan %s has not been stepped yet", id)
	}

	path := generateScanFilename(r.saveDir, ls.current.TotalPoints())
	start := time.Now()
	if err := ls.scanner.SaveCompressed(ls.current, path); err != nil {
		return "", fmt.Errorf("failed to save scan: %v", err)
	}
	r.log.Info("saved scan",
		zap.String("id", id),
		zap.String("path", path),
		zap.Duration("took", time.Since(start)))
	return path, nil
}

// Load restores a saved scan file into the runner under a fresh ID.
func (r *ScanRunner) Load(fileID string) (string, error) {
	path, _, err := findScanFile(r.saveDir, fileID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	scanner, it, err := cluster.LoadCompressedScan(path)
	if err != nil {
		return "", fmt.Errorf("failed to load scan: %v", err)
	}

	id := newScanID()
	r.mu.Lock()
	r.evictOldestLocked()
	r.scans[id] = &liveScan{
		scanner:  scanner,
		current:  it,
		finished: it.Done(),
	}
	r.lastAccessed[id] = time.Now()
	r.mu.Unlock()

	r.log.Info("loaded scan",
		zap.String("id", id),
		zap.String("path", path),
		zap.Duration("took", time.Since(start)))
	return id, nil
}

// List returns metadata for every saved scan file, newest first.
func (r *ScanRunner) List() ([]ScanInfo, error) {
	return listScanFiles(r.saveDir)
}

// evictOldestLocked drops the least recently used scans until there is
// room for one more. Caller holds the write lock.
func (r *ScanRunner) evictOldestLocked() {
	for r.maxScans > 0 && len(r.scans) >= r.maxScans {
		var oldest string
		var oldestTime time.Time
		for id, at := range r.lastAccessed {
			if oldest == "" || at.Before(oldestTime) {
				oldest = id
				oldestTime = at
			}
		}
		if oldest == "" {
			return
		}
		delete(r.scans, oldest)
		delete(r.lastAccessed, oldest)
		r.log.Info("evicted scan", zap.String("id", oldest))
	}
}

func (r *ScanRunner) cleanupInactiveScans() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		r.mu.Lock()
		for id, at := range r.lastAccessed {
			if now.Sub(at) > 30*time.Minute {
				delete(r.scans, id)
				delete(r.lastAccessed, id)
				r.log.Info("reaped inactive scan", zap.String("id", id))
			}
		}
		r.mu.Unlock()
	}
}

func iterOrder(it *cluster.Iteration) int {
	if it == nil {
		return 0
	}
	return it.Order
}
