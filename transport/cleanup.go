package transport

import (
	"fmt"
	"os"
	"time"
)

// CleanupStats tracks what a retention pass removed.
type CleanupStats struct {
	FilesRemoved  int
	BytesFreed    int64
	OldestRemoved time.Time
	NewestRemoved time.Time
}

// Cleanup removes request and response files older than maxAge from both
// directories. It is the out-of-band retention tool; the coordinator and
// watcher never call it on their request/response paths.
func (s *Store) Cleanup(maxAge time.Duration) (CleanupStats, error) {
	stats := CleanupStats{}
	cutoff := time.Now().Add(-maxAge)

	for _, dir := range []string{s.requestDir, s.responseDir} {
		paths, err := listJSON(dir)
		if err != nil {
			return stats, err
		}

		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}

			if err := os.Remove(path); err != nil {
				return stats, fmt.Errorf("remove %s: %w", path, err)
			}

			stats.FilesRemoved++
			stats.BytesFreed += info.Size()
			updateTimeRange(&stats, info.ModTime())
		}
	}

	return stats, nil
}

func updateTimeRange(stats *CleanupStats, modTime time.Time) {
	if stats.OldestRemoved.IsZero() || modTime.Before(stats.OldestRemoved) {
		stats.OldestRemoved = modTime
	}
	if modTime.After(stats.NewestRemoved) {
		stats.NewestRemoved = modTime
	}
}
