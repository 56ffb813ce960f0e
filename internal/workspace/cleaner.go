package workspace

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

const DefaultCleanInterval = time.Hour

// StartCleaner removes workspace files older than ttl every interval until
// ctx is done. A ttl of zero or less keeps files forever.
func (w *Workspace) StartCleaner(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		log.Printf("Upload retention disabled: files in %s are kept until removed by hand", w.Dir)
		return
	}
	if interval <= 0 {
		interval = DefaultCleanInterval
	}
	log.Printf("Upload retention: removing files in %s older than %s (every %s)", w.Dir, ttl, interval)
	go w.cleanupLoop(ctx, ttl, interval)
}

func (w *Workspace) cleanupLoop(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.Sweep(time.Now().Add(-ttl)); err != nil {
				log.Printf("Upload cleanup error: %v", err)
			} else if n > 0 {
				log.Printf("Upload cleanup removed %d files", n)
			}
		}
	}
}

// Sweep removes regular files last modified before cutoff and returns how
// many were removed.
func (w *Workspace) Sweep(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(w.Dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Remove %s failed: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
