package metadatastore

import (
	"context"
	"time"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// GCConfig configures the background version-history sweep.
type GCConfig struct {
	Enabled       bool
	RetentionDays int
	MaxVersions   int
	Interval      time.Duration
	BatchSize     int
}

// RunGC starts the background version GC sweep and blocks until ctx is
// cancelled. Grounded on internal/batch/processor.go's batching
// discipline (teacher): process a bounded number of paths per batch and
// yield between batches so a large sweep never starves foreground
// request latency. Only the cluster leader (or a standalone, non-
// clustered store) runs the sweep; followers skip it since the leader's
// prunes replicate the same way puts and deletes do.
func (s *Store) RunGC(ctx context.Context, cfg GCConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepVersions(ctx, cfg)
		}
	}
}

// SweepOnce runs a single version-history sweep synchronously, for
// callers (the gc CLI subcommand) that want one pass rather than
// RunGC's blocking ticker loop.
func (s *Store) SweepOnce(ctx context.Context, cfg GCConfig) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	s.sweepVersions(ctx, cfg)
}

func (s *Store) sweepVersions(ctx context.Context, cfg GCConfig) {
	if s.log != nil && !s.log.IsLeader() {
		return
	}

	s.mu.RLock()
	paths := make([]string, 0, len(s.versions))
	for p := range s.versions {
		paths = append(paths, string(p))
	}
	s.mu.RUnlock()

	cutoff := time.Now().Add(-time.Duration(cfg.RetentionDays) * 24 * time.Hour)

	for start := 0; start < len(paths); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(paths) {
			end = len(paths)
		}
		batch := paths[start:end]

		for _, p := range batch {
			s.pruneOne(p, cfg.MaxVersions, cutoff)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
		// Yield between batches so a long sweep shares the scheduler with
		// foreground Get/Put/List traffic.
		time.Sleep(time.Millisecond)
	}
}

func (s *Store) pruneOne(pathStr string, maxVersions int, cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := types.VirtualPath(pathStr)
	recs := s.versions[path]
	if len(recs) <= maxVersions {
		return
	}

	// Always keep the newest maxVersions entries regardless of age; among
	// the rest, drop only those older than the retention cutoff.
	keep := recs[len(recs)-maxVersions:]
	dropped := recs[:len(recs)-maxVersions]

	final := make([]types.VersionRecord, 0, len(recs))
	for _, rec := range dropped {
		if !rec.CreatedAt.Before(cutoff) {
			final = append(final, rec)
		}
	}
	final = append(final, keep...)
	s.versions[path] = final

	go func() {
		_, _ = s.backend.PruneVersions(context.Background(), path, maxVersions, cutoff)
	}()
}
