package readset

import (
	"context"
	"sync"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/config"
	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Registry is the in-memory read-set index. All operations take the
// single mutex; snapshots handed back to callers are always copies, never
// the registry's own slices or maps.
type Registry struct {
	mu sync.RWMutex

	entries map[string]types.ReadSetEntry // query id -> entry
	byPath  map[string]map[string]struct{} // path -> query ids
	byDir   map[string]map[string]struct{} // directory prefix -> query ids
	byZone  map[string]map[string]struct{} // zone -> query ids

	defaultTTL time.Duration
	stopCh     chan struct{}
}

var _ types.ReadSetRegistry = (*Registry)(nil)

// New builds an empty registry. Call Run in a goroutine to start the
// idle-time sweep; a registry that never has Run called still works, it
// just never prunes expired entries on its own.
func New(cfg config.ReadSetConfig) *Registry {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{
		entries:    make(map[string]types.ReadSetEntry),
		byPath:     make(map[string]map[string]struct{}),
		byDir:      make(map[string]map[string]struct{}),
		byZone:     make(map[string]map[string]struct{}),
		defaultTTL: ttl,
		stopCh:     make(chan struct{}),
	}
}

// Register inserts entry and populates the reverse indexes. A prior
// registration under the same QueryID is replaced: its old index entries
// are removed first so a re-registered query never leaks stale fan-in.
func (r *Registry) Register(ctx context.Context, entry types.ReadSetEntry) error {
	if entry.QueryID == "" {
		return kernelerrors.InvalidArgument("readset", "entry is missing a query id")
	}
	if entry.TTL <= 0 {
		entry.TTL = r.defaultTTL
	}
	if entry.RegisteredAt.IsZero() {
		entry.RegisteredAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeIndexesLocked(entry.QueryID)
	r.entries[entry.QueryID] = entry

	for _, p := range entry.Paths {
		addLocked(r.byPath, p, entry.QueryID)
	}
	for _, d := range entry.DirectoryPrefixes {
		addLocked(r.byDir, d, entry.QueryID)
	}
	for _, z := range entry.Zones {
		addLocked(r.byZone, z, entry.QueryID)
	}
	return nil
}

// Unregister removes queryID and its index entries. Unregistering a
// query that was never registered (or already expired) is not an error.
func (r *Registry) Unregister(ctx context.Context, queryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeIndexesLocked(queryID)
	delete(r.entries, queryID)
	return nil
}

// removeIndexesLocked drops queryID from every reverse index entry that
// currently references it. Caller must hold r.mu for writing.
func (r *Registry) removeIndexesLocked(queryID string) {
	old, ok := r.entries[queryID]
	if !ok {
		return
	}
	for _, p := range old.Paths {
		removeLocked(r.byPath, p, queryID)
	}
	for _, d := range old.DirectoryPrefixes {
		removeLocked(r.byDir, d, queryID)
	}
	for _, z := range old.Zones {
		removeLocked(r.byZone, z, queryID)
	}
}

// AffectedQueries returns every query whose read set overlaps writePath:
// a direct path match in O(1), then a walk up writePath's directory chain
// in O(depth) against the directory-prefix index. zone narrows the
// result to queries that also registered an interest in that zone; an
// empty zone matches queries regardless of what zones they registered.
func (r *Registry) AffectedQueries(ctx context.Context, writePath types.VirtualPath, zone string) ([]string, error) {
	path := string(writePath)

	r.mu.RLock()
	defer r.mu.RUnlock()

	hit := make(map[string]struct{})
	for id := range r.byPath[path] {
		hit[id] = struct{}{}
	}

	for dir := path; ; dir = types.Parent(dir) {
		for id := range r.byDir[dir] {
			hit[id] = struct{}{}
		}
		if dir == "/" {
			break
		}
	}

	result := make([]string, 0, len(hit))
	for id := range hit {
		if zone != "" && !r.queryWantsZoneLocked(id, zone) {
			continue
		}
		if r.expiredLocked(id) {
			continue
		}
		result = append(result, id)
	}
	return result, nil
}

func (r *Registry) queryWantsZoneLocked(queryID, zone string) bool {
	entry, ok := r.entries[queryID]
	if !ok || len(entry.Zones) == 0 {
		return true
	}
	for _, z := range entry.Zones {
		if z == zone {
			return true
		}
	}
	return false
}

func (r *Registry) expiredLocked(queryID string) bool {
	entry, ok := r.entries[queryID]
	if !ok {
		return true
	}
	return time.Now().After(entry.RegisteredAt.Add(entry.TTL))
}

// Run starts the idle-time sweep and blocks until ctx is cancelled or
// Stop is called. Grounded on internal/metadatastore/gc.go's
// ticker-driven sweep: a bounded amount of work per tick, never a sweep
// that blocks Register/AffectedQueries for longer than one pass.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// Stop signals Run to return.
func (r *Registry) Stop() {
	close(r.stopCh)
}

func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, entry := range r.entries {
		if now.After(entry.RegisteredAt.Add(entry.TTL)) {
			r.removeIndexesLocked(id)
			delete(r.entries, id)
		}
	}
}

func addLocked(index map[string]map[string]struct{}, key, queryID string) {
	set := index[key]
	if set == nil {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[queryID] = struct{}{}
}

func removeLocked(index map[string]map[string]struct{}, key, queryID string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, queryID)
	if len(set) == 0 {
		delete(index, key)
	}
}
