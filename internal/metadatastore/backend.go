package metadatastore

import (
	"context"
	"sort"
	"sync"
	"time"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Backend persists applied metadata and version history. memoryBackend and
// postgresBackend are the two implementations; Store writes to either only
// from persist (called by apply) and from the version GC's pruneOne.
type Backend interface {
	Get(ctx context.Context, path types.VirtualPath) (*types.FileMetadata, error)
	Put(ctx context.Context, meta *types.FileMetadata) error
	Delete(ctx context.Context, path types.VirtualPath) error
	List(ctx context.Context, prefix types.VirtualPath, cursor string, limit int) ([]types.FileMetadata, string, error)
	AppendVersion(ctx context.Context, rec types.VersionRecord) error
	Versions(ctx context.Context, path types.VirtualPath) ([]types.VersionRecord, error)
	PruneVersions(ctx context.Context, path types.VirtualPath, keep int, olderThan time.Time) (pruned int, err error)
	AllPaths(ctx context.Context) ([]types.VirtualPath, error)
	Close() error
}

// memoryBackend is the in-memory Backend used for tests and single-node
// deployments with no durability requirement beyond process lifetime.
type memoryBackend struct {
	mu       sync.RWMutex
	byPath   map[types.VirtualPath]*types.FileMetadata
	versions map[types.VirtualPath][]types.VersionRecord
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		byPath:   make(map[types.VirtualPath]*types.FileMetadata),
		versions: make(map[types.VirtualPath][]types.VersionRecord),
	}
}

func (m *memoryBackend) Get(ctx context.Context, path types.VirtualPath) (*types.FileMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.byPath[path]
	if !ok {
		return nil, kernelerrors.NotFound("metadatastore", "no metadata at path").WithContext("path", string(path))
	}
	cp := *meta
	return &cp, nil
}

func (m *memoryBackend) Put(ctx context.Context, meta *types.FileMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *meta
	m.byPath[meta.Path] = &cp
	return nil
}

func (m *memoryBackend) Delete(ctx context.Context, path types.VirtualPath) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byPath, path)
	return nil
}

func (m *memoryBackend) List(ctx context.Context, prefix types.VirtualPath, cursor string, limit int) ([]types.FileMetadata, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]types.FileMetadata, 0, len(m.byPath))
	for p, meta := range m.byPath {
		if types.HasPrefix(string(p), string(prefix)) {
			matched = append(matched, *meta)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Path < matched[j].Path })

	start := 0
	if cursor != "" {
		for i, meta := range matched {
			if string(meta.Path) > cursor {
				start = i
				break
			}
			start = i + 1
		}
	}
	if start >= len(matched) {
		return nil, "", nil
	}

	end := len(matched)
	nextCursor := ""
	if limit > 0 && start+limit < end {
		end = start + limit
		nextCursor = string(matched[end-1].Path)
	}
	return matched[start:end], nextCursor, nil
}

func (m *memoryBackend) AppendVersion(ctx context.Context, rec types.VersionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[rec.Path] = append(m.versions[rec.Path], rec)
	return nil
}

func (m *memoryBackend) Versions(ctx context.Context, path types.VirtualPath) ([]types.VersionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.versions[path]
	out := make([]types.VersionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *memoryBackend) PruneVersions(ctx context.Context, path types.VirtualPath, keep int, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.versions[path]
	if len(recs) <= keep {
		return 0, nil
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Version < recs[j].Version })

	cut := len(recs) - keep
	pruned := 0
	kept := make([]types.VersionRecord, 0, len(recs))
	for i, rec := range recs {
		if i < cut && rec.CreatedAt.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	m.versions[path] = kept
	return pruned, nil
}

func (m *memoryBackend) AllPaths(ctx context.Context) ([]types.VirtualPath, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.VirtualPath, 0, len(m.versions))
	for p := range m.versions {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryBackend) Close() error { return nil }
