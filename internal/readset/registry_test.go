package readset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(config.ReadSetConfig{DefaultTTL: time.Minute})
}

func TestRegistry_DirectPathMatch(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, types.ReadSetEntry{
		QueryID: "q1",
		Paths:   []string{"/a/b.txt"},
	}))

	affected, err := r.AffectedQueries(ctx, "/a/b.txt", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q1"}, affected)

	affected, err = r.AffectedQueries(ctx, "/a/other.txt", "")
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestRegistry_DirectoryPrefixMatchesDescendant(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, types.ReadSetEntry{
		QueryID:           "q-list",
		DirectoryPrefixes: []string{"/workspace/project"},
	}))

	affected, err := r.AffectedQueries(ctx, "/workspace/project/src/main.go", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q-list"}, affected)

	affected, err = r.AffectedQueries(ctx, "/workspace/other/main.go", "")
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestRegistry_ZoneFiltersResults(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, types.ReadSetEntry{
		QueryID: "q-zoned",
		Paths:   []string{"/a.txt"},
		Zones:   []string{"zone-a"},
	}))

	affected, err := r.AffectedQueries(ctx, "/a.txt", "zone-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q-zoned"}, affected)

	affected, err = r.AffectedQueries(ctx, "/a.txt", "zone-b")
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestRegistry_UnregisterRemovesFromAllIndexes(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, types.ReadSetEntry{
		QueryID:           "q1",
		Paths:             []string{"/a.txt"},
		DirectoryPrefixes: []string{"/dir"},
	}))
	require.NoError(t, r.Unregister(ctx, "q1"))

	affected, err := r.AffectedQueries(ctx, "/a.txt", "")
	require.NoError(t, err)
	assert.Empty(t, affected)

	affected, err = r.AffectedQueries(ctx, "/dir/x.txt", "")
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestRegistry_ReRegisterReplacesOldIndexes(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, types.ReadSetEntry{QueryID: "q1", Paths: []string{"/a.txt"}}))
	require.NoError(t, r.Register(ctx, types.ReadSetEntry{QueryID: "q1", Paths: []string{"/b.txt"}}))

	affected, err := r.AffectedQueries(ctx, "/a.txt", "")
	require.NoError(t, err)
	assert.Empty(t, affected, "the old path should no longer be indexed after re-registration")

	affected, err = r.AffectedQueries(ctx, "/b.txt", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q1"}, affected)
}

func TestRegistry_ExpiredEntryIsExcluded(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, types.ReadSetEntry{
		QueryID:      "q-expired",
		Paths:        []string{"/a.txt"},
		TTL:          time.Millisecond,
		RegisteredAt: time.Now().Add(-time.Hour),
	}))

	affected, err := r.AffectedQueries(ctx, "/a.txt", "")
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestRegistry_SweepPrunesExpiredEntries(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, r.Register(ctx, types.ReadSetEntry{
		QueryID:      "q-old",
		Paths:        []string{"/a.txt"},
		TTL:          time.Millisecond,
		RegisteredAt: time.Now().Add(-time.Hour),
	}))

	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, ok := r.entries["q-old"]
		return !ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
