package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/internal/kernel"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

func newTestService(t *testing.T) (*Service, *kernel.Kernel) {
	t.Helper()
	cfg := config.NewDefault()
	cfg.CAS.PassthroughRoot = t.TempDir()
	cfg.MetadataStore.Backend = "memory"
	cfg.ReBAC.OpenAccessFallback = true
	cfg.Events.Topology = "same_box"
	cfg.ReadSet.DefaultTTL = 0

	k, err := kernel.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return NewService(k), k
}

func testSubject() types.Subject {
	return types.Subject{ID: "alice", Zone: "default"}
}

func TestService_PutThenGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	subj := testSubject()

	stored, err := svc.Put(ctx, subj, types.MemoryEntry{
		Path:    "/memory/facts/bob",
		Subject: "agent1",
		Content: "Bob lives in New York",
		Tags:    []string{"people"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)

	got, err := svc.Get(ctx, subj, "/memory/facts/bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob lives in New York", got.Content)
	assert.Equal(t, []string{"people"}, got.Tags)
}

func TestService_AsOfSystemReturnsHistoricalVersion(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	subj := testSubject()

	_, err := svc.Put(ctx, subj, types.MemoryEntry{
		Path: "/memory/facts/bob", Subject: "agent1", Content: "Bob lives in New York",
	})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)

	_, err = svc.Put(ctx, subj, types.MemoryEntry{
		Path: "/memory/facts/bob", Subject: "agent1", Content: "Bob moved to San Francisco",
	})
	require.NoError(t, err)

	current, err := svc.Get(ctx, subj, "/memory/facts/bob")
	require.NoError(t, err)
	assert.Contains(t, current.Content, "San Francisco")

	historical, err := svc.GetAt(ctx, subj, "/memory/facts/bob", QueryOptions{AsOfSystem: cutoff})
	require.NoError(t, err)
	assert.Contains(t, historical.Content, "New York")
}

func TestService_AsOfEventRespectsValidityWindow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	subj := testSubject()

	validFrom := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err := svc.Put(ctx, subj, types.MemoryEntry{
		Path: "/memory/facts/role", Subject: "agent1", Content: "Works as engineer",
		ValidFrom: validFrom,
	})
	require.NoError(t, err)

	before := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	_, err = svc.GetAt(ctx, subj, "/memory/facts/role", QueryOptions{AsOfEvent: before})
	assert.Error(t, err, "not yet valid before valid_from")

	after := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	entry, err := svc.GetAt(ctx, subj, "/memory/facts/role", QueryOptions{AsOfEvent: after})
	require.NoError(t, err)
	assert.Equal(t, "Works as engineer", entry.Content)
}

func TestService_InvalidateEndsValidityWindow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	subj := testSubject()

	validFrom := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err := svc.Put(ctx, subj, types.MemoryEntry{
		Path: "/memory/facts/role", Subject: "agent1", Content: "Works as engineer",
		ValidFrom: validFrom,
	})
	require.NoError(t, err)

	invalidAt := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	_, err = svc.Invalidate(ctx, subj, "/memory/facts/role", invalidAt)
	require.NoError(t, err)

	duringJan, err := svc.GetAt(ctx, subj, "/memory/facts/role", QueryOptions{
		AsOfEvent: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "Works as engineer", duringJan.Content)

	_, err = svc.GetAt(ctx, subj, "/memory/facts/role", QueryOptions{
		AsOfEvent: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err, "no longer valid after invalid_at")
}

func TestService_SearchFiltersByTag(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	subj := testSubject()

	_, err := svc.Put(ctx, subj, types.MemoryEntry{
		Path: "/memory/notes/a", Subject: "agent1", Content: "note a", Tags: []string{"work"},
	})
	require.NoError(t, err)
	_, err = svc.Put(ctx, subj, types.MemoryEntry{
		Path: "/memory/notes/b", Subject: "agent1", Content: "note b", Tags: []string{"personal"},
	})
	require.NoError(t, err)

	results, err := svc.Search(ctx, subj, "/memory/notes", SearchOptions{Tags: []string{"work"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "note a", results[0].Content)
}
