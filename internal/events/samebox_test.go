package events_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/internal/events"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

func newSameBoxTestBus(t *testing.T) types.EventBus {
	t.Helper()
	root := t.TempDir()
	bus, err := events.New(config.EventsConfig{Topology: "same_box", WatchRoot: root}, nil)
	require.NoError(t, err)
	if closer, ok := bus.(interface{ Close() error }); ok {
		t.Cleanup(func() { _ = closer.Close() })
	}
	return bus
}

func TestSameBoxBus_WaitForChangesObservesWrite(t *testing.T) {
	root := t.TempDir()
	bus, err := events.New(config.EventsConfig{Topology: "same_box", WatchRoot: root}, nil)
	require.NoError(t, err)
	if closer, ok := bus.(interface{ Close() error }); ok {
		t.Cleanup(func() { _ = closer.Close() })
	}

	target := filepath.Join(root, "file.txt")
	done := make(chan *types.Event, 1)
	go func() {
		ev, err := bus.WaitForChanges(context.Background(), target, "", 0, 2*time.Second)
		require.NoError(t, err)
		done <- ev
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	select {
	case ev := <-done:
		require.NotNil(t, ev)
		assert.Equal(t, target, ev.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestSameBoxBus_WaitForChangesTimesOutWithNoEvent(t *testing.T) {
	bus := newSameBoxTestBus(t)

	ev, err := bus.WaitForChanges(context.Background(), "/never/matches", "", 0, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestSameBoxBus_LockIsExclusiveByDefault(t *testing.T) {
	bus := newSameBoxTestBus(t)
	ctx := context.Background()

	token, err := bus.Lock(ctx, "/a", "agent-1", time.Second, time.Minute, 1)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	second, err := bus.Lock(ctx, "/a", "agent-2", 50*time.Millisecond, time.Minute, 1)
	require.NoError(t, err)
	assert.Empty(t, second, "a second holder should not acquire an exclusive lock")

	ok, err := bus.Unlock(ctx, token, "/a")
	require.NoError(t, err)
	assert.True(t, ok)

	third, err := bus.Lock(ctx, "/a", "agent-2", time.Second, time.Minute, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}

func TestSameBoxBus_LockCountingSemaphore(t *testing.T) {
	bus := newSameBoxTestBus(t)
	ctx := context.Background()

	first, err := bus.Lock(ctx, "/pool", "agent-1", time.Second, time.Minute, 2)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := bus.Lock(ctx, "/pool", "agent-2", time.Second, time.Minute, 2)
	require.NoError(t, err)
	require.NotEmpty(t, second)

	third, err := bus.Lock(ctx, "/pool", "agent-3", 50*time.Millisecond, time.Minute, 2)
	require.NoError(t, err)
	assert.Empty(t, third, "a third holder should not fit in a 2-holder semaphore")
}

func TestSameBoxBus_ExtendLockIsANoOp(t *testing.T) {
	bus := newSameBoxTestBus(t)
	ctx := context.Background()

	token, err := bus.Lock(ctx, "/a", "agent-1", time.Second, time.Minute, 1)
	require.NoError(t, err)

	ok, err := bus.ExtendLock(ctx, token, "/a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
