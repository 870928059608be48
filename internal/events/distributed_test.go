package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/internal/events"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

func newSingleNodeCluster(t *testing.T, addr string) *cluster.Cluster {
	t.Helper()
	cfg := &cluster.Config{
		NodeID:            addr,
		ListenAddr:        addr,
		AdvertiseAddr:     addr,
		ElectionTimeout:   300 * time.Millisecond,
		HeartbeatInterval: 100 * time.Millisecond,
		GossipInterval:    100 * time.Millisecond,
		GossipFanout:      2,
		MaxGossipPacket:   4096,
		LockLeaseTTL:      5 * time.Second,
	}
	c, err := cluster.New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })
	time.Sleep(2 * time.Second)
	require.True(t, c.IsLeader(), "single-node cluster must elect itself leader before the event bus can grant locks")
	return c
}

func TestDistributedBus_PublishDeliversToWaiter(t *testing.T) {
	c := newSingleNodeCluster(t, "127.0.0.1:18280")
	bus, err := events.New(config.EventsConfig{Topology: "distributed"}, c)
	require.NoError(t, err)

	done := make(chan *types.Event, 1)
	go func() {
		ev, err := bus.WaitForChanges(context.Background(), "/ws/a.txt", "zone-1", 0, 2*time.Second)
		require.NoError(t, err)
		done <- ev
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), types.Event{
		Type: types.EventFileWrite, Path: "/ws/a.txt", Zone: "zone-1",
	}))

	select {
	case ev := <-done:
		require.NotNil(t, ev)
		assert.Equal(t, "/ws/a.txt", ev.Path)
		assert.Equal(t, uint64(1), ev.Revision)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestDistributedBus_WaitForChangesHonorsSinceRevision(t *testing.T) {
	c := newSingleNodeCluster(t, "127.0.0.1:18281")
	bus, err := events.New(config.EventsConfig{Topology: "distributed"}, c)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, types.Event{Type: types.EventFileWrite, Path: "/ws/b.txt", Zone: "zone-1"}))
	require.NoError(t, bus.Publish(ctx, types.Event{Type: types.EventFileWrite, Path: "/ws/b.txt", Zone: "zone-1"}))

	ev, err := bus.WaitForChanges(ctx, "/ws/b.txt", "zone-1", 2, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev, "no event above revision 2 has been published yet")
}

func TestDistributedBus_LockRoundTrip(t *testing.T) {
	c := newSingleNodeCluster(t, "127.0.0.1:18282")
	bus, err := events.New(config.EventsConfig{Topology: "distributed"}, c)
	require.NoError(t, err)
	ctx := context.Background()

	token, err := bus.Lock(ctx, "/ws/locked", "agent-1", time.Second, time.Minute, 1)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	blocked, err := bus.Lock(ctx, "/ws/locked", "agent-2", 50*time.Millisecond, time.Minute, 1)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	ok, err := bus.Unlock(ctx, token, "/ws/locked")
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := bus.Lock(ctx, "/ws/locked", "agent-2", time.Second, time.Minute, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, after)
}
