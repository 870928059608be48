package cluster_test

import (
	"context"
	"testing"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
)

func TestCluster_SingleNodeBecomesLeader(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := &cluster.Config{
		NodeID:            "test-node-1",
		ListenAddr:        "127.0.0.1:18180",
		AdvertiseAddr:     "127.0.0.1:18180",
		ElectionTimeout:   300 * time.Millisecond,
		HeartbeatInterval: 100 * time.Millisecond,
		GossipInterval:    100 * time.Millisecond,
		GossipFanout:      2,
		MaxGossipPacket:   4096,
		LockLeaseTTL:      5 * time.Second,
	}

	c, err := cluster.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = c.Stop() }()

	if c.GetNodeID() != cfg.NodeID {
		t.Errorf("GetNodeID() = %s, want %s", c.GetNodeID(), cfg.NodeID)
	}

	time.Sleep(2 * time.Second)

	if !c.IsLeader() {
		t.Error("single-node cluster should elect itself leader")
	}

	stats := c.GetStats()
	if stats.TotalNodes != 1 || stats.AliveNodes != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCluster_ProposeCommitsOnSingleNode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := &cluster.Config{
		NodeID:            "test-node-2",
		ListenAddr:        "127.0.0.1:18181",
		AdvertiseAddr:     "127.0.0.1:18181",
		ElectionTimeout:   300 * time.Millisecond,
		HeartbeatInterval: 100 * time.Millisecond,
		GossipInterval:    100 * time.Millisecond,
		GossipFanout:      2,
		MaxGossipPacket:   4096,
		LockLeaseTTL:      5 * time.Second,
	}

	c, err := cluster.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = c.Stop() }()

	time.Sleep(2 * time.Second)

	index, err := c.Propose(ctx, []byte("put /foo.txt"))
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if index == 0 {
		t.Error("expected a non-zero commit index")
	}
}

func TestCluster_LockRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := &cluster.Config{
		NodeID:            "test-node-3",
		ListenAddr:        "127.0.0.1:18182",
		AdvertiseAddr:     "127.0.0.1:18182",
		ElectionTimeout:   300 * time.Millisecond,
		HeartbeatInterval: 100 * time.Millisecond,
		GossipInterval:    100 * time.Millisecond,
		GossipFanout:      2,
		MaxGossipPacket:   4096,
		LockLeaseTTL:      5 * time.Second,
	}

	c, err := cluster.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = c.Stop() }()

	time.Sleep(2 * time.Second)

	token, err := c.Locks().Lock(ctx, "/workspace/foo", "agent-1", time.Second, 1)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty lease token")
	}

	if _, err := c.Locks().Lock(ctx, "/workspace/foo", "agent-2", time.Second, 1); err == nil {
		t.Error("expected second holder to be rejected while lease is held")
	}

	if err := c.Locks().ExtendLock(ctx, "/workspace/foo", token, time.Second); err != nil {
		t.Errorf("ExtendLock() error = %v", err)
	}

	if err := c.Locks().Unlock(ctx, "/workspace/foo", token); err != nil {
		t.Errorf("Unlock() error = %v", err)
	}

	if _, err := c.Locks().Lock(ctx, "/workspace/foo", "agent-2", time.Second, 1); err != nil {
		t.Errorf("expected lock to be available after unlock, got %v", err)
	}
}
