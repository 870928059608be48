// Package cluster provides the replicated-log / gossip substrate the
// metadata store proposes writes through and the event bus takes
// cross-node leases on. It is grounded on the teacher's distributed
// package, trimmed of the generic cache-replication/load-balancer
// machinery that duplicated what the CAS backend and metadata store
// already do, and wired to a real UDP gossip transport instead of
// simulated network delays (see DESIGN.md).
package cluster

import (
	cryptorand "crypto/rand"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/config"
)

// NodeStatus represents the liveness state of a cluster node.
type NodeStatus string

const (
	NodeStatusAlive   NodeStatus = "alive"
	NodeStatusSuspect NodeStatus = "suspect"
	NodeStatusDead    NodeStatus = "dead"
	NodeStatusJoining NodeStatus = "joining"
	NodeStatusLeaving NodeStatus = "leaving"
)

// NodeInfo describes one member of the cluster.
type NodeInfo struct {
	ID                string            `json:"id"`
	Address           string            `json:"address"`
	Status            NodeStatus        `json:"status"`
	LastSeen          time.Time         `json:"last_seen"`
	Version           string            `json:"version"`
	Metadata          map[string]string `json:"metadata"`
	ProposalsAccepted int64             `json:"proposals_accepted"`
	OperationsApplied int64             `json:"operations_applied"`
}

// ClusterStats is a point-in-time snapshot exposed on the health endpoint.
type ClusterStats struct {
	NodeID       string
	TotalNodes   int
	AliveNodes   int
	SuspectNodes int
	DeadNodes    int
	CurrentLeader string
	IsLeader     bool
	Uptime       time.Duration
	Consensus    ConsensusStats
	Gossip       GossipStats
}

// Config carries the node/gossip/consensus tuning knobs that don't belong
// in the user-facing config.ClusterConfig. It is built from the latter
// plus config.EventsConfig via FromKernelConfig.
type Config struct {
	NodeID            string
	ListenAddr        string
	AdvertiseAddr     string
	SeedNodes         []string
	JoinTimeout       time.Duration
	ElectionTimeout   time.Duration
	HeartbeatInterval time.Duration
	LeadershipTTL     time.Duration
	GossipInterval    time.Duration
	GossipFanout      int
	MaxGossipPacket   int
	LockLeaseTTL      time.Duration
}

// FromKernelConfig derives cluster tuning from the kernel's top-level
// cluster and events configuration sections, filling in operational
// defaults the user-facing config doesn't expose.
func FromKernelConfig(cc config.ClusterConfig, ec config.EventsConfig) *Config {
	cfg := &Config{
		NodeID:            cc.NodeID,
		ListenAddr:        cc.BindAddress,
		AdvertiseAddr:     cc.BindAddress,
		SeedNodes:         cc.Peers,
		JoinTimeout:       10 * time.Second,
		ElectionTimeout:   cc.ElectionTimeout,
		HeartbeatInterval: cc.HeartbeatInterval,
		LeadershipTTL:     3 * cc.ElectionTimeout,
		GossipInterval:    cc.HeartbeatInterval,
		GossipFanout:      ec.GossipFanout,
		MaxGossipPacket:   65536,
		LockLeaseTTL:      ec.LockLeaseTTL,
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:7946"
		cfg.AdvertiseAddr = cfg.ListenAddr
	}
	if cfg.ElectionTimeout == 0 {
		cfg.ElectionTimeout = 1500 * time.Millisecond
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 150 * time.Millisecond
	}
	if cfg.GossipInterval == 0 {
		cfg.GossipInterval = cfg.HeartbeatInterval
	}
	if cfg.GossipFanout == 0 {
		cfg.GossipFanout = 3
	}
	if cfg.LockLeaseTTL == 0 {
		cfg.LockLeaseTTL = 30 * time.Second
	}
	return cfg
}

// Cluster wires gossip membership, Raft-like consensus, and lease-based
// locking into a single replicated substrate. It implements
// types.ReplicatedLog by delegating Propose/Query/IsLeader/LeaderAddress
// to its consensus engine.
type Cluster struct {
	mu        sync.RWMutex
	config    *Config
	nodeID    string
	nodes     map[string]*NodeInfo
	leader    string
	isLeader  bool
	gossip    *Gossip
	consensus *ConsensusEngine
	locks     *LockCoordinator
	startTime time.Time
	stopCh    chan struct{}
}

// New creates a cluster manager. If config.NodeID is empty a random one
// is generated.
func New(cfg *Config) (*Cluster, error) {
	nodeID := cfg.NodeID
	if nodeID == "" {
		b := make([]byte, 8)
		if _, err := cryptorand.Read(b); err != nil {
			return nil, fmt.Errorf("generate node id: %w", err)
		}
		nodeID = hex.EncodeToString(b)
	}

	c := &Cluster{
		config: cfg,
		nodeID: nodeID,
		nodes:  make(map[string]*NodeInfo),
		stopCh: make(chan struct{}),
	}
	c.nodes[nodeID] = &NodeInfo{ID: nodeID, Address: cfg.AdvertiseAddr, Status: NodeStatusAlive, LastSeen: time.Now(), Metadata: map[string]string{}}

	c.gossip = newGossip(c, cfg)
	c.consensus = newConsensusEngine(c, cfg)
	c.locks = newLockCoordinator(c, cfg)
	c.gossip.onConsensusMessage(c.consensus.handleEnvelope)

	return c, nil
}

// Start joins seed nodes and starts all background loops.
func (c *Cluster) Start(ctx context.Context) error {
	c.startTime = time.Now()

	if err := c.gossip.start(); err != nil {
		return err
	}
	c.consensus.start(ctx)
	c.locks.start(ctx)

	for _, seed := range c.config.SeedNodes {
		if seed == c.config.AdvertiseAddr {
			continue
		}
		if err := c.gossip.join(seed); err != nil {
			log.Printf("cluster: failed to join seed %s: %v", seed, err)
		}
	}

	go c.healthCheckLoop(ctx)
	return nil
}

// Stop leaves the cluster and halts all background loops.
func (c *Cluster) Stop() error {
	_ = c.gossip.leave()
	close(c.stopCh)
	c.consensus.stop()
	c.locks.stop()
	c.gossip.stop()
	return nil
}

// GetNodeID returns this node's cluster identifier.
func (c *Cluster) GetNodeID() string { return c.nodeID }

// IsLeader reports whether this node currently holds consensus leadership.
func (c *Cluster) IsLeader() bool { return c.consensus.IsLeader() }

// LeaderAddress returns the advertise address of the current leader, or
// "" if none is known.
func (c *Cluster) LeaderAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if node, ok := c.nodes[c.leader]; ok {
		return node.Address
	}
	return ""
}

// Propose submits a command to the replicated log. Only the leader may
// propose; followers return a NotLeader error carrying the leader address.
func (c *Cluster) Propose(ctx context.Context, command []byte) (uint64, error) {
	return c.consensus.Propose(ctx, command)
}

// Query returns the highest index guaranteed to be committed, for
// read-your-writes checks against the metadata store.
func (c *Cluster) Query(ctx context.Context) (uint64, error) {
	return c.consensus.Query(ctx)
}

// Locks returns the lease-based lock coordinator used by the distributed
// event bus implementation.
func (c *Cluster) Locks() *LockCoordinator { return c.locks }

// BroadcastEvent floods an opaque change-notification payload to every
// live cluster member, for the distributed event bus's zone-partitioned
// pub/sub track.
func (c *Cluster) BroadcastEvent(payload interface{}) error {
	return c.gossip.broadcastEvent(payload)
}

// OnEvent registers the handler invoked when this node receives a
// change-notification payload broadcast by BroadcastEvent. Exactly one
// consumer (the distributed event bus) is expected to register a hook.
func (c *Cluster) OnEvent(fn func(from string, payload json.RawMessage)) {
	c.gossip.onEventMessage(fn)
}

// OnApply registers the state machine callback invoked, in log order, as
// proposed commands become committed. Exactly one consumer (the metadata
// store) is expected to register a hook per cluster instance.
func (c *Cluster) OnApply(fn func(entry LogEntry)) {
	c.consensus.OnApply(fn)
}

// GetNodes returns a snapshot of all known cluster members.
func (c *Cluster) GetNodes() map[string]*NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*NodeInfo, len(c.nodes))
	for k, v := range c.nodes {
		cp := *v
		out[k] = &cp
	}
	return out
}

// GetStats returns a point-in-time snapshot of cluster health.
func (c *Cluster) GetStats() ClusterStats {
	c.mu.RLock()
	stats := ClusterStats{
		NodeID:        c.nodeID,
		TotalNodes:    len(c.nodes),
		CurrentLeader: c.leader,
		IsLeader:      c.isLeader,
		Uptime:        time.Since(c.startTime),
	}
	for _, n := range c.nodes {
		switch n.Status {
		case NodeStatusAlive:
			stats.AliveNodes++
		case NodeStatusSuspect:
			stats.SuspectNodes++
		case NodeStatusDead:
			stats.DeadNodes++
		}
	}
	c.mu.RUnlock()
	stats.Consensus = c.consensus.GetStats()
	stats.Gossip = c.gossip.snapshot()
	return stats
}

func (c *Cluster) updateNodeInfo(id string, info *NodeInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[id] = info
}

func (c *Cluster) removeNode(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, id)
}

func (c *Cluster) setLeader(id string) {
	c.mu.Lock()
	c.leader = id
	c.isLeader = id == c.nodeID
	c.mu.Unlock()
}

func (c *Cluster) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.HeartbeatInterval * 5)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.checkNodeHealth()
		}
	}
}

func (c *Cluster) checkNodeHealth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	leaderGone := c.leader != "" && c.leader != c.nodeID
	if node, ok := c.nodes[c.leader]; ok && leaderGone {
		if time.Since(node.LastSeen) > c.config.LeadershipTTL {
			node.Status = NodeStatusDead
			log.Printf("cluster: leader %s presumed dead, triggering election", c.leader)
			go c.consensus.TriggerElection(context.Background())
		}
	}
}
