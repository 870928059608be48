/*
Package cluster is the kernel's replicated substrate: cluster membership,
leader election, log replication, and cross-node locking.

Three pieces share one UDP gossip transport:

  - Gossip: SWIM-style membership (join/leave/suspect/dead) and the
    generic envelope both other pieces ride on instead of opening a
    second listener.
  - ConsensusEngine: a Raft-like replicated log satisfying
    types.ReplicatedLog (Propose/Query/IsLeader/LeaderAddress). The
    metadata store proposes writes through it when cluster.enabled is
    true; a single-node cluster elects itself on its first election
    timeout and then commits each entry locally.
  - LockCoordinator: leader-granted lease locks used by the distributed
    event bus to implement cross-node file locking.

Build a Cluster with New(FromKernelConfig(cfg.Cluster, cfg.Events)), then
Start(ctx) to join configured seed nodes and begin the election and
gossip loops.
*/
package cluster
