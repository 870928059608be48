// Package events implements the dual-track change-stream and lock
// contract: wait_for_changes, lock, extend_lock, unlock, behind a single
// types.EventBus interface.
//
// Two tracks satisfy the same contract. The distributed track floods
// change notifications to every cluster member over the gossip transport
// and takes leases through the cluster's consensus leader. The same-box
// track watches the directory tree under EventsConfig.WatchRoot with
// fsnotify and keeps an in-memory
// lock table. Track selection is driven by config.EventsConfig.Topology;
// callers never see which one they got.
package events
