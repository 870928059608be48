package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/config"
	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// distributedBus implements types.EventBus over the cluster's gossip
// transport (change notifications) and its consensus-leader lease locks.
// Grounded on internal/cluster/gossip.go's envelope-flood broadcast and
// internal/cluster/coordinator.go's LockCoordinator.
type distributedBus struct {
	cluster *cluster.Cluster

	mu           sync.Mutex
	revisions    map[string]uint64 // "zone\x00path" -> last revision seen
	waiters      map[uint64]*waiter
	nextWaiterID uint64
}

type waiter struct {
	pattern string
	zone    string
	since   uint64
	ch      chan types.Event
}

var _ types.EventBus = (*distributedBus)(nil)

func newDistributedBus(cfg config.EventsConfig, cl *cluster.Cluster) (*distributedBus, error) {
	if cl == nil {
		return nil, kernelerrors.InvalidArgument("events", "distributed topology requires a cluster")
	}
	b := &distributedBus{
		cluster:   cl,
		revisions: make(map[string]uint64),
		waiters:   make(map[uint64]*waiter),
	}
	cl.OnEvent(b.onRemoteEvent)
	return b, nil
}

func (b *distributedBus) onRemoteEvent(from string, payload json.RawMessage) {
	var ev types.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	b.deliverLocal(ev)
}

// Publish assigns the next revision for (ev.Zone, ev.Path), floods the
// event to the rest of the cluster, and notifies local waiters.
func (b *distributedBus) Publish(ctx context.Context, ev types.Event) error {
	b.mu.Lock()
	key := revisionKey(ev.Zone, ev.Path)
	b.revisions[key]++
	ev.Revision = b.revisions[key]
	b.mu.Unlock()

	if err := b.cluster.BroadcastEvent(ev); err != nil {
		return err
	}
	b.deliverLocal(ev)
	return nil
}

func (b *distributedBus) deliverLocal(ev types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, w := range b.waiters {
		if w.zone != "" && w.zone != ev.Zone {
			continue
		}
		if ev.Revision <= w.since {
			continue
		}
		if !matches(w.pattern, ev.Path) && !matches(w.pattern, ev.OldPath) {
			continue
		}
		select {
		case w.ch <- ev:
			delete(b.waiters, id)
		default:
		}
	}
}

// WaitForChanges blocks until an event matching pattern/zone with a
// revision above sinceRevision arrives, timeout elapses, or ctx is
// canceled. The latter two both return (nil, nil).
func (b *distributedBus) WaitForChanges(ctx context.Context, pattern, zone string, sinceRevision uint64, timeout time.Duration) (*types.Event, error) {
	w := &waiter{pattern: pattern, zone: zone, since: sinceRevision, ch: make(chan types.Event, 1)}

	b.mu.Lock()
	b.nextWaiterID++
	id := b.nextWaiterID
	b.waiters[id] = w
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiters, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.ch:
		return &ev, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}
}

func (b *distributedBus) Lock(ctx context.Context, path, holder string, timeout, ttl time.Duration, maxHolders int) (string, error) {
	return acquireWithRetry(ctx, timeout, func() (string, error) {
		return b.cluster.Locks().Lock(ctx, path, holder, ttl, maxHolders)
	})
}

func (b *distributedBus) ExtendLock(ctx context.Context, lockID, path string, ttl time.Duration) (bool, error) {
	if err := b.cluster.Locks().ExtendLock(ctx, path, lockID, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (b *distributedBus) Unlock(ctx context.Context, lockID, path string) (bool, error) {
	if err := b.cluster.Locks().Unlock(ctx, path, lockID); err != nil {
		return false, err
	}
	return true, nil
}

func revisionKey(zone, path string) string { return zone + "\x00" + path }
