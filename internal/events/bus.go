package events

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// New selects and constructs the track named by cfg.Topology. cl may be
// nil for the same-box track; it must be non-nil for "distributed".
func New(cfg config.EventsConfig, cl *cluster.Cluster) (types.EventBus, error) {
	switch cfg.Topology {
	case "distributed":
		return newDistributedBus(cfg, cl)
	default:
		return newSameBoxBus(cfg)
	}
}

// matches reports whether path falls under pattern, which may be a
// literal path, a glob containing * or ?, or a directory prefix ending
// in "/" (matching the whole subtree).
func matches(pattern, path string) bool {
	if pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "/") {
		return types.HasPrefix(path, strings.TrimSuffix(pattern, "/"))
	}
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := filepath.Match(pattern, path)
		return err == nil && ok
	}
	return pattern == path
}

// acquireWithRetry retries attempt at a short interval until it succeeds,
// timeout elapses, or ctx is canceled. A timeout/cancellation returns
// ("", nil), matching lock()'s "lock_id | None" contract.
func acquireWithRetry(ctx context.Context, timeout time.Duration, attempt func() (string, error)) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		token, err := attempt()
		if err == nil {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", nil
		case <-time.After(25 * time.Millisecond):
		}
	}
}
