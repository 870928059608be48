/*
Package router maintains the kernel's mount table: an ordered set of
(virtual prefix, backend, priority) bindings resolving a virtual path to
the backend responsible for it and the physical key that backend should
use.

Standard library only (sort, strings, sync). No routing/trie library
appears anywhere in the example pack for anything resembling a mount
table, and a linear scan over a handful of mounts needs none — see
DESIGN.md.
*/
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/nexi-lab/nexuskernel/internal/config"
	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Mount binds a virtual path prefix to a backend.
type Mount struct {
	Prefix   string
	Backend  string
	Zone     string
	Priority int
	ReadOnly bool
}

// Resolution is the result of resolving a virtual path: which backend
// serves it and the physical key to hand that backend, with the mount
// prefix stripped.
type Resolution struct {
	Backend     string
	PhysicalKey string
	Zone        string
	ReadOnly    bool
	MountPrefix string
}

// Router holds an ordered mount table, replaced atomically on Update.
// Update sorts the new table outside the lock and holds the write lock
// only to swap it in, while Resolve scans under the read lock, so a
// reader and a writer wait for each other only that long: a copy-on-write
// swap behind a RWMutex, the same guarded-state-swap idiom
// internal/circuit/breaker.go (teacher) uses for its state transitions,
// here applied to a slice instead of a single enum value.
type Router struct {
	mu     sync.RWMutex
	mounts []Mount
}

// New builds a Router from the configured mounts, validating that at
// least one mount anchors "/".
func New(cfgMounts []config.MountConfig) (*Router, error) {
	mounts := make([]Mount, len(cfgMounts))
	for i, m := range cfgMounts {
		mounts[i] = Mount{Prefix: m.Prefix, Backend: m.Backend, Zone: m.Zone, Priority: m.Priority, ReadOnly: m.ReadOnly}
	}
	r := &Router{}
	if err := r.Update(mounts); err != nil {
		return nil, err
	}
	return r, nil
}

// Update atomically replaces the mount table. At least one mount must
// anchor "/".
func (r *Router) Update(mounts []Mount) error {
	hasRoot := false
	for _, m := range mounts {
		if m.Prefix == "/" {
			hasRoot = true
		}
		if err := types.ValidatePath(normalizePrefix(m.Prefix)); err != nil && m.Prefix != "/" {
			return err
		}
	}
	if !hasRoot {
		return kernelerrors.InvalidArgument("router", "mount table must anchor \"/\"")
	}

	sorted := make([]Mount, len(mounts))
	copy(sorted, mounts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].Prefix) != len(sorted[j].Prefix) {
			return len(sorted[i].Prefix) > len(sorted[j].Prefix)
		}
		return sorted[i].Priority > sorted[j].Priority
	})

	r.mu.Lock()
	r.mounts = sorted
	r.mu.Unlock()
	return nil
}

func normalizePrefix(prefix string) string {
	if prefix == "/" {
		return "/"
	}
	return strings.TrimSuffix(prefix, "/")
}

// Resolve finds the longest-prefix-matching mount for path, ties broken
// by higher priority, and strips the mount prefix to produce the
// backend-relative physical key.
func (r *Router) Resolve(path string) (Resolution, error) {
	if err := types.ValidatePath(path); err != nil {
		return Resolution{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.mounts {
		if types.HasPrefix(path, normalizePrefix(m.Prefix)) {
			key := strings.TrimPrefix(path, normalizePrefix(m.Prefix))
			key = strings.TrimPrefix(key, "/")
			return Resolution{
				Backend:     m.Backend,
				PhysicalKey: key,
				Zone:        m.Zone,
				ReadOnly:    m.ReadOnly,
				MountPrefix: m.Prefix,
			}, nil
		}
	}
	return Resolution{}, kernelerrors.NotFound("router", "no mount covers path").WithContext("path", path)
}

// Mounts returns a snapshot of the current mount table, longest-prefix
// first.
func (r *Router) Mounts() []Mount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mount, len(r.mounts))
	copy(out, r.mounts)
	return out
}
