package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// WorkspaceSnapshot records the content hash of every file under a
// workspace prefix at a point in time, so restore can re-point each file
// back to the content it held then without keeping a second copy of the
// bytes - the content object is already retained by CAS as long as any
// version record still references it.
type WorkspaceSnapshot struct {
	ID        string
	Workspace types.VirtualPath
	Files     map[types.VirtualPath]string // path -> content hash at snapshot time
	CreatedAt time.Time
}

// snapshotStore holds every snapshot taken so far, behind a single mutex -
// the same small guarded-map shape internal/readset.Registry and the
// teacher's ConsensusStats use for state that's read and written far less
// often than it's consulted.
type snapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]WorkspaceSnapshot
}

func newSnapshotStore() *snapshotStore {
	return &snapshotStore{snapshots: make(map[string]WorkspaceSnapshot)}
}

// CreateSnapshot implements the workspace snapshot "create" operation:
// enumerate every file under workspace, record its content hash.
func (k *Kernel) CreateSnapshot(ctx context.Context, subject types.Subject, workspace types.VirtualPath) (*WorkspaceSnapshot, error) {
	if err := types.ValidatePath(string(workspace)); err != nil {
		return nil, err
	}
	if _, err := k.resolveZone(workspace, subject); err != nil {
		return nil, err
	}
	if err := k.checkPermission(ctx, subject, "read", workspace); err != nil {
		return nil, err
	}

	entries, err := k.listPrefix(ctx, workspace, true)
	if err != nil {
		return nil, err
	}

	files := make(map[types.VirtualPath]string, len(entries))
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		p := types.VirtualPath(e.Name)
		meta, err := k.meta.Get(ctx, p)
		if err != nil {
			continue
		}
		files[p] = meta.ContentHash
	}

	snap := WorkspaceSnapshot{
		ID:        uuid.NewString(),
		Workspace: workspace,
		Files:     files,
		CreatedAt: time.Now(),
	}

	k.snapshots.mu.Lock()
	k.snapshots.snapshots[snap.ID] = snap
	k.snapshots.mu.Unlock()

	return &snap, nil
}

// GetSnapshot returns a previously taken snapshot by id. The returned
// Files map is a copy, so a caller can't mutate registry state through it.
func (k *Kernel) GetSnapshot(ctx context.Context, id string) (*WorkspaceSnapshot, error) {
	k.snapshots.mu.RLock()
	defer k.snapshots.mu.RUnlock()
	snap, ok := k.snapshots.snapshots[id]
	if !ok {
		return nil, kernelerrors.NotFound("kernel", "no such snapshot").WithContext("snapshot_id", id)
	}
	copied := snap
	copied.Files = make(map[types.VirtualPath]string, len(snap.Files))
	for p, h := range snap.Files {
		copied.Files[p] = h
	}
	return &copied, nil
}

// RestoreSnapshot implements the "restore" operation: for every file the
// snapshot recorded, find the most recent version whose content hash
// matches and roll that file back to it. A file already at the recorded
// hash is left untouched; a file created after the snapshot and absent
// from it is left alone too - restore brings recorded files back, it
// doesn't delete newcomers.
func (k *Kernel) RestoreSnapshot(ctx context.Context, subject types.Subject, id string) error {
	snap, err := k.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}

	if err := k.checkPermission(ctx, subject, "write", snap.Workspace); err != nil {
		return err
	}

	for path, hash := range snap.Files {
		if err := k.restoreFileToHash(ctx, subject, path, hash); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kernel) restoreFileToHash(ctx context.Context, subject types.Subject, path types.VirtualPath, hash string) error {
	current, err := k.meta.Get(ctx, path)
	if err != nil {
		return err
	}
	if current.ContentHash == hash {
		return nil
	}

	versions, err := k.meta.Versions(ctx, path)
	if err != nil {
		return err
	}

	var target int64 = -1
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].ContentHash == hash {
			target = versions[i].Version
			break
		}
	}
	if target < 0 {
		return kernelerrors.NotFound("kernel", "snapshot content no longer has a matching version").
			WithContext("path", string(path))
	}

	_, err = k.Rollback(ctx, subject, path, target)
	return err
}
