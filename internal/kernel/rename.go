package kernel

import (
	"context"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Rename implements §4.7's rename(old_path, new_path, context): both
// paths resolve to the same zone, the caller needs write on both, the
// content hash carries over untouched (I4 - rename never re-hashes), and
// every ReBAC tuple keyed on old_path is carried to new_path rather than
// dropped.
func (k *Kernel) Rename(ctx context.Context, subject types.Subject, oldPath, newPath types.VirtualPath) (*types.FileMetadata, error) {
	if err := types.ValidatePath(string(oldPath)); err != nil {
		return nil, err
	}
	if err := types.ValidatePath(string(newPath)); err != nil {
		return nil, err
	}

	oldRes, err := k.resolveZone(oldPath, subject)
	if err != nil {
		return nil, err
	}
	newRes, err := k.resolveZone(newPath, subject)
	if err != nil {
		return nil, err
	}
	if oldRes.Zone != newRes.Zone {
		return nil, kernelerrors.InvalidArgument("kernel", "rename cannot cross zones").
			WithContext("old_path", string(oldPath)).WithContext("new_path", string(newPath))
	}
	if newRes.ReadOnly || oldRes.ReadOnly {
		return nil, kernelerrors.PermissionDenied("kernel", "mount is read-only")
	}

	if err := k.checkPermission(ctx, subject, "write", oldPath); err != nil {
		return nil, err
	}
	if err := k.checkPermission(ctx, subject, "write", newPath); err != nil {
		return nil, err
	}

	current, err := k.meta.Get(ctx, oldPath)
	if err != nil {
		return nil, err
	}

	if existing, err := k.meta.Get(ctx, newPath); err == nil && existing != nil {
		return nil, kernelerrors.ConflictErr("kernel", "rename target already exists", "", existing.ETag)
	}

	next := *current
	next.Path = newPath
	next.Zone = newRes.Zone
	if err := k.meta.Put(ctx, &next, ""); err != nil {
		return nil, err
	}

	if err := k.meta.Delete(ctx, oldPath, current.ETag); err != nil {
		return nil, err
	}

	k.rebac.NotifyRenamed(string(oldPath), string(newPath), subject.Zone, "file")

	_ = k.events.Publish(ctx, types.Event{
		Type:    types.EventFileRename,
		Path:    string(newPath),
		OldPath: string(oldPath),
		Zone:    subject.Zone,
	})
	k.invalidateReadSet(ctx, oldPath, subject.Zone)
	k.invalidateReadSet(ctx, newPath, subject.Zone)

	return k.meta.Get(ctx, newPath)
}
