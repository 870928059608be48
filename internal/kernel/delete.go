package kernel

import (
	"context"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// DeleteOptions configures a Delete call.
type DeleteOptions struct {
	// IfMatch, when set, requires the current etag to equal this value.
	IfMatch string
}

// Delete implements §4.7's delete(path, context): resolve, permission
// check, remove the metadata record, publish a file_delete event,
// invalidate the read sets that depended on path. The CAS object behind
// the deleted path's content hash is left in place; no code path deletes
// CAS objects, whether or not a metadata record still references them.
func (k *Kernel) Delete(ctx context.Context, subject types.Subject, path types.VirtualPath, opts DeleteOptions) error {
	if err := types.ValidatePath(string(path)); err != nil {
		return err
	}
	res, err := k.resolveZone(path, subject)
	if err != nil {
		return err
	}
	if err := k.checkPermission(ctx, subject, "write", path); err != nil {
		return err
	}
	if res.ReadOnly {
		return kernelerrors.PermissionDenied("kernel", "mount is read-only").WithContext("path", string(path))
	}

	current, err := k.meta.Get(ctx, path)
	if err != nil {
		return err
	}

	expectedETag := current.ETag
	if opts.IfMatch != "" {
		if current.ETag != opts.IfMatch {
			return kernelerrors.ConflictErr("kernel", "etag mismatch", opts.IfMatch, current.ETag)
		}
		expectedETag = opts.IfMatch
	}

	if err := k.meta.Delete(ctx, path, expectedETag); err != nil {
		return err
	}

	_ = k.events.Publish(ctx, types.Event{Type: types.EventFileDelete, Path: string(path), Zone: subject.Zone})
	k.invalidateReadSet(ctx, path, subject.Zone)

	return nil
}
