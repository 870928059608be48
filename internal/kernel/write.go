package kernel

import (
	"context"
	"time"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// defaultLockTTL bounds how long a write(lock=true) call holds its lease
// once acquired, independent of how long the caller was willing to wait
// to acquire it (LockTimeout).
const defaultLockTTL = 30 * time.Second

// WriteOptions configures a Write call per §4.7's
// write(path, bytes, context, if_match?, if_none_match?, force?, lock?,
// lock_timeout?).
type WriteOptions struct {
	// IfMatch requires the current etag to equal this value; a mismatch
	// or missing target is a conflict/not-found error.
	IfMatch string
	// IfNoneMatch rejects the write if the target already exists.
	IfNoneMatch string
	// Force bypasses a read-only mount's write rejection.
	Force bool
	// Lock acquires an exclusive lease on path for the duration of the
	// write, so a concurrent writer waits instead of racing.
	Lock        bool
	LockTimeout time.Duration
}

// Write implements §4.7's write operation: resolve, lock (optional),
// permission check, precondition check, hash+store the bytes in CAS,
// persist metadata, publish a file_write event, invalidate the read sets
// that depended on path.
func (k *Kernel) Write(ctx context.Context, subject types.Subject, path types.VirtualPath, data []byte, opts WriteOptions) (*types.FileMetadata, error) {
	if err := types.ValidatePath(string(path)); err != nil {
		return nil, err
	}
	res, err := k.resolveZone(path, subject)
	if err != nil {
		return nil, err
	}

	if opts.Lock {
		lockID, err := k.events.Lock(ctx, string(path), subject.ID, opts.LockTimeout, defaultLockTTL, 1)
		if err != nil {
			return nil, err
		}
		if lockID == "" {
			return nil, kernelerrors.TimeoutErr("kernel", "timed out acquiring lock").WithContext("path", string(path))
		}
		defer func() { _, _ = k.events.Unlock(context.Background(), lockID, string(path)) }()
	}

	if err := k.checkPermission(ctx, subject, "write", path); err != nil {
		return nil, err
	}
	if res.ReadOnly && !opts.Force {
		return nil, kernelerrors.PermissionDenied("kernel", "mount is read-only").WithContext("path", string(path))
	}

	current, _ := k.meta.Get(ctx, path)

	expectedETag, err := writePrecondition(current, opts)
	if err != nil {
		return nil, err
	}

	hash, err := k.cas.Put(ctx, data)
	if err != nil {
		return nil, err
	}

	meta := &types.FileMetadata{
		Path:         path,
		Zone:         subject.Zone,
		Size:         int64(len(data)),
		Mode:         0o644,
		OwnerSubject: subject.ID,
		ContentHash:  hash,
	}
	if current != nil {
		meta.Mode = current.Mode
		meta.GroupID = current.GroupID
	}

	if err := k.meta.Put(ctx, meta, expectedETag); err != nil {
		return nil, err
	}

	if current == nil {
		k.rebac.NotifyCreated(string(path), subject.Zone, "file")
	}

	updated, err := k.meta.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	_ = k.events.Publish(ctx, types.Event{Type: types.EventFileWrite, Path: string(path), Zone: subject.Zone})
	k.invalidateReadSet(ctx, path, subject.Zone)

	return updated, nil
}

// writePrecondition translates if_match/if_none_match into the etag the
// metadata store's Put expects, or rejects the write outright. A plain
// write with neither flag set upserts unconditionally against whatever is
// currently at path, matching ordinary filesystem write semantics.
func writePrecondition(current *types.FileMetadata, opts WriteOptions) (string, error) {
	if opts.IfNoneMatch != "" {
		if current != nil {
			return "", kernelerrors.ConflictErr("kernel", "target already exists", "", current.ETag)
		}
		return "", nil
	}
	if opts.IfMatch != "" {
		if current == nil {
			return "", kernelerrors.NotFound("kernel", "no metadata at path")
		}
		if current.ETag != opts.IfMatch {
			return "", kernelerrors.ConflictErr("kernel", "etag mismatch", opts.IfMatch, current.ETag)
		}
		return opts.IfMatch, nil
	}
	if current == nil {
		return "", nil
	}
	return current.ETag, nil
}
