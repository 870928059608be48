package kernel

import (
	"context"

	"github.com/pmezard/go-difflib/difflib"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// GetVersion implements §4.7's get_version(path, version, context): fetch
// the version record and the bytes it points to.
func (k *Kernel) GetVersion(ctx context.Context, subject types.Subject, path types.VirtualPath, version int64) ([]byte, *types.VersionRecord, error) {
	if _, err := k.resolveZone(path, subject); err != nil {
		return nil, nil, err
	}
	if err := k.checkPermission(ctx, subject, "read", path); err != nil {
		return nil, nil, err
	}

	rec, err := k.meta.GetVersion(ctx, path, version)
	if err != nil {
		return nil, nil, err
	}

	data, err := k.cas.Get(ctx, rec.ContentHash)
	if err != nil {
		return nil, nil, err
	}
	return data, rec, nil
}

// ListVersions implements §4.7's list_versions(path, context).
func (k *Kernel) ListVersions(ctx context.Context, subject types.Subject, path types.VirtualPath) ([]types.VersionRecord, error) {
	if _, err := k.resolveZone(path, subject); err != nil {
		return nil, err
	}
	if err := k.checkPermission(ctx, subject, "read", path); err != nil {
		return nil, err
	}
	return k.meta.Versions(ctx, path)
}

// Rollback implements §4.7's rollback(path, version, context): write
// permission required, since a rollback appends a new current version
// rather than mutating history.
func (k *Kernel) Rollback(ctx context.Context, subject types.Subject, path types.VirtualPath, version int64) (*types.FileMetadata, error) {
	if _, err := k.resolveZone(path, subject); err != nil {
		return nil, err
	}
	if err := k.checkPermission(ctx, subject, "write", path); err != nil {
		return nil, err
	}

	if err := k.meta.Rollback(ctx, path, version); err != nil {
		return nil, err
	}

	updated, err := k.meta.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	_ = k.events.Publish(ctx, types.Event{Type: types.EventFileWrite, Path: string(path), Zone: subject.Zone})
	k.invalidateReadSet(ctx, path, subject.Zone)

	return updated, nil
}

// DiffVersions implements §4.7's diff_versions(path, version_a, version_b,
// context): a unified diff over the two versions' content, grounded on
// the same pmezard/go-difflib the teacher's test suite already pulls in
// through testify - here used directly for its intended purpose rather
// than only as assert's transitive dependency.
func (k *Kernel) DiffVersions(ctx context.Context, subject types.Subject, path types.VirtualPath, versionA, versionB int64) (string, error) {
	if _, err := k.resolveZone(path, subject); err != nil {
		return "", err
	}
	if err := k.checkPermission(ctx, subject, "read", path); err != nil {
		return "", err
	}

	recA, err := k.meta.GetVersion(ctx, path, versionA)
	if err != nil {
		return "", err
	}
	recB, err := k.meta.GetVersion(ctx, path, versionB)
	if err != nil {
		return "", err
	}

	dataA, err := k.cas.Get(ctx, recA.ContentHash)
	if err != nil {
		return "", err
	}
	dataB, err := k.cas.Get(ctx, recB.ContentHash)
	if err != nil {
		return "", err
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(dataA)),
		B:        difflib.SplitLines(string(dataB)),
		FromFile: string(recA.Path),
		ToFile:   string(recB.Path),
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", kernelerrors.Internal("kernel", err)
	}
	return text, nil
}
