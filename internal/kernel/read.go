package kernel

import (
	"context"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// ReadOptions configures a Read call. QueryID, when non-empty, causes the
// read to register a read-set entry for path so a later write can
// invalidate this query precisely; a one-off read with no QueryID skips
// read-set bookkeeping entirely, since there's no query to invalidate.
type ReadOptions struct {
	ReturnMetadata bool
	QueryID        string
}

// Read implements §4.7's read(path, context, return_metadata?): resolve,
// permission check, fetch metadata, fetch bytes by content hash, record
// the read set, return.
func (k *Kernel) Read(ctx context.Context, subject types.Subject, path types.VirtualPath, opts ReadOptions) ([]byte, *types.FileMetadata, error) {
	if err := types.ValidatePath(string(path)); err != nil {
		return nil, nil, err
	}
	if _, err := k.resolveZone(path, subject); err != nil {
		return nil, nil, err
	}
	if err := k.checkPermission(ctx, subject, "read", path); err != nil {
		return nil, nil, err
	}

	meta, err := k.meta.Get(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	data, err := k.cas.Get(ctx, meta.ContentHash)
	if err != nil {
		return nil, nil, err
	}

	if opts.QueryID != "" {
		_ = k.readset.Register(ctx, types.ReadSetEntry{
			QueryID: opts.QueryID,
			Paths:   []string{string(path)},
			Zones:   []string{subject.Zone},
		})
	}

	if opts.ReturnMetadata {
		return data, meta, nil
	}
	return data, nil, nil
}
