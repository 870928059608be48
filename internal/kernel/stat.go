package kernel

import (
	"context"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Stat implements §4.7's stat(path, context): a metadata-only read, same
// permission gate as Read but without ever touching CAS.
func (k *Kernel) Stat(ctx context.Context, subject types.Subject, path types.VirtualPath) (*types.FileMetadata, error) {
	if err := types.ValidatePath(string(path)); err != nil {
		return nil, err
	}
	if _, err := k.resolveZone(path, subject); err != nil {
		return nil, err
	}
	if err := k.checkPermission(ctx, subject, "read", path); err != nil {
		return nil, err
	}
	return k.meta.Get(ctx, path)
}
