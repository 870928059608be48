package kernel

import (
	"context"

	"github.com/nexi-lab/nexuskernel/internal/metadatastore"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// BatchWriteItem is one member of a write_batch call.
type BatchWriteItem struct {
	Path    types.VirtualPath
	Data    []byte
	IfMatch string
}

// WriteBatch implements §4.7's write_batch(items, context): every item's
// CAS blob is written first (an independent, idempotent put), then every
// item's metadata precondition is checked and committed as one atomic
// metadatastore.PutBatch call - either every item lands, or none do.
func (k *Kernel) WriteBatch(ctx context.Context, subject types.Subject, items []BatchWriteItem) ([]*types.FileMetadata, error) {
	if len(items) == 0 {
		return nil, nil
	}

	for _, it := range items {
		if err := types.ValidatePath(string(it.Path)); err != nil {
			return nil, err
		}
		if _, err := k.resolveZone(it.Path, subject); err != nil {
			return nil, err
		}
		if err := k.checkPermission(ctx, subject, "write", it.Path); err != nil {
			return nil, err
		}
	}

	isNew := make([]bool, len(items))
	puts := make([]metadatastore.BatchPutItem, len(items))
	for i, it := range items {
		_, err := k.meta.Get(ctx, it.Path)
		isNew[i] = err != nil

		hash, err := k.cas.Put(ctx, it.Data)
		if err != nil {
			return nil, err
		}
		puts[i] = metadatastore.BatchPutItem{
			Meta: &types.FileMetadata{
				Path:         it.Path,
				Zone:         subject.Zone,
				Size:         int64(len(it.Data)),
				Mode:         0o644,
				OwnerSubject: subject.ID,
				ContentHash:  hash,
			},
			ExpectedETag: it.IfMatch,
		}
	}

	if err := k.meta.PutBatch(ctx, puts); err != nil {
		return nil, err
	}

	results := make([]*types.FileMetadata, len(items))
	for i, it := range items {
		meta, err := k.meta.Get(ctx, it.Path)
		if err != nil {
			return nil, err
		}
		results[i] = meta

		if isNew[i] {
			k.rebac.NotifyCreated(string(it.Path), subject.Zone, "file")
		}
		_ = k.events.Publish(ctx, types.Event{Type: types.EventFileWrite, Path: string(it.Path), Zone: subject.Zone})
		k.invalidateReadSet(ctx, it.Path, subject.Zone)
	}

	return results, nil
}
