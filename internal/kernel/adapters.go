package kernel

import (
	"context"

	"github.com/nexi-lab/nexuskernel/internal/metadatastore"
	"github.com/nexi-lab/nexuskernel/internal/rebac"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// posixResolver satisfies rebac.PosixResolver over the metadata store:
// a file's mode/owner/group are just fields already held in its
// FileMetadata, so Stat is a direct Get with no extra bookkeeping.
type posixResolver struct {
	store *metadatastore.Store
}

func (p *posixResolver) Stat(ctx context.Context, resourceID string) (mode uint32, ownerSubject, groupID string, ok bool) {
	meta, err := p.store.Get(ctx, types.VirtualPath(resourceID))
	if err != nil {
		return 0, "", "", false
	}
	return meta.Mode, meta.OwnerSubject, meta.GroupID, true
}

// groupResolver satisfies rebac.GroupResolver by asking the same engine
// whether subject holds the ReBAC-native "member" relation on
// ("group", groupID). Wired two-phase (see New): the resolver is handed
// to rebac.NewEngine as an option before the *rebac.Engine it wraps
// exists, then its engine field is set once construction returns —
// Check is never called before then, so there's no real ordering hazard.
type groupResolver struct {
	engine *rebac.Engine
}

func (g *groupResolver) IsMember(ctx context.Context, subject, groupID string) bool {
	if g.engine == nil {
		return false
	}
	ok, _ := g.engine.Check(ctx, subject, "member", "group", groupID, "")
	return ok
}

// descendantLister satisfies rebac.DescendantLister by paginating the
// metadata store's List under the granted prefix, used by the
// directory-grant walker to populate its bitmap cache.
type descendantLister struct {
	store *metadatastore.Store
}

func (d *descendantLister) ListDescendants(ctx context.Context, prefix types.VirtualPath, zone string) ([]types.VirtualPath, error) {
	var out []types.VirtualPath
	cursor := ""
	for {
		page, next, err := d.store.List(ctx, prefix, cursor, 1000)
		if err != nil {
			return nil, err
		}
		for _, meta := range page {
			if zone == "" || meta.Zone == zone {
				out = append(out, meta.Path)
			}
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}
