package rebac

import (
	"context"
	"fmt"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// PosixResolver supplies the owner/mode/group data the built-in file
// schema's read/write/execute relations fold in alongside tuple-based
// grants. *metadatastore.Store does not implement it; the kernel façade
// passes an adapter whose Stat reads the FileMetadata held for the path
// (internal/kernel/adapters.go).
type PosixResolver interface {
	Stat(ctx context.Context, resourceID string) (mode uint32, ownerSubject, groupID string, ok bool)
}

// GroupResolver reports whether a subject is a member of a POSIX group,
// for the mode-bit fold-in's group-permission bits. Separate from the
// tuple graph's "group:*#member" usersets, which cover ReBAC-native
// groups rather than POSIX ones.
type GroupResolver interface {
	IsMember(ctx context.Context, subject, groupID string) bool
}

const (
	modeOwnerRead  = 0o400
	modeOwnerWrite = 0o200
	modeOwnerExec  = 0o100
	modeGroupRead  = 0o040
	modeGroupWrite = 0o020
	modeGroupExec  = 0o010
	modeOtherRead  = 0o004
	modeOtherWrite = 0o002
	modeOtherExec  = 0o001
)

var posixBits = map[string][3]uint32{
	"read":    {modeOwnerRead, modeGroupRead, modeOtherRead},
	"write":   {modeOwnerWrite, modeGroupWrite, modeOtherWrite},
	"execute": {modeOwnerExec, modeGroupExec, modeOtherExec},
}

// checkFrame is a single (subject, relation, resourceType, resourceID)
// DFS stack entry, used both as the cycle-set key and, summed, as the
// depth bound.
type checkFrame struct {
	Subject      string
	Relation     string
	ResourceType string
	ResourceID   string
}

// Check resolves whether subject holds permission on (resourceType,
// resourceID) within zone, per §4.4.2: a depth-bounded, cycle-guarded DFS
// over the resource type's namespace schema, with results cached by TTL.
func (e *Engine) Check(ctx context.Context, subject, permission, resourceType, resourceID, zone string) (bool, error) {
	if e.openAccessFallback {
		return true, nil
	}
	if e.predictor != nil {
		e.predictor.Get(resourceID)
	}

	cacheKey := checkCacheKey(subject, resourceType, resourceID, zone, permission)
	if v, ok := e.checkCache.Get(cacheKey); ok {
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}

	if allowed, ok := e.grants.lookupBitmap(subject, permission, resourceType, resourceID, zone); ok {
		// The bitmap is an accelerator only (I8): still populate the
		// regular check cache so Stats()/invalidation behave uniformly.
		e.checkCache.Put(cacheKey, allowed, e.checkTTL)
		return allowed, nil
	}

	frames := make(map[checkFrame]bool)
	result, err := e.evalRelation(ctx, frames, 0, subject, permission, resourceType, resourceID, zone)
	if err != nil {
		return false, err
	}

	e.checkCache.Put(cacheKey, result, e.checkTTL)
	return result, nil
}

func (e *Engine) evalRelation(ctx context.Context, frames map[checkFrame]bool, depth int, subject, relation, resourceType, resourceID, zone string) (bool, error) {
	if depth > e.maxDepth {
		return false, nil
	}
	frame := checkFrame{Subject: subject, Relation: relation, ResourceType: resourceType, ResourceID: resourceID}
	if frames[frame] {
		return false, nil // already on the stack: cycle, not a grant
	}
	frames[frame] = true
	defer delete(frames, frame)

	def, err := e.schema.Relation(resourceType, relation)
	if err != nil {
		if resourceType == fileResourceType {
			if ok, posixErr := e.evalPosixFallback(ctx, subject, relation, resourceID, zone); posixErr == nil && ok {
				return true, nil
			}
		}
		return false, err
	}

	switch def.Kind {
	case types.RewriteDirect:
		return e.evalDirect(ctx, frames, depth, subject, relation, resourceType, resourceID, zone)

	case types.RewriteUnion:
		for _, child := range def.Union {
			ok, err := e.evalRelation(ctx, frames, depth+1, subject, child, resourceType, resourceID, zone)
			if err != nil {
				continue
			}
			if ok {
				return true, nil
			}
		}
		// A file's read/write/execute union also folds in the POSIX
		// mode bits and group membership once the tuple-based chain is
		// exhausted.
		if resourceType == fileResourceType {
			return e.evalPosixFallback(ctx, subject, relation, resourceID, zone)
		}
		return false, nil

	case types.RewriteTupleToUserset:
		return e.evalTupleToUserset(ctx, frames, depth, subject, def, resourceType, resourceID, zone)

	default:
		return false, kernelerrors.InvalidArgument("rebac", fmt.Sprintf("unknown rewrite kind %q", def.Kind))
	}
}

func (e *Engine) evalDirect(ctx context.Context, frames map[checkFrame]bool, depth int, subject, relation, resourceType, resourceID, zone string) (bool, error) {
	for _, t := range e.tuples.tuplesFor(zone, resourceType, resourceID, relation) {
		ref := parseSubject(t.Subject)
		if ref.Relation == "" {
			if t.Subject == subject {
				return true, nil
			}
			continue
		}
		ok, err := e.evalRelation(ctx, frames, depth+1, subject, ref.Relation, ref.Type, ref.ID, zone)
		if err != nil {
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) evalTupleToUserset(ctx context.Context, frames map[checkFrame]bool, depth int, subject string, def types.RelationDef, resourceType, resourceID, zone string) (bool, error) {
	if def.Tupleset == "parent" {
		parentPath := types.Parent(resourceID)
		if parentPath == resourceID {
			return false, nil
		}
		return e.evalRelation(ctx, frames, depth+1, subject, def.ComputedUserset, resourceType, parentPath, zone)
	}

	for _, t := range e.tuples.tuplesFor(zone, resourceType, resourceID, def.Tupleset) {
		ref := parseSubject(t.Subject)
		ok, err := e.evalRelation(ctx, frames, depth+1, subject, def.ComputedUserset, ref.Type, ref.ID, zone)
		if err != nil {
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// evalPosixFallback folds mode bits and group membership into
// read/write/execute once the tuple chain doesn't grant the permission
// directly. Silent no-op (false, nil) if no PosixResolver is wired.
func (e *Engine) evalPosixFallback(ctx context.Context, subject, permission, resourceID, zone string) (bool, error) {
	bits, ok := posixBits[permission]
	if !ok || e.posix == nil {
		return false, nil
	}
	mode, owner, group, ok := e.posix.Stat(ctx, resourceID)
	if !ok {
		return false, nil
	}
	if subject == owner && mode&bits[0] != 0 {
		return true, nil
	}
	if mode&bits[1] != 0 && e.groups != nil && e.groups.IsMember(ctx, subject, group) {
		return true, nil
	}
	if mode&bits[2] != 0 {
		return true, nil
	}
	return false, nil
}

func checkCacheKey(subject, resourceType, resourceID, zone, permission string) string {
	return fmt.Sprintf("%s#%s:%s#%s#%s", subject, resourceType, resourceID, zone, permission)
}

// invalidatePair deletes every cached check result for (subject, object),
// across all permissions, per §4.4.1's "invalidates the per-pair check
// cache" on write/delete.
func (e *Engine) invalidatePair(subject, resourceType, resourceID, zone string) {
	e.checkCache.Delete(fmt.Sprintf("%s#%s:%s#%s", subject, resourceType, resourceID, zone))
}

// invalidateSchema flushes the entire check cache, per §4.4.2's "full
// flush on schema change".
func (e *Engine) invalidateSchema() {
	e.checkCache.Delete("")
}
