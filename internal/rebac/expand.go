package rebac

import (
	"context"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Expand returns every subject holding permission on (resourceType,
// resourceID) within zone, per §4.4.3: the same rewrite rules as Check,
// run in reverse, de-duplicated and depth/cycle-guarded.
func (e *Engine) Expand(ctx context.Context, permission, resourceType, resourceID, zone string) ([]string, error) {
	frames := make(map[checkFrame]bool)
	seen := make(map[string]bool)
	if err := e.expandRelation(ctx, frames, seen, 0, permission, resourceType, resourceID, zone); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out, nil
}

func (e *Engine) expandRelation(ctx context.Context, frames map[checkFrame]bool, seen map[string]bool, depth int, relation, resourceType, resourceID, zone string) error {
	if depth > e.maxDepth {
		return nil
	}
	frame := checkFrame{Relation: relation, ResourceType: resourceType, ResourceID: resourceID}
	if frames[frame] {
		return nil
	}
	frames[frame] = true
	defer delete(frames, frame)

	def, err := e.schema.Relation(resourceType, relation)
	if err != nil {
		return nil // unknown relation contributes no subjects, not an error for Expand
	}

	switch def.Kind {
	case types.RewriteDirect:
		for _, t := range e.tuples.tuplesFor(zone, resourceType, resourceID, relation) {
			ref := parseSubject(t.Subject)
			if ref.Relation == "" {
				seen[t.Subject] = true
				continue
			}
			_ = e.expandRelation(ctx, frames, seen, depth+1, ref.Relation, ref.Type, ref.ID, zone)
		}

	case types.RewriteUnion:
		for _, child := range def.Union {
			_ = e.expandRelation(ctx, frames, seen, depth+1, child, resourceType, resourceID, zone)
		}

	case types.RewriteTupleToUserset:
		if def.Tupleset == "parent" {
			parentPath := types.Parent(resourceID)
			if parentPath != resourceID {
				_ = e.expandRelation(ctx, frames, seen, depth+1, def.ComputedUserset, resourceType, parentPath, zone)
			}
			return nil
		}
		for _, t := range e.tuples.tuplesFor(zone, resourceType, resourceID, def.Tupleset) {
			ref := parseSubject(t.Subject)
			_ = e.expandRelation(ctx, frames, seen, depth+1, def.ComputedUserset, ref.Type, ref.ID, zone)
		}
	}
	return nil
}
