package rebac

import (
	"fmt"
	"strings"
	"sync"
	"time"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// storedTuple is the tuple as held in the graph; kept as its own type in
// case the store grows bookkeeping the wire type shouldn't carry.
type storedTuple struct {
	types.ReBACTuple
}

func (t storedTuple) expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// objectKey identifies one (zone, resource_type, resource_id) object.
type objectKey struct {
	Zone         string
	ResourceType string
	ResourceID   string
}

// TupleStore is the in-memory relationship graph. Unlike the metadata
// store it is never proposed through the replicated log: tuple writes are
// rare relative to reads and ReBACConfig carries no consensus knobs, so
// each node keeps its own copy, consistent with an eventually-converged
// cache behind the directory-grant bitmap anyway.
type TupleStore struct {
	mu      sync.RWMutex
	byObject map[objectKey]map[string][]storedTuple // relation -> tuples
}

func newTupleStore() *TupleStore {
	return &TupleStore{byObject: make(map[objectKey]map[string][]storedTuple)}
}

// writeTuple inserts a tuple. Cross-tenant writes (SubjectTenant !=
// ObjectTenant, both non-empty) are rejected.
func (ts *TupleStore) writeTuple(t types.ReBACTuple) error {
	if t.Subject == "" || t.Relation == "" || t.ResourceID == "" || t.ResourceType == "" {
		return kernelerrors.InvalidArgument("rebac", "tuple is missing a required field")
	}
	if t.SubjectTenant != "" && t.ObjectTenant != "" && t.SubjectTenant != t.ObjectTenant {
		return kernelerrors.PermissionDenied("rebac", "cross-tenant write rejected").
			WithContext("subject_tenant", t.SubjectTenant).WithContext("object_tenant", t.ObjectTenant)
	}

	key := objectKey{Zone: t.Zone, ResourceType: t.ResourceType, ResourceID: t.ResourceID}
	st := storedTuple{ReBACTuple: t}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.byObject[key] == nil {
		ts.byObject[key] = make(map[string][]storedTuple)
	}
	for _, existing := range ts.byObject[key][t.Relation] {
		if existing.Subject == t.Subject {
			return nil // tuples are immutable; re-writing the same edge is a no-op
		}
	}
	ts.byObject[key][t.Relation] = append(ts.byObject[key][t.Relation], st)
	return nil
}

// deleteTuple removes a tuple, if present. Deleting a tuple that doesn't
// exist is not an error.
func (ts *TupleStore) deleteTuple(t types.ReBACTuple) error {
	key := objectKey{Zone: t.Zone, ResourceType: t.ResourceType, ResourceID: t.ResourceID}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	rel := ts.byObject[key][t.Relation]
	for i, existing := range rel {
		if existing.Subject == t.Subject {
			ts.byObject[key][t.Relation] = append(rel[:i], rel[i+1:]...)
			return nil
		}
	}
	return nil
}

// tuplesFor returns every live (non-expired) tuple naming (zone,
// resourceType, resourceID) under relation.
func (ts *TupleStore) tuplesFor(zone, resourceType, resourceID, relation string) []storedTuple {
	key := objectKey{Zone: zone, ResourceType: resourceType, ResourceID: resourceID}

	ts.mu.RLock()
	all := ts.byObject[key][relation]
	out := make([]storedTuple, 0, len(all))
	for _, t := range all {
		if !t.expired() {
			out = append(out, t)
		}
	}
	ts.mu.RUnlock()
	return out
}

// objectsUnder returns every distinct (resourceType, resourceID) this
// store has any tuple for within zone under a path prefix. The
// directory-grant walker does not use it; it lists descendants through
// its DescendantLister.
func (ts *TupleStore) objectsUnder(zone, resourceType, pathPrefix string) []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for key := range ts.byObject {
		if key.Zone != zone || key.ResourceType != resourceType {
			continue
		}
		if !types.HasPrefix(key.ResourceID, pathPrefix) || key.ResourceID == pathPrefix {
			continue
		}
		if !seen[key.ResourceID] {
			seen[key.ResourceID] = true
			out = append(out, key.ResourceID)
		}
	}
	return out
}

// subjectRef is a parsed "type:id" or "type:id#relation" subject string.
// The "#relation" form names a userset: every subject holding relation on
// (type, id) is itself a member, and Check must recurse to resolve it.
type subjectRef struct {
	Type     string
	ID       string
	Relation string // empty unless this is a userset reference
}

func parseSubject(subject string) subjectRef {
	typeAndID := subject
	relation := ""
	if idx := strings.Index(subject, "#"); idx >= 0 {
		typeAndID = subject[:idx]
		relation = subject[idx+1:]
	}
	typ, id, _ := strings.Cut(typeAndID, ":")

	// A bare group reference with no explicit "#relation" implicitly
	// means "members of this group", mirroring how the example schema
	// grants (file, /p) --direct_editor--> (group, eng) without having
	// to spell out "group:eng#member" at write time.
	if relation == "" && typ == "group" {
		relation = "member"
	}
	return subjectRef{Type: typ, ID: id, Relation: relation}
}

func formatSubject(subjectType, subjectID string) string {
	return fmt.Sprintf("%s:%s", subjectType, subjectID)
}
