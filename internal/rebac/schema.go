package rebac

import (
	"fmt"
	"os"
	"sync"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
	"gopkg.in/yaml.v2"
)

// fileResourceType is the built-in namespace every kernel deployment gets
// for free, regardless of any schema loaded from SchemaPath.
const fileResourceType = "file"

// SchemaStore holds one NamespaceSchema per resource type, guarded for
// concurrent reads from Check/Expand against an occasional reload.
type SchemaStore struct {
	mu        sync.RWMutex
	schemas   map[string]*types.NamespaceSchema
	onReload  []func()
}

// NewSchemaStore creates a store seeded with the built-in file schema. If
// path is non-empty, additional or overriding schemas are loaded from it.
func NewSchemaStore(path string) (*SchemaStore, error) {
	s := &SchemaStore{
		schemas: map[string]*types.NamespaceSchema{
			fileResourceType: defaultFileSchema(),
			"group":          defaultGroupSchema(),
		},
	}
	if path == "" {
		return s, nil
	}
	if err := s.loadFile(path); err != nil {
		return nil, err
	}
	return s, nil
}

// defaultFileSchema returns the built-in POSIX-flavored file namespace:
// owner = direct_owner ∪ parent.owner
// editor = direct_editor ∪ owner
// viewer = direct_viewer ∪ editor
// read/write/execute fold in the same owner/editor/viewer chain; mode-bit
// and group evaluation happens in check.go's evaluator, not here, since
// it depends on the file's metadata rather than on stored tuples.
func defaultFileSchema() *types.NamespaceSchema {
	return &types.NamespaceSchema{
		ResourceType: fileResourceType,
		Relations: map[string]types.RelationDef{
			"direct_owner":  {Name: "direct_owner", Kind: types.RewriteDirect},
			"direct_editor": {Name: "direct_editor", Kind: types.RewriteDirect},
			"direct_viewer": {Name: "direct_viewer", Kind: types.RewriteDirect},
			"owner": {
				Name: "owner", Kind: types.RewriteUnion,
				Union: []string{"direct_owner", "parent_owner"},
			},
			"editor": {
				Name: "editor", Kind: types.RewriteUnion,
				Union: []string{"direct_editor", "owner"},
			},
			"viewer": {
				Name: "viewer", Kind: types.RewriteUnion,
				Union: []string{"direct_viewer", "editor"},
			},
			// parent_owner is a tuple_to_userset rule whose tupleset is the
			// synthetic "parent" relation the engine resolves structurally
			// (via types.Parent) rather than from a stored tuple.
			"parent_owner": {
				Name: "parent_owner", Kind: types.RewriteTupleToUserset,
				Tupleset: "parent", ComputedUserset: "owner",
			},
			"read":    {Name: "read", Kind: types.RewriteUnion, Union: []string{"viewer"}},
			"write":   {Name: "write", Kind: types.RewriteUnion, Union: []string{"editor"}},
			"execute": {Name: "execute", Kind: types.RewriteUnion, Union: []string{"owner"}},
		},
	}
}

// defaultGroupSchema gives every group a single direct "member" relation,
// so the bare "group:eng" subject shorthand (parseSubject's implicit
// "#member") always resolves against a real namespace entry.
func defaultGroupSchema() *types.NamespaceSchema {
	return &types.NamespaceSchema{
		ResourceType: "group",
		Relations: map[string]types.RelationDef{
			"member": {Name: "member", Kind: types.RewriteDirect},
		},
	}
}

// loadFile merges schemas declared in a YAML document at path into the
// store, overwriting any resource type it redefines (including "file").
func (s *SchemaStore) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kernelerrors.Internal("rebac", err).WithContext("schema_path", path)
	}

	var doc struct {
		Namespaces []types.NamespaceSchema `yaml:"namespaces"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return kernelerrors.InvalidArgument("rebac", "malformed schema file").WithCause(err)
	}

	s.mu.Lock()
	for i := range doc.Namespaces {
		ns := doc.Namespaces[i]
		s.schemas[ns.ResourceType] = &ns
	}
	hooks := append([]func(){}, s.onReload...)
	s.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	return nil
}

// OnReload registers a callback invoked after a schema change, used to
// flush the check-result cache (§4.4.2: "full flush on schema change").
func (s *SchemaStore) OnReload(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Relation resolves resourceType's definition of relation.
func (s *SchemaStore) Relation(resourceType, relation string) (types.RelationDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.schemas[resourceType]
	if !ok {
		return types.RelationDef{}, kernelerrors.InvalidArgument("rebac", fmt.Sprintf("no namespace schema for resource type %q", resourceType))
	}
	def, ok := ns.Relations[relation]
	if !ok {
		return types.RelationDef{}, kernelerrors.InvalidArgument("rebac", fmt.Sprintf("resource type %q has no relation %q", resourceType, relation))
	}
	return def, nil
}

// Relations returns every relation name defined for resourceType. Expand
// does not use it; it resolves each relation through Relation.
func (s *SchemaStore) Relations(resourceType string) map[string]types.RelationDef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.schemas[resourceType]
	if !ok {
		return nil
	}
	out := make(map[string]types.RelationDef, len(ns.Relations))
	for k, v := range ns.Relations {
		out[k] = v
	}
	return out
}
