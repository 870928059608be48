/*
Package rebac implements the kernel's relationship-based access control
engine: tuple storage, a depth-bounded permission check, its reverse
(expand), and directory-grant pre-materialization that keeps a deep
descendant check from re-walking the whole tuple graph on every call.

# Namespace schema

Each resource type has a namespace schema: a map from relation name to a
rewrite rule. A rule is one of:

  - direct: the relation is satisfied by a stored tuple naming the
    subject directly (or a userset the subject belongs to).
  - union: the relation is satisfied if any of its listed relations is.
  - tuple_to_userset: the relation is satisfied by following a tupleset
    relation on the object to get a set of related objects, then
    recursing on a computed relation against each.

The built-in "file" schema encodes owner/editor/viewer inheritance up
the directory tree plus POSIX mode-bit/group fold-in for read/write/
execute, grounded on the data model in this kernel's specification for
the virtual filesystem's access control layer.

# Check and Expand

Check resolves a single (subject, permission, object, zone) query via
depth-bounded DFS over the rewrite rules, guarded against cycles by a
per-call frame set. Expand runs the same rules in reverse to produce
every subject that holds a permission. Check results are held in a TTL
cache keyed by the query tuple (Expand is not cached); Write/Delete
invalidate by subject-object pair, and a schema reload flushes the whole
cache.

# Directory grants

Granting a permission on a directory implicitly grants every existing
and future descendant. The engine records a directory grant row and
asynchronously walks the descendant set, populating a bitmap cache
keyed by (subject, permission, resource_type). The bitmap never changes
the answer Check would have produced by walking the graph cold — it
only changes how fast the answer arrives.
*/
package rebac
