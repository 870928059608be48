/*
Package readset implements the registry that lets a write invalidate
exactly the queries whose prior read touched it, instead of every live
query or none at all.

A caller registers a ReadSetEntry after running a query: the paths it
read directly, the directory prefixes it read (a list() or glob()), and
the zones it touched. The registry populates three reverse indexes —
path, directory prefix, and zone, each mapping to the set of query IDs
that depend on it — modeled on the teacher's statistics-table idiom
(ConsensusStats, ManagerStats): a struct behind a single RWMutex, with
read-only accessors taking the read lock and copying out whatever they
return so a caller can't observe (or corrupt) registry state through a
shared slice or map.

AffectedQueries(writePath, zone) answers in O(1) for a direct path hit,
then walks writePath up its directory chain in O(depth) checking the
directory-prefix index at each level — the same walk internal/rebac's
directory-grant inheritance does, just over query IDs instead of
permissions.

Entries expire on their own TTL; an idle-time sweep goroutine prunes
them, grounded on internal/metadatastore/gc.go's ticker-and-batch sweep
loop.
*/
package readset
