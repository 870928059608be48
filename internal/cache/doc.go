/*
Package cache provides the generic, multi-level value cache the kernel's
ReBAC engine uses for its check-result cache and per-(subject,
permission, resource_type) bitmap cache.

# Cache Architecture

	┌─────────────────────────────────────────────┐
	│              ReBAC Engine                    │
	│     (Check / Expand / bitmap promotion)      │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            Cache Interface                  │  ← This Package
	│         (types.Cache impl)                  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Multi-Level Cache                 │
	│  ┌─────────────────────────────────────────┐  │
	│  │              L1 Cache                   │  │
	│  │          (Memory - Fast)                │  │
	│  │   • LRU / Weighted LRU                 │  │
	│  │   • Volatile, per-entry TTL            │  │
	│  └─────────────────────────────────────────┘  │
	│  ┌─────────────────────────────────────────┐  │
	│  │              L2 Cache                   │  │
	│  │        (Persistent disk - Durable)      │  │
	│  │   • Survives a restart                 │  │
	│  │   • Optional gzip compression           │  │
	│  └─────────────────────────────────────────┘  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Metadata store / Tuple store        │
	└─────────────────────────────────────────────┘

# Cache levels

L1 (memory): LRU or weighted-LRU, keyed by an opaque string such as
"alice#viewer#/docs/a.txt" for a check result or
"alice#viewer#document" for a bitmap. Values are arbitrary
interface{} — a bool for a check result, a bitset for a bitmap.

L2 (persistent): same key space, JSON-encoded onto disk with an atomic
index file, for a check cache that should survive a kernel restart
without forcing every subject's first request after a restart to
re-walk the tuple graph.

# Policies

Inclusive (default): every Put lands in every enabled level.
Exclusive: Put writes L1 only; entries evicted from L1 are not moved into L2.
Hybrid: L1 always; L2 only for values judged worth persisting.

# Invalidation

Any Write or Delete on a ReBACTuple invalidates every cache entry whose
key is prefixed by the affected subject or resource, via Delete's
prefix-match semantics.
*/
package cache
