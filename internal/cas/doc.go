/*
Package cas implements content-addressed storage: every object is keyed
by the SHA-256 hash of its bytes, so two paths with identical content
share one stored blob. Two backends satisfy types.CASBackend:

  - Passthrough: a local filesystem tree sharded two levels deep by hash
    prefix, written write-to-temp+fsync+rename for crash safety.
  - S3Backend: the same hash-sharded key layout against an S3 bucket,
    using a pooled client and, when enabled, CargoShip's optimized
    upload path.

Neither backend knows about virtual paths — that mapping (path ->
content hash, via a Pointer) lives in the metadata store. tiers.go maps
a storage-tier hint to an S3 storage class; nothing in the package calls
that mapping, and S3Backend writes use fixed storage classes.
*/
package cas
