/*
Package metadatastore implements the path -> FileMetadata mapping behind
the kernel's replicated log. Store satisfies types.MetadataStore:
get/put/delete/list/versions, plus the rollback/get_version operations the
kernel façade exposes.

Writes are optimistic: a put/delete carries an expected ETag, checked
against a per-path lock before the command is proposed. When a
*cluster.Cluster is wired in, the command is proposed through
cluster.Propose and applied via the registered apply hook once committed;
in standalone mode (no cluster) the command applies immediately against
the local backend. Either way, Store.apply is the single application
path for puts and deletes, so a node in a multi-node cluster converges on
the same path state whether it observed the proposal as leader or learned
it from an AppendEntries replication.

Two Backend implementations exist: memoryBackend (tests, single-node) and
postgresBackend (durable, multi-node), the latter fronted by a bounded
writeBuffer so bursts of writes don't each pay a round trip to Postgres.
gc.go runs a background sweep that prunes version history, grounded on
internal/batch/processor.go's small-batch-and-yield discipline.
*/
package metadatastore
