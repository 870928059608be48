/*
Package kernel implements the façade that orchestrates every public
operation (read, write, delete, rename, list, glob, grep, versioning,
workspace snapshots, write_batch) over the kernel's components.

Grounded on the teacher's internal/filesystem.FilesystemInterface +
internal/adapter.Adapter wiring, regeneralized per the design notes'
"replace deep inheritance with a small set of cooperating services,
wired via a single services record": Kernel is a constructor-injected
struct holding CASBackend, MetadataStore, ReBACEngine, Router,
EventBus, and ReadSetRegistry, and every operation is a method that
threads a context.Context, a types.Subject (who's calling, in which
zone), and an operation-scoped argument struct.

FUSE, RPC, and CLI entry points are expected to be thin adapters that
call through to these methods — exactly how internal/fuse's platform
filesystems called through to internal/adapter.Adapter in the teacher,
just one layer further from the storage backend.
*/
package kernel
