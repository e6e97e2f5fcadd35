// Package repository implements the blob-store snapshot repository engine:
// the repository-generation protocol, shard snapshot/restore, finalize,
// delete, clone, and stale-blob garbage collection described in
// SPEC_FULL.md §4. It depends only on the narrow collaborator interfaces
// the cluster-state store (pkg/clusterstate), object store (pkg/blob), and
// remote-store lock manager (pkg/lock) expose; the engine itself holds no
// opinion on how those are actually persisted.
package repository
