// Package lock models the external remote-store lock-manager capability
// named by spec.md §4.6/§4.7/§9: {acquire, release, clone} keyed by
// (repo, indexUUID, shardId, acquirerUUID). The snapshot engine only calls
// it while deleting or cloning shallow snapshots — every other operation is
// untouched by it. The production lock manager lives outside this module
// (a remote-store-side service); Manager here is an in-memory reference
// implementation for tests and single-process deployments.
package lock
