/*
Package clusterstate models the external cluster-state collaborator the
repository engine coordinates generation claims through: a CAS store for
RepositoryMetadata (safe/pending generation), plus the read-only
in-progress trackers (SnapshotsInProgress, SnapshotDeletionsInProgress,
RepositoryCleanupInProgress) SPEC_FULL.md §6 names.

Store is implemented twice: memStore is a mutex-protected in-process
implementation for deterministic tests, and the raft-backed Store wraps
a single-node hashicorp/raft cluster so the CLI has something to point
at that actually replicates a log, the way a real cluster-state service
would. Both implementations share the clusterState transition logic in
state.go so the CAS semantics can't drift between them.
*/
package clusterstate
