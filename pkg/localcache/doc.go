/*
Package localcache holds the node-local state the repository engine keeps
alongside the blob store and the cluster-state store: the single-slot
RepositoryDataCache (spec.md §5's "latestKnownRepositoryData") and an
(ADDED) durably-persisted GenerationLedger so a restarted node has a
starting point for its generation before the first successful read,
rather than defaulting straight into best-effort-consistency mode.

RepositoryDataCache is pure in-memory: a CAS slot per repository that
never lets a racing reader overwrite a newer writer's entry with a stale
one. GenerationLedger is bbolt-backed and purely advisory — it is a
hint consulted before the first generation claim of a cold process, not
a substitute for the cluster-state CAS.
*/
package localcache
