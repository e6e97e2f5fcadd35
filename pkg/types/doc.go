/*
Package types defines the core data structures of the snapshot repository
engine.

This package contains the domain model shared by every other package:
snapshot and index identity, the per-repository manifest (RepositoryData),
per-shard manifests (BlobStoreIndexShardSnapshots), and the cluster-state
view of a repository (RepositoryMetadata).

# Architecture

	┌──────────────────── REPOSITORY DATA MODEL ───────────────────┐
	│                                                                │
	│  RepositoryMetadata (lives in cluster state)                  │
	│    name, settings, generation (safe), pendingGeneration       │
	│                     │                                          │
	│                     ▼                                          │
	│  RepositoryData (the manifest, blob "index-N")                │
	│    genId                                                       │
	│    snapshots        : SnapshotId -> SnapshotEntry              │
	│    indices          : name -> IndexId                          │
	│    indexSnapshots   : IndexId -> []SnapshotId                  │
	│    shardGenerations  : (IndexId, shard) -> ShardGeneration     │
	│    indexMetaGenerations : (SnapshotId, IndexId) -> identifier  │
	│                     │                                          │
	│                     ▼                                          │
	│  BlobStoreIndexShardSnapshots (blob "indices/<iU>/<n>/index-G")│
	│    snapshots : []SnapshotFiles                                 │
	│                     │                                          │
	│                     ▼                                          │
	│  FileInfo (one data blob reference per shard file)             │
	└────────────────────────────────────────────────────────────────┘

All types round-trip through encoding/json, matching the bit-exact blob
layout in SPEC_FULL.md §6.
*/
package types
