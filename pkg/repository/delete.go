package repository

import (
	"context"
	"strings"

	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/lock"
	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/cuemby/snapvault/pkg/types"
	"github.com/google/uuid"
)

// DeleteSnapshots implements SPEC_FULL.md §4.6: atomically remove a set of
// snapshots from the repository's manifest, rewrite every affected shard's
// manifest to drop them, and best-effort GC the blobs no surviving snapshot
// references. targets carries the full SnapshotInfo of each snapshot being
// removed (Shallow/AcquirerUUID included, for lock release); shards is
// every shard belonging to an index any target snapshot touched.
func (r *Repository) DeleteSnapshots(ctx context.Context, targets []types.SnapshotInfo, shards []types.RepositoryShardId) (data *types.RepositoryData, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.DeleteDuration)
		metrics.SnapshotsTotal.WithLabelValues("delete", outcome(err)).Inc()
	}()

	ids := make([]types.SnapshotId, 0, len(targets))
	removed := make(map[string]bool, len(targets))
	for _, t := range targets {
		ids = append(ids, t.SnapshotId)
		removed[t.SnapshotId.Name] = true
	}

	if err := r.store.BeginDeletion(ctx, r.name, ids); err != nil {
		return nil, err
	}
	defer func() {
		if err := r.store.EndDeletion(ctx, r.name, ids); err != nil {
			r.logger.Warn().Err(err).Msg("failed to clear deletion-in-progress marker")
		}
	}()

	prior, meta, err := r.LoadRepositoryData(ctx)
	if err != nil {
		return nil, err
	}
	data = prior.Clone()

	orphanedBlobs := make(map[types.RepositoryShardId][]string)
	oldShardGens := make(map[types.RepositoryShardId]types.ShardGeneration)

	for _, shard := range shards {
		oldGen, ok := data.ShardGenerations[shard]
		if !ok || !oldGen.Valid() {
			continue
		}
		container := r.shardContainer(shard)
		manifest, err := r.loadShardManifest(ctx, container, oldGen)
		if err != nil {
			return nil, err
		}
		before := manifest.ReferencedBlobNames()
		rewritten := manifest.WithoutSnapshots(removed)

		oldShardGens[shard] = oldGen

		if len(rewritten.Snapshots) == 0 {
			data.ShardGenerations[shard] = types.DeletedShardGen
			for name := range before {
				orphanedBlobs[shard] = append(orphanedBlobs[shard], name)
			}
			continue
		}

		newGen := types.ShardGeneration(uuid.NewString())
		if err := r.writeShardManifest(ctx, container, newGen, rewritten); err != nil {
			return nil, err
		}
		data.ShardGenerations[shard] = newGen

		after := rewritten.ReferencedBlobNames()
		for name := range before {
			if !after[name] {
				orphanedBlobs[shard] = append(orphanedBlobs[shard], name)
			}
		}
	}

	for _, id := range ids {
		delete(data.Snapshots, id)
	}
	for idx, snaps := range data.IndexSnapshots {
		data.IndexSnapshots[idx] = filterSnapshotIds(snaps, removed)
	}
	for key := range data.IndexMetaGenerations {
		if removed[key.Snapshot.Name] {
			delete(data.IndexMetaGenerations, key)
		}
	}
	data.IndexMetaIdentifiers = gcOrphanedIndexMetaIdentifiers(data)

	if err := r.publishRepositoryData(ctx, meta.Generation, data); err != nil {
		return nil, err
	}

	r.releaseShallowLocks(targets, shards)

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.Name)
	}
	r.publish(events.EventSnapshotDeleted, "deleted snapshots: "+strings.Join(names, ", "), map[string]string{"repository": r.name})

	go r.deleteOrphanedShardBlobs(context.Background(), oldShardGens, orphanedBlobs)
	go r.gcRootAndIndexBlobs(context.Background(), data)
	return data, nil
}

func filterSnapshotIds(in []types.SnapshotId, removed map[string]bool) []types.SnapshotId {
	out := make([]types.SnapshotId, 0, len(in))
	for _, id := range in {
		if !removed[id.Name] {
			out = append(out, id)
		}
	}
	return out
}

// gcOrphanedIndexMetaIdentifiers drops any dedup identifier no surviving
// (snapshot, index) pair references.
func gcOrphanedIndexMetaIdentifiers(data *types.RepositoryData) map[string]string {
	live := make(map[string]bool, len(data.IndexMetaGenerations))
	for _, identifier := range data.IndexMetaGenerations {
		live[identifier] = true
	}
	out := make(map[string]string, len(data.IndexMetaIdentifiers))
	for identifier, blobUUID := range data.IndexMetaIdentifiers {
		if live[identifier] {
			out[identifier] = blobUUID
		}
	}
	return out
}

func (r *Repository) releaseShallowLocks(targets []types.SnapshotInfo, shards []types.RepositoryShardId) {
	for _, t := range targets {
		if !t.Shallow {
			continue
		}
		for _, shard := range shards {
			key := lock.Key{Repository: r.name, Shard: shard, AcquirerUUID: t.AcquirerUUID}
			if err := r.locks.Release(key); err != nil {
				r.logger.Warn().Err(err).Str("lock", key.String()).Msg("failed to release shallow snapshot lock")
			}
		}
	}
}

// deleteOrphanedShardBlobs best-effort deletes, per shard, the blobs the
// rewritten manifest stopped referencing (batched to
// MaxShardBlobDeleteBatchSize) plus the shard's now-stale index-<oldGen>
// manifest. Every shard's batches run on the generic pool: shards are
// independent, so there is no ordering to preserve. Failures are logged
// only: the data these blobs held is already unreachable from the published
// RepositoryData.
func (r *Repository) deleteOrphanedShardBlobs(ctx context.Context, oldGens map[types.RepositoryShardId]types.ShardGeneration, orphanedBlobs map[types.RepositoryShardId][]string) {
	batchSize := r.Settings().MaxShardBlobDeleteBatchSize
	if batchSize <= 0 {
		batchSize = DefaultSettings().MaxShardBlobDeleteBatchSize
	}

	type shardWork struct {
		shard types.RepositoryShardId
		gen   types.ShardGeneration
	}
	work := make([]shardWork, 0, len(oldGens))
	for shard, gen := range oldGens {
		work = append(work, shardWork{shard: shard, gen: gen})
	}

	_ = r.genericPool.Run(ctx, len(work), func(ctx context.Context, i int) error {
		w := work[i]
		container := r.shardContainer(w.shard)
		names := append(orphanedBlobs[w.shard], "index-"+string(w.gen))

		for start := 0; start < len(names); start += batchSize {
			end := start + batchSize
			if end > len(names) {
				end = len(names)
			}
			if err := container.DeleteBlobsIgnoringIfNotExists(ctx, names[start:end]); err != nil {
				r.logger.Warn().Err(err).Int("count", end-start).Msg("snapshot delete GC: failed to delete shard blobs")
			}
		}
		return nil
	})
}
