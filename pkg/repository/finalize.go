package repository

import (
	"bytes"
	"context"
	"errors"

	"github.com/cuemby/snapvault/pkg/blobformat"
	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
	"github.com/google/uuid"
)

// FinalizeSnapshot implements SPEC_FULL.md §4.5: dedup and write per-index
// metadata, write the snapshot's cluster-wide record, fold every shard's new
// generation into a fresh RepositoryData, and publish it through the
// Generation Protocol.
func (r *Repository) FinalizeSnapshot(ctx context.Context, info types.SnapshotInfo, indexMetas []types.IndexMetadata, shardGens map[types.RepositoryShardId]types.ShardGeneration) (data *types.RepositoryData, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.FinalizeDuration)
		metrics.SnapshotsTotal.WithLabelValues("finalize", outcome(err)).Inc()
	}()

	prior, meta, err := r.LoadRepositoryData(ctx)
	if err != nil {
		return nil, err
	}

	data = prior.Clone()
	oldGens := make(map[types.RepositoryShardId]types.ShardGeneration, len(shardGens))

	for shard, gen := range shardGens {
		oldGens[shard] = data.ShardGenerations[shard]
		data.ShardGenerations[shard] = gen
	}

	for _, im := range indexMetas {
		key := types.IndexMetaKey{Snapshot: info.SnapshotId, Index: im.Index}
		identifier := im.IdentityKey()
		blobUUID, ok := data.IndexMetaIdentifiers[identifier]
		if !ok {
			blobUUID = uuid.NewString()
			if err := r.writeIndexMetadataBlob(ctx, im.Index.UUID, blobUUID, im); err != nil {
				return nil, err
			}
			data.IndexMetaIdentifiers[identifier] = blobUUID
		}
		data.IndexMetaGenerations[key] = identifier
		data.Indices[im.Index.Name] = im.Index
		data.IndexSnapshots[im.Index] = append(data.IndexSnapshots[im.Index], info.SnapshotId)
	}

	data.Snapshots[info.SnapshotId] = types.SnapshotEntry{
		State:   info.State,
		Version: info.SnapshotId.UUID,
	}

	if err := r.writeSnapshotInfoBlob(ctx, info); err != nil {
		return nil, err
	}

	if err := r.publishRepositoryData(ctx, meta.Generation, data); err != nil {
		return nil, err
	}

	r.publish(events.EventSnapshotFinalized, "snapshot "+info.SnapshotId.Name+" finalized", map[string]string{
		"repository": r.name,
		"snapshot":   info.SnapshotId.Name,
	})
	go r.cleanupOrphanedShardGenerations(context.Background(), oldGens)
	return data, nil
}

// outcome renders err for the "outcome" metric label finalize/delete/clone
// share.
func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// writeIndexMetadataBlob writes "indices/<indexUUID>/meta-<blobUUID>.dat",
// tolerating AlreadyExists: a concurrent finalize may have raced this
// repository to the identical dedup key.
func (r *Repository) writeIndexMetadataBlob(ctx context.Context, indexUUID, blobUUID string, meta types.IndexMetadata) error {
	body, err := blobformat.Write(meta, r.Settings().compressionOrNone())
	if err != nil {
		return err
	}
	name := "meta-" + blobUUID + ".dat"
	err = r.indexContainer(indexUUID).WriteBlob(ctx, name, bytes.NewReader(body), int64(len(body)), true)
	if err != nil && !errors.Is(err, repoerr.IsConcurrentModification) {
		return repoerr.Wrap(repoerr.TransientIO, "repository.writeIndexMetadataBlob", err)
	}
	return nil
}

// writeSnapshotInfoBlob writes the root-level "snap-<snapshotUUID>.dat"
// cluster-wide record.
func (r *Repository) writeSnapshotInfoBlob(ctx context.Context, info types.SnapshotInfo) error {
	body, err := blobformat.Write(info, r.Settings().compressionOrNone())
	if err != nil {
		return err
	}
	prefix := "snap-"
	if info.Shallow {
		prefix = "shallow-snap-"
	}
	name := prefix + info.SnapshotId.UUID + ".dat"
	if err := r.root.WriteBlob(ctx, name, bytes.NewReader(body), int64(len(body)), true); err != nil {
		if errors.Is(err, repoerr.IsConcurrentModification) {
			return nil
		}
		return repoerr.Wrap(repoerr.TransientIO, "repository.writeSnapshotInfoBlob", err)
	}
	return nil
}

// publishRepositoryData runs the full three-phase Generation Protocol
// (SPEC_FULL.md §4.3) over data, starting from expectedSafe.
func (r *Repository) publishRepositoryData(ctx context.Context, expectedSafe int64, data *types.RepositoryData) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.GenerationPublishDuration, r.name)

	claimed, err := r.claimGeneration(ctx, expectedSafe)
	if err != nil {
		return err
	}
	if err := r.writeIndexBlobPhase2(ctx, expectedSafe, claimed.PendingGeneration, data); err != nil {
		return err
	}
	if _, err := r.publishGeneration(ctx, claimed.PendingGeneration); err != nil {
		return err
	}
	r.cache.CompareAndSwap(r.name, claimed.PendingGeneration, data)
	return nil
}

// cleanupOrphanedShardGenerations best-effort deletes each shard's
// superseded index-<oldGen> manifest once the new RepositoryData referencing
// its replacement has been published.
func (r *Repository) cleanupOrphanedShardGenerations(ctx context.Context, oldGens map[types.RepositoryShardId]types.ShardGeneration) {
	for shard, gen := range oldGens {
		if !gen.Valid() {
			continue
		}
		container := r.shardContainer(shard)
		name := "index-" + string(gen)
		if err := container.DeleteBlobsIgnoringIfNotExists(ctx, []string{name}); err != nil {
			r.logger.Warn().Err(err).Str("blob", name).Msg("shard generation GC: failed to delete stale shard manifest")
		}
	}
}
