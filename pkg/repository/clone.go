package repository

import (
	"context"

	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/lock"
	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/cuemby/snapvault/pkg/types"
)

// CloneSnapshot implements SPEC_FULL.md §4.7: duplicate source under a new
// SnapshotId without copying any shard data. A full-copy source is cloned by
// simply referencing its existing shard generations and index-metadata
// identifiers from the new snapshot's entries; a shallow source additionally
// clones its per-shard remote-store locks to the new AcquirerUUID.
func (r *Repository) CloneSnapshot(ctx context.Context, source types.SnapshotInfo, target types.SnapshotId, shards []types.RepositoryShardId) (data *types.RepositoryData, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.CloneDuration)
		metrics.SnapshotsTotal.WithLabelValues("clone", outcome(err)).Inc()
	}()

	prior, meta, err := r.LoadRepositoryData(ctx)
	if err != nil {
		return nil, err
	}
	data = prior.Clone()

	targetInfo := types.SnapshotInfo{
		SnapshotId:    target,
		Indices:       source.Indices,
		StartTime:     source.StartTime,
		EndTime:       source.EndTime,
		State:         source.State,
		ShardFailures: source.ShardFailures,
		Shallow:       source.Shallow,
	}

	if source.Shallow {
		targetInfo.AcquirerUUID = target.UUID
		if err := r.cloneShallowLocks(shards, source.AcquirerUUID, target.UUID); err != nil {
			return nil, err
		}
	}

	for idx, ids := range data.IndexSnapshots {
		for _, id := range ids {
			if id == source.SnapshotId {
				data.IndexSnapshots[idx] = append(data.IndexSnapshots[idx], target)
				break
			}
		}
	}
	for key, identifier := range data.IndexMetaGenerations {
		if key.Snapshot == source.SnapshotId {
			data.IndexMetaGenerations[types.IndexMetaKey{Snapshot: target, Index: key.Index}] = identifier
		}
	}
	data.Snapshots[target] = data.Snapshots[source.SnapshotId]

	if err := r.writeSnapshotInfoBlob(ctx, targetInfo); err != nil {
		return nil, err
	}
	if err := r.publishRepositoryData(ctx, meta.Generation, data); err != nil {
		return nil, err
	}

	r.publish(events.EventSnapshotCloned, "snapshot "+source.SnapshotId.Name+" cloned as "+target.Name, map[string]string{
		"repository": r.name,
		"source":     source.SnapshotId.Name,
		"target":     target.Name,
	})
	return data, nil
}

func (r *Repository) cloneShallowLocks(shards []types.RepositoryShardId, sourceAcquirer, targetAcquirer string) error {
	for _, shard := range shards {
		src := lock.Key{Repository: r.name, Shard: shard, AcquirerUUID: sourceAcquirer}
		dst := lock.Key{Repository: r.name, Shard: shard, AcquirerUUID: targetAcquirer}
		if err := r.locks.Clone(src, dst); err != nil {
			return err
		}
	}
	return nil
}
