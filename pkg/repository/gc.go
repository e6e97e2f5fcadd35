package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/snapvault/pkg/blob"
	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/cuemby/snapvault/pkg/types"
)

// gcRootAndIndexBlobs is SPEC_FULL.md §4.6 step 4(a) / §4.9's stale-blob GC
// component: best-effort deletes root-level snap-*.dat/shallow-snap-*.dat
// blobs and per-index meta-*.dat blobs that data no longer references, and
// removes entire indices/<uuid>/ directories no live index or shard
// generation still points into. It runs after data has already been
// published, so a failure here never blocks the caller: the orphaned blobs
// are retried by the next delete or cleanup pass.
func (r *Repository) gcRootAndIndexBlobs(ctx context.Context, data *types.RepositoryData) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GCDuration)

	staleRoot := r.staleRootSnapshotBlobs(ctx, data)
	if len(staleRoot) > 0 {
		if err := r.root.DeleteBlobsIgnoringIfNotExists(ctx, staleRoot); err != nil {
			r.logger.Warn().Err(err).Int("count", len(staleRoot)).Msg("root blob GC: failed to delete stale snapshot-info blobs")
		} else {
			metrics.GCRunsTotal.Inc()
			metrics.GCBlobsDeleted.Add(float64(len(staleRoot)))
		}
	}

	deletedDirs, deletedMetas := r.gcIndexContainers(ctx, data)
	if deletedDirs > 0 || deletedMetas > 0 {
		metrics.GCRunsTotal.Inc()
		metrics.GCBlobsDeleted.Add(float64(deletedMetas))
		r.publish(events.EventGCCompleted, fmt.Sprintf("deleted %d orphaned index directories and %d stale index-metadata blobs", deletedDirs, deletedMetas), map[string]string{"repository": r.name})
	}
}

// staleRootSnapshotBlobs lists snap-*.dat and shallow-snap-*.dat and returns
// the ones whose UUID is no longer a key of data.Snapshots.
func (r *Repository) staleRootSnapshotBlobs(ctx context.Context, data *types.RepositoryData) []string {
	live := make(map[string]bool, len(data.Snapshots))
	for id := range data.Snapshots {
		live[id.UUID] = true
	}

	var stale []string
	for _, prefix := range []string{"snap-", "shallow-snap-"} {
		listed, err := r.root.ListBlobsByPrefix(ctx, prefix)
		if err != nil {
			r.logger.Warn().Err(err).Str("prefix", prefix).Msg("root blob GC: failed to list")
			continue
		}
		for name := range listed {
			uuid, ok := uuidFromBlobName(name, prefix)
			if !ok || live[uuid] {
				continue
			}
			stale = append(stale, name)
		}
	}
	return stale
}

type indexContainerEntry struct {
	uuid      string
	container blob.Container
}

// gcIndexContainers fans each indices/<uuid>/ directory out across the
// generic pool: a dead index's directory is deleted wholesale, a live
// index's meta-*.dat blobs are diffed against IndexMetaIdentifiers.
func (r *Repository) gcIndexContainers(ctx context.Context, data *types.RepositoryData) (deletedDirs, deletedMetas int) {
	liveIndexUUIDs := make(map[string]bool, len(data.IndexSnapshots))
	for index, snaps := range data.IndexSnapshots {
		if len(snaps) > 0 {
			liveIndexUUIDs[index.UUID] = true
		}
	}
	for shard, gen := range data.ShardGenerations {
		if gen.Valid() {
			liveIndexUUIDs[shard.Index.UUID] = true
		}
	}

	liveMetaBlobUUIDs := make(map[string]bool, len(data.IndexMetaIdentifiers))
	for _, blobUUID := range data.IndexMetaIdentifiers {
		liveMetaBlobUUIDs[blobUUID] = true
	}

	children, err := r.root.Child("indices").Children(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("index directory GC: failed to list indices")
		return 0, 0
	}

	entries := make([]indexContainerEntry, 0, len(children))
	for uuid, container := range children {
		entries = append(entries, indexContainerEntry{uuid: uuid, container: container})
	}

	var mu sync.Mutex
	_ = r.genericPool.Run(ctx, len(entries), func(ctx context.Context, i int) error {
		e := entries[i]
		if !liveIndexUUIDs[e.uuid] {
			if _, err := e.container.Delete(ctx); err != nil {
				r.logger.Warn().Err(err).Str("index", e.uuid).Msg("index directory GC: failed to delete orphaned index directory")
				return nil
			}
			mu.Lock()
			deletedDirs++
			mu.Unlock()
			return nil
		}

		staleMeta := r.staleIndexMetaBlobs(ctx, e.container, e.uuid, liveMetaBlobUUIDs)
		if len(staleMeta) == 0 {
			return nil
		}
		if err := e.container.DeleteBlobsIgnoringIfNotExists(ctx, staleMeta); err != nil {
			r.logger.Warn().Err(err).Int("count", len(staleMeta)).Str("index", e.uuid).Msg("index meta GC: failed to delete stale metadata blobs")
			return nil
		}
		mu.Lock()
		deletedMetas += len(staleMeta)
		mu.Unlock()
		return nil
	})

	return deletedDirs, deletedMetas
}

func (r *Repository) staleIndexMetaBlobs(ctx context.Context, container blob.Container, indexUUID string, liveMetaBlobUUIDs map[string]bool) []string {
	listed, err := container.ListBlobsByPrefix(ctx, "meta-")
	if err != nil {
		r.logger.Warn().Err(err).Str("index", indexUUID).Msg("index meta GC: failed to list")
		return nil
	}
	var stale []string
	for name := range listed {
		blobUUID, ok := uuidFromBlobName(name, "meta-")
		if !ok || liveMetaBlobUUIDs[blobUUID] {
			continue
		}
		stale = append(stale, name)
	}
	return stale
}

// uuidFromBlobName extracts the UUID from a "<prefix><uuid>.dat" blob name.
func uuidFromBlobName(name, prefix string) (string, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".dat") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".dat"), true
}
