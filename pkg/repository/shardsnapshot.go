package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/cuemby/snapvault/pkg/blob"
	"github.com/cuemby/snapvault/pkg/blobformat"
	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
	"github.com/cuemby/snapvault/pkg/workerpool"
	"github.com/google/uuid"
)

// SnapshotShard implements SPEC_FULL.md §4.4: diff source's commit files
// against the shard's prior manifest, write new data blobs for anything
// that changed, and publish an updated per-shard index-<gen>. The caller
// must be running on the "snapshot" pool (AssertPoolThread enforces this
// when a test installs a checker).
func (r *Repository) SnapshotShard(ctx context.Context, snapshotName string, shard types.RepositoryShardId, source ShardSource, priorGen types.ShardGeneration, status *Status) (types.ShardGeneration, error) {
	workerpool.AssertPoolThread(r.snapshotPool.Name())

	container := r.shardContainer(shard)
	prior, err := r.loadShardManifest(ctx, container, priorGen)
	if err != nil {
		return "", err
	}

	identifier, hasIdentifier, err := source.CommitIdentifier(ctx)
	if err != nil {
		return "", repoerr.Wrap(repoerr.TransientIO, "repository.SnapshotShard", err)
	}

	var files []types.FileInfo
	if hasIdentifier {
		if reused, ok := prior.FindShardStateIdentifier(identifier); ok {
			files = reused
		}
	}

	if files == nil {
		files, err = r.diffAndUploadShardFiles(ctx, container, source, prior, status)
		if err != nil {
			return "", err
		}
	}

	newGen := types.ShardGeneration(uuid.NewString())
	newManifest := &types.BlobStoreIndexShardSnapshots{
		Snapshots: append(cloneSnapshotFiles(prior.Snapshots), types.SnapshotFiles{
			SnapshotName:         snapshotName,
			Files:                files,
			ShardStateIdentifier: identifier,
		}),
	}

	if err := r.writeShardManifest(ctx, container, newGen, newManifest); err != nil {
		return "", err
	}
	return newGen, nil
}

func cloneSnapshotFiles(in []types.SnapshotFiles) []types.SnapshotFiles {
	out := make([]types.SnapshotFiles, len(in))
	copy(out, in)
	return out
}

// diffAndUploadShardFiles is SPEC_FULL.md §4.4 step 2/4: for each commit
// file, reuse an identical physical file's FileInfo verbatim, or write a
// fresh data (or virtual) blob. Files are fanned out across the snapshot
// pool, bounded by its worker count; an abort observed by one file's task
// cancels the rest but does not roll back writes already in flight.
func (r *Repository) diffAndUploadShardFiles(ctx context.Context, container blob.Container, source ShardSource, prior *types.BlobStoreIndexShardSnapshots, status *Status) ([]types.FileInfo, error) {
	commitFiles, err := source.CommitFiles(ctx)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.TransientIO, "repository.diffAndUploadShardFiles", err)
	}

	physical := prior.PhysicalIndexFiles()
	files := make([]types.FileInfo, len(commitFiles))

	err = r.snapshotPool.Run(ctx, len(commitFiles), func(ctx context.Context, i int) error {
		cf := commitFiles[i]
		if status != nil && status.IsAborted() {
			r.publish(events.EventSnapshotAborted, "snapshot aborted during shard diff/upload", map[string]string{"repository": r.name})
			return repoerr.New(repoerr.Aborted, "repository.diffAndUploadShardFiles", fmt.Errorf("snapshot aborted"))
		}

		if existing, ok := physical[cf.PhysicalName]; ok && cf.IsSame(existing) {
			files[i] = existing
			metrics.ShardFilesReused.Inc()
			return nil
		}

		fi, err := r.writeShardFile(ctx, container, source, cf, status)
		if err != nil {
			return err
		}
		files[i] = fi
		metrics.ShardFilesUploaded.Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// writeShardFile writes one changed file as a new data blob, or as a
// virtual (inline) reference if its content is small enough to carry in
// the manifest directly.
func (r *Repository) writeShardFile(ctx context.Context, container blob.Container, source ShardSource, cf CommitFile, status *Status) (types.FileInfo, error) {
	if len(cf.Hash) > 0 && int64(len(cf.Hash)) == cf.Length {
		return types.FileInfo{
			LogicalName:  "v__" + uuid.NewString(),
			PhysicalName: cf.PhysicalName,
			Length:       cf.Length,
			Hash:         cf.Hash,
			PartSize:     cf.Length,
			PartCount:    1,
			Checksum:     cf.Checksum,
			WriterUUID:   cf.WriterUUID,
		}, nil
	}

	name := "__" + uuid.NewString()
	partSize := r.Settings().IOBufferSize
	if partSize <= 0 {
		partSize = DefaultSettings().IOBufferSize
	}
	partCount := int((cf.Length + partSize - 1) / partSize)
	if partCount < 1 {
		partCount = 1
	}

	src, err := source.OpenFile(ctx, cf.PhysicalName)
	if err != nil {
		return types.FileInfo{}, repoerr.Wrap(repoerr.TransientIO, "repository.writeShardFile", err)
	}
	defer src.Close()

	vr := newVerifyingReader(src, cf.Checksum, status)
	fi := types.FileInfo{
		LogicalName:  name,
		PhysicalName: cf.PhysicalName,
		Length:       cf.Length,
		Checksum:     cf.Checksum,
		WriterUUID:   cf.WriterUUID,
		PartSize:     partSize,
		PartCount:    partCount,
	}

	remaining := cf.Length
	for i := 0; i < partCount; i++ {
		n := partSize
		if remaining < n {
			n = remaining
		}
		part := rateLimit(ctx, io.LimitReader(vr, n), r.uploadLimiter)
		if err := container.WriteBlob(ctx, fi.PartName(i), part, n, true); err != nil {
			return types.FileInfo{}, repoerr.Wrap(repoerr.TransientIO, "repository.writeShardFile", err)
		}
		remaining -= n
		metrics.ShardBytesUploaded.Add(float64(n))
	}

	if err := vr.Close(); err != nil {
		if markErr := r.markCorrupted(ctx); markErr != nil {
			r.logger.Error().Err(markErr).Msg("failed to mark repository corrupted after local checksum failure")
		}
		return types.FileInfo{}, err
	}
	return fi, nil
}

// loadShardManifest reads the shard's current BlobStoreIndexShardSnapshots,
// or returns an empty one for a never-snapshotted shard.
func (r *Repository) loadShardManifest(ctx context.Context, container blob.Container, gen types.ShardGeneration) (*types.BlobStoreIndexShardSnapshots, error) {
	if !gen.Valid() {
		return &types.BlobStoreIndexShardSnapshots{}, nil
	}

	rc, err := container.ReadBlob(ctx, "index-"+string(gen))
	if err != nil {
		return nil, repoerr.Wrap(repoerr.TransientIO, "repository.loadShardManifest", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.TransientIO, "repository.loadShardManifest", err)
	}

	manifest, err := blobformat.Read[types.BlobStoreIndexShardSnapshots](raw)
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (r *Repository) writeShardManifest(ctx context.Context, container blob.Container, gen types.ShardGeneration, manifest *types.BlobStoreIndexShardSnapshots) error {
	body, err := blobformat.Write(*manifest, r.Settings().compressionOrNone())
	if err != nil {
		return err
	}
	if err := container.WriteBlobAtomic(ctx, "index-"+string(gen), bytes.NewReader(body), int64(len(body)), true); err != nil {
		return repoerr.Wrap(repoerr.TransientIO, "repository.writeShardManifest", err)
	}
	return nil
}
