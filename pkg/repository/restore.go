package repository

import (
	"context"
	"fmt"
	"io"

	"github.com/cuemby/snapvault/pkg/blob"
	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
	"github.com/cuemby/snapvault/pkg/workerpool"
)

// ShardSink is the write side of the local shard storage/Lucene-layer
// collaborator SPEC_FULL.md §1 names as external: RestoreShard streams into
// it, never onto the filesystem directly.
type ShardSink interface {
	// CreateFile opens physicalName for a single, fully-ordered write of
	// length bytes.
	CreateFile(ctx context.Context, physicalName string, length int64) (io.WriteCloser, error)
}

// RestoreShard implements SPEC_FULL.md §4.8: restore every file belonging
// to snapshotName in the shard's manifest at gen, writing each either
// directly from its inlined Hash (virtual files) or by a rate-limited,
// checksum-verified streaming copy of its data-blob parts. Files restore
// concurrently on the snapshot pool, bounded by its worker count.
func (r *Repository) RestoreShard(ctx context.Context, snapshotName string, shard types.RepositoryShardId, gen types.ShardGeneration, sink ShardSink, status *Status) error {
	workerpool.AssertPoolThread(r.snapshotPool.Name())

	container := r.shardContainer(shard)
	manifest, err := r.loadShardManifest(ctx, container, gen)
	if err != nil {
		return err
	}

	var files []types.FileInfo
	for _, sf := range manifest.Snapshots {
		if sf.SnapshotName == snapshotName {
			files = sf.Files
			break
		}
	}
	if files == nil {
		return repoerr.New(repoerr.NotFound, "repository.RestoreShard", fmt.Errorf("snapshot %q not present in shard manifest", snapshotName))
	}

	return r.snapshotPool.Run(ctx, len(files), func(ctx context.Context, i int) error {
		fi := files[i]
		if status != nil && status.IsAborted() {
			return repoerr.New(repoerr.Aborted, "repository.RestoreShard", fmt.Errorf("restore aborted"))
		}
		return r.restoreFile(ctx, container, sink, fi, status)
	})
}

func (r *Repository) restoreFile(ctx context.Context, container blob.Container, sink ShardSink, fi types.FileInfo, status *Status) error {
	dst, err := sink.CreateFile(ctx, fi.PhysicalName, fi.Length)
	if err != nil {
		return repoerr.Wrap(repoerr.TransientIO, "repository.restoreFile", err)
	}
	defer dst.Close()

	if fi.HashEqualsContents() {
		if _, err := dst.Write(fi.Hash); err != nil {
			return repoerr.Wrap(repoerr.TransientIO, "repository.restoreFile", err)
		}
		if got := checksumString(fi.Hash); fi.Checksum != "" && got != fi.Checksum {
			if markErr := r.markCorrupted(ctx); markErr != nil {
				r.logger.Error().Err(markErr).Msg("failed to mark repository corrupted after inline checksum mismatch")
			}
			return repoerr.New(repoerr.CorruptBlob, "repository.restoreFile", fmt.Errorf("checksum mismatch: want %s, got %s", fi.Checksum, got))
		}
		return nil
	}

	vr := newVerifyingReader(nil, fi.Checksum, status)
	for i := 0; i < fi.PartCount; i++ {
		if status != nil && status.IsAborted() {
			return repoerr.New(repoerr.Aborted, "repository.restoreFile", fmt.Errorf("restore aborted"))
		}
		rc, err := container.ReadBlob(ctx, fi.PartName(i))
		if err != nil {
			return repoerr.Wrap(repoerr.TransientIO, "repository.restoreFile", err)
		}
		vr.r = rc
		limited := rateLimit(ctx, vr, r.restoreLimiter)
		n, err := io.Copy(dst, limited)
		rc.Close()
		if err != nil {
			return repoerr.Wrap(repoerr.TransientIO, "repository.restoreFile", err)
		}
		metrics.ShardBytesRestored.Add(float64(n))
	}

	if err := vr.Close(); err != nil {
		if markErr := r.markCorrupted(ctx); markErr != nil {
			r.logger.Error().Err(markErr).Msg("failed to mark repository corrupted after restore checksum failure")
		}
		return err
	}
	return nil
}
