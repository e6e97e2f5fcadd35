package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/snapvault/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func shardOf(indexName string, num int) types.RepositoryShardId {
	return types.RepositoryShardId{Index: types.IndexId{Name: indexName, UUID: indexName + "-uuid"}, ShardNum: num}
}

func snapshotInfo(name string) types.SnapshotInfo {
	return types.SnapshotInfo{
		SnapshotId: types.SnapshotId{Name: name, UUID: uuid.NewString()},
		Indices:    []string{"logs"},
		State:      types.SnapshotStateSuccess,
	}
}

func TestFinalizeSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo1")
	require.NoError(t, err)

	shard := shardOf("logs", 0)
	source := &fakeShardSource{files: []fakeFile{
		{name: "segments_1", content: []byte("segment-one-contents")},
		{name: "_0.si", content: []byte("si"), virtual: true},
	}}

	gen, err := repo.SnapshotShard(ctx, "snap-a", shard, source, types.NewShardGen, nil)
	require.NoError(t, err)
	require.True(t, gen.Valid())

	info := snapshotInfo("snap-a")
	data, err := repo.FinalizeSnapshot(ctx, info, nil, map[types.RepositoryShardId]types.ShardGeneration{shard: gen})
	require.NoError(t, err)
	require.Equal(t, gen, data.ShardGenerations[shard])
	require.Contains(t, data.Snapshots, info.SnapshotId)

	reloaded, _, err := repo.LoadRepositoryData(ctx)
	require.NoError(t, err)
	require.Equal(t, data.GenID, reloaded.GenID)
	require.Equal(t, gen, reloaded.ShardGenerations[shard])
}

func TestSnapshotShardReusesUnchangedFiles(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo2")
	require.NoError(t, err)

	shard := shardOf("logs", 0)
	source := &fakeShardSource{files: []fakeFile{
		{name: "segments_1", content: []byte("unchanged-content")},
	}}

	gen1, err := repo.SnapshotShard(ctx, "snap-a", shard, source, types.NewShardGen, nil)
	require.NoError(t, err)

	gen2, err := repo.SnapshotShard(ctx, "snap-b", shard, source, gen1, nil)
	require.NoError(t, err)
	require.NotEqual(t, gen1, gen2)

	container := repo.shardContainer(shard)
	manifest, err := repo.loadShardManifest(ctx, container, gen2)
	require.NoError(t, err)
	require.Len(t, manifest.Snapshots, 2)
	require.Equal(t, manifest.Snapshots[0].Files[0].LogicalName, manifest.Snapshots[1].Files[0].LogicalName)
}

func TestSnapshotShardFastPathReuseByCommitIdentifier(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo3")
	require.NoError(t, err)

	shard := shardOf("logs", 0)
	source := &fakeShardSource{
		identifier:    "commit-xyz",
		hasIdentifier: true,
		files: []fakeFile{
			{name: "segments_1", content: []byte("first-commit")},
		},
	}
	gen1, err := repo.SnapshotShard(ctx, "snap-a", shard, source, types.NewShardGen, nil)
	require.NoError(t, err)

	// A second snapshot against the identical commit identifier must reuse
	// the prior file list without calling CommitFiles again.
	source2 := &fakeShardSource{
		identifier:    "commit-xyz",
		hasIdentifier: true,
		files:         nil, // CommitFiles would fail/empty if called
	}
	gen2, err := repo.SnapshotShard(ctx, "snap-b", shard, source2, gen1, nil)
	require.NoError(t, err)

	container := repo.shardContainer(shard)
	manifest, err := repo.loadShardManifest(ctx, container, gen2)
	require.NoError(t, err)
	require.Equal(t, "segments_1", manifest.Snapshots[1].Files[0].PhysicalName)
}

func TestRestoreShardRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo4")
	require.NoError(t, err)

	shard := shardOf("logs", 0)
	source := &fakeShardSource{files: []fakeFile{
		{name: "segments_1", content: []byte("written-blob-content-that-is-longer-than-a-part")},
		{name: "_0.si", content: []byte("inline"), virtual: true},
	}}

	gen, err := repo.SnapshotShard(ctx, "snap-a", shard, source, types.NewShardGen, nil)
	require.NoError(t, err)

	sink := newFakeShardSink()
	err = repo.RestoreShard(ctx, "snap-a", shard, gen, sink, nil)
	require.NoError(t, err)

	require.Equal(t, []byte("written-blob-content-that-is-longer-than-a-part"), sink.written["segments_1"])
	require.Equal(t, []byte("inline"), sink.written["_0.si"])
}

func TestDeleteSnapshotsGCsOrphanedBlobs(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo5")
	require.NoError(t, err)

	shard := shardOf("logs", 0)
	sourceA := &fakeShardSource{files: []fakeFile{{name: "segments_1", content: []byte("a-only-content")}}}
	genA, err := repo.SnapshotShard(ctx, "snap-a", shard, sourceA, types.NewShardGen, nil)
	require.NoError(t, err)

	infoA := snapshotInfo("snap-a")
	_, err = repo.FinalizeSnapshot(ctx, infoA, nil, map[types.RepositoryShardId]types.ShardGeneration{shard: genA})
	require.NoError(t, err)

	sourceB := &fakeShardSource{files: []fakeFile{{name: "segments_2", content: []byte("b-only-content")}}}
	genB, err := repo.SnapshotShard(ctx, "snap-b", shard, sourceB, genA, nil)
	require.NoError(t, err)

	infoB := snapshotInfo("snap-b")
	_, err = repo.FinalizeSnapshot(ctx, infoB, nil, map[types.RepositoryShardId]types.ShardGeneration{shard: genB})
	require.NoError(t, err)

	container := repo.shardContainer(shard)
	manifestB, err := repo.loadShardManifest(ctx, container, genB)
	require.NoError(t, err)
	orphan := manifestB.Snapshots[0].Files[0].LogicalName

	data, err := repo.DeleteSnapshots(ctx, []types.SnapshotInfo{infoA}, []types.RepositoryShardId{shard})
	require.NoError(t, err)
	require.NotContains(t, data.Snapshots, infoA.SnapshotId)
	require.Contains(t, data.Snapshots, infoB.SnapshotId)

	// The orphaned-blob GC runs in the background after the delete publishes.
	require.Eventually(t, func() bool {
		_, err := container.ReadBlob(ctx, orphan)
		return err != nil
	}, time.Second, 10*time.Millisecond)

	newGen := data.ShardGenerations[shard]
	manifest, err := repo.loadShardManifest(ctx, container, newGen)
	require.NoError(t, err)
	require.Len(t, manifest.Snapshots, 1)
	require.Equal(t, "snap-b", manifest.Snapshots[0].SnapshotName)
}

func TestDeleteAllSnapshotsMarksShardDeleted(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo6")
	require.NoError(t, err)

	shard := shardOf("logs", 0)
	source := &fakeShardSource{files: []fakeFile{{name: "segments_1", content: []byte("only-content")}}}
	gen, err := repo.SnapshotShard(ctx, "snap-a", shard, source, types.NewShardGen, nil)
	require.NoError(t, err)

	info := snapshotInfo("snap-a")
	_, err = repo.FinalizeSnapshot(ctx, info, nil, map[types.RepositoryShardId]types.ShardGeneration{shard: gen})
	require.NoError(t, err)

	data, err := repo.DeleteSnapshots(ctx, []types.SnapshotInfo{info}, []types.RepositoryShardId{shard})
	require.NoError(t, err)
	require.Equal(t, types.DeletedShardGen, data.ShardGenerations[shard])
}

func TestCloneSnapshotReferencesSameShardGeneration(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo7")
	require.NoError(t, err)

	shard := shardOf("logs", 0)
	source := &fakeShardSource{files: []fakeFile{{name: "segments_1", content: []byte("clone-me-content")}}}
	gen, err := repo.SnapshotShard(ctx, "snap-a", shard, source, types.NewShardGen, nil)
	require.NoError(t, err)

	info := snapshotInfo("snap-a")
	_, err = repo.FinalizeSnapshot(ctx, info, nil, map[types.RepositoryShardId]types.ShardGeneration{shard: gen})
	require.NoError(t, err)

	target := types.SnapshotId{Name: "snap-a-clone", UUID: uuid.NewString()}
	data, err := repo.CloneSnapshot(ctx, info, target, []types.RepositoryShardId{shard})
	require.NoError(t, err)
	require.Equal(t, gen, data.ShardGenerations[shard])
	require.Contains(t, data.Snapshots, target)
}

func TestStartVerificationRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo8")
	require.NoError(t, err)

	require.NoError(t, repo.StartVerification(ctx, "node-1"))
	require.NoError(t, repo.EndVerification(ctx, "node-1"))
}

func TestCleanupRepublishesGeneration(t *testing.T) {
	ctx := context.Background()
	repo, err := newTestRepository(ctx, "repo9")
	require.NoError(t, err)

	shard := shardOf("logs", 0)
	source := &fakeShardSource{files: []fakeFile{{name: "segments_1", content: []byte("cleanup-content")}}}
	gen, err := repo.SnapshotShard(ctx, "snap-a", shard, source, types.NewShardGen, nil)
	require.NoError(t, err)
	info := snapshotInfo("snap-a")
	_, err = repo.FinalizeSnapshot(ctx, info, nil, map[types.RepositoryShardId]types.ShardGeneration{shard: gen})
	require.NoError(t, err)

	before, _, err := repo.LoadRepositoryData(ctx)
	require.NoError(t, err)

	after, err := repo.Cleanup(ctx)
	require.NoError(t, err)
	require.Greater(t, after.GenID, before.GenID)
	require.Equal(t, before.ShardGenerations, after.ShardGenerations)
}
