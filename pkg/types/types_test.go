package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryDataRoundTrip(t *testing.T) {
	d := NewRepositoryData()
	snap := SnapshotId{Name: "s1", UUID: "u1"}
	idx := IndexId{Name: "i", UUID: "iu1"}
	d.GenID = 3
	d.Snapshots[snap] = SnapshotEntry{State: SnapshotStateSuccess, Version: "2"}
	d.Indices["i"] = idx
	d.IndexSnapshots[idx] = []SnapshotId{snap}
	d.ShardGenerations[RepositoryShardId{Index: idx, ShardNum: 0}] = ShardGeneration("gen-1")
	d.IndexMetaGenerations[IndexMetaKey{Snapshot: snap, Index: idx}] = "ident-1"
	d.IndexMetaIdentifiers["ident-1"] = "blob-uuid-1"

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var out RepositoryData
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, d.GenID, out.GenID)
	assert.Equal(t, d.Snapshots, out.Snapshots)
	assert.Equal(t, d.Indices, out.Indices)
	assert.Equal(t, d.IndexSnapshots, out.IndexSnapshots)
	assert.Equal(t, d.ShardGenerations, out.ShardGenerations)
}

func TestRepositoryDataClone(t *testing.T) {
	d := NewRepositoryData()
	idx := IndexId{Name: "i", UUID: "iu1"}
	d.Indices["i"] = idx
	d.IndexSnapshots[idx] = []SnapshotId{{Name: "s1", UUID: "u1"}}

	clone := d.Clone()
	clone.Indices["i"] = IndexId{Name: "i", UUID: "iu2"}
	clone.IndexSnapshots[idx][0] = SnapshotId{Name: "s2", UUID: "u2"}

	assert.Equal(t, "iu1", d.Indices["i"].UUID, "clone must not alias the original map")
	assert.Equal(t, "u1", d.IndexSnapshots[idx][0].UUID, "clone must not alias the original slice backing array")
}

func TestShardGenerationValid(t *testing.T) {
	assert.True(t, ShardGeneration("abc-123").Valid())
	assert.False(t, NewShardGen.Valid())
	assert.False(t, DeletedShardGen.Valid())
	assert.False(t, ShardGeneration("").Valid())
}

func TestFileInfoPartName(t *testing.T) {
	f := FileInfo{LogicalName: "__abc", PartCount: 1}
	assert.Equal(t, "__abc", f.PartName(0))

	f.PartCount = 3
	assert.Equal(t, "__abc.part0", f.PartName(0))
	assert.Equal(t, "__abc.part2", f.PartName(2))
}

func TestFileInfoHashEqualsContents(t *testing.T) {
	f := FileInfo{Length: 4, Hash: []byte("abcd")}
	assert.True(t, f.HashEqualsContents())

	f.Length = 10
	assert.False(t, f.HashEqualsContents())
}

func TestBlobStoreIndexShardSnapshotsFastPath(t *testing.T) {
	s := &BlobStoreIndexShardSnapshots{
		Snapshots: []SnapshotFiles{
			{SnapshotName: "s1", ShardStateIdentifier: "commit-a", Files: []FileInfo{{LogicalName: "__x"}}},
		},
	}

	files, ok := s.FindShardStateIdentifier("commit-a")
	require.True(t, ok)
	assert.Equal(t, "__x", files[0].LogicalName)

	_, ok = s.FindShardStateIdentifier("commit-b")
	assert.False(t, ok)
}

func TestBlobStoreIndexShardSnapshotsWithoutSnapshots(t *testing.T) {
	s := &BlobStoreIndexShardSnapshots{
		Snapshots: []SnapshotFiles{
			{SnapshotName: "s1"},
			{SnapshotName: "s2"},
		},
	}
	out := s.WithoutSnapshots(map[string]bool{"s1": true})
	require.Len(t, out.Snapshots, 1)
	assert.Equal(t, "s2", out.Snapshots[0].SnapshotName)
}

func TestRepositoryMetadataCorrupted(t *testing.T) {
	assert.True(t, RepositoryMetadata{Generation: GenerationCorrupted}.Corrupted())
	assert.False(t, RepositoryMetadata{Generation: GenerationEmpty}.Corrupted())
}
