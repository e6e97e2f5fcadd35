package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/stretchr/testify/require"
)

func testContainers(t *testing.T) map[string]Container {
	t.Helper()
	fs, err := NewFSContainer(t.TempDir())
	require.NoError(t, err)
	return map[string]Container{
		"fs":  fs,
		"mem": NewMemContainer(),
	}
}

func TestContainerWriteReadRoundTrip(t *testing.T) {
	for name, c := range testContainers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.WriteBlob(ctx, "blob-1", strings.NewReader("hello"), 5, false))

			rc, err := c.ReadBlob(ctx, "blob-1")
			require.NoError(t, err)
			defer rc.Close()

			var buf [5]byte
			n, err := rc.Read(buf[:])
			require.NoError(t, err)
			require.Equal(t, "hello", string(buf[:n]))
		})
	}
}

func TestContainerReadMissingIsNotFound(t *testing.T) {
	for name, c := range testContainers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.ReadBlob(context.Background(), "missing")
			require.ErrorIs(t, err, repoerr.IsNotFound)
		})
	}
}

func TestContainerWriteFailIfExists(t *testing.T) {
	for name, c := range testContainers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.WriteBlob(ctx, "blob-1", strings.NewReader("a"), 1, false))
			err := c.WriteBlob(ctx, "blob-1", strings.NewReader("b"), 1, true)
			require.ErrorIs(t, err, repoerr.IsConcurrentModification)
		})
	}
}

func TestContainerWriteBlobAtomicFailIfExists(t *testing.T) {
	for name, c := range testContainers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.WriteBlobAtomic(ctx, "index-1", strings.NewReader("a"), 1, false))
			err := c.WriteBlobAtomic(ctx, "index-1", strings.NewReader("b"), 1, true)
			require.ErrorIs(t, err, repoerr.IsConcurrentModification)
		})
	}
}

func TestContainerListBlobsByPrefix(t *testing.T) {
	for name, c := range testContainers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.WriteBlob(ctx, "index-1", strings.NewReader("a"), 1, false))
			require.NoError(t, c.WriteBlob(ctx, "index-2", strings.NewReader("bb"), 2, false))
			require.NoError(t, c.WriteBlob(ctx, "snap-x.dat", strings.NewReader("c"), 1, false))

			listing, err := c.ListBlobsByPrefix(ctx, "index-")
			require.NoError(t, err)
			require.Len(t, listing, 2)
			require.Equal(t, int64(2), listing["index-2"].Length)
		})
	}
}

func TestContainerChildIsolation(t *testing.T) {
	for name, c := range testContainers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			shard0 := c.Child("indices").Child("idx-uuid").Child("0")
			require.NoError(t, shard0.WriteBlob(ctx, "__abc", strings.NewReader("data"), 4, false))

			_, err := c.ReadBlob(ctx, "__abc")
			require.Error(t, err, "a child's blobs must not leak into the parent namespace")

			rc, err := shard0.ReadBlob(ctx, "__abc")
			require.NoError(t, err)
			rc.Close()
		})
	}
}

func TestContainerDeleteRecursive(t *testing.T) {
	for name, c := range testContainers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.WriteBlob(ctx, "root-blob", strings.NewReader("ab"), 2, false))
			child := c.Child("sub")
			require.NoError(t, child.WriteBlob(ctx, "child-blob", strings.NewReader("xyz"), 3, false))

			result, err := c.Delete(ctx)
			require.NoError(t, err)
			require.Equal(t, int64(2), result.BlobsDeleted)
			require.Equal(t, int64(5), result.BytesDeleted)
		})
	}
}

func TestContainerDeleteBlobsIgnoringIfNotExists(t *testing.T) {
	for name, c := range testContainers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.WriteBlob(ctx, "a", strings.NewReader("1"), 1, false))
			require.NoError(t, c.DeleteBlobsIgnoringIfNotExists(ctx, []string{"a", "never-existed"}))

			listing, err := c.ListBlobs(ctx)
			require.NoError(t, err)
			require.Empty(t, listing)
		})
	}
}
