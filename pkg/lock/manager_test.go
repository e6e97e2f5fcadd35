package lock

import (
	"testing"

	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
	"github.com/stretchr/testify/require"
)

func testKey(acquirer string) Key {
	return Key{
		Repository:   "repo-1",
		Shard:        types.RepositoryShardId{Index: types.IndexId{Name: "idx", UUID: "idx-uuid"}, ShardNum: 3},
		AcquirerUUID: acquirer,
	}
}

func TestManagerAcquireThenRelease(t *testing.T) {
	m := NewMemManager()
	k := testKey("acq-1")

	require.NoError(t, m.Acquire(k))
	require.NoError(t, m.Release(k))
}

func TestManagerReleaseWithoutAcquireFails(t *testing.T) {
	m := NewMemManager()
	err := m.Release(testKey("acq-1"))
	require.ErrorIs(t, err, repoerr.IsNotFound)
}

func TestManagerAcquireIsRefCounted(t *testing.T) {
	m := NewMemManager()
	k := testKey("acq-1")

	require.NoError(t, m.Acquire(k))
	require.NoError(t, m.Acquire(k))
	require.NoError(t, m.Release(k))
	require.NoError(t, m.Release(k))
	require.ErrorIs(t, m.Release(k), repoerr.IsNotFound)
}

func TestManagerCloneRequiresSourceHeld(t *testing.T) {
	m := NewMemManager()
	err := m.Clone(testKey("acq-1"), testKey("acq-2"))
	require.ErrorIs(t, err, repoerr.IsNotFound)
}

func TestManagerCloneAcquiresDestination(t *testing.T) {
	m := NewMemManager()
	src, dst := testKey("acq-1"), testKey("acq-2")

	require.NoError(t, m.Acquire(src))
	require.NoError(t, m.Clone(src, dst))

	require.NoError(t, m.Release(src))
	require.NoError(t, m.Release(dst))
}
