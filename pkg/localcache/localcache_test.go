package localcache

import (
	"testing"

	"github.com/cuemby/snapvault/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestRepositoryDataCacheGetMiss(t *testing.T) {
	c := NewRepositoryDataCache()
	_, ok := c.Get("repo1", 0)
	require.False(t, ok)
}

func TestRepositoryDataCacheCASRejectsStaleWriter(t *testing.T) {
	c := NewRepositoryDataCache()
	data5 := types.NewRepositoryData()
	data5.GenID = 5

	require.True(t, c.CompareAndSwap("repo1", 5, data5))

	data3 := types.NewRepositoryData()
	data3.GenID = 3
	require.False(t, c.CompareAndSwap("repo1", 3, data3), "a writer for an older generation must not win")

	got, ok := c.Get("repo1", 5)
	require.True(t, ok)
	require.Equal(t, int64(5), got.GenID)
}

func TestRepositoryDataCacheInvalidate(t *testing.T) {
	c := NewRepositoryDataCache()
	c.CompareAndSwap("repo1", 1, types.NewRepositoryData())
	c.Invalidate("repo1")
	_, ok := c.Get("repo1", 1)
	require.False(t, ok)
}

func TestGenerationLedgerRoundTrip(t *testing.T) {
	ledger, err := OpenGenerationLedger(t.TempDir())
	require.NoError(t, err)
	defer ledger.Close()

	gen, err := ledger.Last("repo1")
	require.NoError(t, err)
	require.Equal(t, types.GenerationUnknown, gen)

	require.NoError(t, ledger.Record("repo1", 7))
	gen, err = ledger.Last("repo1")
	require.NoError(t, err)
	require.Equal(t, int64(7), gen)
}
