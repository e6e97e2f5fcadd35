package clusterstate

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorPublishesRepositoryGauges(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	_, err := store.EnsureRepository(ctx, "repo-a", nil)
	require.NoError(t, err)
	_, err = store.ClaimGeneration(ctx, "repo-a", -1)
	require.NoError(t, err)
	_, err = store.PublishGeneration(ctx, "repo-a", 0)
	require.NoError(t, err)

	c := NewCollector(store)
	c.collect()

	require.Equal(t, float64(1), testutil.ToFloat64(metrics.RepositoriesKnown))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.RepositoryGeneration.WithLabelValues("repo-a")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ClusterStateLeader))
}

func TestCollectorStopStopsTicker(t *testing.T) {
	c := NewCollector(NewMemStore())
	c.Start()
	time.Sleep(5 * time.Millisecond)
	c.Stop()
}
