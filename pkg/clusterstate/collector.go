package clusterstate

import (
	"time"

	"github.com/cuemby/snapvault/pkg/metrics"
)

// leaderReporter is implemented by raftStore; memStore has no leadership
// concept, so Collector treats it as always-leader (there is only ever one
// writer).
type leaderReporter interface {
	IsLeader() bool
}

// Collector periodically republishes cluster-state gauges (per-repository
// generation/corruption, raft leadership) so they survive even when no
// mutating call has happened recently to refresh them inline.
type Collector struct {
	store  Store
	stopCh chan struct{}
}

// NewCollector generalizes the teacher's manager-bound MetricsCollector to
// poll a clusterstate.Store instead of cluster-orchestration state.
func NewCollector(store Store) *Collector {
	return &Collector{store: store, stopCh: make(chan struct{})}
}

// Start begins collecting on a 15-second tick, matching the teacher's
// collection interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	repos := c.store.Repositories()
	metrics.RepositoriesKnown.Set(float64(len(repos)))

	for _, meta := range repos {
		metrics.RepositoryGeneration.WithLabelValues(meta.Name).Set(float64(meta.Generation))
		metrics.RepositoryPendingGeneration.WithLabelValues(meta.Name).Set(float64(meta.PendingGeneration))
		if meta.Corrupted() {
			metrics.RepositoryCorrupted.WithLabelValues(meta.Name).Set(1)
		} else {
			metrics.RepositoryCorrupted.WithLabelValues(meta.Name).Set(0)
		}
	}

	if lr, ok := c.store.(leaderReporter); ok {
		if lr.IsLeader() {
			metrics.ClusterStateLeader.Set(1)
		} else {
			metrics.ClusterStateLeader.Set(0)
		}
	} else {
		metrics.ClusterStateLeader.Set(1)
	}
}
