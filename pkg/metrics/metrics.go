package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generation protocol metrics

	RepositoryGeneration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapvault_repository_generation",
			Help: "Current safe generation, by repository",
		},
		[]string{"repository"},
	)

	RepositoryPendingGeneration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapvault_repository_pending_generation",
			Help: "Current pending generation, by repository",
		},
		[]string{"repository"},
	)

	RepositoryCorrupted = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapvault_repository_corrupted",
			Help: "Whether the repository is marked CORRUPTED (1) or not (0)",
		},
		[]string{"repository"},
	)

	GenerationConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapvault_generation_conflicts_total",
			Help: "Total number of ConcurrentModification failures claiming a generation",
		},
		[]string{"repository"},
	)

	GenerationPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapvault_generation_publish_duration_seconds",
			Help:    "Time from claiming a generation to publishing it",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"repository"},
	)

	// Snapshot lifecycle metrics

	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapvault_snapshots_total",
			Help: "Total number of snapshot operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	FinalizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapvault_finalize_duration_seconds",
			Help:    "Time taken to finalize a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeleteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapvault_delete_duration_seconds",
			Help:    "Time taken to delete a collection of snapshots in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CloneDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapvault_clone_duration_seconds",
			Help:    "Time taken to clone a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Shard I/O metrics

	ShardFilesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_shard_files_uploaded_total",
			Help: "Total number of new shard data blobs written",
		},
	)

	ShardFilesReused = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_shard_files_reused_total",
			Help: "Total number of shard files satisfied by content-addressed reuse",
		},
	)

	ShardBytesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_shard_bytes_uploaded_total",
			Help: "Total number of shard data bytes written",
		},
	)

	ShardBytesRestored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_shard_bytes_restored_total",
			Help: "Total number of shard data bytes restored",
		},
	)

	// GC metrics

	GCRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_gc_runs_total",
			Help: "Total number of stale-blob GC passes run",
		},
	)

	GCBlobsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapvault_gc_blobs_deleted_total",
			Help: "Total number of blobs deleted by GC",
		},
	)

	GCDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapvault_gc_duration_seconds",
			Help:    "Time taken for a GC pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Worker pool metrics

	PoolActiveWorkers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapvault_pool_active_workers",
			Help: "Number of currently active workers, by pool",
		},
		[]string{"pool"},
	)

	PoolQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapvault_pool_queue_depth",
			Help: "Number of queued tasks, by pool",
		},
		[]string{"pool"},
	)

	// Cluster-state metrics

	ClusterStateLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapvault_cluster_state_leader",
			Help: "Whether this node currently holds raft leadership over the cluster-state store (1) or not (0)",
		},
	)

	RepositoriesKnown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapvault_repositories_known",
			Help: "Total number of repositories registered in cluster-state",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RepositoryGeneration,
		RepositoryPendingGeneration,
		RepositoryCorrupted,
		GenerationConflictsTotal,
		GenerationPublishDuration,
		SnapshotsTotal,
		FinalizeDuration,
		DeleteDuration,
		CloneDuration,
		ShardFilesUploaded,
		ShardFilesReused,
		ShardBytesUploaded,
		ShardBytesRestored,
		GCRunsTotal,
		GCBlobsDeleted,
		GCDuration,
		PoolActiveWorkers,
		PoolQueueDepth,
		ClusterStateLeader,
		RepositoriesKnown,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
