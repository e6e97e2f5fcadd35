package workerpool

import (
	"context"

	"github.com/cuemby/snapvault/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Pool is a named, bounded worker pool: at most `workers` submitted tasks
// run concurrently. The two pools spec.md §5/§9 names are "snapshot" (shard
// upload/restore fan-out) and "generic" (GC batches, including the
// shard-blob cleanup after a delete).
type Pool struct {
	name    string
	workers int
}

// New returns a Pool named name with the given worker capacity (at least
// one).
func New(name string, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{name: name, workers: workers}
}

func (p *Pool) Name() string { return p.name }

// Run executes fn(ctx, i) for every i in [0, n), at most p.workers
// concurrently, returning the first error encountered (if any) after every
// submitted task has finished. fn should call AssertPoolThread(p.name) if
// it relies on running inside this pool.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	metrics.PoolQueueDepth.WithLabelValues(p.name).Set(float64(n))
	defer metrics.PoolQueueDepth.WithLabelValues(p.name).Set(0)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			metrics.PoolActiveWorkers.WithLabelValues(p.name).Inc()
			defer metrics.PoolActiveWorkers.WithLabelValues(p.name).Dec()
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
