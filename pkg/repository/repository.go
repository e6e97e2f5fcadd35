package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/snapvault/pkg/blob"
	"github.com/cuemby/snapvault/pkg/clusterstate"
	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/localcache"
	"github.com/cuemby/snapvault/pkg/lock"
	"github.com/cuemby/snapvault/pkg/log"
	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
	"github.com/cuemby/snapvault/pkg/workerpool"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Repository is the BlobStoreRepository of SPEC_FULL.md §2: one named
// repository, backed by a root blob.Container, coordinating with a
// clusterstate.Store for generation CAS and a lock.Manager for shallow
// snapshots.
type Repository struct {
	name  string
	root  blob.Container
	store clusterstate.Store
	locks lock.Manager
	cache *localcache.RepositoryDataCache

	// ledger durably records the last generation this node published, so a
	// restarted node has a starting point for its first claim instead of an
	// UNKNOWN expectedSafe; nil is valid and simply disables the seed.
	ledger *localcache.GenerationLedger

	// events broadcasts lifecycle notifications; nil is a valid, silent
	// broker (publish becomes a no-op).
	events *events.Broker

	snapshotPool *workerpool.Pool
	genericPool  *workerpool.Pool

	uploadLimiter  *rate.Limiter
	restoreLimiter *rate.Limiter

	logger zerolog.Logger

	mu       sync.RWMutex
	settings Settings
}

// Options configures a new Repository.
type Options struct {
	Name             string
	Root             blob.Container
	Store            clusterstate.Store
	Locks            lock.Manager
	Cache            *localcache.RepositoryDataCache
	Ledger           *localcache.GenerationLedger
	SnapshotPool     *workerpool.Pool
	GenericPool      *workerpool.Pool
	InitialSettings  map[string]any
	Events           *events.Broker
}

// New constructs a Repository and ensures its metadata is registered in
// cluster-state.
func New(ctx context.Context, opts Options) (*Repository, error) {
	if opts.SnapshotPool == nil {
		opts.SnapshotPool = workerpool.New("snapshot", 4)
	}
	if opts.GenericPool == nil {
		opts.GenericPool = workerpool.New("generic", 4)
	}
	if opts.Cache == nil {
		opts.Cache = localcache.NewRepositoryDataCache()
	}

	meta, err := opts.Store.EnsureRepository(ctx, opts.Name, opts.InitialSettings)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.Fatal, "repository.New", err)
	}

	settings := ParseSettings(meta.Settings)
	r := &Repository{
		name:         opts.Name,
		root:         opts.Root,
		store:        opts.Store,
		locks:        opts.Locks,
		cache:        opts.Cache,
		ledger:       opts.Ledger,
		snapshotPool: opts.SnapshotPool,
		genericPool:  opts.GenericPool,
		events:       opts.Events,
		logger:       log.WithRepository(opts.Name),
		settings:     settings,
	}
	r.refreshLimiters()
	return r, nil
}

// publish broadcasts a lifecycle event if the repository was constructed
// with an events.Broker; a nil broker makes every call here a no-op.
func (r *Repository) publish(eventType events.EventType, message string, metadata map[string]string) {
	if r.events == nil {
		return
	}
	r.events.Publish(&events.Event{
		Type:     eventType,
		Message:  message,
		Metadata: metadata,
	})
}

// rateLimitBurst must exceed whatever chunk size the underlying
// io.Copy(... , r) inside blob.Container implementations reads with
// (io.Copy's default internal buffer is 32KB), or rate.Limiter.WaitN
// rejects the call outright for requesting more than its burst.
func rateLimitBurst(ioBufferSize int64) int {
	const minBurst = 64 * 1024
	if ioBufferSize > minBurst {
		return int(ioBufferSize)
	}
	return minBurst
}

func (r *Repository) refreshLimiters() {
	if r.settings.MaxSnapshotBytesPerSec > 0 {
		r.uploadLimiter = rate.NewLimiter(rate.Limit(r.settings.MaxSnapshotBytesPerSec), rateLimitBurst(r.settings.IOBufferSize))
	} else {
		r.uploadLimiter = nil
	}
	if r.settings.MaxRestoreBytesPerSec > 0 {
		r.restoreLimiter = rate.NewLimiter(rate.Limit(r.settings.MaxRestoreBytesPerSec), rateLimitBurst(r.settings.IOBufferSize))
	} else {
		r.restoreLimiter = nil
	}
}

// Name returns the repository's name.
func (r *Repository) Name() string { return r.name }

// Settings returns the repository's current settings snapshot.
func (r *Repository) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// RefreshSettings re-derives Settings from the cluster-state's current
// RepositoryMetadata, matching the "recomputed ... on every cluster-state
// update" design note.
func (r *Repository) RefreshSettings() error {
	meta, ok := r.store.RepositoryMetadata(r.name)
	if !ok {
		return repoerr.New(repoerr.NotFound, "repository.RefreshSettings", fmt.Errorf("unknown repository %q", r.name))
	}
	r.mu.Lock()
	r.settings = ParseSettings(meta.Settings)
	r.refreshLimiters()
	r.mu.Unlock()
	return nil
}

// bestEffort reports whether the repository is currently operating in
// best-effort-consistency mode (SPEC_FULL.md §4.3): the store is read-only,
// the cluster-state generation is UNKNOWN, the operator opted in, or the
// cluster-state meta shows pending > safe.
func (r *Repository) bestEffort(meta types.RepositoryMetadata) bool {
	s := r.Settings()
	if s.ReadOnly || s.AllowConcurrentModifications {
		return true
	}
	if meta.Generation == types.GenerationUnknown {
		return true
	}
	if meta.PendingGeneration > meta.Generation {
		return true
	}
	return false
}

func (r *Repository) shardContainer(shard types.RepositoryShardId) blob.Container {
	return r.root.Child("indices").Child(shard.Index.UUID).Child(itoa(shard.ShardNum))
}

func (r *Repository) indexContainer(indexUUID string) blob.Container {
	return r.root.Child("indices").Child(indexUUID)
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
