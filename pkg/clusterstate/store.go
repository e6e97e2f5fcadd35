package clusterstate

import (
	"context"

	"github.com/cuemby/snapvault/pkg/types"
)

// Store is the cluster-state side of the generation protocol (SPEC_FULL.md
// §4.3, §6): a CAS over each repository's RepositoryMetadata, plus the
// in-progress trackers other concurrent operations consult before starting
// a conflicting one. Every mutating method here corresponds to one
// submitStateUpdateTask(source, task) call in the external interface this
// models.
type Store interface {
	// EnsureRepository registers name if it is not already known, returning
	// its current metadata either way.
	EnsureRepository(ctx context.Context, name string, settings map[string]any) (types.RepositoryMetadata, error)

	// RepositoryMetadata is a read-only accessor; ok is false if name is
	// unknown.
	RepositoryMetadata(name string) (types.RepositoryMetadata, bool)

	// ClaimGeneration is Generation Protocol phase 1: CAS the repository's
	// PendingGeneration to Generation+1, failing with
	// repoerr.ConcurrentModification if the cluster state's Generation no
	// longer matches expectedSafe.
	ClaimGeneration(ctx context.Context, name string, expectedSafe int64) (types.RepositoryMetadata, error)

	// PublishGeneration is phase 3: CAS (Generation, PendingGeneration) to
	// (newGeneration, newGeneration), failing if PendingGeneration does not
	// currently equal newGeneration.
	PublishGeneration(ctx context.Context, name string, newGeneration int64) (types.RepositoryMetadata, error)

	// MarkCorrupted sets Generation to types.GenerationCorrupted, leaving
	// PendingGeneration untouched.
	MarkCorrupted(ctx context.Context, name string) (types.RepositoryMetadata, error)

	// BeginSnapshot records id as in progress for name, failing if a
	// snapshot with the same name is already in progress.
	BeginSnapshot(ctx context.Context, name string, id types.SnapshotId) error
	EndSnapshot(ctx context.Context, name string, id types.SnapshotId) error
	SnapshotsInProgress(name string) []types.SnapshotId

	// BeginDeletion records ids as a deletion in progress for name, failing
	// if one is already running.
	BeginDeletion(ctx context.Context, name string, ids []types.SnapshotId) error
	EndDeletion(ctx context.Context, name string, ids []types.SnapshotId) error
	SnapshotDeletionsInProgress(name string) []types.SnapshotId

	// SetCleanupInProgress toggles the repository-wide stale-blob-GC flag,
	// failing to set true while it is already true.
	SetCleanupInProgress(ctx context.Context, name string, inProgress bool) error
	RepositoryCleanupInProgress(name string) bool

	// Repositories returns the current metadata of every known repository,
	// for metrics collection and operator status commands.
	Repositories() []types.RepositoryMetadata
}
