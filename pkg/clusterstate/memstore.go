package clusterstate

import (
	"context"
	"sync"

	"github.com/cuemby/snapvault/pkg/types"
)

// memStore is an in-process Store guarded by a single mutex: every
// operation applies synchronously, which is enough to exercise the CAS
// semantics deterministically in tests without standing up raft.
type memStore struct {
	mu    sync.Mutex
	state *clusterState
}

// NewMemStore returns a Store suitable for tests and single-process demos.
func NewMemStore() Store {
	return &memStore{state: newClusterState()}
}

func (m *memStore) EnsureRepository(_ context.Context, name string, settings map[string]any) (types.RepositoryMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ensureRepository(name, settings), nil
}

func (m *memStore) RepositoryMetadata(name string) (types.RepositoryMetadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.repositoryMetadata(name)
}

func (m *memStore) ClaimGeneration(_ context.Context, name string, expectedSafe int64) (types.RepositoryMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.claimGeneration(name, expectedSafe)
}

func (m *memStore) PublishGeneration(_ context.Context, name string, newGeneration int64) (types.RepositoryMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.publishGeneration(name, newGeneration)
}

func (m *memStore) MarkCorrupted(_ context.Context, name string) (types.RepositoryMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.markCorrupted(name)
}

func (m *memStore) BeginSnapshot(_ context.Context, name string, id types.SnapshotId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.beginSnapshot(name, id)
}

func (m *memStore) EndSnapshot(_ context.Context, name string, id types.SnapshotId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.endSnapshot(name, id)
	return nil
}

func (m *memStore) SnapshotsInProgress(name string) []types.SnapshotId {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshotsInProgressList(name)
}

func (m *memStore) BeginDeletion(_ context.Context, name string, ids []types.SnapshotId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.beginDeletion(name, ids)
}

func (m *memStore) EndDeletion(_ context.Context, name string, _ []types.SnapshotId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.endDeletion(name)
	return nil
}

func (m *memStore) SnapshotDeletionsInProgress(name string) []types.SnapshotId {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deletionsInProgressList(name)
}

func (m *memStore) SetCleanupInProgress(_ context.Context, name string, inProgress bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.setCleanupInProgress(name, inProgress)
}

func (m *memStore) RepositoryCleanupInProgress(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.cleanupInProgressFlag(name)
}

func (m *memStore) Repositories() []types.RepositoryMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.repositoriesList()
}
