package clusterstate

import (
	"fmt"

	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
)

// clusterState is the CAS-protected payload shared by memStore and the raft
// FSM. Every method here assumes the caller already holds whatever lock
// guards concurrent access; it performs no locking of its own.
type clusterState struct {
	Repositories        map[string]types.RepositoryMetadata
	SnapshotsInProgress  map[string][]types.SnapshotId
	DeletionsInProgress  map[string][]types.SnapshotId
	CleanupInProgress    map[string]bool
}

func newClusterState() *clusterState {
	return &clusterState{
		Repositories:        make(map[string]types.RepositoryMetadata),
		SnapshotsInProgress: make(map[string][]types.SnapshotId),
		DeletionsInProgress: make(map[string][]types.SnapshotId),
		CleanupInProgress:   make(map[string]bool),
	}
}

func (s *clusterState) repositoryMetadata(name string) (types.RepositoryMetadata, bool) {
	meta, ok := s.Repositories[name]
	return meta, ok
}

func (s *clusterState) ensureRepository(name string, settings map[string]any) types.RepositoryMetadata {
	if meta, ok := s.Repositories[name]; ok {
		return meta
	}
	meta := types.RepositoryMetadata{
		Name:              name,
		Settings:          settings,
		Generation:        types.GenerationEmpty,
		PendingGeneration: types.GenerationEmpty,
	}
	s.Repositories[name] = meta
	return meta
}

func (s *clusterState) claimGeneration(name string, expectedSafe int64) (types.RepositoryMetadata, error) {
	meta, ok := s.Repositories[name]
	if !ok {
		return types.RepositoryMetadata{}, repoerr.New(repoerr.NotFound, "claim_generation", fmt.Errorf("unknown repository %q", name))
	}
	if meta.Corrupted() {
		return types.RepositoryMetadata{}, repoerr.New(repoerr.Fatal, "claim_generation", fmt.Errorf("repository %q is corrupted", name))
	}
	if meta.Generation != expectedSafe {
		return types.RepositoryMetadata{}, repoerr.New(repoerr.ConcurrentModification, "claim_generation",
			fmt.Errorf("expected safe generation %d, cluster state has %d", expectedSafe, meta.Generation))
	}
	meta.PendingGeneration = meta.Generation + 1
	s.Repositories[name] = meta
	return meta, nil
}

func (s *clusterState) publishGeneration(name string, newGeneration int64) (types.RepositoryMetadata, error) {
	meta, ok := s.Repositories[name]
	if !ok {
		return types.RepositoryMetadata{}, repoerr.New(repoerr.NotFound, "publish_generation", fmt.Errorf("unknown repository %q", name))
	}
	if meta.PendingGeneration != newGeneration {
		return types.RepositoryMetadata{}, repoerr.New(repoerr.ConcurrentModification, "publish_generation",
			fmt.Errorf("expected pending generation %d, cluster state has %d", newGeneration, meta.PendingGeneration))
	}
	meta.Generation = newGeneration
	s.Repositories[name] = meta
	return meta, nil
}

func (s *clusterState) markCorrupted(name string) (types.RepositoryMetadata, error) {
	meta, ok := s.Repositories[name]
	if !ok {
		return types.RepositoryMetadata{}, repoerr.New(repoerr.NotFound, "mark_corrupted", fmt.Errorf("unknown repository %q", name))
	}
	meta.Generation = types.GenerationCorrupted
	s.Repositories[name] = meta
	return meta, nil
}

func (s *clusterState) beginSnapshot(name string, id types.SnapshotId) error {
	for _, existing := range s.SnapshotsInProgress[name] {
		if existing.Name == id.Name {
			return repoerr.New(repoerr.ConcurrentModification, "begin_snapshot",
				fmt.Errorf("snapshot %q already in progress in repository %q", id.Name, name))
		}
	}
	s.SnapshotsInProgress[name] = append(s.SnapshotsInProgress[name], id)
	return nil
}

func (s *clusterState) endSnapshot(name string, id types.SnapshotId) {
	ids := s.SnapshotsInProgress[name]
	for i, existing := range ids {
		if existing.UUID == id.UUID {
			s.SnapshotsInProgress[name] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

func (s *clusterState) snapshotsInProgressList(name string) []types.SnapshotId {
	src := s.SnapshotsInProgress[name]
	out := make([]types.SnapshotId, len(src))
	copy(out, src)
	return out
}

func (s *clusterState) beginDeletion(name string, ids []types.SnapshotId) error {
	if len(s.DeletionsInProgress[name]) > 0 {
		return repoerr.New(repoerr.ConcurrentModification, "begin_deletion",
			fmt.Errorf("a deletion is already in progress for repository %q", name))
	}
	cp := make([]types.SnapshotId, len(ids))
	copy(cp, ids)
	s.DeletionsInProgress[name] = cp
	return nil
}

func (s *clusterState) endDeletion(name string) {
	delete(s.DeletionsInProgress, name)
}

func (s *clusterState) deletionsInProgressList(name string) []types.SnapshotId {
	src := s.DeletionsInProgress[name]
	out := make([]types.SnapshotId, len(src))
	copy(out, src)
	return out
}

func (s *clusterState) setCleanupInProgress(name string, inProgress bool) error {
	if inProgress && s.CleanupInProgress[name] {
		return repoerr.New(repoerr.ConcurrentModification, "set_cleanup_in_progress",
			fmt.Errorf("cleanup already in progress for repository %q", name))
	}
	if inProgress {
		s.CleanupInProgress[name] = true
	} else {
		delete(s.CleanupInProgress, name)
	}
	return nil
}

func (s *clusterState) cleanupInProgressFlag(name string) bool {
	return s.CleanupInProgress[name]
}

func (s *clusterState) repositoriesList() []types.RepositoryMetadata {
	out := make([]types.RepositoryMetadata, 0, len(s.Repositories))
	for _, meta := range s.Repositories {
		out = append(out, meta)
	}
	return out
}

// clone returns a deep copy, used by the raft FSM's Snapshot().
func (s *clusterState) clone() *clusterState {
	c := newClusterState()
	for k, v := range s.Repositories {
		c.Repositories[k] = v
	}
	for k, v := range s.SnapshotsInProgress {
		cp := make([]types.SnapshotId, len(v))
		copy(cp, v)
		c.SnapshotsInProgress[k] = cp
	}
	for k, v := range s.DeletionsInProgress {
		cp := make([]types.SnapshotId, len(v))
		copy(cp, v)
		c.DeletionsInProgress[k] = cp
	}
	for k, v := range s.CleanupInProgress {
		c.CleanupInProgress[k] = v
	}
	return c
}
