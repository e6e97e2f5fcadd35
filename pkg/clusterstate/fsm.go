package clusterstate

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/snapvault/pkg/types"
	"github.com/hashicorp/raft"
)

// Command is a single state-machine operation replicated through the raft
// log, generalizing the node/service/task command envelope of a container
// orchestrator's FSM to repository-generation operations.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opEnsureRepository     = "ensure_repository"
	opClaimGeneration      = "claim_generation"
	opPublishGeneration    = "publish_generation"
	opMarkCorrupted        = "mark_corrupted"
	opBeginSnapshot        = "begin_snapshot"
	opEndSnapshot          = "end_snapshot"
	opBeginDeletion        = "begin_deletion"
	opEndDeletion          = "end_deletion"
	opSetCleanupInProgress = "set_cleanup_in_progress"
)

type ensureRepositoryRequest struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type claimGenerationRequest struct {
	Name         string `json:"name"`
	ExpectedSafe int64  `json:"expected_safe"`
}

type publishGenerationRequest struct {
	Name          string `json:"name"`
	NewGeneration int64  `json:"new_generation"`
}

type snapshotIDRequest struct {
	Name string          `json:"name"`
	ID   types.SnapshotId `json:"id"`
}

type snapshotIDsRequest struct {
	Name string            `json:"name"`
	IDs  []types.SnapshotId `json:"ids"`
}

type cleanupRequest struct {
	Name       string `json:"name"`
	InProgress bool   `json:"in_progress"`
}

// fsmResult is the value raft.Raft.Apply's future.Response() carries back to
// the node that submitted the command; it is never serialized, so errors
// (including *repoerr.Error) survive the round trip intact.
type fsmResult struct {
	Meta types.RepositoryMetadata
	Err  error
}

// FSM implements raft.FSM over the clusterState transition logic shared with
// memStore.
type FSM struct {
	mu    sync.RWMutex
	state *clusterState
}

func NewFSM() *FSM {
	return &FSM{state: newClusterState()}
}

func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fsmResult{Err: fmt.Errorf("unmarshal command: %w", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opEnsureRepository:
		var req ensureRepositoryRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		return fsmResult{Meta: f.state.ensureRepository(req.Name, req.Settings)}

	case opClaimGeneration:
		var req claimGenerationRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		meta, err := f.state.claimGeneration(req.Name, req.ExpectedSafe)
		return fsmResult{Meta: meta, Err: err}

	case opPublishGeneration:
		var req publishGenerationRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		meta, err := f.state.publishGeneration(req.Name, req.NewGeneration)
		return fsmResult{Meta: meta, Err: err}

	case opMarkCorrupted:
		var req nameRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		meta, err := f.state.markCorrupted(req.Name)
		return fsmResult{Meta: meta, Err: err}

	case opBeginSnapshot:
		var req snapshotIDRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		return fsmResult{Err: f.state.beginSnapshot(req.Name, req.ID)}

	case opEndSnapshot:
		var req snapshotIDRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		f.state.endSnapshot(req.Name, req.ID)
		return fsmResult{}

	case opBeginDeletion:
		var req snapshotIDsRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		return fsmResult{Err: f.state.beginDeletion(req.Name, req.IDs)}

	case opEndDeletion:
		var req snapshotIDsRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		f.state.endDeletion(req.Name)
		return fsmResult{}

	case opSetCleanupInProgress:
		var req cleanupRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return fsmResult{Err: err}
		}
		return fsmResult{Err: f.state.setCleanupInProgress(req.Name, req.InProgress)}

	default:
		return fsmResult{Err: fmt.Errorf("unknown command: %s", cmd.Op)}
	}
}

// Snapshot returns a point-in-time copy of the cluster state for raft's log
// compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &fsmSnapshot{state: f.state.clone()}, nil
}

// Restore replaces the FSM's state wholesale from a previously persisted
// snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var payload clusterState
	if err := json.NewDecoder(rc).Decode(&payload); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = &payload
	return nil
}

func (f *FSM) repositoryMetadata(name string) (types.RepositoryMetadata, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.repositoryMetadata(name)
}

func (f *FSM) snapshotsInProgress(name string) []types.SnapshotId {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.snapshotsInProgressList(name)
}

func (f *FSM) snapshotDeletionsInProgress(name string) []types.SnapshotId {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.deletionsInProgressList(name)
}

func (f *FSM) cleanupInProgress(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.cleanupInProgressFlag(name)
}

func (f *FSM) repositoriesList() []types.RepositoryMetadata {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.repositoriesList()
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	state *clusterState
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.state); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
