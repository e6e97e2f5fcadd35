package clusterstate

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/snapvault/pkg/log"
	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/cuemby/snapvault/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// RaftConfig configures a single-node raft-backed Store.
type RaftConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
	ApplyTimeout time.Duration
}

// raftStore is a Store backed by a single-node hashicorp/raft cluster: every
// mutating call is marshaled into a Command and committed through the raft
// log before the FSM's in-memory state is considered authoritative.
type raftStore struct {
	raft         *raft.Raft
	fsm          *FSM
	applyTimeout time.Duration
}

// NewRaftStore bootstraps a new single-node raft cluster rooted at
// cfg.DataDir, generalizing the teacher's Manager.Bootstrap wiring from
// cluster orchestration state to repository-generation state.
func NewRaftStore(cfg RaftConfig) (Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	fsm := NewFSM()

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.HeartbeatTimeout = 500 * time.Millisecond
	raftConfig.ElectionTimeout = 500 * time.Millisecond
	raftConfig.CommitTimeout = 50 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("bootstrap cluster: %w", err)
	}

	applyTimeout := cfg.ApplyTimeout
	if applyTimeout <= 0 {
		applyTimeout = 5 * time.Second
	}

	return &raftStore{raft: r, fsm: fsm, applyTimeout: applyTimeout}, nil
}

func (s *raftStore) apply(op string, payload any) (types.RepositoryMetadata, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return types.RepositoryMetadata{}, fmt.Errorf("marshal %s payload: %w", op, err)
	}
	cmd, err := json.Marshal(Command{Op: op, Data: data})
	if err != nil {
		return types.RepositoryMetadata{}, fmt.Errorf("marshal %s command: %w", op, err)
	}

	future := s.raft.Apply(cmd, s.applyTimeout)
	if err := future.Error(); err != nil {
		return types.RepositoryMetadata{}, fmt.Errorf("apply %s: %w", op, err)
	}

	resp, ok := future.Response().(fsmResult)
	if !ok {
		return types.RepositoryMetadata{}, fmt.Errorf("apply %s: unexpected FSM response type %T", op, future.Response())
	}
	return resp.Meta, resp.Err
}

func (s *raftStore) EnsureRepository(_ context.Context, name string, settings map[string]any) (types.RepositoryMetadata, error) {
	return s.apply(opEnsureRepository, ensureRepositoryRequest{Name: name, Settings: settings})
}

func (s *raftStore) RepositoryMetadata(name string) (types.RepositoryMetadata, bool) {
	return s.fsm.repositoryMetadata(name)
}

func (s *raftStore) ClaimGeneration(_ context.Context, name string, expectedSafe int64) (types.RepositoryMetadata, error) {
	meta, err := s.apply(opClaimGeneration, claimGenerationRequest{Name: name, ExpectedSafe: expectedSafe})
	if err != nil {
		metrics.GenerationConflictsTotal.WithLabelValues(name).Inc()
	}
	return meta, err
}

func (s *raftStore) PublishGeneration(_ context.Context, name string, newGeneration int64) (types.RepositoryMetadata, error) {
	meta, err := s.apply(opPublishGeneration, publishGenerationRequest{Name: name, NewGeneration: newGeneration})
	if err == nil {
		metrics.RepositoryGeneration.WithLabelValues(name).Set(float64(meta.Generation))
		metrics.RepositoryPendingGeneration.WithLabelValues(name).Set(float64(meta.PendingGeneration))
	}
	return meta, err
}

func (s *raftStore) MarkCorrupted(_ context.Context, name string) (types.RepositoryMetadata, error) {
	meta, err := s.apply(opMarkCorrupted, nameRequest{Name: name})
	if err == nil {
		metrics.RepositoryCorrupted.WithLabelValues(name).Set(1)
		log.WithRepository(name).Error().Msg("repository marked corrupted")
	}
	return meta, err
}

func (s *raftStore) BeginSnapshot(_ context.Context, name string, id types.SnapshotId) error {
	_, err := s.apply(opBeginSnapshot, snapshotIDRequest{Name: name, ID: id})
	return err
}

func (s *raftStore) EndSnapshot(_ context.Context, name string, id types.SnapshotId) error {
	_, err := s.apply(opEndSnapshot, snapshotIDRequest{Name: name, ID: id})
	return err
}

func (s *raftStore) SnapshotsInProgress(name string) []types.SnapshotId {
	return s.fsm.snapshotsInProgress(name)
}

func (s *raftStore) BeginDeletion(_ context.Context, name string, ids []types.SnapshotId) error {
	_, err := s.apply(opBeginDeletion, snapshotIDsRequest{Name: name, IDs: ids})
	return err
}

func (s *raftStore) EndDeletion(_ context.Context, name string, ids []types.SnapshotId) error {
	_, err := s.apply(opEndDeletion, snapshotIDsRequest{Name: name, IDs: ids})
	return err
}

func (s *raftStore) SnapshotDeletionsInProgress(name string) []types.SnapshotId {
	return s.fsm.snapshotDeletionsInProgress(name)
}

func (s *raftStore) SetCleanupInProgress(_ context.Context, name string, inProgress bool) error {
	_, err := s.apply(opSetCleanupInProgress, cleanupRequest{Name: name, InProgress: inProgress})
	return err
}

func (s *raftStore) RepositoryCleanupInProgress(name string) bool {
	return s.fsm.cleanupInProgress(name)
}

func (s *raftStore) Repositories() []types.RepositoryMetadata {
	return s.fsm.repositoriesList()
}

// IsLeader reports whether this node currently holds raft leadership.
func (s *raftStore) IsLeader() bool {
	return s.raft.State() == raft.Leader
}

// Shutdown releases the underlying raft instance.
func (s *raftStore) Shutdown() error {
	return s.raft.Shutdown().Error()
}
