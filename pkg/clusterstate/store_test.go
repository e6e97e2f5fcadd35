package clusterstate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"
)

func TestEnsureRepositoryIsIdempotent(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	meta, err := store.EnsureRepository(ctx, "repo1", map[string]any{"type": "fs"})
	require.NoError(t, err)
	require.Equal(t, types.GenerationEmpty, meta.Generation)

	again, err := store.EnsureRepository(ctx, "repo1", map[string]any{"type": "different"})
	require.NoError(t, err)
	require.Equal(t, "fs", again.Settings["type"], "settings from the first registration win")
}

func TestClaimGenerationRejectsStaleSafe(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	_, err := store.EnsureRepository(ctx, "repo1", nil)
	require.NoError(t, err)

	meta, err := store.ClaimGeneration(ctx, "repo1", types.GenerationEmpty)
	require.NoError(t, err)
	require.Equal(t, types.GenerationEmpty+1, meta.PendingGeneration)

	_, err = store.ClaimGeneration(ctx, "repo1", types.GenerationEmpty)
	require.ErrorIs(t, err, repoerr.IsConcurrentModification)
}

func TestPublishGenerationRequiresMatchingPending(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	_, err := store.EnsureRepository(ctx, "repo1", nil)
	require.NoError(t, err)

	_, err = store.ClaimGeneration(ctx, "repo1", types.GenerationEmpty)
	require.NoError(t, err)

	_, err = store.PublishGeneration(ctx, "repo1", 9)
	require.ErrorIs(t, err, repoerr.IsConcurrentModification)

	meta, err := store.PublishGeneration(ctx, "repo1", types.GenerationEmpty+1)
	require.NoError(t, err)
	require.Equal(t, types.GenerationEmpty+1, meta.Generation)
}

func TestMarkCorruptedBlocksFurtherClaims(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	_, err := store.EnsureRepository(ctx, "repo1", nil)
	require.NoError(t, err)

	meta, err := store.MarkCorrupted(ctx, "repo1")
	require.NoError(t, err)
	require.True(t, meta.Corrupted())

	_, err = store.ClaimGeneration(ctx, "repo1", types.GenerationEmpty)
	require.ErrorIs(t, err, repoerr.IsFatal)
}

func TestBeginSnapshotRejectsDuplicateName(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	id := types.SnapshotId{Name: "snap-1", UUID: "u1"}

	require.NoError(t, store.BeginSnapshot(ctx, "repo1", id))
	require.ErrorIs(t, store.BeginSnapshot(ctx, "repo1", id), repoerr.IsConcurrentModification)

	require.NoError(t, store.EndSnapshot(ctx, "repo1", id))
	require.NoError(t, store.BeginSnapshot(ctx, "repo1", id))
	require.Len(t, store.SnapshotsInProgress("repo1"), 1)
}

func TestSetCleanupInProgressRejectsOverlap(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.SetCleanupInProgress(ctx, "repo1", true))
	require.ErrorIs(t, store.SetCleanupInProgress(ctx, "repo1", true), repoerr.IsConcurrentModification)
	require.True(t, store.RepositoryCleanupInProgress("repo1"))

	require.NoError(t, store.SetCleanupInProgress(ctx, "repo1", false))
	require.False(t, store.RepositoryCleanupInProgress("repo1"))
}

func TestFSMAppliesCommandsEquivalentlyToMemStore(t *testing.T) {
	fsm := NewFSM()

	apply := func(op string, v any) fsmResult {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		cmd, err := json.Marshal(Command{Op: op, Data: data})
		require.NoError(t, err)
		return fsm.Apply(&raft.Log{Data: cmd}).(fsmResult)
	}

	res := apply(opEnsureRepository, ensureRepositoryRequest{Name: "repo1"})
	require.NoError(t, res.Err)

	res = apply(opClaimGeneration, claimGenerationRequest{Name: "repo1", ExpectedSafe: types.GenerationEmpty})
	require.NoError(t, res.Err)
	require.Equal(t, types.GenerationEmpty+1, res.Meta.PendingGeneration)
}
