package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
)

// StartVerification implements SPEC_FULL.md §4.9: write a small seeded
// probe blob under "tests-<seed>/master.dat" and read it back, proving the
// calling node can both write and read the repository's blob store before a
// verify-repository operation reports success. The probe is read back only
// on the calling node, not by the other nodes of the cluster. seed is supplied by
// the caller (one per node, so concurrent verifications on different nodes
// never collide).
func (r *Repository) StartVerification(ctx context.Context, seed string) error {
	container := r.root.Child("tests-" + seed)
	payload := []byte("snapvault-verification-" + seed)

	if err := container.WriteBlobAtomic(ctx, "master.dat", bytes.NewReader(payload), int64(len(payload)), false); err != nil {
		r.publish(events.EventVerificationFailed, "failed to write probe blob for seed "+seed, map[string]string{"repository": r.name})
		return repoerr.Wrap(repoerr.TransientIO, "repository.StartVerification", err)
	}

	rc, err := container.ReadBlob(ctx, "master.dat")
	if err != nil {
		r.publish(events.EventVerificationFailed, "failed to read probe blob for seed "+seed, map[string]string{"repository": r.name})
		return repoerr.Wrap(repoerr.TransientIO, "repository.StartVerification", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		r.publish(events.EventVerificationFailed, "failed to read probe blob for seed "+seed, map[string]string{"repository": r.name})
		return repoerr.Wrap(repoerr.TransientIO, "repository.StartVerification", err)
	}
	if !bytes.Equal(got, payload) {
		r.publish(events.EventVerificationFailed, "probe blob content mismatch for seed "+seed, map[string]string{"repository": r.name})
		return repoerr.New(repoerr.VerificationFailure, "repository.StartVerification", fmt.Errorf("probe blob content mismatch for seed %q", seed))
	}
	return nil
}

// EndVerification removes the probe container once every node has reported
// success (or the caller has given up), matching the teardown half of the
// verification dance.
func (r *Repository) EndVerification(ctx context.Context, seed string) error {
	if _, err := r.root.Child("tests-" + seed).Delete(ctx); err != nil {
		return repoerr.Wrap(repoerr.TransientIO, "repository.EndVerification", err)
	}
	return nil
}

// Cleanup implements SPEC_FULL.md §4.9's cleanup-repository operation: a
// no-membership-change pass through the Generation Protocol that triggers
// phase 3's best-effort GC of stale index-* blobs, then a root/index GC pass
// that deletes unreferenced snap-*/shallow-snap-*/meta-*.dat blobs and
// orphaned indices/<uuid>/ directories, guarded by the cluster-state's
// cleanup-in-progress flag so two concurrent cleanups never race each
// other's listing.
func (r *Repository) Cleanup(ctx context.Context) (*types.RepositoryData, error) {
	if err := r.store.SetCleanupInProgress(ctx, r.name, true); err != nil {
		return nil, err
	}
	defer func() {
		if err := r.store.SetCleanupInProgress(ctx, r.name, false); err != nil {
			r.logger.Warn().Err(err).Msg("failed to clear cleanup-in-progress marker")
		}
	}()

	data, meta, err := r.LoadRepositoryData(ctx)
	if err != nil {
		return nil, err
	}
	published := data.Clone()
	if err := r.publishRepositoryData(ctx, meta.Generation, published); err != nil {
		return nil, err
	}
	r.gcRootAndIndexBlobs(ctx, published)
	return published, nil
}
