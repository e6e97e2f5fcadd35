package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cuemby/snapvault/pkg/blobformat"
	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/metrics"
	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
)

const indexLatestBlob = "index.latest"

// LoadRepositoryData implements the read side of SPEC_FULL.md §4.3: under
// strict consistency it trusts the cluster-state's safe generation (and the
// single-slot cache, if enabled); under best-effort consistency it
// re-derives the canonical generation from the store by listing index-*
// blobs and taking the maximum.
func (r *Repository) LoadRepositoryData(ctx context.Context) (*types.RepositoryData, types.RepositoryMetadata, error) {
	meta, ok := r.store.RepositoryMetadata(r.name)
	if !ok {
		return nil, types.RepositoryMetadata{}, repoerr.New(repoerr.NotFound, "repository.LoadRepositoryData", fmt.Errorf("unknown repository %q", r.name))
	}
	if meta.Corrupted() {
		return nil, meta, repoerr.New(repoerr.Fatal, "repository.LoadRepositoryData", fmt.Errorf("repository %q is corrupted", r.name))
	}

	bestEffort := r.bestEffort(meta)
	gen := meta.Generation
	if bestEffort {
		listed, err := r.latestListedGeneration(ctx)
		if err != nil {
			return nil, meta, err
		}
		gen = listed
	}

	if gen == types.GenerationEmpty {
		return types.NewRepositoryData(), meta, nil
	}

	settings := r.Settings()
	if !bestEffort && settings.CacheRepositoryData {
		if data, ok := r.cache.Get(r.name, gen); ok {
			return data, meta, nil
		}
	}

	data, err := r.readIndexBlob(ctx, gen)
	if err != nil {
		return nil, meta, err
	}

	if !bestEffort && settings.CacheRepositoryData {
		r.cache.CompareAndSwap(r.name, gen, data)
	}
	return data, meta, nil
}

func (r *Repository) readIndexBlob(ctx context.Context, gen int64) (*types.RepositoryData, error) {
	rc, err := r.root.ReadBlob(ctx, blobformat.IndexBlobName(gen))
	if err != nil {
		if errors.Is(err, repoerr.IsNotFound) {
			if markErr := r.markCorrupted(ctx); markErr != nil {
				r.logger.Error().Err(markErr).Msg("failed to mark repository corrupted after missing index blob")
			}
			return nil, repoerr.New(repoerr.Fatal, "repository.readIndexBlob", fmt.Errorf("index-%d missing, repository is corrupted: %w", gen, err))
		}
		return nil, repoerr.Wrap(repoerr.TransientIO, "repository.readIndexBlob", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.TransientIO, "repository.readIndexBlob", err)
	}

	var data types.RepositoryData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, repoerr.Wrap(repoerr.CorruptBlob, "repository.readIndexBlob", err)
	}
	return &data, nil
}

func (r *Repository) latestListedGeneration(ctx context.Context) (int64, error) {
	listed, err := r.root.ListBlobsByPrefix(ctx, "index-")
	if err != nil {
		return 0, repoerr.Wrap(repoerr.TransientIO, "repository.latestListedGeneration", err)
	}
	max := types.GenerationEmpty
	for name := range listed {
		gen, err := parseIndexGeneration(name)
		if err != nil {
			continue
		}
		if gen > max {
			max = gen
		}
	}
	return max, nil
}

func parseIndexGeneration(blobName string) (int64, error) {
	suffix := strings.TrimPrefix(blobName, "index-")
	if suffix == blobName {
		return 0, fmt.Errorf("not an index blob: %s", blobName)
	}
	return strconv.ParseInt(suffix, 10, 64)
}

// claimGeneration is Generation Protocol phase 1 (SPEC_FULL.md §4.3). If the
// caller couldn't resolve a safe generation from cluster-state (a node that
// just restarted and hasn't observed a synced RepositoryMetadata yet), the
// local generation ledger's last recorded publish seeds expectedSafe instead
// of handing the store a bare UNKNOWN.
func (r *Repository) claimGeneration(ctx context.Context, expectedSafe int64) (types.RepositoryMetadata, error) {
	if expectedSafe == types.GenerationUnknown && r.ledger != nil {
		if last, lerr := r.ledger.Last(r.name); lerr != nil {
			r.logger.Warn().Err(lerr).Msg("generation ledger: failed to read last known generation")
		} else if last != types.GenerationUnknown {
			expectedSafe = last
		}
	}

	meta, err := r.store.ClaimGeneration(ctx, r.name, expectedSafe)
	if err != nil {
		return meta, err
	}
	r.publish(events.EventGenerationClaimed, fmt.Sprintf("claimed pending generation %d", meta.PendingGeneration), map[string]string{"repository": r.name})
	return meta, nil
}

// writeIndexBlobPhase2 is phase 2: verify the prior safe generation's blob
// still exists, then atomic-write the new manifest.
func (r *Repository) writeIndexBlobPhase2(ctx context.Context, safe int64, pending int64, data *types.RepositoryData) error {
	if safe != types.GenerationEmpty {
		if _, err := r.root.ReadBlob(ctx, blobformat.IndexBlobName(safe)); err != nil {
			if markErr := r.markCorrupted(ctx); markErr != nil {
				r.logger.Error().Err(markErr).Msg("failed to mark repository corrupted")
			}
			return repoerr.New(repoerr.Fatal, "repository.writeIndexBlobPhase2", fmt.Errorf("prior index-%d missing: %w", safe, err))
		}
	}

	data.GenID = pending
	body, err := json.Marshal(data)
	if err != nil {
		return repoerr.Wrap(repoerr.Fatal, "repository.writeIndexBlobPhase2", err)
	}

	if err := r.root.WriteBlobAtomic(ctx, blobformat.IndexBlobName(pending), bytes.NewReader(body), int64(len(body)), true); err != nil {
		return repoerr.Wrap(repoerr.TransientIO, "repository.writeIndexBlobPhase2", err)
	}

	if r.Settings().SupportURLRepo {
		var pointer [8]byte
		binary.BigEndian.PutUint64(pointer[:], uint64(pending))
		if err := r.root.WriteBlob(ctx, indexLatestBlob, bytes.NewReader(pointer[:]), 8, false); err != nil {
			r.logger.Warn().Err(err).Msg("failed to write index.latest pointer")
		}
	}
	return nil
}

// publishGeneration is phase 3: publish the new generation, then best-effort
// GC up to 1000 older index-* blobs.
func (r *Repository) publishGeneration(ctx context.Context, newGeneration int64) (types.RepositoryMetadata, error) {
	meta, err := r.store.PublishGeneration(ctx, r.name, newGeneration)
	if err != nil {
		return meta, err
	}
	if r.ledger != nil {
		if err := r.ledger.Record(r.name, newGeneration); err != nil {
			r.logger.Warn().Err(err).Msg("generation ledger: failed to record published generation")
		}
	}
	r.publish(events.EventGenerationPublished, fmt.Sprintf("published generation %d", newGeneration), map[string]string{"repository": r.name})
	go r.cleanupOldGenerations(context.Background(), newGeneration)
	return meta, nil
}

func (r *Repository) markCorrupted(ctx context.Context) error {
	_, err := r.store.MarkCorrupted(ctx, r.name)
	r.cache.Invalidate(r.name)
	r.publish(events.EventRepositoryCorrupted, "repository marked corrupted", map[string]string{"repository": r.name})
	return err
}

// cleanupOldGenerations deletes up to 1,000 index-* blobs strictly
// preceding newGeneration (SPEC_FULL.md §4.3 phase 3). Failures are logged,
// never surfaced: the work is idempotent and retried by the next publish.
func (r *Repository) cleanupOldGenerations(ctx context.Context, newGeneration int64) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GCDuration)

	listed, err := r.root.ListBlobsByPrefix(ctx, "index-")
	if err != nil {
		r.logger.Warn().Err(err).Msg("generation GC: failed to list index blobs")
		return
	}

	var stale []string
	for name := range listed {
		gen, err := parseIndexGeneration(name)
		if err != nil {
			continue
		}
		if gen < newGeneration {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	const maxBatch = 1000
	if len(stale) > maxBatch {
		stale = stale[:maxBatch]
	}
	if len(stale) == 0 {
		return
	}

	batchSize := r.Settings().MaxShardBlobDeleteBatchSize
	if batchSize <= 0 {
		batchSize = DefaultSettings().MaxShardBlobDeleteBatchSize
	}
	var batches [][]string
	for start := 0; start < len(stale); start += batchSize {
		end := start + batchSize
		if end > len(stale) {
			end = len(stale)
		}
		batches = append(batches, stale[start:end])
	}

	var failed int64
	err = r.genericPool.Run(ctx, len(batches), func(ctx context.Context, i int) error {
		batch := batches[i]
		if err := r.root.DeleteBlobsIgnoringIfNotExists(ctx, batch); err != nil {
			r.logger.Warn().Err(err).Int("count", len(batch)).Msg("generation GC: failed to delete stale index blobs")
			atomic.AddInt64(&failed, 1)
		}
		return nil
	})
	if err != nil || atomic.LoadInt64(&failed) == int64(len(batches)) {
		return
	}
	metrics.GCRunsTotal.Inc()
	metrics.GCBlobsDeleted.Add(float64(len(stale)))
	r.publish(events.EventGCCompleted, fmt.Sprintf("deleted %d stale index blobs", len(stale)), map[string]string{"repository": r.name})
}
