package main

import (
	"context"
	"fmt"

	"github.com/cuemby/snapvault/pkg/types"
	"github.com/cuemby/snapvault/pkg/workerpool"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	indexName  string
	indexNames []string
	sourceDir  string
	destDir    string
	cloneName  string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "snapshot lifecycle operations over a single index/shard",
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	snapshotCmd.AddCommand(snapshotCloneCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)

	for _, c := range []*cobra.Command{snapshotDeleteCmd, snapshotCloneCmd, snapshotRestoreCmd} {
		c.Flags().StringVar(&indexName, "index", "", "index name (one shard, shard 0, per index)")
		c.MarkFlagRequired("index")
	}
	snapshotCreateCmd.Flags().StringSliceVar(&indexNames, "index", nil, "index name (one shard, shard 0, per index); repeatable to snapshot several indices as one atomic snapshot")
	snapshotCreateCmd.MarkFlagRequired("index")
	snapshotCreateCmd.Flags().StringVar(&sourceDir, "source-dir", "", "local directory whose files become each index's shard 0 physical files")
	snapshotCreateCmd.MarkFlagRequired("source-dir")
	snapshotRestoreCmd.Flags().StringVar(&destDir, "dest-dir", "", "local directory to restore files into")
	snapshotRestoreCmd.MarkFlagRequired("dest-dir")
	snapshotCloneCmd.Flags().StringVar(&cloneName, "as", "", "name for the cloned snapshot")
	snapshotCloneCmd.MarkFlagRequired("as")
}

// shardFor returns the CLI's single-shard-per-index convention: shard 0 of
// an index whose UUID is derived from its name (no external index-creation
// step exists in this harness).
func shardFor(index string) types.RepositoryShardId {
	return types.RepositoryShardId{Index: types.IndexId{Name: index, UUID: index + "-uuid"}, ShardNum: 0}
}

// snapshotByName finds a previously finalized snapshot's id and entry by
// name. This CLI only creates full-copy snapshots, so a direct
// RepositoryData.Snapshots lookup is enough; it never needs to read back a
// snap-*.dat blob to recover Shallow/AcquirerUUID.
func snapshotByName(data *types.RepositoryData, name string) (types.SnapshotId, types.SnapshotEntry, bool) {
	for id, entry := range data.Snapshots {
		if id.Name == name {
			return id, entry, true
		}
	}
	return types.SnapshotId{}, types.SnapshotEntry{}, false
}

// shardSnapshotResult is one index's outcome from the concurrent fan-out
// snapshotCreateCmd dispatches across --index flags: its new shard
// generation. A failed index reports its error through the grouped
// listener's OnFailure instead.
type shardSnapshotResult struct {
	index types.RepositoryShardId
	gen   types.ShardGeneration
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "snapshot a local directory's files into a new generation per --index, then finalize once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx := context.Background()

		e, err := openEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		data, _, err := e.repo.LoadRepositoryData(ctx)
		if err != nil {
			return err
		}

		// Every index's shard snapshots the same --source-dir concurrently;
		// the group fires once every index has reported, forwarding the
		// first shard failure, so one bad index aborts the whole snapshot
		// before FinalizeSnapshot ever runs.
		group := workerpool.NewGroupedListener[shardSnapshotResult](len(indexNames), nil)
		for _, idx := range indexNames {
			go func(indexName string) {
				shard := shardFor(indexName)
				priorGen, ok := data.ShardGenerations[shard]
				if !ok {
					priorGen = types.NewShardGen
				}
				source := &fsShardSource{dir: sourceDir}
				gen, err := e.repo.SnapshotShard(ctx, name, shard, source, priorGen, nil)
				if err != nil {
					group.OnFailure(fmt.Errorf("snapshot shard %q: %w", indexName, err))
					return
				}
				group.OnResponse(shardSnapshotResult{index: shard, gen: gen})
			}(idx)
		}

		results, err := group.Wait()
		if err != nil {
			return err
		}

		shardGens := make(map[types.RepositoryShardId]types.ShardGeneration, len(results))
		for _, res := range results {
			shardGens[res.index] = res.gen
		}

		info := types.SnapshotInfo{
			SnapshotId: types.SnapshotId{Name: name, UUID: uuid.NewString()},
			Indices:    indexNames,
			State:      types.SnapshotStateSuccess,
		}
		if _, err := e.repo.FinalizeSnapshot(ctx, info, nil, shardGens); err != nil {
			return fmt.Errorf("finalize snapshot: %w", err)
		}

		fmt.Printf("✓ snapshot %q created across %d index(es)\n", name, len(indexNames))
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "list every snapshot recorded in the repository's current generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		data, _, err := e.repo.LoadRepositoryData(ctx)
		if err != nil {
			return err
		}
		if len(data.Snapshots) == 0 {
			fmt.Println("(no snapshots)")
			return nil
		}
		for id, entry := range data.Snapshots {
			fmt.Printf("%s\t%s\t%s\n", id.Name, id.UUID, entry.State)
		}
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "delete a snapshot and GC any blobs it alone referenced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx := context.Background()
		e, err := openEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		data, _, err := e.repo.LoadRepositoryData(ctx)
		if err != nil {
			return err
		}
		id, entry, ok := snapshotByName(data, name)
		if !ok {
			return fmt.Errorf("no such snapshot %q", name)
		}
		target := types.SnapshotInfo{SnapshotId: id, State: entry.State}

		shard := shardFor(indexName)
		if _, err := e.repo.DeleteSnapshots(ctx, []types.SnapshotInfo{target}, []types.RepositoryShardId{shard}); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
		fmt.Printf("✓ snapshot %q deleted\n", name)
		return nil
	},
}

var snapshotCloneCmd = &cobra.Command{
	Use:   "clone NAME",
	Short: "clone an existing snapshot's shard references under a new name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx := context.Background()
		e, err := openEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		data, _, err := e.repo.LoadRepositoryData(ctx)
		if err != nil {
			return err
		}
		id, entry, ok := snapshotByName(data, name)
		if !ok {
			return fmt.Errorf("no such snapshot %q", name)
		}
		source := types.SnapshotInfo{SnapshotId: id, State: entry.State}
		target := types.SnapshotId{Name: cloneName, UUID: uuid.NewString()}

		shard := shardFor(indexName)
		if _, err := e.repo.CloneSnapshot(ctx, source, target, []types.RepositoryShardId{shard}); err != nil {
			return fmt.Errorf("clone snapshot: %w", err)
		}
		fmt.Printf("✓ snapshot %q cloned as %q\n", name, cloneName)
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore NAME",
	Short: "restore a snapshot's shard files into a local directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx := context.Background()
		e, err := openEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		shard := shardFor(indexName)
		data, _, err := e.repo.LoadRepositoryData(ctx)
		if err != nil {
			return err
		}
		gen, ok := data.ShardGenerations[shard]
		if !ok || !gen.Valid() {
			return fmt.Errorf("shard for index %q has no snapshotted generation", indexName)
		}

		sink := &fsShardSink{dir: destDir}
		if err := e.repo.RestoreShard(ctx, name, shard, gen, sink, nil); err != nil {
			return fmt.Errorf("restore shard: %w", err)
		}
		fmt.Printf("✓ snapshot %q restored into %s\n", name, destDir)
		return nil
	},
}
