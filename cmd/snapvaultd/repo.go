package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configPath string

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "repository lifecycle operations",
}

func init() {
	repoCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file of repository settings (see pkg/repository.Settings)")

	repoCmd.AddCommand(repoInitCmd)
	repoCmd.AddCommand(repoStatusCmd)
	repoCmd.AddCommand(repoVerifyCmd)
	repoCmd.AddCommand(repoCleanupCmd)
}

// loadSettingsFile parses a YAML document of repository settings into the
// map[string]any repository.ParseSettings expects, matching the teacher's
// convention of keeping repository settings as opaque, versionable
// key/value cluster-state rather than a typed config struct.
func loadSettingsFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var settings map[string]any
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return settings, nil
}

var repoInitCmd = &cobra.Command{
	Use:   "init",
	Short: "register the repository in cluster-state, applying --config settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettingsFile(configPath)
		if err != nil {
			return err
		}
		e, err := openEnv(context.Background(), settings)
		if err != nil {
			return err
		}
		defer e.Close()
		fmt.Printf("repository %q ready (settings: %+v)\n", e.repo.Name(), e.repo.Settings())
		return nil
	},
}

var repoStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "print the repository's current generation and shard count",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(context.Background(), nil)
		if err != nil {
			return err
		}
		defer e.Close()

		data, meta, err := e.repo.LoadRepositoryData(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("repository:  %s\n", e.repo.Name())
		fmt.Printf("generation:  %d (pending %d)\n", meta.Generation, meta.PendingGeneration)
		fmt.Printf("corrupted:   %v\n", meta.Corrupted())
		fmt.Printf("snapshots:   %d\n", len(data.Snapshots))
		fmt.Printf("shards:      %d\n", len(data.ShardGenerations))
		return nil
	},
}

var repoVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "round-trip a probe blob through the repository's blob store",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(context.Background(), nil)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.repo.StartVerification(context.Background(), nodeID); err != nil {
			return err
		}
		if err := e.repo.EndVerification(context.Background(), nodeID); err != nil {
			return err
		}
		fmt.Println("✓ repository blob store verified")
		return nil
	},
}

var repoCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "republish the repository's generation, triggering stale index-* blob GC",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(context.Background(), nil)
		if err != nil {
			return err
		}
		defer e.Close()

		data, err := e.repo.Cleanup(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("✓ cleanup published generation %d\n", data.GenID)
		return nil
	},
}
