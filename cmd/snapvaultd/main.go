// Command snapvaultd is a single-node command-line harness over
// pkg/repository: every invocation opens (or bootstraps) a persistent
// cluster-state and blob store rooted at --data-dir, performs one operation,
// and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/snapvault/pkg/blob"
	"github.com/cuemby/snapvault/pkg/clusterstate"
	"github.com/cuemby/snapvault/pkg/events"
	"github.com/cuemby/snapvault/pkg/localcache"
	"github.com/cuemby/snapvault/pkg/lock"
	"github.com/cuemby/snapvault/pkg/log"
	"github.com/cuemby/snapvault/pkg/repository"
	"github.com/cuemby/snapvault/pkg/workerpool"
	"github.com/spf13/cobra"
)

var (
	dataDir  string
	bindAddr string
	nodeID   string
	repoName string
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "snapvaultd",
	Short: "snapvault blob-store repository engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./snapvault-data", "local directory holding the raft log and blob store root")
	rootCmd.PersistentFlags().StringVar(&bindAddr, "bind-addr", "127.0.0.1:7420", "raft transport bind address")
	rootCmd.PersistentFlags().StringVar(&nodeID, "node-id", "snapvaultd-1", "raft node id")
	rootCmd.PersistentFlags().StringVar(&repoName, "repository", "default", "repository name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON-formatted logs")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func initLogging() {
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// shutdowner is satisfied by clusterstate.raftStore but not by the Store
// interface itself, mirroring the type-assertion pattern pkg/clusterstate's
// Collector uses to reach IsLeader.
type shutdowner interface {
	Shutdown() error
}

// env bundles the repository and the resources openEnv acquired for it, so
// every command can close them down uniformly on exit.
type env struct {
	repo   *repository.Repository
	store  clusterstate.Store
	ledger *localcache.GenerationLedger
	broker *events.Broker
	sub    events.Subscriber
}

func (e *env) Close() {
	if e.broker != nil {
		e.broker.Unsubscribe(e.sub)
		e.broker.Stop()
	}
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			log.Errorf("generation ledger close failed", err)
		}
	}
	if sd, ok := e.store.(shutdowner); ok {
		if err := sd.Shutdown(); err != nil {
			log.Errorf("cluster-state shutdown failed", err)
		}
	}
}

// logEvents drains a subscriber onto the debug log for the process
// lifetime, giving every invocation a visible trail of what the Generation
// Protocol and snapshot operations did.
func logEvents(sub events.Subscriber) {
	for ev := range sub {
		log.Logger.Debug().Str("event", string(ev.Type)).Msg(ev.Message)
	}
}

// openEnv bootstraps (or reopens) the raft-backed cluster-state at
// --data-dir, opens the filesystem blob store root and the generation
// ledger alongside it, and constructs a fresh Repository. The pools, lock
// manager, and RepositoryData cache are in-process-only and are rebuilt on
// every invocation; the ledger is the one piece of local state that
// survives across invocations, giving a restarted process a starting point
// before cluster-state has synced a safe generation.
func openEnv(ctx context.Context, initialSettings map[string]any) (*env, error) {
	store, err := clusterstate.NewRaftStore(clusterstate.RaftConfig{
		NodeID:       nodeID,
		BindAddr:     bindAddr,
		DataDir:      dataDir + "/raft",
		ApplyTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open cluster-state: %w", err)
	}

	root, err := blob.NewFSContainer(dataDir + "/blobs")
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	ledger, err := localcache.OpenGenerationLedger(dataDir)
	if err != nil {
		if sd, ok := store.(shutdowner); ok {
			sd.Shutdown()
		}
		return nil, fmt.Errorf("open generation ledger: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	go logEvents(sub)

	repo, err := repository.New(ctx, repository.Options{
		Name:            repoName,
		Root:            root,
		Store:           store,
		Locks:           lock.NewMemManager(),
		Cache:           localcache.NewRepositoryDataCache(),
		Ledger:          ledger,
		SnapshotPool:    workerpool.New("snapshot", 2),
		GenericPool:     workerpool.New("generic", 2),
		InitialSettings: initialSettings,
		Events:          broker,
	})
	if err != nil {
		broker.Unsubscribe(sub)
		broker.Stop()
		ledger.Close()
		if sd, ok := store.(shutdowner); ok {
			sd.Shutdown()
		}
		return nil, fmt.Errorf("open repository %q: %w", repoName, err)
	}

	return &env{repo: repo, store: store, ledger: ledger, broker: broker, sub: sub}, nil
}
