/*
Package log provides structured logging for the snapshot repository engine
using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	repoLog := log.WithRepository("snapshots-primary")
	repoLog.Info().Int64("generation", 4).Msg("generation published")

	snapLog := log.WithSnapshot(snapshotUUID)
	snapLog.Error().Err(err).Msg("finalize failed")

Context loggers (WithComponent, WithRepository, WithSnapshot, WithShard,
WithGeneration) each add one field and return a new zerolog.Logger; chain
`.With()` calls to add more than one.

# Log Levels

Debug is for development and troubleshooting (shard-diff decisions,
rate-limiter pacing); Info for lifecycle events (generation published,
snapshot finalized); Warn for best-effort failures the caller tolerates
(GC errors, index.latest write failures); Error for operation failures;
Fatal only for startup conditions the process cannot run without.
*/
package log
