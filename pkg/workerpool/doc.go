/*
Package workerpool provides the bounded concurrency primitives spec.md
§5/§9 call for: a named Pool generalizing the ticker-and-stop-channel
loop shape used elsewhere in this codebase into a reusable bounded
executor, GroupedListener for fan-in completion (N shard snapshots report
in, one finalize follows), and AssertPoolThread, a debug-only assertion
that code reachable only from a named pool is in fact running on it.
*/
package workerpool
