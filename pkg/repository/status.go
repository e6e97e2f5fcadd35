package repository

import "sync/atomic"

// Status is a snapshot's cooperative cancellation flag (SPEC_FULL.md §5
// "Cancellation"): checked at every part boundary and inside streaming
// reads. Observing it aborted surfaces repoerr.Aborted, releasing whatever
// store reference the caller held; in-flight writes are not rolled back and
// become GC orphans.
type Status struct {
	aborted atomic.Bool
}

// NewStatus returns a fresh, non-aborted Status.
func NewStatus() *Status { return &Status{} }

// Abort marks the snapshot aborted. Safe to call more than once.
func (s *Status) Abort() { s.aborted.Store(true) }

// IsAborted reports whether Abort has been called.
func (s *Status) IsAborted() bool { return s.aborted.Load() }
