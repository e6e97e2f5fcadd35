package repoerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories from SPEC_FULL.md §7.
type Kind string

const (
	// TransientIO is a blob-store or local I/O failure. The containers in
	// pkg/blob return it on the first failure; no layer here retries it.
	TransientIO Kind = "transient_io"
	// NotFound is a signal, not a failure, for most GC paths.
	NotFound Kind = "not_found"
	// CorruptBlob fails the containing operation; for the index-<safe>
	// blob specifically, it escalates the repository to Corrupted.
	CorruptBlob Kind = "corrupt_blob"
	// FormatMismatch covers FormatTooOld/FormatTooNew from ChecksumBlobFormat.
	FormatMismatch Kind = "format_mismatch"
	// ConcurrentModification is a CAS mismatch between expectedGen and the
	// cluster-state's observed safe generation; always reported so the
	// caller can reload RepositoryData and retry.
	ConcurrentModification Kind = "concurrent_modification"
	// Aborted is cooperative cancellation via a snapshot's aborted flag.
	Aborted Kind = "aborted"
	// VerificationFailure is a startVerification seed mismatch.
	VerificationFailure Kind = "verification_failure"
	// Fatal is an unexpected, assertion-worthy condition.
	Fatal Kind = "fatal"
)

// Error wraps an underlying cause with a Kind and optional structured
// context for logging.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, repoerr.IsConcurrentModification) work by comparing
// the Kind of err, if it is (or wraps) a *Error, against the Kind of a
// *Error target such as the Is* sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error for kind, tagging it with the operation name op and
// wrapping cause (which may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Wrap is a convenience for New(kind, op, cause) that returns nil if cause
// is nil, so call sites can write `return repoerr.Wrap(Fatal, "op", err)`
// directly on an err that might be nil.
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return New(kind, op, cause)
}

// sentinels, one per Kind, so errors.Is(err, repoerr.IsNotFound) compares by
// Kind rather than by identity.
var (
	IsTransientIO            = &Error{Kind: TransientIO}
	IsNotFound               = &Error{Kind: NotFound}
	IsCorruptBlob            = &Error{Kind: CorruptBlob}
	IsFormatMismatch         = &Error{Kind: FormatMismatch}
	IsConcurrentModification = &Error{Kind: ConcurrentModification}
	IsAborted                = &Error{Kind: Aborted}
	IsVerificationFailure    = &Error{Kind: VerificationFailure}
	IsFatal                  = &Error{Kind: Fatal}
)

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
