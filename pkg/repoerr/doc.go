/*
Package repoerr defines the error taxonomy of the snapshot repository
engine, per SPEC_FULL.md §7.

Every error the engine surfaces outside its own package is one of the
kinds below, wrapped with context via fmt.Errorf("...: %w", err). Callers
distinguish kinds with errors.Is against the Is* sentinel errors (for
example IsConcurrentModification), or
errors.As against *Error to recover the wrapped cause.
*/
package repoerr
