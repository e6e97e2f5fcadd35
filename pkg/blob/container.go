package blob

import (
	"context"
	"io"
)

// BlobMetadata is the length of one blob, as returned by a listing.
type BlobMetadata struct {
	Name   string
	Length int64
}

// DeleteResult reports how much a recursive Delete actually removed.
type DeleteResult struct {
	BlobsDeleted int64
	BytesDeleted int64
}

// Container is the minimal flat namespace over an object store spec.md
// §4.1 names: list/read/write/atomic-write/delete, plus a children()
// hierarchy for nested paths like indices/<uuid>/<shard>. Implementations
// never assume read-after-write consistency is visible to a later listing.
type Container interface {
	// ListBlobs returns every blob directly in this container.
	ListBlobs(ctx context.Context) (map[string]BlobMetadata, error)

	// ListBlobsByPrefix returns every blob directly in this container whose
	// name starts with prefix.
	ListBlobsByPrefix(ctx context.Context, prefix string) (map[string]BlobMetadata, error)

	// ReadBlob opens name for streaming read. Returns a repoerr NotFound
	// error if it does not exist.
	ReadBlob(ctx context.Context, name string) (io.ReadCloser, error)

	// WriteBlob writes length bytes from r to name. Not required to be
	// atomic: a reader racing the write may observe a partial blob.
	// failIfExists rejects the write (ConcurrentModification) if name
	// already exists.
	WriteBlob(ctx context.Context, name string, r io.Reader, length int64, failIfExists bool) error

	// WriteBlobAtomic is like WriteBlob, but name is visible either not at
	// all or in full: FSContainer stages to a temporary name and renames,
	// MemContainer stores the whole blob under its lock.
	WriteBlobAtomic(ctx context.Context, name string, r io.Reader, length int64, failIfExists bool) error

	// DeleteBlobsIgnoringIfNotExists deletes each of names, treating an
	// already-absent blob as success.
	DeleteBlobsIgnoringIfNotExists(ctx context.Context, names []string) error

	// Children returns the immediate sub-containers of this one, keyed by
	// their relative name.
	Children(ctx context.Context) (map[string]Container, error)

	// Child returns (creating if necessary) the sub-container named name.
	Child(name string) Container

	// Delete recursively removes this container and everything under it.
	Delete(ctx context.Context) (DeleteResult, error)

	// Path returns the container's full path for diagnostics.
	Path() string
}
