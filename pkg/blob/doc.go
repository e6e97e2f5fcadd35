/*
Package blob defines BlobContainer, the flat object-store abstraction
spec.md §4.1 treats as an external collaborator: list/read/write/
atomic-write/delete over an opaque namespace, plus a children()
hierarchy for the indices/<uuid>/<shard> layout.

Two exercised implementations are provided: FSContainer (the filesystem,
used by cmd/snapvaultd and most tests) and MemContainer (in-memory, used
by pkg/repository's fast unit tests). URLContainer is a third,
read-only implementation: a list-by-index.latest-pointer mirror for
serving a repository over plain HTTP, per spec.md §4.1's "URL-only
mirror" backend.

The engine never assumes read-after-write consistency across a listing;
callers that need read-your-writes use readBlob/writeBlob by name
directly rather than listBlobs.
*/
package blob
