package repository

import (
	"context"
	"io"

	"github.com/cuemby/snapvault/pkg/types"
)

// CommitFile is one physical file in a Lucene-layer commit, as reported by
// a ShardSource. It carries enough identity (length, checksum, writer UUID)
// for isSame() diffing against a prior snapshot's FileInfo without this
// package needing to understand Lucene segment internals.
type CommitFile struct {
	PhysicalName string
	Length       int64
	Checksum     string
	WriterUUID   string
	// Hash holds the file's entire content when it is small enough to
	// inline rather than written as a separate data blob (a "virtual"
	// reference, SPEC_FULL.md glossary).
	Hash []byte
}

// IsSame reports whether f and prior identify the same physical file
// content, per SPEC_FULL.md §4.4 step 2: equal length+checksum+writer-UUID,
// or equal length+hash when content is inline.
func (f CommitFile) IsSame(prior types.FileInfo) bool {
	if f.Length != prior.Length {
		return false
	}
	if len(f.Hash) > 0 {
		return string(f.Hash) == string(prior.Hash)
	}
	return f.Checksum == prior.Checksum && f.WriterUUID == prior.WriterUUID
}

// ShardSource is the local shard storage/Lucene-layer collaborator
// SPEC_FULL.md §1 names as external: it provides the commit's file listing,
// content hashes, and streaming reads. The engine never constructs one
// itself.
type ShardSource interface {
	// CommitIdentifier returns the Lucene commit's shardStateIdentifier, if
	// the source can supply one (fast-path reuse, SPEC_FULL.md §4.4 step 1).
	CommitIdentifier(ctx context.Context) (string, bool, error)

	// CommitFiles lists every physical file in the commit to snapshot.
	CommitFiles(ctx context.Context) ([]CommitFile, error)

	// OpenFile opens physicalName for a verifying streaming read. The
	// caller computes a checksum over the bytes read and compares on
	// Close; a mismatch means local corruption.
	OpenFile(ctx context.Context, physicalName string) (io.ReadCloser, error)
}
