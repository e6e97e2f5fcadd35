package repository

import (
	"bytes"
	"context"
	"io"

	"github.com/cuemby/snapvault/pkg/blob"
	"github.com/cuemby/snapvault/pkg/clusterstate"
	"github.com/cuemby/snapvault/pkg/localcache"
	"github.com/cuemby/snapvault/pkg/lock"
	"github.com/cuemby/snapvault/pkg/workerpool"
)

// fakeFile is one named, content-addressable file a fakeShardSource serves.
type fakeFile struct {
	name    string
	content []byte
	virtual bool
}

// fakeShardSource is a deterministic ShardSource test double: its commit
// identifier and file set are set directly by the test.
type fakeShardSource struct {
	identifier    string
	hasIdentifier bool
	files         []fakeFile
}

func (s *fakeShardSource) CommitIdentifier(context.Context) (string, bool, error) {
	return s.identifier, s.hasIdentifier, nil
}

func (s *fakeShardSource) CommitFiles(context.Context) ([]CommitFile, error) {
	out := make([]CommitFile, 0, len(s.files))
	for _, f := range s.files {
		cf := CommitFile{
			PhysicalName: f.name,
			Length:       int64(len(f.content)),
			Checksum:     checksumString(f.content),
			WriterUUID:   "writer-1",
		}
		if f.virtual {
			cf.Hash = f.content
		}
		out = append(out, cf)
	}
	return out, nil
}

func (s *fakeShardSource) OpenFile(_ context.Context, physicalName string) (io.ReadCloser, error) {
	for _, f := range s.files {
		if f.name == physicalName {
			return io.NopCloser(bytes.NewReader(f.content)), nil
		}
	}
	return nil, errNotFound(physicalName)
}

// fakeShardSink records every file restored into it, keyed by physical name.
type fakeShardSink struct {
	written map[string][]byte
}

func newFakeShardSink() *fakeShardSink {
	return &fakeShardSink{written: make(map[string][]byte)}
}

type fakeWriteCloser struct {
	sink *fakeShardSink
	name string
	buf  bytes.Buffer
}

func (w *fakeWriteCloser) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *fakeWriteCloser) Close() error {
	w.sink.written[w.name] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

func (s *fakeShardSink) CreateFile(_ context.Context, physicalName string, _ int64) (io.WriteCloser, error) {
	return &fakeWriteCloser{sink: s, name: physicalName}, nil
}

func errNotFound(name string) error {
	return &notFoundError{name: name}
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return "file not found: " + e.name }

// newTestRepository builds a Repository over an in-memory blob store and
// cluster-state, with the pools small enough for deterministic tests.
func newTestRepository(ctx context.Context, name string) (*Repository, error) {
	return New(ctx, Options{
		Name:         name,
		Root:         blob.NewMemContainer(),
		Store:        clusterstate.NewMemStore(),
		Locks:        lock.NewMemManager(),
		Cache:        localcache.NewRepositoryDataCache(),
		SnapshotPool: workerpool.New("snapshot", 2),
		GenericPool:  workerpool.New("generic", 2),
	})
}
