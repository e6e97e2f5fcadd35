package main

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/snapvault/pkg/repository"
)

// fsShardSource adapts a local directory into a repository.ShardSource: one
// regular file per physical shard file, no Lucene commit identifier (every
// snapshot falls through to the per-file diff path).
type fsShardSource struct {
	dir string
}

func (s *fsShardSource) CommitIdentifier(context.Context) (string, bool, error) {
	return "", false, nil
}

func (s *fsShardSource) CommitFiles(ctx context.Context) ([]repository.CommitFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read shard directory %q: %w", s.dir, err)
	}

	var files []repository.CommitFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", e.Name(), err)
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		cf := repository.CommitFile{
			PhysicalName: e.Name(),
			Length:       info.Size(),
			Checksum:     crc32String(data),
			WriterUUID:   "snapvaultd-local",
		}
		if len(data) <= 256 {
			cf.Hash = data
		}
		files = append(files, cf)
	}
	return files, nil
}

func (s *fsShardSource) OpenFile(_ context.Context, physicalName string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, physicalName))
}

// fsShardSink is the write-side counterpart, restoring into a local
// directory created on demand.
type fsShardSink struct {
	dir string
}

func (s *fsShardSink) CreateFile(_ context.Context, physicalName string, _ int64) (io.WriteCloser, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create restore directory %q: %w", s.dir, err)
	}
	return os.Create(filepath.Join(s.dir, physicalName))
}

func crc32String(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}
