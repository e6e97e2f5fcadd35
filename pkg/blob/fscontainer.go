package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/google/uuid"
)

// FSContainer is a Container backed by a directory on the local
// filesystem, the default backend for cmd/snapvaultd.
type FSContainer struct {
	root string
}

// NewFSContainer returns a Container rooted at root, creating it if
// absent.
func NewFSContainer(root string) (*FSContainer, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, repoerr.Wrap(repoerr.TransientIO, "new_fs_container", err)
	}
	return &FSContainer{root: root}, nil
}

func (c *FSContainer) Path() string { return c.root }

func (c *FSContainer) ListBlobs(_ context.Context) (map[string]BlobMetadata, error) {
	return c.listBlobsByPrefix("")
}

func (c *FSContainer) ListBlobsByPrefix(_ context.Context, prefix string) (map[string]BlobMetadata, error) {
	return c.listBlobsByPrefix(prefix)
}

func (c *FSContainer) listBlobsByPrefix(prefix string) (map[string]BlobMetadata, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]BlobMetadata{}, nil
		}
		return nil, repoerr.Wrap(repoerr.TransientIO, "list_blobs", err)
	}

	out := make(map[string]BlobMetadata)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // raced with a concurrent delete; an eventually-consistent listing may lag
		}
		out[entry.Name()] = BlobMetadata{Name: entry.Name(), Length: info.Size()}
	}
	return out, nil
}

func (c *FSContainer) ReadBlob(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(c.root, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, repoerr.New(repoerr.NotFound, "read_blob", fmt.Errorf("blob %q not found", name))
		}
		return nil, repoerr.Wrap(repoerr.TransientIO, "read_blob", err)
	}
	return f, nil
}

func (c *FSContainer) WriteBlob(_ context.Context, name string, r io.Reader, _ int64, failIfExists bool) error {
	return c.writeBlob(filepath.Join(c.root, name), r, failIfExists)
}

func (c *FSContainer) WriteBlobAtomic(_ context.Context, name string, r io.Reader, length int64, failIfExists bool) error {
	dst := filepath.Join(c.root, name)
	if failIfExists {
		if _, err := os.Stat(dst); err == nil {
			return repoerr.New(repoerr.ConcurrentModification, "write_blob_atomic", fmt.Errorf("blob %q already exists", name))
		}
	}

	tmp := filepath.Join(c.root, ".tmp-"+uuid.NewString())
	if err := c.writeBlob(tmp, r, false); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return repoerr.Wrap(repoerr.TransientIO, "write_blob_atomic", err)
	}
	return nil
}

func (c *FSContainer) writeBlob(path string, r io.Reader, failIfExists bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if failIfExists {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return repoerr.Wrap(repoerr.TransientIO, "write_blob", err)
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return repoerr.New(repoerr.ConcurrentModification, "write_blob", fmt.Errorf("blob already exists: %s", path))
		}
		return repoerr.Wrap(repoerr.TransientIO, "write_blob", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return repoerr.Wrap(repoerr.TransientIO, "write_blob", err)
	}
	return nil
}

func (c *FSContainer) DeleteBlobsIgnoringIfNotExists(_ context.Context, names []string) error {
	for _, name := range names {
		if err := os.Remove(filepath.Join(c.root, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return repoerr.Wrap(repoerr.TransientIO, "delete_blobs", err)
		}
	}
	return nil
}

func (c *FSContainer) Children(_ context.Context) (map[string]Container, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]Container{}, nil
		}
		return nil, repoerr.Wrap(repoerr.TransientIO, "children", err)
	}

	out := make(map[string]Container)
	for _, entry := range entries {
		if entry.IsDir() {
			out[entry.Name()] = &FSContainer{root: filepath.Join(c.root, entry.Name())}
		}
	}
	return out, nil
}

func (c *FSContainer) Child(name string) Container {
	return &FSContainer{root: filepath.Join(c.root, name)}
}

func (c *FSContainer) Delete(_ context.Context) (DeleteResult, error) {
	var result DeleteResult
	err := filepath.Walk(c.root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			result.BlobsDeleted++
			result.BytesDeleted += info.Size()
		}
		return nil
	})
	if err != nil {
		return result, repoerr.Wrap(repoerr.TransientIO, "delete", err)
	}
	if err := os.RemoveAll(c.root); err != nil {
		return result, repoerr.Wrap(repoerr.TransientIO, "delete", err)
	}
	return result, nil
}
