package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cuemby/snapvault/pkg/repoerr"
)

// MemContainer is an in-memory Container, used by pkg/repository's unit
// tests to exercise the engine without touching a filesystem.
type MemContainer struct {
	mu       sync.Mutex
	path     string
	blobs    map[string][]byte
	children map[string]*MemContainer
}

// NewMemContainer returns an empty in-memory root container.
func NewMemContainer() *MemContainer {
	return &MemContainer{blobs: make(map[string][]byte), children: make(map[string]*MemContainer)}
}

func (c *MemContainer) Path() string { return c.path }

func (c *MemContainer) ListBlobs(_ context.Context) (map[string]BlobMetadata, error) {
	return c.listByPrefix("")
}

func (c *MemContainer) ListBlobsByPrefix(_ context.Context, prefix string) (map[string]BlobMetadata, error) {
	return c.listByPrefix(prefix)
}

func (c *MemContainer) listByPrefix(prefix string) (map[string]BlobMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]BlobMetadata)
	for name, data := range c.blobs {
		if strings.HasPrefix(name, prefix) {
			out[name] = BlobMetadata{Name: name, Length: int64(len(data))}
		}
	}
	return out, nil
}

func (c *MemContainer) ReadBlob(_ context.Context, name string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.blobs[name]
	if !ok {
		return nil, repoerr.New(repoerr.NotFound, "read_blob", fmt.Errorf("blob %q not found", name))
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return io.NopCloser(bytes.NewReader(cp)), nil
}

func (c *MemContainer) WriteBlob(_ context.Context, name string, r io.Reader, _ int64, failIfExists bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return repoerr.Wrap(repoerr.TransientIO, "write_blob", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if failIfExists {
		if _, ok := c.blobs[name]; ok {
			return repoerr.New(repoerr.ConcurrentModification, "write_blob", fmt.Errorf("blob %q already exists", name))
		}
	}
	c.blobs[name] = data
	return nil
}

func (c *MemContainer) WriteBlobAtomic(ctx context.Context, name string, r io.Reader, length int64, failIfExists bool) error {
	return c.WriteBlob(ctx, name, r, length, failIfExists)
}

func (c *MemContainer) DeleteBlobsIgnoringIfNotExists(_ context.Context, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		delete(c.blobs, name)
	}
	return nil
}

func (c *MemContainer) Children(_ context.Context) (map[string]Container, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Container, len(c.children))
	for name, child := range c.children {
		out[name] = child
	}
	return out, nil
}

func (c *MemContainer) Child(name string) Container {
	c.mu.Lock()
	defer c.mu.Unlock()

	child, ok := c.children[name]
	if !ok {
		child = &MemContainer{
			path:     strings.TrimPrefix(c.path+"/"+name, "/"),
			blobs:    make(map[string][]byte),
			children: make(map[string]*MemContainer),
		}
		c.children[name] = child
	}
	return child
}

func (c *MemContainer) Delete(_ context.Context) (DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result DeleteResult
	c.countRecursive(&result)
	c.blobs = make(map[string][]byte)
	c.children = make(map[string]*MemContainer)
	return result, nil
}

// countRecursive assumes c.mu is already held.
func (c *MemContainer) countRecursive(result *DeleteResult) {
	for _, data := range c.blobs {
		result.BlobsDeleted++
		result.BytesDeleted += int64(len(data))
	}
	for _, child := range c.children {
		child.mu.Lock()
		child.countRecursive(result)
		child.mu.Unlock()
	}
}
