package blob

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/snapvault/pkg/repoerr"
)

// URLContainer is the read-only "URL-only mirror" backend spec.md §4.1
// names: a repository served over plain HTTP with no listing capability,
// so callers locate the current generation via ReadGenerationPointer
// (the raw 8-byte big-endian index.latest blob) instead of a listing.
type URLContainer struct {
	baseURL string
	client  *http.Client
}

// NewURLContainer returns a Container rooted at baseURL. A nil client uses
// http.DefaultClient.
func NewURLContainer(baseURL string, client *http.Client) *URLContainer {
	if client == nil {
		client = http.DefaultClient
	}
	return &URLContainer{baseURL: baseURL, client: client}
}

func (c *URLContainer) Path() string { return c.baseURL }

func (c *URLContainer) ReadBlob(ctx context.Context, name string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+name, nil)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.TransientIO, "read_blob", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.TransientIO, "read_blob", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, repoerr.New(repoerr.NotFound, "read_blob", fmt.Errorf("blob %q not found", name))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, repoerr.New(repoerr.TransientIO, "read_blob", fmt.Errorf("unexpected status %d reading %q", resp.StatusCode, name))
	}
	return resp.Body, nil
}

// ReadGenerationPointer reads and decodes the index.latest blob: the
// canonical generation for repositories that also serve as a URL-only
// read source (spec.md §4.3 phase 2).
func (c *URLContainer) ReadGenerationPointer(ctx context.Context) (int64, error) {
	rc, err := c.ReadBlob(ctx, "index.latest")
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	var buf [8]byte
	if _, err := io.ReadFull(rc, buf[:]); err != nil {
		return 0, repoerr.Wrap(repoerr.CorruptBlob, "read_generation_pointer", err)
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func (c *URLContainer) unsupported(op string) error {
	return repoerr.New(repoerr.Fatal, op, fmt.Errorf("%s is not supported by the URL-only mirror backend", op))
}

func (c *URLContainer) ListBlobs(_ context.Context) (map[string]BlobMetadata, error) {
	return nil, c.unsupported("list_blobs")
}

func (c *URLContainer) ListBlobsByPrefix(_ context.Context, _ string) (map[string]BlobMetadata, error) {
	return nil, c.unsupported("list_blobs")
}

func (c *URLContainer) WriteBlob(_ context.Context, _ string, _ io.Reader, _ int64, _ bool) error {
	return c.unsupported("write_blob")
}

func (c *URLContainer) WriteBlobAtomic(_ context.Context, _ string, _ io.Reader, _ int64, _ bool) error {
	return c.unsupported("write_blob_atomic")
}

func (c *URLContainer) DeleteBlobsIgnoringIfNotExists(_ context.Context, _ []string) error {
	return c.unsupported("delete_blobs")
}

func (c *URLContainer) Children(_ context.Context) (map[string]Container, error) {
	return nil, c.unsupported("children")
}

func (c *URLContainer) Child(name string) Container {
	return NewURLContainer(c.baseURL+"/"+name, c.client)
}

func (c *URLContainer) Delete(_ context.Context) (DeleteResult, error) {
	return DeleteResult{}, c.unsupported("delete")
}
