package blobformat

import (
	"strconv"

	"github.com/google/uuid"
)

// BlobName returns a new unique content blob name for prefix, e.g.
// "meta-<uuid>.dat" or "snap-<uuid>.dat".
func BlobName(prefix string) string {
	return prefix + "-" + uuid.NewString() + ".dat"
}

// IndexBlobName returns the repository-root manifest blob name for
// generation gen: "index-<gen>".
func IndexBlobName(gen int64) string {
	return "index-" + strconv.FormatInt(gen, 10)
}
