package repository

import (
	"github.com/cuemby/snapvault/pkg/blobformat"
)

// Settings holds the per-repository settings enumerated in SPEC_FULL.md §6.
// It is recomputed from the repository's RepositoryMetadata.Settings map on
// construction and whenever Repository.RefreshSettings is called, never
// mutated in place.
type Settings struct {
	Compress                     bool
	CompressionType               blobformat.Compression
	IOBufferSize                  int64
	MaxSnapshotBytesPerSec        int64
	MaxRestoreBytesPerSec         int64
	MaxShardBlobDeleteBatchSize   int
	ReadOnly                      bool
	CacheRepositoryData           bool
	AllowConcurrentModifications  bool
	SupportURLRepo                bool
	RemoteStoreIndexShallowCopy   bool
}

// DefaultSettings returns the defaults from SPEC_FULL.md §6's settings
// table.
func DefaultSettings() Settings {
	return Settings{
		Compress:                    false,
		CompressionType:             blobformat.CompressionDeflate,
		IOBufferSize:                128 * 1024,
		MaxSnapshotBytesPerSec:      40 * 1024 * 1024,
		MaxRestoreBytesPerSec:       0,
		MaxShardBlobDeleteBatchSize: 1000,
		ReadOnly:                    false,
		CacheRepositoryData:         true,
		AllowConcurrentModifications: false,
		SupportURLRepo:              true,
		RemoteStoreIndexShallowCopy: false,
	}
}

// ParseSettings overlays raw (as stored in RepositoryMetadata.Settings) onto
// DefaultSettings, ignoring unknown or mistyped keys rather than failing the
// whole load — an operator's typo in one setting should not make a
// repository unreadable.
func ParseSettings(raw map[string]any) Settings {
	s := DefaultSettings()
	if raw == nil {
		return s
	}

	if v, ok := raw["compress"].(bool); ok {
		s.Compress = v
	}
	if v, ok := raw["compression_type"].(string); ok {
		switch v {
		case "lz4":
			s.CompressionType = blobformat.CompressionLZ4
		case "deflate":
			s.CompressionType = blobformat.CompressionDeflate
		}
	}
	if v, ok := asInt64(raw["io_buffer_size"]); ok {
		s.IOBufferSize = v
	}
	if v, ok := asInt64(raw["max_snapshot_bytes_per_sec"]); ok {
		s.MaxSnapshotBytesPerSec = v
	}
	if v, ok := asInt64(raw["max_restore_bytes_per_sec"]); ok {
		s.MaxRestoreBytesPerSec = v
	}
	if v, ok := asInt64(raw["max_snapshot_shard_blob_delete_batch_size"]); ok {
		s.MaxShardBlobDeleteBatchSize = int(v)
	}
	if v, ok := raw["readonly"].(bool); ok {
		s.ReadOnly = v
	}
	if v, ok := raw["cache_repository_data"].(bool); ok {
		s.CacheRepositoryData = v
	}
	if v, ok := raw["allow_concurrent_modifications"].(bool); ok {
		s.AllowConcurrentModifications = v
	}
	if v, ok := raw["support_url_repo"].(bool); ok {
		s.SupportURLRepo = v
	}
	if v, ok := raw["remote_store_index_shallow_copy"].(bool); ok {
		s.RemoteStoreIndexShallowCopy = v
	}
	return s
}

// compressionOrNone returns CompressionType when Compress is enabled, or
// CompressionNone otherwise — the single place callers decide whether to
// compress a blob body.
func (s Settings) compressionOrNone() blobformat.Compression {
	if !s.Compress {
		return blobformat.CompressionNone
	}
	return s.CompressionType
}

// asInt64 accepts the numeric shapes a map[string]any decoded from JSON can
// hold (float64) as well as a plain int64, since settings may arrive either
// freshly constructed or round-tripped through JSON.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
