package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SnapshotId identifies a snapshot. UUID is the durable identity; Name is
// user-facing and may be reused once a snapshot with the same name has been
// deleted.
type SnapshotId struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// MarshalText renders the id for use as a JSON object key (RepositoryData's
// maps are keyed by SnapshotId; encoding/json requires TextMarshaler for
// non-string map keys).
func (id SnapshotId) MarshalText() ([]byte, error) {
	return []byte(id.Name + "\x1f" + id.UUID), nil
}

func (id *SnapshotId) UnmarshalText(text []byte) error {
	name, uuid, err := splitKeyField(string(text))
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}
	id.Name, id.UUID = name, uuid
	return nil
}

func splitKeyField(s string) (string, string, error) {
	parts := strings.SplitN(s, "\x1f", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed key %q", s)
	}
	return parts[0], parts[1], nil
}

// IndexId identifies an index. UUID binds the index to a specific creation;
// two snapshots can reference logically identical index names with distinct
// UUIDs (the index was deleted and recreated between snapshots).
type IndexId struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

func (id IndexId) MarshalText() ([]byte, error) {
	return []byte(id.Name + "\x1f" + id.UUID), nil
}

func (id *IndexId) UnmarshalText(text []byte) error {
	name, uuid, err := splitKeyField(string(text))
	if err != nil {
		return fmt.Errorf("index id: %w", err)
	}
	id.Name, id.UUID = name, uuid
	return nil
}

// RepositoryShardId identifies a single shard of a single index.
type RepositoryShardId struct {
	Index    IndexId `json:"index"`
	ShardNum int     `json:"shard_num"`
}

func (id RepositoryShardId) MarshalText() ([]byte, error) {
	return []byte(id.Index.Name + "\x1f" + id.Index.UUID + "\x1f" + strconv.Itoa(id.ShardNum)), nil
}

func (id *RepositoryShardId) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), "\x1f", 3)
	if len(parts) != 3 {
		return fmt.Errorf("repository shard id: malformed key %q", text)
	}
	shardNum, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("repository shard id: %w", err)
	}
	id.Index = IndexId{Name: parts[0], UUID: parts[1]}
	id.ShardNum = shardNum
	return nil
}

// ShardGeneration is an opaque token identifying a specific shard-level
// index-<gen> blob. It is either a random UUID (preferred), a non-negative
// integer printed as a string (legacy numbering), or one of the sentinels
// below.
type ShardGeneration string

const (
	// NewShardGen marks a shard that has never been snapshotted.
	NewShardGen ShardGeneration = "_new"
	// DeletedShardGen marks a shard with no surviving full-copy snapshot.
	DeletedShardGen ShardGeneration = "_deleted"
)

// Valid reports whether g is neither empty nor a sentinel requiring special
// handling by the caller before it is used as a blob-name suffix.
func (g ShardGeneration) Valid() bool {
	return g != "" && g != NewShardGen && g != DeletedShardGen
}

// Repository-generation sentinels, per SPEC_FULL.md §3/§6.
const (
	GenerationEmpty     int64 = -1
	GenerationCorrupted int64 = -2
	GenerationUnknown   int64 = -3
)

// SnapshotState is the lifecycle state of a snapshot entry in RepositoryData.
type SnapshotState string

const (
	SnapshotStateStarted SnapshotState = "started"
	SnapshotStateSuccess SnapshotState = "success"
	SnapshotStatePartial SnapshotState = "partial"
	SnapshotStateFailed  SnapshotState = "failed"
)

// SnapshotEntry is the value RepositoryData keeps per SnapshotId.
type SnapshotEntry struct {
	State   SnapshotState `json:"state"`
	Version string        `json:"version"`
}

// IndexMetaKey is the key of RepositoryData.IndexMetaGenerations: which
// identifier a given snapshot used for a given index's metadata blob.
type IndexMetaKey struct {
	Snapshot SnapshotId `json:"snapshot"`
	Index    IndexId    `json:"index"`
}

func (k IndexMetaKey) MarshalText() ([]byte, error) {
	return []byte(k.Snapshot.Name + "\x1f" + k.Snapshot.UUID + "\x1f" + k.Index.Name + "\x1f" + k.Index.UUID), nil
}

func (k *IndexMetaKey) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), "\x1f", 4)
	if len(parts) != 4 {
		return fmt.Errorf("index meta key: malformed key %q", text)
	}
	k.Snapshot = SnapshotId{Name: parts[0], UUID: parts[1]}
	k.Index = IndexId{Name: parts[2], UUID: parts[3]}
	return nil
}

// RepositoryData is the in-memory (and on-the-wire, as blob "index-N") manifest
// of a repository: every snapshot, index, and per-shard generation known at
// generation GenID. See SPEC_FULL.md §3.
type RepositoryData struct {
	GenID int64 `json:"gen_id"`

	Snapshots map[SnapshotId]SnapshotEntry `json:"snapshots"`

	// Indices maps a user-facing index name to the IndexId currently backing it.
	Indices map[string]IndexId `json:"indices"`

	// IndexSnapshots maps an index to the ordered set of snapshots that
	// contain it (insertion order is preserved — it is not re-sorted).
	IndexSnapshots map[IndexId][]SnapshotId `json:"index_snapshots"`

	// ShardGenerations maps a shard to the ShardGeneration of its current
	// index-<gen> blob.
	ShardGenerations map[RepositoryShardId]ShardGeneration `json:"shard_generations"`

	// IndexMetaGenerations maps (snapshot, index) to the identifier used to
	// select the index-metadata blob for that pair.
	IndexMetaGenerations map[IndexMetaKey]string `json:"index_meta_generations"`

	// IndexMetaIdentifiers deduplicates identical index-metadata content:
	// identifier -> blob UUID ("meta-<uuid>.dat").
	IndexMetaIdentifiers map[string]string `json:"index_meta_identifiers"`
}

// NewRepositoryData returns an empty manifest at GenerationEmpty.
func NewRepositoryData() *RepositoryData {
	return &RepositoryData{
		GenID:                GenerationEmpty,
		Snapshots:            map[SnapshotId]SnapshotEntry{},
		Indices:              map[string]IndexId{},
		IndexSnapshots:       map[IndexId][]SnapshotId{},
		ShardGenerations:     map[RepositoryShardId]ShardGeneration{},
		IndexMetaGenerations: map[IndexMetaKey]string{},
		IndexMetaIdentifiers: map[string]string{},
	}
}

// Clone returns a deep-enough copy for copy-on-write manifest construction:
// every map is copied, slice values are copied, but FileInfo-level content is
// never mutated in place so a shallow copy of those is safe.
func (d *RepositoryData) Clone() *RepositoryData {
	c := &RepositoryData{
		GenID:                d.GenID,
		Snapshots:            make(map[SnapshotId]SnapshotEntry, len(d.Snapshots)),
		Indices:              make(map[string]IndexId, len(d.Indices)),
		IndexSnapshots:       make(map[IndexId][]SnapshotId, len(d.IndexSnapshots)),
		ShardGenerations:     make(map[RepositoryShardId]ShardGeneration, len(d.ShardGenerations)),
		IndexMetaGenerations: make(map[IndexMetaKey]string, len(d.IndexMetaGenerations)),
		IndexMetaIdentifiers: make(map[string]string, len(d.IndexMetaIdentifiers)),
	}
	for k, v := range d.Snapshots {
		c.Snapshots[k] = v
	}
	for k, v := range d.Indices {
		c.Indices[k] = v
	}
	for k, v := range d.IndexSnapshots {
		cp := make([]SnapshotId, len(v))
		copy(cp, v)
		c.IndexSnapshots[k] = cp
	}
	for k, v := range d.ShardGenerations {
		c.ShardGenerations[k] = v
	}
	for k, v := range d.IndexMetaGenerations {
		c.IndexMetaGenerations[k] = v
	}
	for k, v := range d.IndexMetaIdentifiers {
		c.IndexMetaIdentifiers[k] = v
	}
	return c
}

// FileInfo describes one physical shard file referenced by a snapshot.
type FileInfo struct {
	// LogicalName is the blob-store name: "__<uuid>" for written data,
	// "v__<uuid>" for a virtual (content-inline) reference.
	LogicalName string `json:"name"`
	// PhysicalName is the Lucene commit's on-disk file name.
	PhysicalName string `json:"physical_name"`
	Length       int64  `json:"length"`
	// Hash holds the raw content when small enough to inline (virtual blobs);
	// nil for normal written blobs.
	Hash      []byte `json:"hash,omitempty"`
	PartSize  int64  `json:"part_size"`
	PartCount int    `json:"part_count"`
	Checksum  string `json:"checksum"`
	// WriterUUID is the Lucene segment writer identity, used together with
	// Length+Checksum to decide file identity (isSame).
	WriterUUID string `json:"writer_uuid,omitempty"`
}

// HashEqualsContents reports whether Hash holds the file's entire content
// (a "virtual" blob, never separately written to the blob store).
func (f FileInfo) HashEqualsContents() bool {
	return len(f.Hash) > 0 && int64(len(f.Hash)) == f.Length
}

// PartName returns the blob-store name of part i of this file's data.
func (f FileInfo) PartName(i int) string {
	if f.PartCount <= 1 {
		return f.LogicalName
	}
	return f.LogicalName + ".part" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := [20]byte{}
	pos := len(digits)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		digits[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		digits[pos] = '-'
	}
	return string(digits[pos:])
}

// SnapshotFiles is one snapshot's view of a shard: which files it contains,
// in what physical->logical mapping, and (if this snapshot's shard content
// was reused verbatim from a prior snapshot) the commit identifier that
// matched.
type SnapshotFiles struct {
	SnapshotName         string     `json:"snapshot"`
	Files                []FileInfo `json:"files"`
	ShardStateIdentifier string     `json:"shard_state_identifier,omitempty"`
}

// BlobStoreIndexShardSnapshots is the per-shard manifest, stored as blob
// "indices/<indexUUID>/<shardNum>/index-<gen>".
type BlobStoreIndexShardSnapshots struct {
	Snapshots []SnapshotFiles `json:"snapshots"`
}

// FindShardStateIdentifier returns the file list of a prior snapshot whose
// ShardStateIdentifier matches id, enabling the shard-write fast path of
// SPEC_FULL.md §4.4 step 1.
func (s *BlobStoreIndexShardSnapshots) FindShardStateIdentifier(id string) ([]FileInfo, bool) {
	if id == "" {
		return nil, false
	}
	for _, sf := range s.Snapshots {
		if sf.ShardStateIdentifier == id {
			return sf.Files, true
		}
	}
	return nil, false
}

// PhysicalIndexFiles returns the set of distinct physical file descriptors
// known across every snapshot in s, the input to isSame() diffing.
func (s *BlobStoreIndexShardSnapshots) PhysicalIndexFiles() map[string]FileInfo {
	out := map[string]FileInfo{}
	for _, sf := range s.Snapshots {
		for _, f := range sf.Files {
			if _, ok := out[f.PhysicalName]; !ok {
				out[f.PhysicalName] = f
			}
		}
	}
	return out
}

// WithoutSnapshots returns a copy of s with every SnapshotFiles whose
// SnapshotName is in removed dropped, used by snapshot delete (SPEC_FULL.md
// §4.6).
func (s *BlobStoreIndexShardSnapshots) WithoutSnapshots(removed map[string]bool) *BlobStoreIndexShardSnapshots {
	out := &BlobStoreIndexShardSnapshots{}
	for _, sf := range s.Snapshots {
		if !removed[sf.SnapshotName] {
			out.Snapshots = append(out.Snapshots, sf)
		}
	}
	return out
}

// ReferencedBlobNames returns every LogicalName referenced by s, used by GC
// to compute the surviving set.
func (s *BlobStoreIndexShardSnapshots) ReferencedBlobNames() map[string]bool {
	out := map[string]bool{}
	for _, sf := range s.Snapshots {
		for _, f := range sf.Files {
			out[f.LogicalName] = true
		}
	}
	return out
}

// RepositoryMetadata is the cluster-state view of a repository: its name,
// settings, and the (safe, pending) generation pair. It lives in the
// external cluster-state store, not in the blob store.
type RepositoryMetadata struct {
	Name              string         `json:"name"`
	Settings          map[string]any `json:"settings"`
	Generation        int64          `json:"generation"`
	PendingGeneration int64          `json:"pending_generation"`
}

// Corrupted reports whether the repository has been marked CORRUPTED.
func (m RepositoryMetadata) Corrupted() bool {
	return m.Generation == GenerationCorrupted
}

// ShallowFileInfo describes one shard file in a shallow (remote-store)
// snapshot: there is no blob-store data blob, only a reference into the
// remote-store tier keyed by the lock acquirer UUID.
type ShallowFileInfo struct {
	PhysicalName string `json:"physical_name"`
	Length       int64  `json:"length"`
	Checksum     string `json:"checksum"`
}

// SnapshotInfo is the cluster-wide per-snapshot record, stored as blob
// "snap-<snapshotUUID>.dat" (full-copy) or "shallow-snap-<uuid>.dat"
// (shallow, carrying AcquirerUUID instead of data-blob references).
type SnapshotInfo struct {
	SnapshotId    SnapshotId     `json:"snapshot_id"`
	Indices       []string       `json:"indices"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	State         SnapshotState  `json:"state"`
	ShardFailures []ShardFailure `json:"shard_failures,omitempty"`

	// Shallow is true when this snapshot's shard payloads live in the
	// remote-store tier rather than as "__*" blobs in this repository.
	Shallow bool `json:"shallow,omitempty"`
	// AcquirerUUID identifies the remote-store lock held for this snapshot,
	// only set when Shallow is true.
	AcquirerUUID string `json:"acquirer_uuid,omitempty"`
}

// ShardFailure records a per-shard failure inside an otherwise successful
// or partial snapshot.
type ShardFailure struct {
	Index    IndexId `json:"index"`
	ShardNum int     `json:"shard_num"`
	Reason   string  `json:"reason"`
}

// IndexMetadata is the per-index metadata blob payload, stored as blob
// "indices/<indexUUID>/meta-<blobUUID>.dat". The engine treats the body as
// an opaque, content-addressable byte string; only IdentityKey is inspected.
type IndexMetadata struct {
	Index   IndexId        `json:"index"`
	Version int64          `json:"version"`
	Body    map[string]any `json:"body"`
}

// IdentityKey returns the dedup key SPEC_FULL.md §4.5 step 1 hashes distinct
// index-metadata bodies on. Two IndexMetadata values with equal IdentityKey
// are assumed byte-identical and share one meta-<uuid>.dat blob.
func (m IndexMetadata) IdentityKey() string {
	return m.Index.UUID + "@" + itoa64(m.Version)
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	pos := len(buf)
	for v > 0 {
		pos--
		buf[pos] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Metadata is the cluster-wide metadata blob payload, stored as blob
// "meta-<snapshotUUID>.dat".
type Metadata struct {
	Indices map[string]IndexMetadata `json:"indices"`
}
