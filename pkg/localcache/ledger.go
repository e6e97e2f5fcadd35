package localcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/snapvault/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketGenerations = []byte("repository_generations")

// GenerationLedger durably records, per repository, the last generation
// this node observed published. It exists so a restarted node has a
// starting point for its first ClaimGeneration call rather than defaulting
// straight into best-effort-consistency mode; it is advisory only and is
// never treated as authoritative over the cluster state.
type GenerationLedger struct {
	db *bolt.DB
}

// OpenGenerationLedger opens (creating if absent) the bbolt database rooted
// at dataDir.
func OpenGenerationLedger(dataDir string) (*GenerationLedger, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "snapvault-localcache.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketGenerations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &GenerationLedger{db: db}, nil
}

func (l *GenerationLedger) Close() error {
	return l.db.Close()
}

type ledgerEntry struct {
	Generation int64 `json:"generation"`
}

// Record persists generation as the last one observed for repository.
func (l *GenerationLedger) Record(repository string, generation int64) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGenerations)
		data, err := json.Marshal(ledgerEntry{Generation: generation})
		if err != nil {
			return err
		}
		return b.Put([]byte(repository), data)
	})
}

// Last returns the last recorded generation for repository, or
// types.GenerationUnknown if none has ever been recorded.
func (l *GenerationLedger) Last(repository string) (int64, error) {
	var entry ledgerEntry
	found := false

	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGenerations)
		data := b.Get([]byte(repository))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return types.GenerationUnknown, nil
	}
	return entry.Generation, nil
}
