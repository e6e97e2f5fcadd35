package lock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/cuemby/snapvault/pkg/types"
)

// Key identifies a single lock-manager entry: one remote-store lock per
// shard per acquirer.
type Key struct {
	Repository   string
	Shard        types.RepositoryShardId
	AcquirerUUID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d/%s", k.Repository, k.Shard.Index.UUID, k.Shard.ShardNum, k.AcquirerUUID)
}

// Manager is the {acquire, release, clone} capability spec.md §4.6/§4.7
// names. The engine calls it only while deleting or cloning shallow
// snapshots.
type Manager interface {
	Acquire(key Key) error
	Release(key Key) error
	// Clone copies the lock held under src to dst, acquiring dst and
	// leaving src untouched. Used when cloning a shallow snapshot into a
	// new acquirer uuid before the new blob is written.
	Clone(src, dst Key) error
}

// memManager is the in-memory reference Manager. Acquire/Release mirror a
// simple per-key refcount so a shard can be referenced by more than one
// shallow snapshot without the first release evicting the lock out from
// under the second.
type memManager struct {
	mu   sync.Mutex
	held map[Key]int
}

func NewMemManager() Manager {
	return &memManager{held: make(map[Key]int)}
}

func (m *memManager) Acquire(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key]++
	return nil
}

func (m *memManager) Release(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.held[key]
	if !ok || n <= 0 {
		return repoerr.New(repoerr.NotFound, "lock.Release", errors.New("no held lock for "+key.String()))
	}
	if n == 1 {
		delete(m.held, key)
	} else {
		m.held[key] = n - 1
	}
	return nil
}

func (m *memManager) Clone(src, dst Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[src] <= 0 {
		return repoerr.New(repoerr.NotFound, "lock.Clone", errors.New("no held lock for "+src.String()))
	}
	m.held[dst]++
	return nil
}
