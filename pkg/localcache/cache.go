package localcache

import (
	"sync"

	"github.com/cuemby/snapvault/pkg/types"
)

// RepositoryDataCache is the single-slot latestKnownRepositoryData cache
// (spec.md §5): at most one (generation, RepositoryData) pair is held per
// repository, refreshed by compare-and-swap so a slow reader can never
// clobber a concurrent writer's more recent entry.
type RepositoryDataCache struct {
	mu    sync.Mutex
	slots map[string]cachedEntry
}

type cachedEntry struct {
	gen  int64
	data *types.RepositoryData
}

func NewRepositoryDataCache() *RepositoryDataCache {
	return &RepositoryDataCache{slots: make(map[string]cachedEntry)}
}

// Get returns the cached RepositoryData for repository, provided its
// generation still equals expectedGen.
func (c *RepositoryDataCache) Get(repository string, expectedGen int64) (*types.RepositoryData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.slots[repository]
	if !ok || entry.gen != expectedGen {
		return nil, false
	}
	return entry.data, true
}

// CompareAndSwap installs data at newGen unless the slot already holds a
// generation greater than or equal to newGen, in which case it is a no-op
// (true if the existing entry already matches, false otherwise).
func (c *RepositoryDataCache) CompareAndSwap(repository string, newGen int64, data *types.RepositoryData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.slots[repository]
	if ok && entry.gen >= newGen {
		return entry.gen == newGen
	}
	c.slots[repository] = cachedEntry{gen: newGen, data: data}
	return true
}

// Invalidate clears repository's cached entry. Best-effort-consistency mode
// and detected corruption both invalidate rather than trust a stale cache.
func (c *RepositoryDataCache) Invalidate(repository string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, repository)
}
