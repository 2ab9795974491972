package store

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aweris/lcas/internal/tree"
)

// Cache holds decoded manifests in memory.
type Cache interface {
	Get(hash tree.Hash) (tree.Entries, bool)
	Add(hash tree.Hash, entries tree.Entries)
	Len() int
}

// LRUCache is a fixed-capacity least-recently-used Cache.
type LRUCache struct {
	entries *lru.Cache[tree.Hash, tree.Entries]
}

var _ Cache = (*LRUCache)(nil)

// NewLRUCache returns a cache holding at most maxSize manifests. A
// non-positive size disables caching.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		return &LRUCache{}
	}
	entries, err := lru.New[tree.Hash, tree.Entries](maxSize)
	if err != nil {
		return &LRUCache{}
	}
	return &LRUCache{entries: entries}
}

func (c *LRUCache) Get(hash tree.Hash) (tree.Entries, bool) {
	if c.entries == nil {
		return nil, false
	}
	return c.entries.Get(hash)
}

func (c *LRUCache) Add(hash tree.Hash, entries tree.Entries) {
	if c.entries == nil {
		return
	}
	c.entries.Add(hash, entries)
}

func (c *LRUCache) Len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}
