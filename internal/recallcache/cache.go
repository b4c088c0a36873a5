// Package recallcache implements the single-generation staging area between
// the memory_recall and select_memories tools: a recall overwrites it
// wholesale, a select must consume it atomically or not at all.
package recallcache

import (
	"sync"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

// Cache is mutex-protected; per-call critical sections are short and never
// hold the lock across an await point, per spec.md §5's shared-resource
// policy.
type Cache struct {
	mu        sync.Mutex
	fragments map[int64]memory.MemoryFragment
}

func New() *Cache {
	return &Cache{fragments: map[int64]memory.MemoryFragment{}}
}

// Store replaces the cache's contents wholesale; any prior generation is
// discarded, per spec.md §4.7.
func (c *Cache) Store(fragments []memory.MemoryFragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[int64]memory.MemoryFragment, len(fragments))
	for _, f := range fragments {
		next[f.ID] = f
	}
	c.fragments = next
}

// Take returns the fragments for ids, in the requested order, only if every
// id is present; otherwise it returns (nil, false) and leaves the cache
// untouched. On success the cache is cleared atomically.
func (c *Cache) Take(ids []int64) ([]memory.MemoryFragment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]memory.MemoryFragment, len(ids))
	for i, id := range ids {
		f, ok := c.fragments[id]
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	c.fragments = map[int64]memory.MemoryFragment{}
	return out, true
}

// Clear empties the cache unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragments = map[int64]memory.MemoryFragment{}
}

// IsEmpty reports whether the cache currently holds no fragments.
func (c *Cache) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fragments) == 0
}
