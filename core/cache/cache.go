// Package cache holds built node lists keyed by the verbatim tree string
// they were parsed from.
//
// The cache is monotonic: entries are added, never evicted or mutated, and
// its lifetime matches the kernel instance that owns it. Because the key is
// the exact input string, key collisions between distinct trees cannot
// occur. The downstream learner calls the kernel repeatedly with overlapping
// inputs across many hyperparameter settings; the cache amortizes node-list
// construction across those calls, while everything hyperparameter-dependent
// (DP tables, diagonal values) is recomputed per call.
package cache

import (
	"sync"

	"github.com/adalundhe/treekernel/core/trees"
)

// BuildFunc constructs the node list for a tree string on a cache miss.
type BuildFunc func(tree string) (trees.NodeList, error)

// Cache maps tree strings to their built NodeLists.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]trees.NodeList
	stats   *Stats
}

// New creates an empty tree cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]trees.NodeList),
		stats:   NewStats(),
	}
}

// Get returns the node list cached for tree, if present.
func (c *Cache) Get(tree string) (trees.NodeList, bool) {
	c.mu.RLock()
	list, ok := c.entries[tree]
	c.mu.RUnlock()

	if ok {
		c.stats.RecordHit()
	} else {
		c.stats.RecordMiss()
	}
	return list, ok
}

// GetOrBuild returns the cached node list for tree, invoking build exactly
// once on first sight of the string. Build failures are returned to the
// caller and nothing is cached, so a malformed tree fails identically on
// every attempt.
func (c *Cache) GetOrBuild(tree string, build BuildFunc) (trees.NodeList, error) {
	if list, ok := c.Get(tree); ok {
		return list, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have built it between the read and write locks.
	if list, ok := c.entries[tree]; ok {
		return list, nil
	}

	list, err := build(tree)
	if err != nil {
		return nil, err
	}
	c.stats.RecordBuild()
	c.entries[tree] = list
	return list, nil
}

// Len returns the number of cached trees.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache statistics.
func (c *Cache) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}
