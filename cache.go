package vkc

import (
	"fmt"
	"sync"
)

// CacheKey identifies resources which can be reused between dispatches.
type CacheKey struct {
	KernelID string
	Entry    string
	Elements int
}

func (k CacheKey) String() string {
	id := k.KernelID
	if len(id) > 12 {
		id = id[:12]
	}
	return fmt.Sprintf("%s/%s/%d", id, k.Entry, k.Elements)
}

// Resources are the per dispatch objects of the pipeline. Queries is nil when the dispatch is
// not timed.
type Resources struct {
	Pipeline *ComputePipeline
	Buffer   *ElementBuffer
	Set      ResourceSet
	Queries  QueryPool
}

// Destroy releases the resources in reverse creation order.
func (r *Resources) Destroy() {
	if r.Queries != nil {
		r.Queries.Destroy()
		r.Queries = nil
	}
	if r.Set != nil {
		r.Set.Destroy()
		r.Set = nil
	}
	if r.Buffer != nil {
		r.Buffer.Destroy()
		r.Buffer = nil
	}
	if r.Pipeline != nil {
		r.Pipeline.Destroy()
		r.Pipeline = nil
	}
}

// Cache keeps Resources keyed by kernel identity, entry point and element count so repeated
// dispatches skip pipeline and buffer setup.
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]*Resources

	hits, misses int
}

func NewCache() *Cache {
	return &Cache{entries: make(map[CacheKey]*Resources)}
}

// Get returns the resources stored under key.
func (c *Cache) Get(key CacheKey) (*Resources, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return r, ok
}

// Put stores r under key, destroying what was stored there before.
func (c *Cache) Put(key CacheKey, r *Resources) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok && old != r {
		old.Destroy()
	}
	c.entries[key] = r
}

// Forget drops the entry under key without destroying it, for resources the device may still be
// using.
func (c *Cache) Forget(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len is the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the number of hits and misses of Get.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Close destroys every cached entry. The cache can be used again afterwards.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, r := range c.entries {
		r.Destroy()
		delete(c.entries, k)
	}
}
