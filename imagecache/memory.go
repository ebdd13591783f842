package imagecache

import (
	"container/list"
	"sync"
)

// memoryCache is the L1 tier: a bounded, strictly-LRU map from Key to
// decoded Image. All operations are O(1) and never perform I/O.
type memoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]*list.Element
	lru      *list.List // Front = most recently used
	onEvict  func(*Image)
}

type memoryEntry struct {
	key Key
	img *Image
}

// newMemoryCache creates an L1 tier with the given capacity. onEvict, if
// non-nil, is called for every entry the cache releases (LRU eviction,
// drop, or generation mismatch) so a render backend can free the
// matching texture.
func newMemoryCache(capacity int, onEvict func(*Image)) *memoryCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &memoryCache{
		capacity: capacity,
		entries:  make(map[Key]*list.Element),
		lru:      list.New(),
		onEvict:  onEvict,
	}
}

// get retrieves a cached image and touches its recency.
func (c *memoryCache) get(key Key) (*Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*memoryEntry).img, true
}

// put inserts an image, evicting the single least-recently-used entry
// first when at capacity. A put for an already-present key is a no-op:
// the first writer wins, so a resource is never owned twice.
func (c *memoryCache) put(key Key, img *Image) bool {
	c.mu.Lock()

	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return false
	}

	var evicted *Image
	if c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			entry := oldest.Value.(*memoryEntry)
			c.lru.Remove(oldest)
			delete(c.entries, entry.key)
			evicted = entry.img
		}
	}

	elem := c.lru.PushFront(&memoryEntry{key: key, img: img})
	c.entries[key] = elem
	c.mu.Unlock()

	// Release outside the lock; the map no longer references the entry,
	// so no concurrent insert for the same key can race with disposal.
	if evicted != nil && c.onEvict != nil {
		c.onEvict(evicted)
	}
	return true
}

// remove drops a single entry, releasing it.
func (c *memoryCache) remove(key Key) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	var img *Image
	if ok {
		img = elem.Value.(*memoryEntry).img
		c.lru.Remove(elem)
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if img != nil && c.onEvict != nil {
		c.onEvict(img)
	}
}

// clear drops every entry, releasing each one.
func (c *memoryCache) clear() {
	c.mu.Lock()
	dropped := make([]*Image, 0, len(c.entries))
	for _, elem := range c.entries {
		dropped = append(dropped, elem.Value.(*memoryEntry).img)
	}
	c.entries = make(map[Key]*list.Element)
	c.lru.Init()
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, img := range dropped {
			c.onEvict(img)
		}
	}
}

// len returns the current entry count.
func (c *memoryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
