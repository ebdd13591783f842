// Package imagecache resolves card image keys to decoded bitmaps through
// three tiers: a bounded in-memory LRU, a content-addressed disk store,
// and the remote image origin. Lookups short-circuit on the first hit;
// lower-tier hits are promoted upward.
//
// The cache is an explicit object with an owned lifecycle: construct one
// with New, inject it where needed, and Close it when done. Nothing in
// this package is process-global.
package imagecache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mtgfetch "github.com/Raygunpewpew1/mtgfetch"
)

// Options configures a Cache. Zero fields fall back to the defaults
// noted on each field.
type Options struct {
	// MemoryCapacity bounds the L1 entry count (default 128).
	MemoryCapacity int
	// OnEvict is invoked for every Image released by L1 so a render
	// backend can free the matching texture. Optional.
	OnEvict func(*Image)

	// Dir is the L2 directory. Required.
	Dir string
	// DiskMaxBytes / DiskMaxEntries bound L2 (defaults 256 MiB / 4096).
	DiskMaxBytes   int64
	DiskMaxEntries int
	// EvictBatch is how many cold entries one eviction pass removes at a
	// time (default 64). EvictCheckInterval throttles eviction scans
	// (default 60s).
	EvictBatch         int
	EvictCheckInterval time.Duration

	// URL maps a key to its origin URL. Required for network fetches.
	URL func(Key) string
	// UserAgent is sent on every origin request (default "mtgfetch/0.1").
	UserAgent string
	// FetchConcurrency bounds simultaneous origin fetches (default 4).
	FetchConcurrency int
	// FetchMinInterval is the minimum gap between request starts
	// (default 100ms).
	FetchMinInterval time.Duration
	// RetryCount / RetryDelay bound transient-failure retries
	// (defaults 2 / 250ms).
	RetryCount int
	RetryDelay time.Duration

	// PollInterval / MaxPolls bound how long a deduplicated caller waits
	// for a peer's in-flight fetch before fetching itself
	// (defaults 50ms / 40).
	PollInterval time.Duration
	MaxPolls     int

	// Logger overrides the module-level logger.
	Logger *slog.Logger
}

func (o *Options) fillDefaults() {
	if o.MemoryCapacity <= 0 {
		o.MemoryCapacity = 128
	}
	if o.DiskMaxBytes <= 0 {
		o.DiskMaxBytes = 256 << 20
	}
	if o.DiskMaxEntries <= 0 {
		o.DiskMaxEntries = 4096
	}
	if o.EvictBatch <= 0 {
		o.EvictBatch = 64
	}
	if o.EvictCheckInterval <= 0 {
		o.EvictCheckInterval = time.Minute
	}
	if o.UserAgent == "" {
		o.UserAgent = "mtgfetch/0.1"
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 4
	}
	if o.FetchMinInterval <= 0 {
		o.FetchMinInterval = 100 * time.Millisecond
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 250 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = 40
	}
	if o.Logger == nil {
		o.Logger = mtgfetch.Logger()
	}
}

// Stats is a snapshot of cache activity counters.
type Stats struct {
	MemoryHits  uint64
	DiskHits    uint64
	NetworkHits uint64
	Misses      uint64
	Cancelled   uint64
	MemoryLen   int
	DiskBytes   int64
	DiskEntries int
}

// Cache is the multi-tier image cache. Safe for concurrent use.
type Cache struct {
	opts Options
	mem  *memoryCache
	disk *diskStore
	net  *fetcher
	log  *slog.Logger

	// pending records keys with an in-flight origin fetch, for dedup.
	// Guarded together with every read-modify-write by mu.
	mu      sync.Mutex
	pending map[Key]struct{}

	// epoch is the coarse cancellation token: CancelAll bumps it and
	// every in-flight fetch compares its captured value before each
	// blocking step and before any write or delivery.
	epoch atomic.Uint64

	// generation tags decoded images with the platform graphics context
	// generation; see Image.Generation.
	generation atomic.Uint64

	memHits   atomic.Uint64
	diskHits  atomic.Uint64
	netHits   atomic.Uint64
	misses    atomic.Uint64
	cancelled atomic.Uint64
}

// New constructs a cache. The disk directory is created if needed.
func New(opts Options) (*Cache, error) {
	opts.fillDefaults()

	disk, err := newDiskStore(opts.Dir, opts.DiskMaxBytes, opts.DiskMaxEntries,
		opts.EvictBatch, opts.EvictCheckInterval, opts.Logger)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		opts:    opts,
		disk:    disk,
		log:     opts.Logger,
		pending: make(map[Key]struct{}),
	}
	c.mem = newMemoryCache(opts.MemoryCapacity, opts.OnEvict)
	c.net = newFetcher(opts.URL, opts.UserAgent, int64(opts.FetchConcurrency),
		opts.FetchMinInterval, opts.RetryCount, opts.RetryDelay, opts.Logger)
	return c, nil
}

// Resolve looks key up through memory, disk and network, promoting hits
// upward. It returns (nil, false) for definitive misses, exhausted
// retries, context cancellation and epoch cancellation alike; callers
// only ever observe "available" or "unavailable".
func (c *Cache) Resolve(ctx context.Context, key Key) (*Image, bool) {
	if img, ok := c.memGet(key); ok {
		c.memHits.Add(1)
		return img, true
	}

	epoch := c.epoch.Load()

	if data, ok := c.disk.get(key); ok {
		c.diskHits.Add(1)
		return c.admit(key, data, epoch)
	}

	if c.opts.URL == nil {
		c.misses.Add(1)
		return nil, false
	}

	if !c.claim(key) {
		// Another caller is fetching this key. Poll the upper tiers for
		// a bounded time; if the peer stalls or dies, fall through and
		// fetch ourselves so a crashed fetch can never wedge a key.
		if img, ok := c.waitForPeer(ctx, key, epoch); ok {
			return img, true
		}
		if ctx.Err() != nil || c.stale(epoch) {
			c.cancelled.Add(1)
			return nil, false
		}
	}
	defer c.release(key)

	data, ok := c.net.fetch(ctx, key, func() bool { return c.stale(epoch) })
	if !ok {
		if c.stale(epoch) {
			c.cancelled.Add(1)
		} else {
			c.misses.Add(1)
		}
		return nil, false
	}
	if c.stale(epoch) {
		// Result arrived after CancelAll: discard silently, touch no tier.
		c.cancelled.Add(1)
		return nil, false
	}

	if err := c.disk.put(key, data); err != nil {
		c.log.Warn("disk cache write failed", "key", key, "err", err)
	}
	c.netHits.Add(1)
	return c.admit(key, data, epoch)
}

// Peek is a non-blocking L1-only lookup for render paths that must not
// stall: a miss means "draw the placeholder for now".
func (c *Cache) Peek(key Key) (*Image, bool) {
	return c.memGet(key)
}

// CancelAll atomically advances the epoch and clears the pending set.
// Every in-flight fetch started under an earlier epoch discards its own
// result; nothing stale is ever written to a tier or delivered.
func (c *Cache) CancelAll() {
	c.mu.Lock()
	c.epoch.Add(1)
	c.pending = make(map[Key]struct{})
	c.mu.Unlock()
}

// BumpGeneration marks all previously decoded images as belonging to a
// stale graphics context generation. L1 hits with an old generation are
// dropped and re-decoded lazily on their next resolve.
func (c *Cache) BumpGeneration() {
	c.generation.Add(1)
}

// DropMemory releases every L1 entry. Disk and pending state are
// untouched; dropped images re-resolve cheaply from L2.
func (c *Cache) DropMemory() {
	c.mem.clear()
}

// Stats returns a snapshot of the activity counters.
func (c *Cache) Stats() Stats {
	diskBytes, diskEntries := c.disk.stats()
	return Stats{
		MemoryHits:  c.memHits.Load(),
		DiskHits:    c.diskHits.Load(),
		NetworkHits: c.netHits.Load(),
		Misses:      c.misses.Load(),
		Cancelled:   c.cancelled.Load(),
		MemoryLen:   c.mem.len(),
		DiskBytes:   diskBytes,
		DiskEntries: diskEntries,
	}
}

// Close releases all memory-tier resources.
func (c *Cache) Close() {
	c.CancelAll()
	c.mem.clear()
}

// memGet is an L1 lookup that also enforces the generation tag: an image
// decoded before the last BumpGeneration is treated as a miss and its
// resource released.
func (c *Cache) memGet(key Key) (*Image, bool) {
	img, ok := c.mem.get(key)
	if !ok {
		return nil, false
	}
	if img.Generation != c.generation.Load() {
		c.mem.remove(key)
		return nil, false
	}
	return img, true
}

// admit decodes fetched or disk bytes and publishes the image to L1,
// unless the epoch advanced while we were working.
func (c *Cache) admit(key Key, data []byte, epoch uint64) (*Image, bool) {
	if c.stale(epoch) {
		c.cancelled.Add(1)
		return nil, false
	}

	pixels, err := decodeImage(data, key.Variant.TargetWidth())
	if err != nil {
		// Corrupt bytes poison the disk tier; drop them so the next
		// resolve refetches from the origin.
		c.log.Warn("image decode failed", "key", key, "err", err)
		c.disk.delete(key)
		c.misses.Add(1)
		return nil, false
	}

	img := &Image{Key: key, Pixels: pixels, Generation: c.generation.Load()}
	if c.stale(epoch) {
		c.cancelled.Add(1)
		return nil, false
	}
	c.mem.put(key, img)
	return img, true
}

// waitForPeer polls the upper tiers while another caller's fetch for key
// is in flight. It gives up after the poll budget, when the pending mark
// disappears without producing a cached value, or on cancellation.
func (c *Cache) waitForPeer(ctx context.Context, key Key, epoch uint64) (*Image, bool) {
	for i := 0; i < c.opts.MaxPolls; i++ {
		select {
		case <-time.After(c.opts.PollInterval):
		case <-ctx.Done():
			return nil, false
		}
		if c.stale(epoch) {
			return nil, false
		}
		if img, ok := c.memGet(key); ok {
			c.memHits.Add(1)
			return img, true
		}
		if data, ok := c.disk.get(key); ok {
			c.diskHits.Add(1)
			return c.admit(key, data, epoch)
		}
		if !c.inFlight(key) {
			// Peer finished without caching anything (failure or
			// cancellation); no point polling further.
			return nil, false
		}
	}
	return nil, false
}

// claim marks key as in-flight. Returns false when a fetch for key is
// already running.
func (c *Cache) claim(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[key]; ok {
		return false
	}
	c.pending[key] = struct{}{}
	return true
}

func (c *Cache) release(key Key) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

func (c *Cache) inFlight(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

func (c *Cache) stale(epoch uint64) bool {
	return c.epoch.Load() != epoch
}
