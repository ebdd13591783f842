package imagecache

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// diskStore is the L2 tier: content-addressed image bytes on the local
// filesystem. Files are named by Key.Digest, so the store never needs an
// index; the directory is the index.
//
// Last access is tracked through file modification times (bumped on every
// read), which makes eviction a plain oldest-first scan.
type diskStore struct {
	dir           string
	maxBytes      int64
	maxEntries    int
	evictBatch    int
	checkInterval time.Duration
	log           *slog.Logger

	mu        sync.Mutex
	lastCheck time.Time
}

func newDiskStore(dir string, maxBytes int64, maxEntries, evictBatch int, checkInterval time.Duration, log *slog.Logger) (*diskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if evictBatch <= 0 {
		evictBatch = 64
	}
	return &diskStore{
		dir:           dir,
		maxBytes:      maxBytes,
		maxEntries:    maxEntries,
		evictBatch:    evictBatch,
		checkInterval: checkInterval,
		log:           log,
	}, nil
}

func (s *diskStore) path(key Key) string {
	return filepath.Join(s.dir, key.Digest()+".img")
}

// get reads the stored bytes for key and refreshes its access time.
func (s *diskStore) get(key Key) ([]byte, bool) {
	p := s.path(key)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now) // access tracking only; failure is harmless
	return data, true
}

// put stores bytes for key atomically (temp file + rename) and then runs
// the throttled eviction check. Writing a key that already exists simply
// replaces identical content.
func (s *diskStore) put(key Key, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "put-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return err
	}

	s.maybeEvict()
	return nil
}

// delete removes the entry for key, if present.
func (s *diskStore) delete(key Key) {
	_ = os.Remove(s.path(key))
}

// stats returns the current byte and entry totals.
func (s *diskStore) stats() (bytes int64, entries int) {
	infos := s.scan()
	for _, info := range infos {
		bytes += info.size
	}
	return bytes, len(infos)
}

type diskEntry struct {
	name    string
	size    int64
	touched time.Time
}

func (s *diskStore) scan() []diskEntry {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	out := make([]diskEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".img" {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, diskEntry{name: de.Name(), size: info.Size(), touched: info.ModTime()})
	}
	return out
}

// maybeEvict deletes the coldest entries in fixed-size batches until the
// store is back under its byte and entry budgets. The scan is throttled
// to at most once per checkInterval so writes stay cheap.
func (s *diskStore) maybeEvict() {
	s.mu.Lock()
	if time.Since(s.lastCheck) < s.checkInterval {
		s.mu.Unlock()
		return
	}
	s.lastCheck = time.Now()
	s.mu.Unlock()

	entries := s.scan()
	var total int64
	for _, e := range entries {
		total += e.size
	}

	overBudget := func() bool {
		if s.maxBytes > 0 && total > s.maxBytes {
			return true
		}
		if s.maxEntries > 0 && len(entries) > s.maxEntries {
			return true
		}
		return false
	}
	if !overBudget() {
		return
	}

	// Coldest first.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].touched.Before(entries[j].touched)
	})

	removed := 0
	for overBudget() && len(entries) > 0 {
		batch := s.evictBatch
		if batch > len(entries) {
			batch = len(entries)
		}
		for i := 0; i < batch; i++ {
			e := entries[i]
			if err := os.Remove(filepath.Join(s.dir, e.name)); err == nil {
				total -= e.size
				removed++
			}
		}
		entries = entries[batch:]
	}

	if removed > 0 {
		s.log.Info("disk cache eviction", "removed", removed, "bytes", total, "entries", len(entries))
	}
}
