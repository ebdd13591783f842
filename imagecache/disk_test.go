package imagecache

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDiskStore(t *testing.T, maxBytes int64, maxEntries, evictBatch int) *diskStore {
	t.Helper()
	s, err := newDiskStore(t.TempDir(), maxBytes, maxEntries, evictBatch, 0, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDiskStoreRoundTrip(t *testing.T) {
	s := newTestDiskStore(t, 1<<20, 100, 8)
	key := Key{ID: "abc", Variant: VariantNormal}
	data := []byte("jpeg bytes")

	if _, ok := s.get(key); ok {
		t.Fatal("hit before put")
	}
	if err := s.put(key, data); err != nil {
		t.Fatal(err)
	}
	got, ok := s.get(key)
	if !ok || !bytes.Equal(got, data) {
		t.Fatalf("get = %q, %v; want stored bytes", got, ok)
	}

	// Variant and face are part of the identity.
	if _, ok := s.get(Key{ID: "abc", Variant: VariantLarge}); ok {
		t.Error("different variant shared a disk entry")
	}
	if _, ok := s.get(Key{ID: "abc", Variant: VariantNormal, Face: FaceBack}); ok {
		t.Error("different face shared a disk entry")
	}
}

func TestDiskStoreGetBumpsAccessTime(t *testing.T) {
	s := newTestDiskStore(t, 1<<20, 100, 8)
	key := Key{ID: "abc"}
	if err := s.put(key, []byte("x")); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(s.path(key), old, old); err != nil {
		t.Fatal(err)
	}

	s.get(key)

	info, err := os.Stat(s.path(key))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().After(old.Add(30 * time.Minute)) {
		t.Errorf("mtime = %v, want refreshed past %v", info.ModTime(), old)
	}
}

func TestDiskStoreDelete(t *testing.T) {
	s := newTestDiskStore(t, 1<<20, 100, 8)
	key := Key{ID: "abc"}
	if err := s.put(key, []byte("x")); err != nil {
		t.Fatal(err)
	}
	s.delete(key)
	if _, ok := s.get(key); ok {
		t.Error("deleted entry still retrievable")
	}
	s.delete(key) // absent entry is a no-op
}

func TestDiskStoreStats(t *testing.T) {
	s := newTestDiskStore(t, 1<<20, 100, 8)
	s.put(Key{ID: "a"}, make([]byte, 10))
	s.put(Key{ID: "b"}, make([]byte, 30))

	bytes, entries := s.stats()
	if entries != 2 {
		t.Errorf("entries = %d, want 2", entries)
	}
	if bytes != 40 {
		t.Errorf("bytes = %d, want 40", bytes)
	}
}

func TestDiskStoreEvictsColdestFirst(t *testing.T) {
	// Entry budget of 4; insert 6 with staggered access times and force an
	// eviction pass. The two coldest must go, the rest must stay.
	s := newTestDiskStore(t, 0, 4, 1)

	now := time.Now()
	for i := 0; i < 6; i++ {
		key := Key{ID: fmt.Sprintf("card-%d", i)}
		if err := s.put(key, []byte("data")); err != nil {
			t.Fatal(err)
		}
		ts := now.Add(time.Duration(i-10) * time.Minute)
		if err := os.Chtimes(s.path(key), ts, ts); err != nil {
			t.Fatal(err)
		}
	}

	s.maybeEvict()

	for i := 0; i < 2; i++ {
		if _, ok := s.get(Key{ID: fmt.Sprintf("card-%d", i)}); ok {
			t.Errorf("coldest entry card-%d survived eviction", i)
		}
	}
	for i := 2; i < 6; i++ {
		if _, ok := s.get(Key{ID: fmt.Sprintf("card-%d", i)}); !ok {
			t.Errorf("warm entry card-%d was evicted", i)
		}
	}
}

func TestDiskStoreEvictsOverByteBudget(t *testing.T) {
	s := newTestDiskStore(t, 100, 0, 2)

	now := time.Now()
	for i := 0; i < 5; i++ {
		key := Key{ID: fmt.Sprintf("card-%d", i)}
		if err := s.put(key, make([]byte, 40)); err != nil {
			t.Fatal(err)
		}
		ts := now.Add(time.Duration(i-10) * time.Minute)
		if err := os.Chtimes(s.path(key), ts, ts); err != nil {
			t.Fatal(err)
		}
	}

	s.maybeEvict()

	bytes, _ := s.stats()
	if bytes > 100 {
		t.Errorf("bytes = %d, want <= budget 100", bytes)
	}
	// The hottest entry always survives.
	if _, ok := s.get(Key{ID: "card-4"}); !ok {
		t.Error("hottest entry was evicted")
	}
}

func TestDiskStoreEvictionThrottled(t *testing.T) {
	s, err := newDiskStore(t.TempDir(), 0, 1, 8, time.Hour, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	// First put runs a pass and arms the throttle; the over-budget state
	// created afterwards must survive until the interval elapses.
	s.put(Key{ID: "a"}, []byte("x"))
	s.put(Key{ID: "b"}, []byte("x"))
	s.put(Key{ID: "c"}, []byte("x"))

	if _, entries := s.stats(); entries != 3 {
		t.Fatalf("entries = %d, want 3 while the throttle holds", entries)
	}

	// Expire the throttle; the next put triggers a real pass.
	s.mu.Lock()
	s.lastCheck = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()
	s.put(Key{ID: "d"}, []byte("x"))

	if _, entries := s.stats(); entries > 1 {
		t.Errorf("entries = %d, want at most the budget of 1", entries)
	}
}
