package cache

import (
	"testing"
	"time"
)

type fakeStoreEntry struct {
	value     []byte
	expiresAt time.Time
	hitCount  int64
}

type fakeStore struct {
	data map[string]*fakeStoreEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]*fakeStoreEntry)}
}

func (f *fakeStore) key(layer, subkey string) string { return layer + ":" + subkey }

func (f *fakeStore) GetCache(layer, subkey string) ([]byte, time.Time, int64, error) {
	e, ok := f.data[f.key(layer, subkey)]
	if !ok {
		return nil, time.Time{}, 0, errNotFound
	}
	return e.value, e.expiresAt, e.hitCount, nil
}

func (f *fakeStore) SetCache(layer, subkey string, value []byte, expiresAt time.Time) error {
	f.data[f.key(layer, subkey)] = &fakeStoreEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) DeleteCache(layer, subkey string) error {
	delete(f.data, f.key(layer, subkey))
	return nil
}

func (f *fakeStore) IncrementHitCount(layer, subkey string) error {
	if e, ok := f.data[f.key(layer, subkey)]; ok {
		e.hitCount++
	}
	return nil
}

func (f *fakeStore) DeleteExpiredCache() (int64, error) {
	var n int64
	now := time.Now()
	for k, e := range f.data {
		if now.After(e.expiresAt) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var errNotFound = notFoundError{}

func TestCache_SetGet_MemoryTier(t *testing.T) {
	c, err := New(nil, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Set("ocr", "fp1", []byte("hello"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok := c.Get("ocr", "fp1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(v) != "hello" {
		t.Errorf("got %q, want %q", v, "hello")
	}
}

func TestCache_Miss(t *testing.T) {
	c, _ := New(nil, 16)
	_, ok := c.Get("ocr", "missing")
	if ok {
		t.Fatal("expected miss")
	}
}

func TestCache_Expiry(t *testing.T) {
	c, _ := New(nil, 16)
	if err := c.Set("fuzzy", "k", []byte("v"), -time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, ok := c.Get("fuzzy", "k")
	if ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestCache_Namespacing(t *testing.T) {
	c, _ := New(nil, 16)
	c.Set("ocr", "k", []byte("a"), time.Minute)
	c.Set("fuzzy", "k", []byte("b"), time.Minute)

	va, _ := c.Get("ocr", "k")
	vb, _ := c.Get("fuzzy", "k")
	if string(va) != "a" || string(vb) != "b" {
		t.Errorf("layer isolation broken: ocr=%q fuzzy=%q", va, vb)
	}
}

func TestCache_FallsThroughToStore(t *testing.T) {
	fs := newFakeStore()
	c, err := New(fs, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Set("scryfall", "card1", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok := fs.data["scryfall:card1"]; !ok {
		t.Fatal("expected value persisted to store")
	}

	// Force eviction from memory, then confirm the store tier still serves it.
	c.memory.Remove(lruKey{"scryfall", "card1"})
	v, ok := c.Get("scryfall", "card1")
	if !ok {
		t.Fatal("expected store-tier hit after memory eviction")
	}
	if string(v) != "payload" {
		t.Errorf("got %q, want %q", v, "payload")
	}
}

func TestCache_Delete(t *testing.T) {
	c, _ := New(nil, 16)
	c.Set("idem", "lock:abc", []byte("1"), time.Minute)
	if err := c.Delete("idem", "lock:abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get("idem", "lock:abc"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestCache_Stats(t *testing.T) {
	c, _ := New(nil, 16)
	c.Set("job", "k", []byte("v"), time.Minute)
	c.Get("job", "k")
	c.Get("job", "missing")

	hits, misses := c.Stats("job")
	if hits != 1 || misses != 1 {
		t.Errorf("Stats: got hits=%d misses=%d, want 1,1", hits, misses)
	}
}
