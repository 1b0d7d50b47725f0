package cache

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ajaxzhan/gstfs/pkg/types"
)

// extResolver treats every ".mp3" path as cacheable, sourced from ".flac".
type extResolver struct{}

func (extResolver) Cacheable(virtualPath string) (string, bool) {
	if filepath.Ext(virtualPath) != ".mp3" {
		return "", false
	}
	return "/src" + strings.TrimSuffix(virtualPath, ".mp3") + ".flac", true
}

func newTestRegistry(max int) *Registry {
	return NewRegistry(extResolver{}, max, 0)
}

// checkConsistent verifies every key in LRU order appears once and
// resolves to the entry registered under it.
func checkConsistent(t *testing.T, r *Registry) {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	keys := r.lru.Keys()
	if len(keys) != r.lru.Len() {
		t.Fatalf("lru lists %d keys, reports %d entries", len(keys), r.lru.Len())
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("entry %s appears twice in lru", k)
		}
		seen[k] = true
		e, ok := r.lru.Peek(k)
		if !ok || e.name != k {
			t.Fatalf("lru key %s does not resolve to its entry", k)
		}
	}
}

func TestRegistry_NotCacheable(t *testing.T) {
	r := newTestRegistry(2)

	e, err := r.LookupOrCreate("/cover.jpg")
	if !errors.Is(err, types.ErrNotCacheable) {
		t.Errorf("expected ErrNotCacheable, got: %v", err)
	}
	if e != nil {
		t.Error("expected nil entry for non-cacheable path")
	}
	if r.Len() != 0 {
		t.Errorf("non-cacheable lookup should not create entries, Len() = %d", r.Len())
	}
}

func TestRegistry_LookupReturnsSameEntry(t *testing.T) {
	r := newTestRegistry(2)

	first, err := r.LookupOrCreate("/a.mp3")
	if err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}
	second, err := r.LookupOrCreate("/a.mp3")
	if err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}

	if first != second {
		t.Error("repeated lookup should return the same entry")
	}
	if first.Source() != "/src/a.flac" {
		t.Errorf("Source() = %s, want /src/a.flac", first.Source())
	}

	stats := r.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestRegistry_PromotesToMostRecentlyUsed(t *testing.T) {
	r := newTestRegistry(10)

	for _, p := range []string{"/a.mp3", "/b.mp3", "/c.mp3", "/a.mp3"} {
		if _, err := r.LookupOrCreate(p); err != nil {
			t.Fatalf("LookupOrCreate(%s) failed: %v", p, err)
		}
		keys := r.Keys()
		if keys[len(keys)-1] != p {
			t.Errorf("after lookup of %s tail is %s", p, keys[len(keys)-1])
		}
	}

	want := []string{"/b.mp3", "/c.mp3", "/a.mp3"}
	if got := r.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	r := newTestRegistry(2)

	for _, p := range []string{"/a.mp3", "/b.mp3", "/c.mp3"} {
		if _, err := r.LookupOrCreate(p); err != nil {
			t.Fatalf("LookupOrCreate(%s) failed: %v", p, err)
		}
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if _, ok := r.Peek("/a.mp3"); ok {
		t.Error("/a.mp3 should have been evicted")
	}
	if got, want := r.Keys(), []string{"/b.mp3", "/c.mp3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if r.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", r.Stats().Evictions)
	}
	checkConsistent(t, r)
}

func TestRegistry_EvictionReleasesBuffer(t *testing.T) {
	r := newTestRegistry(1)

	a, _ := r.LookupOrCreate("/a.mp3")
	a.Lock()
	a.Begin()
	_ = a.Append([]byte("content"))
	a.Complete(nil)
	a.Unlock()

	if _, err := r.LookupOrCreate("/b.mp3"); err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}

	a.Lock()
	defer a.Unlock()
	if a.Status() != types.StatusEmpty || a.Len() != 0 {
		t.Errorf("evicted entry should be released, status=%s len=%d", a.Status(), a.Len())
	}
	if a.Size() != types.SizeUnknown {
		t.Error("evicted entry should report the sentinel size")
	}
}

func TestRegistry_BusyEntryRequeued(t *testing.T) {
	r := newTestRegistry(2)

	a, _ := r.LookupOrCreate("/a.mp3")
	b, _ := r.LookupOrCreate("/b.mp3")

	a.Lock() // a is being read
	_, err := r.LookupOrCreate("/c.mp3")
	a.Unlock()
	if err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}

	if _, ok := r.Peek("/a.mp3"); !ok {
		t.Error("busy /a.mp3 must not be evicted")
	}
	if _, ok := r.Peek("/b.mp3"); ok {
		t.Error("/b.mp3 should have been evicted in place of the busy entry")
	}
	if got, want := r.Keys(), []string{"/c.mp3", "/a.mp3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	stats := r.Stats()
	if stats.Requeues != 1 || stats.Evictions != 1 {
		t.Errorf("requeues=%d evictions=%d, want 1/1", stats.Requeues, stats.Evictions)
	}
	_ = b
	checkConsistent(t, r)
}

func TestRegistry_AllBusyStaysOverCapacity(t *testing.T) {
	r := newTestRegistry(1)

	a, _ := r.LookupOrCreate("/a.mp3")
	a.Lock()

	b, err := r.LookupOrCreate("/b.mp3")
	if err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}
	if b == nil {
		t.Fatal("expected entry for /b.mp3")
	}

	// The scan is bounded: with /a.mp3 busy and /b.mp3 being returned,
	// nothing can go and the call must still return.
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2 while /a.mp3 is busy", r.Len())
	}
	if _, ok := r.Peek("/b.mp3"); !ok {
		t.Error("the entry being returned must never be evicted")
	}
	if r.Stats().OverCapacity == 0 {
		t.Error("expected an over-capacity observation")
	}
	checkConsistent(t, r)

	a.Unlock()

	// The next lookup drives the count back down.
	if _, err := r.LookupOrCreate("/b.mp3"); err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 once nothing is busy", r.Len())
	}
	if _, ok := r.Peek("/a.mp3"); ok {
		t.Error("/a.mp3 should be evicted once released")
	}
}

func TestRegistry_DefaultMaxEntries(t *testing.T) {
	r := NewRegistry(extResolver{}, 0, 0)
	if r.MaxEntries() != types.DefaultMaxCacheEntries {
		t.Errorf("MaxEntries() = %d, want %d", r.MaxEntries(), types.DefaultMaxCacheEntries)
	}
}

func TestRegistry_RandomSequencesStayConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := newTestRegistry(3)

	for i := 0; i < 500; i++ {
		p := fmt.Sprintf("/track%02d.mp3", rng.Intn(8))
		if _, err := r.LookupOrCreate(p); err != nil {
			t.Fatalf("LookupOrCreate(%s) failed: %v", p, err)
		}
		checkConsistent(t, r)

		keys := r.Keys()
		if keys[len(keys)-1] != p {
			t.Fatalf("after lookup of %s tail is %s", p, keys[len(keys)-1])
		}
		if len(keys) > 3 {
			t.Fatalf("Len() = %d exceeds bound with no busy entries", len(keys))
		}
	}
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	r := newTestRegistry(4)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p := fmt.Sprintf("/t%d.mp3", (g+i)%10)
				e, err := r.LookupOrCreate(p)
				if err != nil {
					t.Errorf("LookupOrCreate(%s) failed: %v", p, err)
					return
				}
				e.Lock()
				if e.Status() == types.StatusEmpty {
					e.Begin()
					_ = e.Append([]byte(p))
					e.Complete(nil)
				}
				e.Unlock()
			}
		}(g)
	}
	wg.Wait()

	checkConsistent(t, r)

	// A final lookup with nothing busy restores the bound.
	if _, err := r.LookupOrCreate("/t0.mp3"); err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}
	if r.Len() > 4 {
		t.Errorf("Len() = %d, want <= 4", r.Len())
	}

	keys := r.Keys()
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			t.Errorf("duplicate key %s", sorted[i])
		}
	}
}
