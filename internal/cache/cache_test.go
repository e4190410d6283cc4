package cache

import (
	"errors"
	"sync"
	"testing"
)

// constHasher puts every key in shard zero so capacity is exact.
func constHasher(int) uint64 { return 0 }

func TestGetOrCreate(t *testing.T) {
	c := New[int, string](4, constHasher, nil)
	calls := 0
	create := func() (string, error) {
		calls++
		return "sampler", nil
	}

	v, hit, err := c.GetOrCreate(1, create)
	if err != nil || hit || v != "sampler" {
		t.Fatalf("first GetOrCreate() = %q, %v, %v", v, hit, err)
	}
	v, hit, err = c.GetOrCreate(1, create)
	if err != nil || !hit || v != "sampler" {
		t.Fatalf("second GetOrCreate() = %q, %v, %v", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit 1 miss", s)
	}
}

func TestGetOrCreateError(t *testing.T) {
	c := New[int, string](4, constHasher, nil)
	errBoom := errors.New("boom")
	_, _, err := c.GetOrCreate(1, func() (string, error) { return "", errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("GetOrCreate() error = %v, want %v", err, errBoom)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after failed create, want 0", c.Len())
	}
}

func TestEvictionOrder(t *testing.T) {
	var evicted []int
	c := New[int, int](2, constHasher, func(k, _ int) { evicted = append(evicted, k) })
	mk := func(v int) func() (int, error) { return func() (int, error) { return v, nil } }

	_, _, _ = c.GetOrCreate(1, mk(1))
	_, _, _ = c.GetOrCreate(2, mk(2))
	// Touch 1 so 2 becomes the oldest.
	if _, ok := c.Get(1); !ok {
		t.Fatal("Get(1) missing")
	}
	_, _, _ = c.GetOrCreate(3, mk(3))

	if len(evicted) != 1 || evicted[0] != 2 {
		t.Fatalf("evicted = %v, want [2]", evicted)
	}
	if _, ok := c.Get(2); ok {
		t.Error("Get(2) present after eviction")
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", s.Evictions)
	}
}

func TestDeleteAndClearCallOnEvict(t *testing.T) {
	released := map[int]bool{}
	c := New[int, int](8, constHasher, func(k, _ int) { released[k] = true })
	for i := range 3 {
		_, _, _ = c.GetOrCreate(i, func() (int, error) { return i, nil })
	}
	if !c.Delete(0) {
		t.Error("Delete(0) = false")
	}
	if c.Delete(0) {
		t.Error("second Delete(0) = true")
	}
	c.Clear()
	for i := range 3 {
		if !released[i] {
			t.Errorf("key %d not released", i)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	c := New[string, int](16, func(s string) uint64 { return HashBytes([]byte(s)) }, nil)
	var mu sync.Mutex
	created := 0

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, _, _ = c.GetOrCreate("linear-clamp", func() (int, error) {
					mu.Lock()
					created++
					mu.Unlock()
					return 1, nil
				})
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
}

func TestHitRate(t *testing.T) {
	if got := (Stats{}).HitRate(); got != 0 {
		t.Errorf("HitRate() = %v, want 0", got)
	}
	if got := (Stats{Hits: 3, Misses: 1}).HitRate(); got != 0.75 {
		t.Errorf("HitRate() = %v, want 0.75", got)
	}
}
