package cache

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestCacheGetPut(t *testing.T) {
	c := New[string, int](0)
	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache hit")
	}
	c.Put("a", 1)
	c.Put("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v, want 2, true", v, ok)
	}
	if s := c.Stats(); s.Len != 1 || s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, string](2)
	c.Put(1, "one")
	c.Put(2, "two")
	c.Get(1) // 2 is now the oldest
	c.Put(3, "three")

	tests := []struct {
		key  int
		want bool
	}{
		{1, true},
		{2, false},
		{3, true},
	}
	for _, tt := range tests {
		if _, ok := c.Get(tt.key); ok != tt.want {
			t.Errorf("Get(%d) present = %v, want %v", tt.key, ok, tt.want)
		}
	}
	if s := c.Stats(); s.Len != 2 || s.Evictions != 1 || s.Capacity != 2 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](4)
	calls := 0
	create := func() (int, error) { calls++; return 7, nil }
	for range 3 {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 7 {
			t.Fatalf("GetOrCreate = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed create was cached")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New[int, int](0)
	for i := range 5 {
		c.Put(i, i)
	}
	if !c.Delete(2) || c.Delete(2) {
		t.Error("Delete should report presence once")
	}
	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
	c.Put(9, 9)
	if v, ok := c.Get(9); !ok || v != 9 {
		t.Error("cache unusable after Clear")
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[string, int](16)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				k := strconv.Itoa((g + i) % 32)
				_, _ = c.GetOrCreate(k, func() (int, error) { return i, nil })
			}
		}()
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("Len = %d exceeds limit", c.Len())
	}
}

func BenchmarkCacheGet(b *testing.B) {
	c := New[int, int](1024)
	for i := range 1024 {
		c.Put(i, i)
	}
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		c.Get(i & 1023)
		i++
	}
}
