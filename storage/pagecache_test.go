package storage

import "testing"

func TestPageCacheBasic(t *testing.T) {
	c := newPageCache(3)

	var d1, d2, d3, d4 [PageSize]byte
	d1[0] = 1
	d2[0] = 2
	d3[0] = 3
	d4[0] = 4

	c.put(1, d1)
	c.put(2, d2)
	c.put(3, d3)

	if _, ok := c.get(1); !ok {
		t.Error("page 1 should be cached")
	}
	if _, ok := c.get(2); !ok {
		t.Error("page 2 should be cached")
	}
	if _, ok := c.get(3); !ok {
		t.Error("page 3 should be cached")
	}

	// MRU order after the three gets above is 3,2,1, so 1 is LRU;
	// adding a 4th page evicts it.
	c.put(4, d4)

	if _, ok := c.get(1); ok {
		t.Error("page 1 should have been evicted")
	}
	if _, ok := c.get(4); !ok {
		t.Error("page 4 should be cached")
	}
}

func TestPageCacheUpdate(t *testing.T) {
	c := newPageCache(3)

	var d1, d1new [PageSize]byte
	d1[0] = 1
	d1new[0] = 99

	c.put(1, d1)
	c.put(1, d1new)

	data, ok := c.get(1)
	if !ok {
		t.Fatal("page 1 should be cached")
	}
	if data[0] != 99 {
		t.Errorf("expected updated value 99, got %d", data[0])
	}
}

func TestPageCacheInvalidate(t *testing.T) {
	c := newPageCache(3)

	var d1 [PageSize]byte
	d1[0] = 1
	c.put(1, d1)

	c.invalidate(1)

	if _, ok := c.get(1); ok {
		t.Error("page 1 should have been invalidated")
	}
}

func TestPageCacheClear(t *testing.T) {
	c := newPageCache(3)

	var d [PageSize]byte
	c.put(1, d)
	c.put(2, d)
	c.put(3, d)

	c.clear()

	_, _, size, _ := c.Stats()
	if size != 0 {
		t.Errorf("expected size 0 after clear, got %d", size)
	}
}

func TestPageCacheStats(t *testing.T) {
	c := newPageCache(10)

	var d [PageSize]byte
	c.put(1, d)
	c.put(2, d)

	c.get(1) // hit
	c.get(1) // hit
	c.get(3) // miss

	hits, misses, size, capacity := c.Stats()
	if hits != 2 {
		t.Errorf("expected 2 hits, got %d", hits)
	}
	if misses != 1 {
		t.Errorf("expected 1 miss, got %d", misses)
	}
	if size != 2 {
		t.Errorf("expected size 2, got %d", size)
	}
	if capacity != 10 {
		t.Errorf("expected capacity 10, got %d", capacity)
	}
}

func TestPageCacheEvictionOrder(t *testing.T) {
	c := newPageCache(3)

	var d [PageSize]byte
	c.put(1, d)
	c.put(2, d)
	c.put(3, d)

	// Touch 1 to make it MRU, leaving LRU order 2,3,1.
	c.get(1)

	// Adding 4 should evict 2 (the LRU entry).
	c.put(4, d)

	if _, ok := c.get(2); ok {
		t.Error("page 2 should have been evicted (LRU)")
	}
	if _, ok := c.get(1); !ok {
		t.Error("page 1 should still be cached (was accessed recently)")
	}
	if _, ok := c.get(3); !ok {
		t.Error("page 3 should still be cached")
	}
	if _, ok := c.get(4); !ok {
		t.Error("page 4 should be cached")
	}
}
