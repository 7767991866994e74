package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryCache is the L1 in front of the database: an LRU bounded both by
// item count and by total payload bytes. Returned slices are shared and
// must not be modified.
type memoryCache struct {
	capacity int64

	// serializes writers so size accounting stays consistent
	mu    sync.Mutex
	items *lru.Cache[string, []byte]

	size      atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func newMemoryCache(capacity int64, maxItems int) (*memoryCache, error) {
	if maxItems <= 0 {
		maxItems = 256
	}
	m := &memoryCache{capacity: capacity}
	items, err := lru.NewWithEvict(maxItems, func(_ string, value []byte) {
		m.size.Add(-int64(len(value)))
	})
	if err != nil {
		return nil, err
	}
	m.items = items
	return m, nil
}

func (m *memoryCache) get(key string) ([]byte, bool) {
	v, ok := m.items.Get(key)
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return v, true
}

func (m *memoryCache) put(key string, value []byte) error {
	n := int64(len(value))
	if n > m.capacity {
		return ErrItemTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.items.Remove(key)
	for m.size.Load()+n > m.capacity {
		if _, _, ok := m.items.RemoveOldest(); !ok {
			break
		}
		m.evictions.Add(1)
	}
	if m.items.Add(key, value) {
		m.evictions.Add(1)
	}
	m.size.Add(n)
	return nil
}

func (m *memoryCache) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Remove(key)
}

func (m *memoryCache) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Purge()
}

func (m *memoryCache) stats() MemoryStats {
	s := MemoryStats{
		Capacity:  m.capacity,
		Size:      m.size.Load(),
		ItemCount: int64(m.items.Len()),
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
	}
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
	return s
}
