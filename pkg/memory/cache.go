package memory

import (
	"container/list"
	"sync"
)

// L1Cache is an in-process LRU of session records kept in front of a
// persistent backend.
type L1Cache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	eviction *list.List
	hits     int64
	misses   int64
}

type l1Item struct {
	key    string
	memory *ConversationMemory
}

// NewL1Cache creates a new L1 LRU cache with the given max size.
func NewL1Cache(maxSize int) *L1Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &L1Cache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get retrieves a record from the cache, promoting it to the front.
func (c *L1Cache) Get(key string) (*ConversationMemory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		c.hits++
		return elem.Value.(*l1Item).memory, true
	}
	c.misses++
	return nil, false
}

// Put adds or updates a record in the cache.
func (c *L1Cache) Put(key string, m *ConversationMemory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value.(*l1Item).memory = m
		return
	}

	if c.eviction.Len() >= c.maxSize {
		c.evictOldest()
	}

	elem := c.eviction.PushFront(&l1Item{key: key, memory: m})
	c.items[key] = elem
}

// Delete removes a record from the cache.
func (c *L1Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.Remove(elem)
		delete(c.items, key)
	}
}

// Len returns the number of items in the cache.
func (c *L1Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// HitRate returns the cache hit rate (0.0-1.0) and total accesses.
func (c *L1Cache) HitRate() (rate float64, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total = c.hits + c.misses
	if total == 0 {
		return 0, 0
	}
	return float64(c.hits) / float64(total), total
}

func (c *L1Cache) evictOldest() {
	back := c.eviction.Back()
	if back == nil {
		return
	}
	c.eviction.Remove(back)
	delete(c.items, back.Value.(*l1Item).key)
}
