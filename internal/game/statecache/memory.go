package statecache

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMaxEntries bounds the in-process cache when no limit is given.
const DefaultMaxEntries = 1024

// MemoryCache is an in-process LRU cache. It is the default when no shared
// cache is configured and the zero-dependency choice for tests.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List
	entries    map[string]*list.Element
}

type memoryEntry struct {
	gameID string
	entry  Entry
}

// NewMemoryCache builds an LRU cache holding at most maxEntries games.
// maxEntries <= 0 selects DefaultMaxEntries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Get returns the cached entry and marks the game recently used.
func (c *MemoryCache) Get(ctx context.Context, gameID string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[gameID]
	if !ok {
		return Entry{}, ErrMiss
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*memoryEntry).entry, nil
}

// Put stores the entry, evicting the least recently used game when full.
func (c *MemoryCache) Put(ctx context.Context, gameID string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[gameID]; ok {
		elem.Value.(*memoryEntry).entry = entry
		c.order.MoveToFront(elem)
		return nil
	}

	c.entries[gameID] = c.order.PushFront(&memoryEntry{gameID: gameID, entry: entry})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry).gameID)
	}
	return nil
}

// Invalidate drops the entry for the game.
func (c *MemoryCache) Invalidate(ctx context.Context, gameID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[gameID]; ok {
		c.order.Remove(elem)
		delete(c.entries, gameID)
	}
	return nil
}

// Close implements Cache. The in-process cache holds no external resources.
func (c *MemoryCache) Close() error {
	return nil
}
