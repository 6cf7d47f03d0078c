package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     string
	expiresAt time.Time
}

// Memory is a thread-safe LRU cache with TTL.
type Memory struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	lru      *list.List
	now      func() time.Time
}

// NewMemory creates an LRU cache holding at most capacity entries.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
		now:      time.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", false
	}
	ent := elem.Value.(*entry)
	if c.now().After(ent.expiresAt) {
		c.lru.Remove(elem)
		delete(c.items, key)
		return "", false
	}
	c.lru.MoveToFront(elem)
	return ent.value, true
}

func (c *Memory) Set(_ context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiresAt = expiresAt
		return
	}

	c.items[key] = c.lru.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

// Len returns the number of entries, expired ones included.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
