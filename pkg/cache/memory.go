package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity is the entry limit used when NewMemoryStore gets a
// non-positive capacity.
const DefaultMemoryCapacity = 10000

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store with per-entry TTL and LRU eviction.
// It is meant for single-instance deployments and tests.
type MemoryStore struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
	now       func() time.Time
}

// NewMemoryStore creates an in-process store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		now:       time.Now,
	}
}

// Get returns the value for key, or ErrCacheMiss if missing or expired.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)
	if !m.now().Before(entry.expiresAt) {
		m.removeElement(elem)
		return nil, ErrCacheMiss
	}

	m.evictList.MoveToFront(elem)
	return entry.value, nil
}

// SetWithExpiry stores value under key for ttl, replacing any previous value.
func (m *MemoryStore) SetWithExpiry(_ context.Context, key string, ttl time.Duration, value []byte) error {
	ttl = ttl.Truncate(time.Second)
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	expiresAt := m.now().Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.evictList.MoveToFront(elem)
		elem.Value = &memoryEntry{key: key, value: stored, expiresAt: expiresAt}
	} else {
		if m.evictList.Len() >= m.capacity {
			m.removeOldest()
		}
		m.items[key] = m.evictList.PushFront(&memoryEntry{key: key, value: stored, expiresAt: expiresAt})
	}

	CacheWrittenBytes.WithLabelValues("memory").Add(float64(len(stored)))
	return nil
}

// TTL returns the remaining lifetime of key, or 0 if it is absent or expired.
func (m *MemoryStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return 0
	}
	remaining := elem.Value.(*memoryEntry).expiresAt.Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictList.Len()
}

func (m *MemoryStore) removeOldest() {
	if elem := m.evictList.Back(); elem != nil {
		m.removeElement(elem)
	}
}

func (m *MemoryStore) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	delete(m.items, elem.Value.(*memoryEntry).key)
}
