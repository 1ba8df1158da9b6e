// internal/storage/file_cache.go
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// CachedStore wraps a BlobStore with an in-memory read cache. Reads are
// served from memory until the entry expires; writes through the wrapper
// refresh it. Listings are never cached.
type CachedStore struct {
	inner      BlobStore
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	maxSize    int
	expiration time.Duration
}

// CacheEntry is one cached blob.
type CacheEntry struct {
	Data      []byte
	CreatedAt time.Time
	LastRead  time.Time
}

// NewCachedStore wraps inner. Non-positive limits fall back to defaults.
func NewCachedStore(inner BlobStore, maxSize int, expiration time.Duration) *CachedStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if expiration <= 0 {
		expiration = 5 * time.Minute
	}
	return &CachedStore{
		inner:      inner,
		cache:      make(map[string]*CacheEntry),
		maxSize:    maxSize,
		expiration: expiration,
	}
}

// Get returns the cached copy when fresh, otherwise reads through.
func (s *CachedStore) Get(ctx context.Context, p string) ([]byte, error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	s.mutex.Lock()
	if entry, ok := s.cache[key]; ok {
		if time.Since(entry.CreatedAt) <= s.expiration {
			entry.LastRead = time.Now()
			data := entry.Data
			s.mutex.Unlock()
			return data, nil
		}
		delete(s.cache, key)
	}
	s.mutex.Unlock()

	data, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.store(key, data)
	return data, nil
}

// Put writes through and caches the new content.
func (s *CachedStore) Put(ctx context.Context, p string, data []byte, message string) (string, error) {
	key, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	version, err := s.inner.Put(ctx, key, data, message)
	if err != nil {
		s.Invalidate(key)
		return "", err
	}
	s.store(key, data)
	return version, nil
}

// List reads through.
func (s *CachedStore) List(ctx context.Context, p string) ([]Entry, error) {
	return s.inner.List(ctx, p)
}

// Invalidate drops p and everything below it.
func (s *CachedStore) Invalidate(p string) {
	key, err := CleanPath(p)
	if err != nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for k := range s.cache {
		if k == key || strings.HasPrefix(k, key+"/") {
			delete(s.cache, k)
		}
	}
}

// Len reports the number of cached entries.
func (s *CachedStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.cache)
}

func (s *CachedStore) store(key string, data []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	s.cache[key] = &CacheEntry{Data: data, CreatedAt: now, LastRead: now}
	if len(s.cache) > s.maxSize {
		s.cleanupLRU(max(1, s.maxSize/5))
	}
}

// cleanupLRU evicts the count least recently read entries. Caller holds the lock.
func (s *CachedStore) cleanupLRU(count int) {
	type keyAge struct {
		key  string
		time time.Time
	}

	entries := make([]keyAge, 0, len(s.cache))
	for k, v := range s.cache {
		entries = append(entries, keyAge{k, v.LastRead})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	for i := 0; i < min(count, len(entries)); i++ {
		delete(s.cache, entries[i].key)
	}
}
