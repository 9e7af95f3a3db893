package quillsign

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// CacheEntry is a cached GET response with its validator. Entries are only
// created for 200 responses that carried an ETag; the cache never serves a
// body without the server confirming it via 304.
type CacheEntry struct {
	Key         string
	Method      string
	Path        string
	Query       string
	ETag        string
	Body        []byte
	ContentType string
	FetchedAt   time.Time
}

// CacheStore is an in-memory map from request fingerprint to cached entry.
// It cannot fail; a missing entry is simply a cache miss. Safe for
// concurrent use.
type CacheStore struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
}

// NewCacheStore creates an empty cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		entries: make(map[string]*CacheEntry),
	}
}

// cacheKey builds a stable fingerprint of (method, path, query).
func cacheKey(method, path, query string) string {
	h := fnv.New64a()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(query))
	return fmt.Sprintf("%x", h.Sum64())
}

// Lookup returns the entry for key, if present. Pure read, O(1). Callers
// must not mutate the returned entry; use Touch to refresh FetchedAt.
func (s *CacheStore) Lookup(key string) (*CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok
}

// Put stores an entry, overwriting unconditionally.
func (s *CacheStore) Put(entry *CacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key] = entry
}

// Touch refreshes the FetchedAt timestamp of an entry after a 304
// revalidation. The validator and body are left untouched.
func (s *CacheStore) Touch(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		entry.FetchedAt = at
	}
}

// InvalidatePrefix removes every entry whose path starts with pathPrefix.
// Called after any successful mutating request; correctness (never serve
// data known stale) is prioritized over hit rate.
func (s *CacheStore) InvalidatePrefix(pathPrefix string) {
	if pathPrefix == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if strings.HasPrefix(entry.Path, pathPrefix) {
			delete(s.entries, key)
		}
	}
}

// Clear drops all entries. Used on logout or credential swap since cached
// bodies may be authorization-scoped.
func (s *CacheStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*CacheEntry)
}

// Len returns the number of cached entries.
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// invalidationPrefixes derives the cache prefixes a mutating call to path
// makes stale. A mutation under a resource invalidates the owning resource
// and the mutated leaf collection: POST /envelopes/{id}/documents
// invalidates /envelopes/{id} and /documents. Shallow paths invalidate
// their whole collection.
func invalidationPrefixes(path string) []string {
	segs := splitPath(path)
	switch {
	case len(segs) == 0:
		return nil
	case len(segs) <= 2:
		return []string{"/" + segs[0]}
	default:
		return []string{
			"/" + segs[0] + "/" + segs[1],
			"/" + segs[len(segs)-1],
		}
	}
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
