package quillsign

import (
	"net/http"
	"reflect"
	"testing"
	"time"
)

func TestCacheKeyStable(t *testing.T) {
	a := cacheKey(http.MethodGet, "/envelopes", "page=2")
	b := cacheKey(http.MethodGet, "/envelopes", "page=2")
	if a != b {
		t.Errorf("same inputs produced different keys: %q vs %q", a, b)
	}
}

func TestCacheKeyDistinguishesComponents(t *testing.T) {
	base := cacheKey(http.MethodGet, "/envelopes", "")
	tests := []struct {
		name   string
		method string
		path   string
		query  string
	}{
		{"method", http.MethodDelete, "/envelopes", ""},
		{"path", http.MethodGet, "/templates", ""},
		{"query", http.MethodGet, "/envelopes", "page=2"},
	}

	for _, tt := range tests {
		if got := cacheKey(tt.method, tt.path, tt.query); got == base {
			t.Errorf("%s variation collided with base key", tt.name)
		}
	}
}

func TestCacheStorePutLookup(t *testing.T) {
	store := NewCacheStore()
	key := cacheKey(http.MethodGet, "/envelopes", "")

	if _, ok := store.Lookup(key); ok {
		t.Fatal("lookup on empty store should miss")
	}

	entry := &CacheEntry{
		Key:  key,
		Path: "/envelopes",
		ETag: `"v1"`,
		Body: []byte(`{"envelopes":[]}`),
	}
	store.Put(entry)

	got, ok := store.Lookup(key)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", got.ETag, `"v1"`)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestCacheStoreTouch(t *testing.T) {
	store := NewCacheStore()
	key := cacheKey(http.MethodGet, "/envelopes", "")
	fetched := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Put(&CacheEntry{Key: key, Path: "/envelopes", ETag: `"v1"`, Body: []byte("x"), FetchedAt: fetched})

	later := fetched.Add(time.Hour)
	store.Touch(key, later)

	got, _ := store.Lookup(key)
	if !got.FetchedAt.Equal(later) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, later)
	}
	if got.ETag != `"v1"` || string(got.Body) != "x" {
		t.Error("Touch must not alter validator or body")
	}

	// Touching a missing key is a no-op.
	store.Touch("missing", later)
}

func TestCacheStoreInvalidatePrefix(t *testing.T) {
	store := NewCacheStore()
	paths := []string{
		"/envelopes",
		"/envelopes/42",
		"/envelopes/42/documents",
		"/envelopes/7",
		"/templates",
	}
	for _, p := range paths {
		store.Put(&CacheEntry{Key: cacheKey(http.MethodGet, p, ""), Path: p})
	}

	store.InvalidatePrefix("/envelopes/42")

	for _, p := range []string{"/envelopes/42", "/envelopes/42/documents"} {
		if _, ok := store.Lookup(cacheKey(http.MethodGet, p, "")); ok {
			t.Errorf("entry %q should have been invalidated", p)
		}
	}
	for _, p := range []string{"/envelopes", "/envelopes/7", "/templates"} {
		if _, ok := store.Lookup(cacheKey(http.MethodGet, p, "")); !ok {
			t.Errorf("entry %q should have survived", p)
		}
	}

	// Empty prefix never wipes the store.
	store.InvalidatePrefix("")
	if store.Len() != 3 {
		t.Errorf("Len = %d after empty-prefix call, want 3", store.Len())
	}
}

func TestCacheStoreClear(t *testing.T) {
	store := NewCacheStore()
	store.Put(&CacheEntry{Key: "a", Path: "/envelopes"})
	store.Put(&CacheEntry{Key: "b", Path: "/templates"})

	store.Clear()
	if store.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", store.Len())
	}
}

func TestInvalidationPrefixes(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/envelopes/42/documents", []string{"/envelopes/42", "/documents"}},
		{"/envelopes/42/signers", []string{"/envelopes/42", "/signers"}},
		{"/envelopes/42/send", []string{"/envelopes/42", "/send"}},
		{"/envelopes/42", []string{"/envelopes"}},
		{"/envelopes", []string{"/envelopes"}},
		{"/webhooks/7", []string{"/webhooks"}},
		{"/", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := invalidationPrefixes(tt.path)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("invalidationPrefixes(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCacheStoreConcurrentAccess(t *testing.T) {
	store := NewCacheStore()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			store.Put(&CacheEntry{Key: "k", Path: "/envelopes"})
			store.InvalidatePrefix("/envelopes")
		}
	}()

	for i := 0; i < 500; i++ {
		store.Lookup("k")
		store.Len()
	}
	<-done
}
