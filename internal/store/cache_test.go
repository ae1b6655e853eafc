package store

import (
	"testing"
)

func TestRecordCache_Basic(t *testing.T) {
	cache, err := NewRecordCache[string](2)
	if err != nil {
		t.Fatalf("NewRecordCache() error = %v", err)
	}

	if _, ok := cache.Get("missing"); ok {
		t.Error("Empty cache should not return a record")
	}

	cache.Add("a", "album a")
	cache.Add("b", "album b")

	if got, ok := cache.Get("a"); !ok || got != "album a" {
		t.Errorf("Get(a) = %q, %v, want %q, true", got, ok, "album a")
	}

	// "b" is now least recently used and is evicted by "c"
	cache.Add("c", "album c")

	if _, ok := cache.Get("b"); ok {
		t.Error("Least recently used record should have been evicted")
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}

	cache.Purge()
	if cache.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", cache.Len())
	}
	if _, ok := cache.Get("a"); ok {
		t.Error("Purged record should not be returned")
	}
}

func TestRecordCache_InvalidSize(t *testing.T) {
	if _, err := NewRecordCache[int](0); err == nil {
		t.Error("NewRecordCache(0) expected error but got none")
	}
}
