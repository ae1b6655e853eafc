// Package store provides in-memory caches for catalog records and not-found ids.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// MissingSet remembers catalog ids the service reported as not found.
// A Bloom filter answers most negative lookups; an exact set bounded by LRU eviction confirms positives.
type MissingSet struct {
	ids                    map[string]struct{}
	bloom                  *bloom.BloomFilter
	lru                    *lru.Cache[string, struct{}]
	mutex                  sync.RWMutex
	maxIDs                 int
	bloomFalsePositiveRate float64
}

// NewMissingSet creates a set holding at most maxIDs ids.
func NewMissingSet(maxIDs int, bloomFalsePositiveRate float64) *MissingSet {
	if maxIDs <= 0 || maxIDs > int(^uint(0)>>1) {
		panic("maxIDs value out of range")
	}

	ms := &MissingSet{
		ids:                    make(map[string]struct{}),
		bloom:                  bloom.NewWithEstimates(uint(maxIDs), bloomFalsePositiveRate),
		maxIDs:                 maxIDs,
		bloomFalsePositiveRate: bloomFalsePositiveRate,
	}

	// The eviction callback runs under ms.mutex, held by the caller of lru.Add.
	lruCache, _ := lru.NewWithEvict[string, struct{}](maxIDs, func(id string, _ struct{}) {
		delete(ms.ids, id)
	})
	ms.lru = lruCache

	return ms
}

// Has checks if an id was recorded as missing.
func (ms *MissingSet) Has(id string) bool {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if !ms.bloom.TestString(id) {
		return false
	}

	_, exists := ms.ids[id]
	return exists
}

// Add records an id as missing.
func (ms *MissingSet) Add(id string) {
	if id == "" {
		return
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, exists := ms.ids[id]; exists {
		ms.lru.Get(id)
		return
	}

	ms.ids[id] = struct{}{}
	ms.bloom.AddString(id)
	ms.lru.Add(id, struct{}{})
}

// Size returns the number of ids currently stored.
func (ms *MissingSet) Size() int {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return len(ms.ids)
}

// Clear removes all ids from the set.
func (ms *MissingSet) Clear() {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.lru.Purge()
	ms.ids = make(map[string]struct{})
	ms.bloom = bloom.NewWithEstimates(uint(ms.maxIDs), ms.bloomFalsePositiveRate)
}
