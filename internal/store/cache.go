package store

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// RecordCache keeps the most recently used catalog records by id.
// It is safe for concurrent use.
type RecordCache[V any] struct {
	lru *lru.Cache[string, V]
}

// NewRecordCache creates a cache holding at most size records.
func NewRecordCache[V any](size int) (*RecordCache[V], error) {
	cache, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	return &RecordCache[V]{lru: cache}, nil
}

// Get returns the record stored under id.
func (c *RecordCache[V]) Get(id string) (V, bool) {
	return c.lru.Get(id)
}

// Add stores a record, evicting the least recently used one when full.
func (c *RecordCache[V]) Add(id string, record V) {
	c.lru.Add(id, record)
}

// Len returns the number of records held.
func (c *RecordCache[V]) Len() int {
	return c.lru.Len()
}

// Purge drops every record.
func (c *RecordCache[V]) Purge() {
	c.lru.Purge()
}
