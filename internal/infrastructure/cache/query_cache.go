// Package cache provides the in-process query cache shared by the session
// manager and the profile loader.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultSize = 256
	defaultTTL  = 5 * time.Minute
)

// QueryCache is a size- and age-bounded cache of derived query results.
type QueryCache struct {
	lru *expirable.LRU[string, any]
}

// NewQueryCache builds a cache holding at most size entries for at most ttl.
// Non-positive arguments select the defaults.
func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &QueryCache{lru: expirable.NewLRU[string, any](size, nil, ttl)}
}

func (c *QueryCache) Get(key string) (any, bool) {
	return c.lru.Get(key)
}

func (c *QueryCache) Set(key string, value any) {
	c.lru.Add(key, value)
}

func (c *QueryCache) Invalidate(key string) {
	c.lru.Remove(key)
}

// Reset drops every entry.
func (c *QueryCache) Reset() {
	c.lru.Purge()
}

// Len reports the number of live entries.
func (c *QueryCache) Len() int {
	return c.lru.Len()
}
