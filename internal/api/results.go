package api

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/star/passwatch/internal/metrics"
)

// resultCache is a size- and age-bounded cache of computed responses.
// A nil LRU disables caching.
type resultCache[V any] struct {
	lru *expirable.LRU[string, V]
}

func newResultCache[V any](size int, ttl time.Duration) *resultCache[V] {
	if size <= 0 {
		return &resultCache[V]{}
	}
	return &resultCache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (c *resultCache[V]) get(key string) (V, bool) {
	if c.lru == nil {
		var zero V
		return zero, false
	}
	v, ok := c.lru.Get(key)
	metrics.IncResultCache(ok)
	return v, ok
}

func (c *resultCache[V]) add(key string, v V) {
	if c.lru != nil {
		c.lru.Add(key, v)
	}
}
