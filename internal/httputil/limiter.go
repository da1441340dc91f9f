package httputil

import "sync"

// Limiter caps concurrent in-flight work per key (usually a client IP)
// and globally.
type Limiter struct {
	mu        sync.Mutex
	active    map[string]int
	total     int
	maxPerKey int
	maxTotal  int
}

// NewLimiter returns a Limiter allowing maxPerKey concurrent holders per key
// and maxTotal overall.
func NewLimiter(maxPerKey, maxTotal int) *Limiter {
	return &Limiter{
		active:    make(map[string]int),
		maxPerKey: maxPerKey,
		maxTotal:  maxTotal,
	}
}

// Acquire registers one holder for key. It returns false if the key or the
// global limit has been reached.
func (l *Limiter) Acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.active[key] >= l.maxPerKey {
		return false
	}
	l.active[key]++
	l.total++
	return true
}

// Release drops one holder for key.
func (l *Limiter) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active[key]--
	l.total--
	if l.active[key] <= 0 {
		delete(l.active, key)
	}
}

// Count returns the number of holders for key.
func (l *Limiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[key]
}
