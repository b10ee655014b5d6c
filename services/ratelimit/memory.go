package ratelimit

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps attempts in process. It is the single-instance default.
type MemoryStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemoryStore creates a store whose idle keys are evicted after ttl
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MemoryStore{cache: gocache.New(ttl, time.Minute)}
}

// Hit implements AttemptStore
func (s *MemoryStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var attempts []time.Time
	if v, ok := s.cache.Get(key); ok {
		attempts, _ = v.([]time.Time)
	}

	live := attempts[:0]
	for _, t := range attempts {
		if inWindow(t, now, window) {
			live = append(live, t)
		}
	}

	if len(live) >= limit {
		s.cache.Set(key, live, window)
		return Decision{
			Allowed:    false,
			Count:      len(live),
			RetryAfter: retryAfter(live[0], now, window),
		}, nil
	}

	live = append(live, now)
	s.cache.Set(key, live, window)
	return Decision{Allowed: true, Count: len(live)}, nil
}

// Reset forgets every attempt for key
func (s *MemoryStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
}
