// Package denylist stores revoked token ids until their expiry.
package denylist

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory is a process-local denylist. Entries vanish on restart.
type Memory struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewMemory returns a Memory denylist that sweeps expired entries every
// cleanup interval.
func NewMemory(cleanup time.Duration) *Memory {
	if cleanup <= 0 {
		cleanup = 15 * time.Minute
	}
	return &Memory{
		cache: cache.New(cache.NoExpiration, cleanup),
		now:   time.Now,
	}
}

// Add records jti until the given time. Past times are ignored.
func (m *Memory) Add(_ context.Context, jti string, until time.Time) error {
	ttl := until.Sub(m.now())
	if jti == "" || ttl <= 0 {
		return nil
	}
	m.cache.Set(jti, struct{}{}, ttl)
	return nil
}

// Contains reports whether jti was revoked and has not expired yet.
func (m *Memory) Contains(_ context.Context, jti string) (bool, error) {
	_, found := m.cache.Get(jti)
	return found, nil
}
