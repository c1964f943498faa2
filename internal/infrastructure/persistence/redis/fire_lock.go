package redis

import (
	"context"
	"fmt"
	"os"
	"time"
)

// FireLock claims a trigger fired key across worker processes with SET NX.
// The first process to claim a key runs the cycle; others see it as taken.
type FireLock struct {
	cache *Cache
	owner string
	now   func() time.Time
}

type fireClaim struct {
	Owner     string    `json:"owner"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// NewFireLock creates a lock. owner identifies this process in the stored
// claim; empty defaults to the hostname and pid.
func NewFireLock(cache *Cache, owner string) *FireLock {
	if owner == "" {
		host, _ := os.Hostname()
		owner = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	return &FireLock{cache: cache, owner: owner, now: time.Now}
}

// Acquire reports whether this process claimed key. The claim expires
// after ttl.
func (l *FireLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	claim := fireClaim{Owner: l.owner, ClaimedAt: l.now().UTC()}
	ok, err := l.cache.SetNX(ctx, FiredKey(key), claim, ttl)
	if err != nil {
		return false, fmt.Errorf("claim fired key %q: %w", key, err)
	}
	return ok, nil
}

// Owner returns the identity written into claims.
func (l *FireLock) Owner() string {
	return l.owner
}
