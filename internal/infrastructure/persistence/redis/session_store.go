package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultSessionTTL is how long an idle linking session survives.
const DefaultSessionTTL = 10 * time.Minute

// SessionStore keeps one JSON-encoded session of type T per chat.
// Every Save refreshes the TTL.
type SessionStore[T any] struct {
	cache *Cache
	ttl   time.Duration
}

// NewSessionStore creates a store. Non-positive ttl uses DefaultSessionTTL.
func NewSessionStore[T any](cache *Cache, ttl time.Duration) *SessionStore[T] {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore[T]{cache: cache, ttl: ttl}
}

// Load returns the session of a chat. ok is false when there is none or it
// has expired.
func (s *SessionStore[T]) Load(ctx context.Context, chatID int64) (session T, ok bool, err error) {
	err = s.cache.Get(ctx, SessionKey(chatID), &session)
	if errors.Is(err, ErrCacheMiss) {
		return session, false, nil
	}
	if err != nil {
		return session, false, fmt.Errorf("load session %d: %w", chatID, err)
	}
	return session, true, nil
}

// Save stores the session of a chat.
func (s *SessionStore[T]) Save(ctx context.Context, chatID int64, session T) error {
	if err := s.cache.Set(ctx, SessionKey(chatID), session, s.ttl); err != nil {
		return fmt.Errorf("save session %d: %w", chatID, err)
	}
	return nil
}

// Clear drops the session of a chat.
func (s *SessionStore[T]) Clear(ctx context.Context, chatID int64) error {
	if err := s.cache.Delete(ctx, SessionKey(chatID)); err != nil {
		return fmt.Errorf("clear session %d: %w", chatID, err)
	}
	return nil
}

// TTL returns the session lifetime.
func (s *SessionStore[T]) TTL() time.Duration {
	return s.ttl
}
