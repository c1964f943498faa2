// Package handler implements the guardian bot conversation: /start, the
// login flow, today's grades, settings and unlinking.
package handler

import (
	"context"
	"sync"
	"time"

	"github.com/maktab/baho-bot/pkg/clock"
)

// State is a step of the per-chat conversation.
type State string

const (
	StateIdle                 State = "IDLE"
	StateWaitingUsername      State = "WAITING_USERNAME"
	StateWaitingPassword      State = "WAITING_PASSWORD"
	StateWaitingUnlinkConfirm State = "WAITING_UNLINK_CONFIRM"
)

// Session is the conversation state of one chat. The password is never stored.
type Session struct {
	State     State     `json:"state"`
	Username  string    `json:"username,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore keeps sessions per chat id. A missing or expired session
// reads as ok=false.
type SessionStore interface {
	Load(ctx context.Context, chatID int64) (Session, bool, error)
	Save(ctx context.Context, chatID int64, s Session) error
	Clear(ctx context.Context, chatID int64) error
}

// MemorySessionStore is an in-process SessionStore with TTL, used when Redis
// is not configured.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	clock    clock.Clock
	sessions map[int64]memoryEntry
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemorySessionStore creates a store. Non-positive ttl means 10 minutes.
func NewMemorySessionStore(ttl time.Duration, clk clock.Clock) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &MemorySessionStore{ttl: ttl, clock: clk, sessions: make(map[int64]memoryEntry)}
}

// Load returns a live session.
func (m *MemorySessionStore) Load(_ context.Context, chatID int64) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[chatID]
	if !ok {
		return Session{}, false, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.sessions, chatID)
		return Session{}, false, nil
	}
	return e.session, true, nil
}

// Save stores a session and restarts its TTL.
func (m *MemorySessionStore) Save(_ context.Context, chatID int64, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[chatID] = memoryEntry{session: s, expiresAt: m.clock.Now().Add(m.ttl)}
	return nil
}

// Clear drops a session.
func (m *MemorySessionStore) Clear(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, chatID)
	return nil
}
