package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maauso/mediaconv/internal/dimension"
)

// ErrSessionNotFound is returned when a session cannot be found by ID.
var ErrSessionNotFound = errors.New("session not found")

// Store defines the interface for session lookup.
type Store interface {
	// Create registers a new empty session.
	Create(ctx context.Context, sessionID string) (*Session, error)

	// Get returns the live session. Returns ErrSessionNotFound if unknown.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes a session and returns it for cleanup.
	// Returns ErrSessionNotFound if unknown.
	Delete(ctx context.Context, sessionID string) (*Session, error)
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// Sessions are live objects guarded by their own locks, so Get returns the
// stored pointer rather than a clone.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	preview  dimension.Size
}

// NewMemoryStore creates a new in-memory session store. preview bounds the
// default GIF size of every session it creates.
func NewMemoryStore(preview dimension.Size) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session), preview: preview}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, sessionID string) (*Session, error) {
	s := New(sessionID, m.preview)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = s
	return s, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	return s, nil
}

// Expired removes and returns idle sessions whose last activity is older
// than maxIdle. Sessions with an active run are kept.
func (m *MemoryStore) Expired(maxIdle time.Duration, now time.Time) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*Session
	for sessionID, s := range m.sessions {
		if s.Busy(PipelineVideo) || s.Busy(PipelineImage) {
			continue
		}
		if now.Sub(s.LastActivity()) > maxIdle {
			expired = append(expired, s)
			delete(m.sessions, sessionID)
		}
	}
	return expired
}
