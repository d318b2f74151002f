package state

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrNilSessionState = errors.New("session state is nil")
	ErrInvalidSession  = errors.New("session id is empty")
)

// Store is the persistence contract used by the orchestrator. The
// current deployment is single-process and in-memory; the interface
// keeps the seam for an external store without widening the scope.
type Store interface {
	Load(ctx context.Context, sessionID string) (*AppState, error)
	Save(ctx context.Context, st *AppState) error
	Delete(ctx context.Context, sessionID string) error
}

// InMemoryStore keeps one state record per session id in a process-local
// map. Safe for concurrent access; every Load and Save works on a deep
// clone so callers can never mutate the stored record directly.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*AppState
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*AppState),
		now:      time.Now,
	}
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) (*AppState, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, st *AppState) error {
	if st == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(st.SessionID) == "" {
		return ErrInvalidSession
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[st.SessionID] = st.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
