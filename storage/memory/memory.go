// Package memory provides in-process implementations of the persistence
// ports. They back tests, the demo mode and any deployment that does not
// need durability.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/duetmatch/core"
)

// Compile-time checks against the persistence ports.
var (
	_ core.Store        = (*Store)(nil)
	_ core.ProfileStore = (*ProfileStore)(nil)
)

// Store keeps sessions, messages and results in maps. Safe for concurrent
// use. Writes copy their inputs so callers can keep mutating their own
// session structs without leaking into the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]core.Session
	results  map[string]core.CompatibilityResult
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]core.Session),
		results:  make(map[string]core.CompatibilityResult),
	}
}

// CreateSession implements core.Store.
func (s *Store) CreateSession(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = copySession(session)
	return nil
}

// AppendMessage implements core.Store.
func (s *Store) AppendMessage(_ context.Context, sessionID string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = core.Session{ID: sessionID}
	}
	session.Messages = append(session.Messages, msg)
	s.sessions[sessionID] = session
	return nil
}

// UpdateState implements core.Store.
func (s *Store) UpdateState(_ context.Context, sessionID string, state core.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = core.Session{ID: sessionID}
	}
	session.State = state
	s.sessions[sessionID] = session
	return nil
}

// UpdateEnd implements core.Store.
func (s *Store) UpdateEnd(_ context.Context, sessionID string, endedAt time.Time, elapsedSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = core.Session{ID: sessionID}
	}
	session.EndedAt = endedAt.UTC()
	session.ElapsedSeconds = elapsedSeconds
	s.sessions[sessionID] = session
	return nil
}

// CreateResult implements core.Store.
func (s *Store) CreateResult(_ context.Context, result core.CompatibilityResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.SessionID] = result
	return nil
}

// GetSession returns a copy of the stored session.
func (s *Store) GetSession(sessionID string) (core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return core.Session{}, false
	}
	return copySession(&session), true
}

// GetResult returns the stored final result.
func (s *Store) GetResult(sessionID string) (core.CompatibilityResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[sessionID]
	return result, ok
}

func copySession(session *core.Session) core.Session {
	out := *session
	out.Messages = make([]core.Message, len(session.Messages))
	copy(out.Messages, session.Messages)
	return out
}

// ProfileStore resolves participant profiles from an in-memory map.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]core.ProfileVector
}

// NewProfileStore creates a ProfileStore holding the given profiles.
func NewProfileStore(profiles ...core.ProfileVector) *ProfileStore {
	s := &ProfileStore{profiles: make(map[string]core.ProfileVector)}
	for _, p := range profiles {
		s.profiles[p.UserID] = p
	}
	return s
}

// Put stores or replaces a profile.
func (s *ProfileStore) Put(profile core.ProfileVector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
}

// GetProfile implements core.ProfileStore.
func (s *ProfileStore) GetProfile(_ context.Context, userID string) (core.ProfileVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return core.ProfileVector{}, core.ErrProfileNotFound
	}
	return profile, nil
}
