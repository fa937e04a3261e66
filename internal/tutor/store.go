package tutor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore persists tutoring sessions between requests.
type SessionStore interface {
	CreateSession(sess Session) (string, error)
	GetSession(id string) (*Session, error)
	GetActiveSession(userName string) (*Session, bool)
	SaveSession(sess Session) error
	EndSession(id string) error
	EndIdleSessions(before time.Time) ([]string, error)
}

// MemoryStore is an in-memory implementation of SessionStore.
type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func (s *MemoryStore) CreateSession(sess Session) (string, error) {
	if sess.UserName == "" {
		return "", fmt.Errorf("user_name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess.ID = uuid.NewString()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now
	if sess.State == "" {
		sess.State = StateAwaitingLevel
	}
	s.sessions[sess.ID] = &sess
	return sess.ID, nil
}

func (s *MemoryStore) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) GetActiveSession(userName string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Session
	for _, sess := range s.sessions {
		if sess.UserName != userName || sess.Ended() {
			continue
		}
		if latest == nil || sess.StartedAt.After(latest.StartedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, false
	}
	cp := *latest
	return &cp, true
}

func (s *MemoryStore) SaveSession(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}
	if stored.Ended() {
		return fmt.Errorf("%w: %s", ErrSessionEnded, sess.ID)
	}
	sess.UpdatedAt = time.Now()
	s.sessions[sess.ID] = &sess
	return nil
}

func (s *MemoryStore) EndSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	end(sess, time.Now())
	return nil
}

func (s *MemoryStore) EndIdleSessions(before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	now := time.Now()
	for id, sess := range s.sessions {
		if sess.Ended() || !sess.UpdatedAt.Before(before) {
			continue
		}
		end(sess, now)
		ids = append(ids, id)
	}
	return ids, nil
}

func end(sess *Session, at time.Time) {
	sess.EndedAt = &at
	sess.State = StateEnded
	sess.UpdatedAt = at
}
