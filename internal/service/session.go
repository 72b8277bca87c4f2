package service

import (
	"sync"

	"shared-planner/internal/model"
)

// Session holds the signed-in user. It is created on sign-in, passed
// explicitly to the services that act on behalf of the user and cleared on
// sign-out.
type Session struct {
	mu   sync.RWMutex
	user *model.User
}

// NewSession starts a session for user.
func NewSession(user model.User) *Session {
	return &Session{user: &user}
}

// UserID returns the signed-in user's identifier or ErrNoSession.
func (s *Session) UserID() (string, error) {
	if s == nil {
		return "", ErrNoSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return "", ErrNoSession
	}
	return s.user.ID, nil
}

// User returns a copy of the signed-in user.
func (s *Session) User() (model.User, error) {
	if s == nil {
		return model.User{}, ErrNoSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.User{}, ErrNoSession
	}
	return *s.user, nil
}

// SignOut clears the session. Later calls report ErrNoSession.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}
