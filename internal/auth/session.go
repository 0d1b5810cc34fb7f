package auth

import (
	"context"
	"errors"
	"sync"

	"ms-checkin/internal/models"
)

// Session is a one-shot "authentication has settled" future. Surfaces that
// need the signed-in user block on Wait instead of polling on an interval;
// SignIn resolves every waiter at once.
type Session struct {
	mu    sync.Mutex
	ready chan struct{}
	user  *models.User
}

func NewSession() *Session {
	return &Session{ready: make(chan struct{})}
}

// SignIn resolves the session. Calling it again replaces the user but the
// future stays resolved.
func (s *Session) SignIn(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	select {
	case <-s.ready:
		// already resolved
	default:
		close(s.ready)
	}
}

// SignOut clears the user and re-arms the future for the next sign-in.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	select {
	case <-s.ready:
		s.ready = make(chan struct{})
	default:
	}
}

// Wait blocks until a user has signed in or ctx ends.
func (s *Session) Wait(ctx context.Context) (*models.User, error) {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, errors.New("session resolved without a user")
	}
	return s.user, nil
}

// Current returns the signed-in user without blocking, nil when settled-out.
func (s *Session) Current() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}
