package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/medtrack/internal/record"
)

// Session is the signed-in state of one client.
//
// Thread-safety: all methods are safe for concurrent use. Login and Signup
// hold the pending slot for their whole duration; a second call made while one
// is pending returns a BUSY error and leaves the state untouched.
type Session struct {
	svc *Service

	mu      sync.Mutex
	user    *record.User
	loading bool
	lastErr string
}

// NewSession creates a signed-out session.
func NewSession(svc *Service) *Session {
	return &Session{svc: svc}
}

// User returns the signed-in user, if any.
func (s *Session) User() (record.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return record.User{}, false
	}
	return *s.user, true
}

// Loading reports whether a Login or Signup is pending.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Error returns the banner message of the last failed call, or "".
func (s *Session) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Login signs in as the user matching email, password and role.
func (s *Session) Login(ctx context.Context, email, password string, role record.Role) error {
	if err := s.begin(); err != nil {
		return err
	}
	user, err := s.svc.Authenticate(ctx, email, password, role)
	s.finish(user, err)
	return err
}

// Signup registers a new user and signs them in.
func (s *Session) Signup(ctx context.Context, data SignupData) error {
	if err := s.begin(); err != nil {
		return err
	}
	user, err := s.svc.Register(ctx, data)
	s.finish(user, err)
	return err
}

// Logout clears the user and banner. It does not cancel a pending call;
// cancel that call's context instead.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.lastErr = ""
}

// Restore marks u as signed in without checking credentials. Used when a
// verified token is presented.
func (s *Session) Restore(u record.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
	s.lastErr = ""
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return record.Busy()
	}
	s.loading = true
	s.lastErr = ""
	return nil
}

func (s *Session) finish(user record.User, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	switch {
	case err == nil:
		s.user = &user
		s.lastErr = ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Abandoned by the caller: nothing to report.
	default:
		s.lastErr = record.Message(err)
	}
}
