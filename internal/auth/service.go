package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/medtrack/internal/record"
)

// DefaultDelay is the artificial latency applied to Authenticate and Register.
const DefaultDelay = time.Second

// UserStore is the subset of store.RecordStore that auth needs.
type UserStore interface {
	GetUserByEmailAndRole(ctx context.Context, email string, role record.Role) (record.User, error)
	GetUserByID(ctx context.Context, id string) (record.User, error)
	CreateUser(ctx context.Context, u record.NewUser) (record.User, error)
}

// SignupData is a registration request. Fields are assumed to have passed
// form validation.
type SignupData struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      record.Role
}

// Service verifies and registers users.
type Service struct {
	users  UserStore
	hasher *Hasher
	delay  time.Duration
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDelay overrides DefaultDelay. Zero disables the delay.
func WithDelay(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.delay = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service.
func NewService(users UserStore, hasher *Hasher, opts ...ServiceOption) *Service {
	s := &Service{
		users:  users,
		hasher: hasher,
		delay:  DefaultDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// wait sleeps for the configured delay. A cancelled ctx cuts it short.
func (s *Service) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Authenticate returns the user iff a record matches email and role and the
// password verifies. Every mismatch yields the same INVALID_CREDENTIALS error.
func (s *Service) Authenticate(ctx context.Context, email, password string, role record.Role) (record.User, error) {
	if err := s.wait(ctx); err != nil {
		return record.User{}, err
	}

	email = record.NormalizeEmail(email)
	s.logger.Debug("attempting login", "email", email, "role", role)

	user, err := s.users.GetUserByEmailAndRole(ctx, email, role)
	if record.IsNotFound(err) {
		s.logger.Warn("login rejected: no such user", "email", email, "role", role)
		return record.User{}, record.InvalidCredentials()
	}
	if err != nil {
		s.logger.Error("failed to look up user", "email", email, "error", err)
		return record.User{}, record.StoreFailure(err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.Warn("login rejected: bad password", "user_id", user.ID)
		return record.User{}, record.InvalidCredentials()
	}

	s.logger.Info("user logged in", "user_id", user.ID, "role", role)
	return user, nil
}

// Register creates a user unless the (email, role) pair is already taken.
func (s *Service) Register(ctx context.Context, data SignupData) (record.User, error) {
	if err := s.wait(ctx); err != nil {
		return record.User{}, err
	}
	if !data.Role.Valid() {
		return record.User{}, &record.Error{Code: record.ErrCodeValidation, Message: "Role is required"}
	}

	email := record.NormalizeEmail(data.Email)
	s.logger.Debug("attempting registration", "email", email, "role", data.Role)

	_, err := s.users.GetUserByEmailAndRole(ctx, email, data.Role)
	if err == nil {
		s.logger.Warn("registration rejected: user exists", "email", email, "role", data.Role)
		return record.User{}, record.AlreadyExists("user", email+"/"+string(data.Role))
	}
	if !record.IsNotFound(err) {
		s.logger.Error("failed to check existing user", "email", email, "error", err)
		return record.User{}, record.StoreFailure(err)
	}

	hash, err := s.hasher.Hash(data.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "email", email, "error", err)
		return record.User{}, record.StoreFailure(err)
	}

	user, err := s.users.CreateUser(ctx, record.NewUser{
		Email:        email,
		FirstName:    record.NormalizeText(data.FirstName),
		LastName:     record.NormalizeText(data.LastName),
		Role:         data.Role,
		PasswordHash: hash,
	})
	if record.IsAlreadyExists(err) {
		return record.User{}, err
	}
	if err != nil {
		s.logger.Error("failed to create user", "email", email, "error", err)
		return record.User{}, record.StoreFailure(err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Resume loads the user a verified token refers to. The role in the token must
// still match the stored record.
func (s *Service) Resume(ctx context.Context, claims *Claims) (record.User, error) {
	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if record.IsNotFound(err) {
		return record.User{}, record.Unauthenticated(err)
	}
	if err != nil {
		s.logger.Error("failed to load session user", "user_id", claims.Subject, "error", err)
		return record.User{}, record.StoreFailure(err)
	}
	if user.Role != claims.Role {
		return record.User{}, record.Unauthenticated(nil)
	}
	return user, nil
}
