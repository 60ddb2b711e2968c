package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/medtrack/internal/clock"
	"github.com/roach88/medtrack/internal/record"
)

const tokenIssuer = "medtrack"

// Claims identify a signed-in user. Subject is the user id.
type Claims struct {
	Email string      `json:"email"`
	Role  record.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenManager creates a TokenManager. clk may be nil for the system clock.
func NewTokenManager(secret []byte, ttl time.Duration, clk clock.Clock) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenManager{secret: secret, ttl: ttl, clock: clk}, nil
}

// Issue returns a signed token for u.
func (m *TokenManager) Issue(u record.User) (string, error) {
	now := m.clock.Now()
	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify parses token and checks its signature, issuer and expiry.
func (m *TokenManager) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		return nil, record.Unauthenticated(err)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, record.Unauthenticated(errors.New("token missing subject or role"))
	}
	return claims, nil
}
