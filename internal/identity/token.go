// Package identity issues anonymous user identities. Signals are posted by
// throwaway users: a client requests an anonymous token once and reuses the
// embedded user id for its signals. This is deliberately not an account
// system.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Config holds token issuing configuration.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
}

// Authenticator issues and validates anonymous identity tokens.
type Authenticator struct {
	config Config
}

// NewAuthenticator creates a token authenticator.
func NewAuthenticator(config Config) (*Authenticator, error) {
	if config.SecretKey == "" {
		return nil, errors.New("identity: secret key is required")
	}
	if config.TokenDuration <= 0 {
		config.TokenDuration = 24 * time.Hour
	}
	return &Authenticator{config: config}, nil
}

// IssueAnonymous mints a fresh anonymous user id and a signed token for it.
func (a *Authenticator) IssueAnonymous() (token, userID string, expiresAt time.Time, err error) {
	userID = "anon_" + uuid.New().String()
	now := time.Now()
	expiresAt = now.Add(a.config.TokenDuration)

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, userID, expiresAt, nil
}

// Validate parses a token and returns the embedded user id.
func (a *Authenticator) Validate(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
