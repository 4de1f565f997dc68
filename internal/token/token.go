// Package token issues and validates signed, time-limited bearer tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of tokens issued without an explicit TTL.
const DefaultTTL = 30 * time.Minute

// Principal types carried in the "type" claim.
const (
	PrincipalAdmin    = "admin"
	PrincipalCustomer = "customer"
)

var (
	// ErrMissingSubject is returned when a valid token has no "sub" claim.
	ErrMissingSubject = errors.New("token has no subject")
	// ErrEmptySecret is returned by NewService for an empty signing secret.
	ErrEmptySecret = errors.New("token signing secret is required")
)

// Claims is the token payload. Type is omitted for admin-issued tokens.
type Claims struct {
	Type string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what a validated token resolves to.
type Identity struct {
	Subject string
	// Type is the raw "type" claim; empty for tokens issued without one.
	Type string
}

// PrincipalType returns the principal type, treating a missing claim as admin.
func (i Identity) PrincipalType() string {
	if i.Type == "" {
		return PrincipalAdmin
	}
	return i.Type
}

// Service signs and verifies HS256 tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service. A non-positive ttl uses DefaultTTL.
func NewService(secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the default token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for identity using the service TTL.
func (s *Service) Issue(identity, principalType string) (string, error) {
	return s.IssueWithTTL(identity, principalType, s.ttl)
}

// IssueWithTTL signs a token for identity that expires after ttl.
func (s *Service) IssueWithTTL(identity, principalType string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", ErrMissingSubject
	}
	claims := &Claims{
		Type: principalType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(s.now().Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature and expiry of tokenString and returns its identity.
func (s *Service) Validate(tokenString string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, err
	}
	if claims.Subject == "" {
		return Identity{}, ErrMissingSubject
	}
	return Identity{Subject: claims.Subject, Type: claims.Type}, nil
}
