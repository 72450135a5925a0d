// Package auth validates the bearer tokens a Gateway transport binding
// uses to derive a caller's identity and scopes before handing a request
// to the dispatcher.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthDisabled = errors.New("auth disabled: no signing secret configured")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the caller identity and scope set carried in a token.
type Identity struct {
	UserID string
	Scopes []string
}

// Claims is the JWT claim set: a subject (UserID) plus a space-separated
// scope string, following the registered-claims convention.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies gateway bearer tokens with a shared HMAC
// secret.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService builds a token service. An empty secret disables issuance
// and validation (Issue/Validate both return ErrAuthDisabled), which is
// the intended behavior for local/dev deployments that skip auth.
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// Issue signs a token for userID carrying scopes.
func (s *Service) Issue(userID string, scopes []string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	claims := Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies token, returning the caller Identity.
func (s *Service) Validate(token string) (Identity, error) {
	if s == nil || len(s.secret) == 0 {
		return Identity{}, ErrAuthDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}
	var scopes []string
	if claims.Scope != "" {
		scopes = strings.Fields(claims.Scope)
	}
	return Identity{UserID: claims.Subject, Scopes: scopes}, nil
}
