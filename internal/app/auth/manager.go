// Package auth issues and validates the HMAC-signed bearer tokens agents
// exchange their API keys for.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorised = errors.New("unauthorised")

// Claims is the token payload: the agent id as subject plus the capability
// names snapshotted at mint time.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Manager mints and validates bearer tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
}

// NewManager builds a token manager. The secret must be non-empty; algorithm
// selects the HMAC variant (HS256 by default).
func NewManager(secret, algorithm string, ttl time.Duration) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	var method jwt.SigningMethod
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %s", algorithm)
	}
	return &Manager{secret: []byte(secret), method: method, ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue returns a signed bearer token for the agent carrying the provided
// scope snapshot.
func (m *Manager) Issue(agentID string, scopes []string) (string, time.Time, error) {
	if strings.TrimSpace(agentID) == "" {
		return "", time.Time{}, errors.New("agent id required")
	}
	if scopes == nil {
		scopes = []string{}
	}
	now := time.Now()
	exp := now.Add(m.ttl)
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(m.method, claims)
	signed, err := token.SignedString(m.secret)
	return signed, exp, err
}

// Validate parses and verifies a bearer token. It rejects non-HMAC
// algorithms, bad signatures, and expired tokens.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// HasScope reports whether the claims carry the required capability, either
// literally or via the admin wildcard.
func (c *Claims) HasScope(required, wildcard string) bool {
	for _, s := range c.Scopes {
		if s == wildcard || s == required {
			return true
		}
	}
	return false
}
