// Package identity issues and verifies the service tokens guarding the
// write endpoints of the chronosd API.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ServiceTokenClaims are the JWT claims for a chronos service token.
// Tokens are bound to an agent identity and a set of scopes.
type ServiceTokenClaims struct {
	jwt.RegisteredClaims
	Agent  string   `json:"agent"`
	Scopes []string `json:"scopes"`
}

// TokenIssuer issues and verifies service tokens signed with HS256.
// chronosd and the CLI share the signing secret through configuration.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	secret — the shared HMAC signing secret.
//	issuer — the "iss" claim value; typically the service's base URL.
//	ttl    — token lifetime (default: 1 hour).
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue creates a signed service token for agent with the requested scopes.
func (t *TokenIssuer) Issue(agent string, scopes []string) (string, error) {
	now := time.Now().UTC()
	claims := ServiceTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   agent,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Agent:  agent,
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a service token, returning its claims on success.
func (t *TokenIssuer) Verify(tokenStr string) (*ServiceTokenClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&ServiceTokenClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(*ServiceTokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }
