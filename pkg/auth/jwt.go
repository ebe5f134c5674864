// Package auth provides HMAC-signed bearer tokens for the HTTP surface.
// Authentication is enabled by configuring a secret; without one the
// middleware passes every request through.
package auth

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const issuer = "connex"

// Claims is the validated identity extracted from a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Validator signs and verifies HS256 tokens with a shared secret.
type Validator struct {
	key []byte
}

// NewValidator creates a validator. An empty secret returns nil, which
// the middleware treats as authentication disabled.
func NewValidator(secret string) *Validator {
	if secret == "" {
		return nil
	}
	return &Validator{key: []byte(secret)}
}

// Issue mints a token for the subject, valid for ttl.
func (v *Validator) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, v.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Validate verifies the signature, issuer and expiry of a token.
func (v *Validator) Validate(raw string) (*Claims, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return &Claims{
		Subject:   token.Subject(),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}, nil
}
