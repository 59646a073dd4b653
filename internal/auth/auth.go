// Package auth handles user accounts, password verification, and JWT
// token issuance. The Principal it produces is the identity every
// downstream service scopes its data access by.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sentinel errors, checked with errors.Is().
var (
	// ErrInvalidCredentials indicates an unknown email or wrong password.
	// Login reports this for both cases so callers cannot probe accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken indicates registration with an email already in use.
	ErrEmailTaken = errors.New("email already in use")

	// ErrInvalidToken indicates a token that failed parsing, signature
	// verification, or expiry checks.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrNoPrincipal indicates a context without an authenticated principal.
	ErrNoPrincipal = errors.New("no authenticated principal in context")
)

// Principal is the authenticated identity attached to a request.
// Services receive it explicitly; it is never derived from model output.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

type principalKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Principal{}, ErrNoPrincipal
	}
	return p, nil
}

// Claims is the JWT payload for issued access tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer with the given signing secret
// and token lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs an access token for the principal.
func (t *TokenIssuer) Issue(p Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning the principal
// it was issued for.
func (t *TokenIssuer) Verify(tokenString string) (Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return t.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad subject: %w", ErrInvalidToken, err)
	}

	return Principal{UserID: userID, Email: claims.Email, Role: claims.Role}, nil
}
