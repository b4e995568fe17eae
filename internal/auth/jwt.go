// Package auth guards the organiser side of the app.
//
// Participants never log in: their secret code is their only credential and
// is checked by the ledger. Organisers (admins) get a signed session cookie in
// one of two ways:
//
//  1. POST /api/admin/login with the admin password (bcrypt, see password.go)
//  2. GitHub OAuth, if their login is on the admin allowlist (see oauth.go)
//
// Either way the server issues an HS256 JWT whose subject is the admin ID and
// stores it in an HttpOnly cookie. RequireAdmin (middleware.go) validates it
// on every admin route without touching the database.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "secret-santa"

	// DefaultSessionTTL covers an evening of organising without re-login.
	DefaultSessionTTL = 12 * time.Hour

	// PasswordAdminID is the subject of sessions opened with the admin
	// password, as opposed to a GitHub organiser's user ID.
	PasswordAdminID = "admin"
)

// TokenService signs and validates session tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService rejects secrets under 16 characters.
// Generate one with: openssl rand -hex 32
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens from Generate; handlers reuse it for the
// cookie's Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate issues a token for adminID with the configured TTL.
func (s *TokenService) Generate(adminID string) (string, error) {
	return s.GenerateWithDuration(adminID, s.ttl)
}

// GenerateWithDuration issues a token that expires after d. Tests use a
// negative d to mint expired tokens.
func (s *TokenService) GenerateWithDuration(adminID string, d time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, issuer and expiry, and returns the
// admin ID from the subject claim.
//
// Pinning the method to HS256 blocks the "alg: none" and RS/HS confusion
// attacks.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
