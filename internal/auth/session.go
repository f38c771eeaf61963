// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session token.
const CookieName = "auth_token"

// ErrNoToken is returned when a request carries neither the cookie nor a bearer token.
var ErrNoToken = errors.New("no auth token")

// Sessions signs and verifies EdDSA session tokens.
type Sessions struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration // 0 => tokens never expire
}

// NewSessions generates a fresh ed25519 key pair. Tokens do not survive a restart.
func NewSessions(ttl time.Duration) (*Sessions, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Sessions{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// NewSessionsFromPath reads raw ed25519 keys from disk.
func NewSessionsFromPath(privatePath, publicPath string, ttl time.Duration) (*Sessions, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 key files have unexpected sizes %d/%d", len(privateKeyData), len(publicKeyData))
	}
	return &Sessions{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		ttl:        ttl,
	}, nil
}

// TTL reports how long issued tokens stay valid. Zero means no expiry.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue creates a signed token with "sub" = userID.
func (s *Sessions) Issue(userID uuid.UUID) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  userID.String(),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// Verify checks tokenString and returns the user it was issued to.
func (s *Sessions) Verify(tokenString string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid sub in jwt: %w", err)
	}
	return userID, nil
}

// FromRequest authenticates r by the auth_token cookie, falling back to an
// "Authorization: Bearer" header.
func (s *Sessions) FromRequest(r *http.Request) (uuid.UUID, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return s.Verify(c.Value)
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return s.Verify(strings.TrimPrefix(h, "Bearer "))
	}
	return uuid.Nil, ErrNoToken
}

// Cookie wraps token in the session cookie.
func (s *Sessions) Cookie(token string) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.ttl > 0 {
		c.MaxAge = int(s.ttl.Seconds())
	}
	return c
}
