package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the identity token expiry horizon.
const DefaultTokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken is returned for every verification failure: malformed,
// tampered, expired, or signed with the wrong method. Collapsing the causes
// keeps callers from exposing an oracle.
var ErrInvalidToken = errors.New("invalid token")

// ErrInvalidCredentials is returned for a failed credential match at sign-in.
// Unknown email and wrong password report identically.
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenService issues and verifies signed identity tokens. It is constructed
// once from config and injected; it never reads ambient state.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService constructs a TokenService signing with secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
	}
}

// Issue produces a signed token whose subject is the account id, expiring
// after the service TTL.
func (s *TokenService) Issue(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature and expiry and recovers the embedded account id.
// Any failure yields ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}
