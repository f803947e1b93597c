package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims identifies the caller. Subject holds the base58 identity; Addr is
// accepted as a fallback for tokens minted by address-based issuers.
type Claims struct {
	Addr string `json:"addr,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the caller identity carried by the token.
func (c Claims) Identity() string {
	if subject := strings.TrimSpace(c.Subject); subject != "" {
		return subject
	}
	return strings.TrimSpace(c.Addr)
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return Verifier{}, errors.New("jwt secret is required")
	}
	return Verifier{secret: []byte(secret)}, nil
}

// Verify parses an "Authorization" header value or a raw token and returns
// the caller identity.
func (v Verifier) Verify(header string) (string, error) {
	raw := strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		raw = strings.TrimSpace(raw[len("bearer "):])
	}
	if raw == "" {
		return "", ErrMissingToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	identity := claims.Identity()
	if identity == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return identity, nil
}

// Issuer mints HS256 bearer tokens for an identity.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) (Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return Issuer{}, errors.New("jwt secret is required")
	}
	return Issuer{secret: []byte(secret), now: time.Now}, nil
}

func (i Issuer) Issue(identity string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := i.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(identity),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(i.secret)
}
