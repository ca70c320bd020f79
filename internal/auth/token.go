// Package auth issues and validates the bearer tokens used by students and
// admins, and hashes admin passwords.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/face-attendance/internal/clock"
)

// Role is the kind of account a token was issued to.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Claims are the JWT claims carried by every token.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens.
type Issuer struct {
	secret   []byte
	audience string
	ttl      time.Duration
	clock    clock.Clock
}

// NewIssuer builds an Issuer. A zero ttl falls back to DefaultTTL.
func NewIssuer(secret, audience string, ttl time.Duration, clk clock.Clock) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Issuer{secret: []byte(secret), audience: strings.TrimSpace(audience), ttl: ttl, clock: clk}, nil
}

// Issue returns a signed token for subject and its expiry.
func (i *Issuer) Issue(subject string, role Role) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	if !role.Valid() {
		return "", time.Time{}, errors.New("unknown role")
	}

	now := i.clock.Now()
	expires := now.Add(i.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}
