// Package identity issues and verifies the signed credentials that carry a
// caller's email between requests.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the validity window of an issued credential.
const DefaultTTL = 24 * time.Hour

var (
	// ErrUnauthorized is returned when a credential is missing, malformed,
	// expired, or signed with a different secret.
	ErrUnauthorized = errors.New("unauthorized access")

	// ErrMissingEmail is returned by Issue when the claims carry no email.
	ErrMissingEmail = errors.New("claims must include an email")

	errEmptySecret = errors.New("signing secret is empty")
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Principal is the identity extracted from a verified credential.
type Principal struct {
	Email  string
	Claims map[string]any
}

// Verifier signs and checks HS256 credentials with a shared secret.
type Verifier struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

// NewVerifier creates a Verifier using the real clock.
func NewVerifier(secret string) (*Verifier, error) {
	return NewVerifierWithClock(secret, realClock{})
}

// NewVerifierWithClock creates a Verifier with an injectable clock.
func NewVerifierWithClock(secret string, clock Clock) (*Verifier, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	return &Verifier{secret: []byte(secret), ttl: DefaultTTL, clock: clock}, nil
}

// Issue signs claims into a credential valid for DefaultTTL. Any iat or exp
// in claims is replaced. The returned time is the credential's expiry.
func (v *Verifier) Issue(claims map[string]any) (string, time.Time, error) {
	email, _ := claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return "", time.Time{}, ErrMissingEmail
	}

	now := v.clock.Now()
	expires := now.Add(v.ttl)

	mc := jwt.MapClaims{}
	for k, val := range claims {
		mc[k] = val
	}
	mc["iat"] = now.Unix()
	mc["exp"] = expires.Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing credential: %w", err)
	}
	return signed, time.Unix(expires.Unix(), 0), nil
}

// Verify checks the signature and expiry of token and returns its principal.
// Every failure is reported as ErrUnauthorized, wrapping the parser's reason.
func (v *Verifier) Verify(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthorized
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrUnauthorized
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return Principal{}, fmt.Errorf("%w: credential has no email", ErrUnauthorized)
	}

	return Principal{Email: email, Claims: map[string]any(claims)}, nil
}
