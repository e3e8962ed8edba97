package identity

import (
	"fmt"
	"net/http"
	"time"
)

// CookieName is the name of the cookie holding the credential.
const CookieName = "token"

// Deployment environments recognized by PolicyForEnv.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// CookiePolicy holds the environment-dependent cookie attributes.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
}

// PolicyForEnv resolves the cookie attributes for a deployment environment.
// Production cookies must survive cross-site requests from the web client,
// which browsers only allow for Secure cookies.
func PolicyForEnv(env string) (CookiePolicy, error) {
	switch env {
	case EnvProduction:
		return CookiePolicy{Secure: true, SameSite: http.SameSiteNoneMode}, nil
	case EnvDevelopment:
		return CookiePolicy{Secure: false, SameSite: http.SameSiteStrictMode}, nil
	}
	return CookiePolicy{}, fmt.Errorf("unknown environment %q (want %s or %s)", env, EnvProduction, EnvDevelopment)
}

// SetCredential writes the credential cookie.
func (p CookiePolicy) SetCredential(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

// ClearCredential expires the credential cookie. Attributes must match the
// ones used when setting it or browsers keep the original.
func (p CookiePolicy) ClearCredential(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

// CredentialFrom reads the presented credential: the cookie first, then an
// "Authorization: Bearer" header. It returns "" when neither is present.
func CredentialFrom(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
