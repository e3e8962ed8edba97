package api

import (
	"log/slog"
	"net/http"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/identity"
)

// RequireCredential verifies the presented credential and stores the
// principal in the request context. Requests without a valid credential are
// rejected with 401 and never reach next.
func RequireCredential(v *identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := identity.CredentialFrom(r)
			if token == "" {
				httpError(w, http.StatusUnauthorized, "Unauthorized Access")
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				slog.Debug("credential rejected", "path", r.URL.Path, "error", err)
				httpError(w, http.StatusUnauthorized, "Unauthorized Access")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireOwner allows the request only when the decoded URL parameter named
// param equals the authenticated principal's email. It must run after
// RequireCredential.
func RequireOwner(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.PrincipalFrom(r.Context())
			if !ok {
				httpError(w, http.StatusUnauthorized, "Unauthorized Access")
				return
			}
			owner, ok := pathParam(w, r, param)
			if !ok {
				return
			}
			if owner != p.Email {
				httpError(w, http.StatusForbidden, "Forbidden Access")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
