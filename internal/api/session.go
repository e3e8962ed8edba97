package api

import (
	"errors"
	"net/http"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/identity"
)

// handleIssueCredential signs the posted claims and sets the credential cookie.
func handleIssueCredential(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := decodeDocument(w, r)
		if !ok {
			return
		}
		token, expires, err := deps.Verifier.Issue(claims)
		if errors.Is(err, identity.ErrMissingEmail) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err != nil {
			deps.Logger.Error("issuing credential", "error", err)
			httpError(w, http.StatusInternalServerError, "could not issue credential")
			return
		}
		deps.Cookies.SetCredential(w, token, expires)
		writeJSON(w, http.StatusOK, messageResponse{Message: "Login Successfull"})
	}
}

func handleLogOut(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Cookies.ClearCredential(w)
		writeJSON(w, http.StatusOK, messageResponse{Message: "LogOut Successfull"})
	}
}
