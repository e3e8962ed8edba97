package api

import (
	"errors"
	"net/http"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/ledger"
)

func handleAddRecommendation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := decodeDocument(w, r)
		if !ok {
			return
		}
		res, err := deps.Ledger.CreateRecommendation(r.Context(), doc)
		switch {
		case errors.Is(err, ledger.ErrSelfRecommendation):
			httpError(w, http.StatusForbidden, "You cannot recommend on your own query.")
			return
		case errors.Is(err, ledger.ErrInvalidRecommendation):
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		case err != nil:
			storeError(w, r, err, "recommendation")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListRecommendations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Ledger.ListAll(r.Context())
		if err != nil {
			storeError(w, r, err, "recommendations")
			return
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

// handleRecommendationsForQuery lists recommendations by the query they
// reference; {id} is a query id.
func handleRecommendationsForQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathParam(w, r, "id")
		if !ok {
			return
		}
		docs, err := deps.Ledger.ListByQuery(r.Context(), id)
		if err != nil {
			storeError(w, r, err, "recommendations")
			return
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

// handleRecommenderData lists what email recommended when the recommender
// parameter is non-empty (any value, "false" included), otherwise what
// others recommended on email's queries.
func handleRecommenderData(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := pathParam(w, r, "email")
		if !ok {
			return
		}
		docs, err := deps.Ledger.ListForPrincipal(r.Context(), email, r.URL.Query().Get("recommender") != "")
		if err != nil {
			storeError(w, r, err, "recommendations")
			return
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handleDeleteRecommendation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathParam(w, r, "id")
		if !ok {
			return
		}
		res, err := deps.Ledger.DeleteRecommendation(r.Context(), id, r.URL.Query().Get("queryId"))
		if errors.Is(err, ledger.ErrInvalidRecommendation) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err != nil {
			storeError(w, r, err, "recommendation")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
