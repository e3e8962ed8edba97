package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/queries"
)

func handleAddQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := decodeDocument(w, r)
		if !ok {
			return
		}
		res, err := deps.Queries.Add(r.Context(), doc)
		if errors.Is(err, queries.ErrInvalidQuery) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err != nil {
			storeError(w, r, err, "query")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleListQueries serves the public catalog. A non-empty home parameter
// limits the result to the home page size.
func handleListQueries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := queries.ListOptions{
			Category: q.Get("category"),
			Home:     q.Get("home") != "",
			Limit:    parseIntParam(r, "limit", 0, 100),
		}
		docs, err := deps.Queries.List(r.Context(), opts)
		if err != nil {
			storeError(w, r, err, "queries")
			return
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handleListOwnQueries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := pathParam(w, r, "email")
		if !ok {
			return
		}
		docs, err := deps.Queries.ListByPoster(r.Context(), email)
		if err != nil {
			storeError(w, r, err, "queries")
			return
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handleGetQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathParam(w, r, "id")
		if !ok {
			return
		}
		doc, err := deps.Queries.Get(r.Context(), id)
		if err != nil {
			storeError(w, r, err, "query")
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

// handleDeleteQuery leaves recommendations that reference the query in place.
func handleDeleteQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathParam(w, r, "id")
		if !ok {
			return
		}
		res, err := deps.Queries.Delete(r.Context(), id)
		if err != nil {
			storeError(w, r, err, "query")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleUpdateQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathParam(w, r, "id")
		if !ok {
			return
		}
		doc, ok := decodeDocument(w, r)
		if !ok {
			return
		}
		res, err := deps.Queries.Update(r.Context(), id, doc)
		if errors.Is(err, queries.ErrInvalidQuery) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err != nil {
			storeError(w, r, err, "query")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// parseIntParam reads a positive integer query parameter, falling back to
// def when absent or invalid and capping at max.
func parseIntParam(r *http.Request, key string, def, max int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
