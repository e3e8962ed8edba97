package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/identity"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/ledger"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/metrics"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/queries"
)

const maxRequestBodySize = 1 << 20

// AppDeps holds dependencies for the HTTP handler.
type AppDeps struct {
	Queries        *queries.Service
	Ledger         *ledger.Ledger
	Verifier       *identity.Verifier
	Cookies        identity.CookiePolicy
	Metrics        *metrics.Metrics // optional
	AllowedOrigins []string
	Logger         *slog.Logger // optional; defaults to slog.Default()
}

// NewAppHandler builds the QueryNest HTTP surface.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(deps.Metrics.Instrument)
	r.Use(accessLog(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", handleRoot)
	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Post("/jwt", handleIssueCredential(deps))
	r.Get("/logOut", handleLogOut(deps))

	r.Post("/add-query", handleAddQuery(deps))
	r.Get("/queries", handleListQueries(deps))
	r.With(RequireCredential(deps.Verifier), RequireOwner("email")).
		Get("/queries/{email}", handleListOwnQueries(deps))
	r.Get("/query/{id}", handleGetQuery(deps))
	r.Delete("/delete-query/{id}", handleDeleteQuery(deps))
	r.Put("/update-query/{id}", handleUpdateQuery(deps))

	r.Post("/add-recommendation", handleAddRecommendation(deps))
	r.Get("/recommendations", handleListRecommendations(deps))
	r.Get("/recommendation/{id}", handleRecommendationsForQuery(deps))
	r.Get("/recommender-data/{email}", handleRecommenderData(deps))
	r.Delete("/delete-recommendetion/{id}", handleDeleteRecommendation(deps))

	return r
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("This server is for QueryNest"))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
