package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/query/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query/"+id, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/query/{id}", "404"))
	if got != 3 {
		t.Errorf("requests{route=/query/{id},status=404} = %v, want 3", got)
	}
	if n := testutil.ToFloat64(m.httpInFlight); n != 0 {
		t.Errorf("inflight = %v after requests finished, want 0", n)
	}
}

func TestInstrumentUnmatchedRoute(t *testing.T) {
	m := New()
	h := m.Instrument(http.NotFoundHandler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched count = %v, want 1", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()

	m.LedgerWrite("create")
	m.LedgerWrite("create")
	m.CounterUpdateFailed("delete")
	m.RepairJob("completed")

	if got := testutil.ToFloat64(m.ledgerWrites.WithLabelValues("create")); got != 2 {
		t.Errorf("ledger writes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.counterUpdateFailures.WithLabelValues("delete")); got != 1 {
		t.Errorf("counter failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.repairJobs.WithLabelValues("completed")); got != 1 {
		t.Errorf("repair jobs = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LedgerWrite("create")
	m.CounterUpdateFailed("create")
	m.RepairJob("failed")

	called := false
	h := m.Instrument(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("nil Metrics should pass requests through")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.LedgerWrite("create")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "querynest_ledger_writes_total") {
		t.Errorf("exposition missing ledger counter:\n%s", rec.Body.String())
	}
}
