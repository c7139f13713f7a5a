package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := fetchesTotal
	Init()
	if fetchesTotal != first {
		t.Fatal("Init() re-created collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	counter := fetchesTotal.WithLabelValues(OutcomeTombstone)
	before := testutil.ToFloat64(counter)
	ObserveFetch(OutcomeTombstone, 15*time.Millisecond)
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Fatalf("expected tombstone fetches to grow by 1, got %f -> %f", before, got)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != before+1 {
		t.Fatalf("expected gauge %f, got %f", before+1, got)
	}
	DecActiveWorkers()
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")); got != before+1 {
		t.Fatalf("expected request counter to grow, got %f -> %f", before, got)
	}
	if n := testutil.CollectAndCount(httpRequestDurationSeconds, "http_request_duration_seconds"); n == 0 {
		t.Fatal("expected a duration series")
	}
}
