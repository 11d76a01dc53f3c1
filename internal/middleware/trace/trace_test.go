package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"bil/internal/metrics"
)

func TestMiddleware_RequestID(t *testing.T) {
	m := metrics.New()
	var seen string

	router := mux.NewRouter()
	router.Use(NewMiddleware(nil, m, nil).Middleware)
	router.HandleFunc("/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/7", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("request id %q is not a UUID", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("%s header = %q, want %q", RequestIDHeader, got, seen)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}

	count := testutil.CollectAndCount(m.Registry(), "bil_http_requests_total")
	if count != 1 {
		t.Errorf("http request series = %d, want 1", count)
	}
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	incoming := uuid.NewString()
	var seen string
	h := NewMiddleware(nil, nil, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != incoming {
		t.Errorf("request id = %q, want %q", seen, incoming)
	}

	req.Header.Set(RequestIDHeader, "not-a-uuid\nInjected: 1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "not-a-uuid\nInjected: 1" {
		t.Error("invalid incoming request id should be replaced")
	}
}
