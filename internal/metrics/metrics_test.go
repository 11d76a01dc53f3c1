package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.LedgerOp("add_payment", ResultOK)
	m.LedgerOp("add_payment", ResultOK)
	m.LedgerOp("add_payment", ResultInvalid)
	m.CacheHit("project")
	m.CacheMiss("project")
	m.CacheMiss("project")
	m.Event("published")
	m.ObserveHTTP(http.MethodGet, "/projects/{id}", 200, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.ledgerOps.WithLabelValues("add_payment", ResultOK)); got != 2 {
		t.Errorf("ledger ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses.WithLabelValues("project")); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/projects/{id}", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LedgerOp("x", ResultOK)
	m.CacheHit("x")
	m.CacheMiss("x")
	m.Event("x")
	m.ObserveHTTP("GET", "/", 200, time.Second)
}

func TestHandler(t *testing.T) {
	m := New()
	m.LedgerOp("create_project", ResultOK)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `bil_ledger_operations_total{op="create_project",result="ok"} 1`) {
		t.Errorf("metrics output missing ledger counter:\n%s", body)
	}
}
