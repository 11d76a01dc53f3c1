package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bil/internal/attachment"
	"bil/internal/metrics"
	"bil/internal/services"
	"bil/internal/storage/file"
)

var pdfData = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

const milkJSON = `{"name":"Milk","date":"2022-01-01","asset":1500000000,"liability":0,"currency":"USD"}`

type testServer struct {
	*Server
	root string
}

func newTestServer(t *testing.T, maxBytes int64) *testServer {
	t.Helper()
	root := t.TempDir()
	store, err := file.New(root)
	if err != nil {
		t.Fatal(err)
	}
	svc := services.NewLedgerService(store, attachment.NewStore(root, maxBytes), root, services.Options{})
	srv := NewServer(":0", svc, Options{RateLimitPerMinute: 1000, CORSAllowedOrigins: []string{"*"}, Metrics: metrics.New()})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, root: root}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, r)
	return rec
}

func (ts *testServer) upload(t *testing.T, target string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "upload.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, target, &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, r)
	return rec
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, body string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	if body != "" && strings.TrimSpace(rec.Body.String()) != body {
		t.Fatalf("body = %s, want %s", strings.TrimSpace(rec.Body.String()), body)
	}
}

func TestPingAndHealth(t *testing.T) {
	ts := newTestServer(t, 0)

	expect(t, ts.do(t, http.MethodGet, "/ping", ""), http.StatusOK, `"pong"`)
	expect(t, ts.do(t, http.MethodGet, "/healthz", ""), http.StatusOK, "")

	rec := ts.do(t, http.MethodGet, "/readyz", "")
	expect(t, rec, http.StatusOK, "")
	if !strings.Contains(rec.Body.String(), `"storage":"ok"`) {
		t.Errorf("readyz body = %s", rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	expect(t, rec, http.StatusOK, "")
	if !strings.Contains(rec.Body.String(), "bil_http_requests_total") {
		t.Error("metrics should expose the request counter")
	}
}

func TestExampleFlow(t *testing.T) {
	ts := newTestServer(t, 0)

	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"Test"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups", `{"name":"Groceries"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups/1/payments", milkJSON), http.StatusOK, `{"id":1}`)

	expect(t, ts.do(t, http.MethodGet, "/projects/1", ""), http.StatusOK,
		`{"id":1,"name":"Test","paygroups":[{"id":1,"name":"Groceries","payments":[{"id":1,"name":"Milk","date":"2022-01-01","asset":1500000000,"liability":0,"currency":"USD","attachment":""}]}]}`)

	expect(t, ts.do(t, http.MethodPut, "/projects/1", `{"name":"Renamed"}`), http.StatusOK, "null")
	expect(t, ts.do(t, http.MethodGet, "/projects", ""), http.StatusOK, `[{"id":1,"name":"Renamed","is_deleted":false}]`)

	expect(t, ts.do(t, http.MethodPut, "/projects/1/paygroups/1", `{"name":"Food"}`), http.StatusOK, "null")
	expect(t, ts.do(t, http.MethodPut, "/projects/1/paygroups/1/payments/1",
		`{"name":"Bread","date":"2022-02-01","asset":0,"liability":30000000,"currency":"EUR"}`), http.StatusOK, "null")
	expect(t, ts.do(t, http.MethodGet, "/projects/1/paygroups", ""), http.StatusOK,
		`[{"id":1,"name":"Food","payments":[{"id":1,"name":"Bread","date":"2022-02-01","asset":0,"liability":30000000,"currency":"EUR","attachment":""}]}]`)

	expect(t, ts.do(t, http.MethodDelete, "/projects/1/paygroups/1/payments/1", ""), http.StatusOK, "null")
	expect(t, ts.do(t, http.MethodDelete, "/projects/1/paygroups/1", ""), http.StatusOK, "null")
	expect(t, ts.do(t, http.MethodGet, "/projects/1", ""), http.StatusOK, `{"id":1,"name":"Renamed","paygroups":[]}`)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	ts := newTestServer(t, 0)

	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"A"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"B"}`), http.StatusOK, `{"id":2}`)
	expect(t, ts.do(t, http.MethodDelete, "/projects/2", ""), http.StatusOK, "null")

	expect(t, ts.do(t, http.MethodGet, "/projects", ""), http.StatusOK, `[{"id":1,"name":"A","is_deleted":false}]`)
	expect(t, ts.do(t, http.MethodGet, "/projects?include_deleted=true", ""), http.StatusOK,
		`[{"id":1,"name":"A","is_deleted":false},{"id":2,"name":"B","is_deleted":true}]`)
	expect(t, ts.do(t, http.MethodGet, "/projects/2", ""), http.StatusNotFound, "")
	expect(t, ts.do(t, http.MethodDelete, "/projects/2", ""), http.StatusNotFound, "")
	expect(t, ts.do(t, http.MethodPost, "/projects/2/paygroups", `{"name":"G"}`), http.StatusNotFound, "")

	// Deleted projects keep their id.
	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"C"}`), http.StatusOK, `{"id":3}`)

	expect(t, ts.do(t, http.MethodPost, "/projects/2/restore", ""), http.StatusOK, "null")
	expect(t, ts.do(t, http.MethodGet, "/projects/2", ""), http.StatusOK, `{"id":2,"name":"B","paygroups":[]}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/99/restore", ""), http.StatusNotFound, "")

	if _, err := os.Stat(filepath.Join(ts.root, "projects", "2")); err != nil {
		t.Errorf("project directory should survive soft delete: %v", err)
	}
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t, 0)
	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"P"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups", `{"name":"G"}`), http.StatusOK, `{"id":1}`)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"empty project name", http.MethodPost, "/projects", `{"name":""}`, http.StatusUnprocessableEntity},
		{"blank paygroup name", http.MethodPost, "/projects/1/paygroups", `{"name":"   "}`, http.StatusUnprocessableEntity},
		{"malformed json", http.MethodPost, "/projects", `{"name":`, http.StatusUnprocessableEntity},
		{"trailing data", http.MethodPost, "/projects", `{"name":"a"} {}`, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, "/projects/1/paygroups/1/payments",
			`{"name":"x","date":"01/02/2022","asset":1,"liability":0,"currency":"USD"}`, http.StatusUnprocessableEntity},
		{"zero amounts", http.MethodPost, "/projects/1/paygroups/1/payments",
			`{"name":"x","date":"2022-01-02","asset":0,"liability":0,"currency":"USD"}`, http.StatusUnprocessableEntity},
		{"bad currency", http.MethodPost, "/projects/1/paygroups/1/payments",
			`{"name":"x","date":"2022-01-02","asset":1,"liability":0,"currency":"US"}`, http.StatusUnprocessableEntity},
		{"fractional amount", http.MethodPost, "/projects/1/paygroups/1/payments",
			`{"name":"x","date":"2022-01-02","asset":1.5,"liability":0,"currency":"USD"}`, http.StatusUnprocessableEntity},
		{"bad include_deleted", http.MethodGet, "/projects?include_deleted=maybe", "", http.StatusUnprocessableEntity},
		{"unknown project", http.MethodGet, "/projects/42", "", http.StatusNotFound},
		{"non-numeric id", http.MethodGet, "/projects/abc", "", http.StatusNotFound},
		{"unknown paygroup", http.MethodPut, "/projects/1/paygroups/9", `{"name":"x"}`, http.StatusNotFound},
		{"unknown payment", http.MethodDelete, "/projects/1/paygroups/1/payments/9", "", http.StatusNotFound},
		{"payment in unknown group", http.MethodPost, "/projects/1/paygroups/9/payments", milkJSON, http.StatusNotFound},
		{"method not allowed", http.MethodPatch, "/projects/1", `{}`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.target, tt.body)
			expect(t, rec, tt.status, "")
			var detail detailResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil || detail.Detail == "" {
				t.Errorf("error body should carry a detail, got %s", rec.Body.String())
			}
		})
	}
}

func TestAttachments(t *testing.T) {
	ts := newTestServer(t, 0)
	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"P"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups", `{"name":"G"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups/1/payments", milkJSON), http.StatusOK, `{"id":1}`)

	const files = "/projects/1/paygroups/1/payments/1/files"

	expect(t, ts.do(t, http.MethodGet, files, ""), http.StatusNotFound, "")
	expect(t, ts.upload(t, files, []byte("just some text")), http.StatusUnsupportedMediaType, "")
	expect(t, ts.upload(t, "/projects/1/paygroups/1/payments/7/files", pdfData), http.StatusNotFound, "")

	expect(t, ts.upload(t, files, pdfData), http.StatusOK, "null")
	stored := filepath.Join(ts.root, "projects", "1", "1_1.pdf")
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("attachment not stored at %s: %v", stored, err)
	}

	rec := ts.do(t, http.MethodGet, files, "")
	expect(t, rec, http.StatusOK, "")
	if !bytes.Equal(rec.Body.Bytes(), pdfData) {
		t.Error("downloaded bytes differ from the upload")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = ts.do(t, http.MethodGet, "/projects/1", "")
	if !strings.Contains(rec.Body.String(), `"attachment":"1_1.pdf"`) {
		t.Errorf("payment should reference its attachment: %s", rec.Body.String())
	}

	// Updating the payment keeps the attachment.
	expect(t, ts.do(t, http.MethodPut, "/projects/1/paygroups/1/payments/1",
		`{"name":"Milk","date":"2022-01-03","asset":1,"liability":0,"currency":"USD"}`), http.StatusOK, "null")
	expect(t, ts.do(t, http.MethodGet, files, ""), http.StatusOK, "")

	expect(t, ts.do(t, http.MethodDelete, files, ""), http.StatusOK, "null")
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Errorf("attachment file should be removed, stat err = %v", err)
	}
	expect(t, ts.do(t, http.MethodGet, files, ""), http.StatusNotFound, "")
	expect(t, ts.do(t, http.MethodDelete, files, ""), http.StatusNotFound, "")
}

func TestAttachmentTooLarge(t *testing.T) {
	ts := newTestServer(t, 64)
	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"P"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups", `{"name":"G"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups/1/payments", milkJSON), http.StatusOK, `{"id":1}`)

	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 200)...)
	expect(t, ts.upload(t, "/projects/1/paygroups/1/payments/1/files", big), http.StatusRequestEntityTooLarge, "")
}

func TestUploadRequiresFileField(t *testing.T) {
	ts := newTestServer(t, 0)
	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"P"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups", `{"name":"G"}`), http.StatusOK, `{"id":1}`)
	expect(t, ts.do(t, http.MethodPost, "/projects/1/paygroups/1/payments", milkJSON), http.StatusOK, `{"id":1}`)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	_ = mw.Close()
	r := httptest.NewRequest(http.MethodPost, "/projects/1/paygroups/1/payments/1/files", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, r)
	expect(t, rec, http.StatusUnprocessableEntity, "")
}

func TestRateLimitAndHeaders(t *testing.T) {
	root := t.TempDir()
	store, err := file.New(root)
	if err != nil {
		t.Fatal(err)
	}
	svc := services.NewLedgerService(store, attachment.NewStore(root, 0), root, services.Options{})
	srv := NewServer(":0", svc, Options{RateLimitPerMinute: 2})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	ts := &testServer{Server: srv, root: root}

	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"a"}`), http.StatusOK, "")
	expect(t, ts.do(t, http.MethodPost, "/projects", `{"name":"b"}`), http.StatusOK, "")
	rec := ts.do(t, http.MethodPost, "/projects", `{"name":"c"}`)
	expect(t, rec, http.StatusTooManyRequests, "")

	// Reads are never limited.
	rec = ts.do(t, http.MethodGet, "/projects", "")
	expect(t, rec, http.StatusOK, "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}
