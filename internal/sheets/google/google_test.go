package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bil/internal/core"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{ServiceAccountJSON: "{}"}, nil)
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet"}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet", ServiceAccountFile: "/does/not/exist.json"}, nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := map[string]string{
		"Project 1":  "'Project 1'",
		"Bob's Trip": "'Bob''s Trip'",
	}
	for in, want := range tests {
		if got := quoteSheet(in); got != want {
			t.Errorf("quoteSheet(%q) = %q, want %q", in, got, want)
		}
	}
}

// fakeSheets records the calls a Client makes against the Sheets REST API.
type fakeSheets struct {
	mu      sync.Mutex
	titles  []string
	calls   []string
	written [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/v4/spreadsheets/ss"):
		f.calls = append(f.calls, "get")
		type props struct {
			Title string `json:"title"`
		}
		type sheet struct {
			Properties props `json:"properties"`
		}
		var out struct {
			Sheets []sheet `json:"sheets"`
		}
		for _, t := range f.titles {
			out.Sheets = append(out.Sheets, sheet{Properties: props{Title: t}})
		}
		_ = json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.calls = append(f.calls, "add")
		f.titles = append(f.titles, req.Requests[0].AddSheet.Properties.Title)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.calls = append(f.calls, "update")
		f.written = vr.Values
		_, _ = w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newFakeClient(t *testing.T, f *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return NewWithService(svc, "ss", nil)
}

func TestClient_ExportProject(t *testing.T) {
	f := &fakeSheets{}
	c := newFakeClient(t, f)

	project := core.ProjectDetail{ID: 4, Name: "P", Paygroups: []core.Paygroup{
		{ID: 1, Name: "G", Payments: []core.Payment{
			{ID: 2, Name: "Milk", Date: core.NewDate(2022, 1, 1), Asset: 1500000000, Currency: "USD"},
		}},
	}}

	if err := c.ExportProject(context.Background(), project); err != nil {
		t.Fatalf("ExportProject() error = %v", err)
	}
	if got := strings.Join(f.calls, ","); got != "get,add,clear,update" {
		t.Errorf("calls = %s", got)
	}
	if len(f.titles) != 1 || f.titles[0] != "Project 4" {
		t.Errorf("titles = %v", f.titles)
	}
	if len(f.written) != 2 || f.written[1][4] != "15.00" {
		t.Errorf("written = %v", f.written)
	}

	// The sheet exists now; a second export must not add it again.
	f.calls = nil
	if err := c.ExportProject(context.Background(), project); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(f.calls, ","); got != "get,clear,update" {
		t.Errorf("second export calls = %s", got)
	}
}

func TestClient_ExportWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "ss"}
	if err := c.ExportProject(context.Background(), core.ProjectDetail{ID: 1}); err == nil {
		t.Fatal("expected error without a sheets service")
	}
}
