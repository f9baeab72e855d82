package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/options"
)

func TestRowsEncodesQueryAndReadsTotal(t *testing.T) {
	t.Parallel()

	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Range", "500-501/1234")
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 501, "name": "Cebu"}, {"id": 502, "name": "Bohol"}})
	}))
	defer server.Close()

	client, err := New(Config{URL: server.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	res, err := client.Rows(context.Background(), backend.Request{
		Table:   "provinces",
		Columns: []string{"id", "name"},
		Filters: []options.Filter{
			{Column: "region_id", Value: "7"},
			{Column: "name", Op: "ilike", Value: "%bo%"},
			{Column: "kind", Op: "in", Value: "a, b"},
		},
		Order:  "name",
		Offset: 500,
		Limit:  500,
		Count:  true,
	})
	if err != nil {
		t.Fatalf("Rows returned error: %v", err)
	}

	if got.URL.Path != "/rest/v1/provinces" {
		t.Fatalf("unexpected path %q", got.URL.Path)
	}
	q := got.URL.Query()
	wantQuery := map[string]string{
		"select":    "id,name",
		"region_id": "eq.7",
		"name":      "ilike.*bo*",
		"kind":      "in.(a,b)",
		"order":     "name.asc",
		"limit":     "500",
		"offset":    "500",
	}
	for key, want := range wantQuery {
		if q.Get(key) != want {
			t.Fatalf("query %s = %q, want %q", key, q.Get(key), want)
		}
	}
	if got.Header.Get("apikey") != "secret" || got.Header.Get("Authorization") != "Bearer secret" {
		t.Fatalf("auth headers missing: %v", got.Header)
	}
	if got.Header.Get("Prefer") != "count=exact" {
		t.Fatalf("Prefer header = %q", got.Header.Get("Prefer"))
	}

	if res.Total != 1234 || len(res.Rows) != 2 || res.Rows[1]["name"] != "Bohol" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRowsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"column regions.nope does not exist"}`))
	}))
	defer server.Close()

	client, _ := New(Config{URL: server.URL, APIKey: "k"})
	_, err := client.Rows(context.Background(), backend.Request{Table: "regions"})
	var apiErr *backend.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *backend.Error, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "column regions.nope does not exist" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestInsertReturnsRepresentation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("unexpected request %s %v", r.Method, r.Header)
		}
		var row map[string]any
		_ = json.NewDecoder(r.Body).Decode(&row)
		row["id"] = "req-1"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]map[string]any{row})
	}))
	defer server.Close()

	client, _ := New(Config{URL: server.URL, APIKey: "k"})
	row, err := client.Insert(context.Background(), "requests", backend.Row{"form_id": "purchase"})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if diff := cmp.Diff(backend.Row{"id": "req-1", "form_id": "purchase"}, row); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
}

// The resolver walks a real PostgREST-style server page by page.
func TestOptionFetcherPaginatesOverHTTP(t *testing.T) {
	t.Parallel()

	const total = 1001
	var (
		mu      sync.Mutex
		offsets []int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		mu.Lock()
		offsets = append(offsets, offset)
		mu.Unlock()

		var rows []map[string]any
		for i := offset; i < offset+limit && i < total; i++ {
			rows = append(rows, map[string]any{"id": i + 1, "name": fmt.Sprintf("Supplier %d", i+1)})
		}
		end := offset + len(rows) - 1
		w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", offset, end, total))
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	client, _ := New(Config{URL: server.URL, APIKey: "k"})
	resolver := options.NewResolver(backend.OptionFetcher(client))
	got, err := resolver.FetchAll(context.Background(), options.Query{Table: "suppliers"})
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if len(got) != total || got[total-1].Value != "Supplier 1001" {
		t.Fatalf("unexpected options: %d last=%+v", len(got), got[len(got)-1])
	}
	if diff := cmp.Diff([]int{0, 500, 1000}, offsets); diff != "" {
		t.Fatalf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestParseContentRange(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"0-499/1234": 1234,
		"*/0":        0,
		"0-499/*":    -1,
		"":           -1,
	}
	for header, want := range cases {
		if got := parseContentRange(header); got != want {
			t.Fatalf("parseContentRange(%q) = %d, want %d", header, got, want)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{{APIKey: "k"}, {URL: "http://x"}, {URL: "not a url", APIKey: "k"}} {
		if _, err := New(cfg); err == nil {
			t.Fatalf("New(%+v) expected error", cfg)
		}
	}
}
