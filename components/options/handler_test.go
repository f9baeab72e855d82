package options

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/model"
	pkgoptions "github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/validation"
)

type handlerResponse struct {
	Data []Option `json:"data"`
}

type recordingFetcher struct {
	list    []model.Option
	err     error
	queries []pkgoptions.Query
}

func (f *recordingFetcher) FetchAll(_ context.Context, q pkgoptions.Query) ([]model.Option, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func newRegistry(t *testing.T) *pkgoptions.Registry {
	t.Helper()
	registry := pkgoptions.NewRegistry()
	if err := registry.Register("provinces", pkgoptions.Query{Table: "provinces", MetaColumns: []string{"code"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return registry
}

func provinces() []model.Option {
	return []model.Option{
		{ID: "1", Value: "Milano", Meta: map[string]string{"code": "MI"}},
		{ID: "2", Value: "Monza e Brianza", Meta: map[string]string{"code": "MB"}},
		{ID: "3", Value: "Roma", Meta: map[string]string{"code": "RM"}},
		{ID: "4", Value: "Lecco", Meta: map[string]string{"code": "LC"}},
	}
}

func serve(t *testing.T, h http.Handler, method, target string) (*http.Response, handlerResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := rec.Result()
	var payload handlerResponse
	if method == http.MethodGet && res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return res, payload
}

func TestHandlerSearchPrefersPrefixMatches(t *testing.T) {
	t.Parallel()

	fetcher := &recordingFetcher{list: provinces()}
	h := NewHandler(WithSource(newRegistry(t), fetcher))

	res, payload := serve(t, h, http.MethodGet, "/api/options/provinces?q=co")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected JSON content-type, got %q", ct)
	}

	want := []Option{{Value: "4", Label: "Lecco", Meta: map[string]string{"code": "LC"}}}
	if diff := cmp.Diff(want, payload.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	_, payload = serve(t, h, http.MethodGet, "/api/options/provinces?q=M")
	var labels []string
	for _, option := range payload.Data {
		labels = append(labels, option.Label)
	}
	if diff := cmp.Diff([]string{"Milano", "Monza e Brianza", "Roma"}, labels); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerEmptySearchModes(t *testing.T) {
	t.Parallel()

	fetcher := &recordingFetcher{list: provinces()}

	_, payload := serve(t, NewHandler(WithSource(newRegistry(t), fetcher), WithDefaultLimit(2)),
		http.MethodGet, "/api/options/provinces")
	if len(payload.Data) != 2 || payload.Data[0].Label != "Milano" {
		t.Fatalf("expected the first two options, got %#v", payload.Data)
	}

	_, payload = serve(t, NewHandler(WithSource(newRegistry(t), fetcher), WithEmptySearchMode(EmptySearchNone)),
		http.MethodGet, "/api/options/provinces")
	if payload.Data == nil || len(payload.Data) != 0 {
		t.Fatalf("expected empty data array, got %#v", payload.Data)
	}
}

func TestHandlerLimitClamped(t *testing.T) {
	t.Parallel()

	fetcher := &recordingFetcher{list: provinces()}
	h := NewHandler(WithSource(newRegistry(t), fetcher), WithMaxLimit(3))

	_, payload := serve(t, h, http.MethodGet, "/api/options/provinces?limit=10")
	if len(payload.Data) != 3 {
		t.Fatalf("expected 3 results, got %d", len(payload.Data))
	}
}

func TestHandlerRequestFiltersExtendQuery(t *testing.T) {
	t.Parallel()

	fetcher := &recordingFetcher{list: provinces()}
	h := NewHandler(WithSource(newRegistry(t), fetcher))

	res, _ := serve(t, h, http.MethodGet, "/api/options/provinces?filter.region_id=7&filter.active=true&other=1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	if len(fetcher.queries) != 1 {
		t.Fatalf("expected one fetch, got %d", len(fetcher.queries))
	}
	q := fetcher.queries[0]
	if q.Table != "provinces" || q.Source != "provinces" {
		t.Fatalf("unexpected query: %#v", q)
	}
	want := []pkgoptions.Filter{
		{Column: "active", Value: "true"},
		{Column: "region_id", Value: "7"},
	}
	if diff := cmp.Diff(want, q.Filters); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerUnknownSource(t *testing.T) {
	t.Parallel()

	h := NewHandler(WithSource(newRegistry(t), &recordingFetcher{}))
	res, _ := serve(t, h, http.MethodGet, "/api/options/cities")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestHandlerRemoteFailureIsGeneric(t *testing.T) {
	t.Parallel()

	fetcher := &recordingFetcher{err: fmt.Errorf("%w: dial tcp 10.0.0.1:5432: connection refused", pkgoptions.ErrFetchFailed)}
	h := NewHandler(WithSource(newRegistry(t), fetcher))

	req := httptest.NewRequest(http.MethodGet, "/api/options/provinces", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var payload errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error != validation.GenericMessage {
		t.Fatalf("expected generic message, got %q", payload.Error)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.1") {
		t.Fatalf("response leaked remote details: %s", rec.Body.String())
	}
}

func TestHandlerUsesResolverPaging(t *testing.T) {
	t.Parallel()

	rows := make([]model.Option, 7)
	for i := range rows {
		rows[i] = model.Option{ID: fmt.Sprintf("%d", i), Value: fmt.Sprintf("row-%d", i)}
	}
	var offsets []int
	resolver := pkgoptions.NewResolver(pkgoptions.PageFetcherFunc(func(_ context.Context, _ pkgoptions.Query, offset, limit int) (pkgoptions.Page, error) {
		offsets = append(offsets, offset)
		end := offset + limit
		if end > len(rows) {
			end = len(rows)
		}
		if offset >= len(rows) {
			return pkgoptions.Page{Total: -1}, nil
		}
		return pkgoptions.Page{Options: rows[offset:end], Total: -1}, nil
	}), pkgoptions.WithPageSize(3))

	h := NewHandler(WithSource(newRegistry(t), resolver))
	_, payload := serve(t, h, http.MethodGet, "/api/options/provinces?q=row-6")
	if diff := cmp.Diff([]int{0, 3, 6}, offsets); diff != "" {
		t.Fatalf("offsets mismatch (-want +got):\n%s", diff)
	}
	if len(payload.Data) != 1 || payload.Data[0].Value != "6" {
		t.Fatalf("expected the last row, got %#v", payload.Data)
	}
}

func TestHandlerMethodAndGuard(t *testing.T) {
	t.Parallel()

	h := NewHandler(WithSource(newRegistry(t), &recordingFetcher{list: provinces()}))
	res, _ := serve(t, h, http.MethodPost, "/api/options/provinces")
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.StatusCode)
	}
	if allow := res.Header.Get("Allow"); allow != "GET, HEAD" {
		t.Fatalf("unexpected Allow header %q", allow)
	}

	guarded := NewHandler(
		WithSource(newRegistry(t), &recordingFetcher{list: provinces()}),
		WithGuard(func(*http.Request) error {
			return StatusError{Code: http.StatusUnauthorized, Err: errors.New("no session")}
		}),
	)
	res, _ = serve(t, guarded, http.MethodGet, "/api/options/provinces")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestHandlerWithoutSource(t *testing.T) {
	t.Parallel()

	res, _ := serve(t, NewHandler(), http.MethodGet, "/api/options/provinces")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.StatusCode)
	}
}
