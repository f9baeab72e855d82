package options

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMountPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base  string
		route string
		want  string
	}{
		{base: "", route: "", want: "/api/options/{source}"},
		{base: "/", route: "/lists/", want: "/lists/{source}"},
		{base: "admin/", route: "lists", want: "/admin/lists/{source}"},
	}
	for _, tc := range cases {
		got := MountPath(tc.base, WithRoutePath(tc.route))
		if got != tc.want {
			t.Fatalf("MountPath(%q, %q) = %q, want %q", tc.base, tc.route, got, tc.want)
		}
	}
}

func TestRegisterRoutesOnServeMuxAndChi(t *testing.T) {
	t.Parallel()

	fetcher := &recordingFetcher{list: provinces()}
	component := New(WithSource(newRegistry(t), fetcher))

	muxes := map[string]Mux{
		"servemux": http.NewServeMux(),
		"chi":      chi.NewRouter(),
	}
	for name, mux := range muxes {
		pattern, err := component.RegisterRoutes(mux, "/v1")
		if err != nil {
			t.Fatalf("%s: register: %v", name, err)
		}
		if pattern != "/v1/api/options/{source}" {
			t.Fatalf("%s: unexpected pattern %q", name, pattern)
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/api/options/provinces?q=rom", nil)
		rec := httptest.NewRecorder()
		mux.(http.Handler).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", name, rec.Code)
		}
		var payload handlerResponse
		if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if len(payload.Data) != 1 || payload.Data[0].Label != "Roma" {
			t.Fatalf("%s: unexpected data %#v", name, payload.Data)
		}
	}

	if _, err := RegisterRoutes(nil, "/"); err == nil {
		t.Fatalf("expected error for nil mux")
	}
}
