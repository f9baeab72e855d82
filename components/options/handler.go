package options

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	pkgoptions "github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/validation"
)

type HTTPError interface {
	error
	StatusCode() int
}

type StatusError struct {
	Code int
	Err  error
}

func (e StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Code)
}

func (e StatusError) Unwrap() error { return e.Err }

func (e StatusError) StatusCode() int {
	if e.Code <= 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

type optionsResponse struct {
	Data []Option `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler builds a net/http handler with default options plus any overrides.
func Handler(fns ...OptionFn) http.Handler {
	return NewHandler(fns...)
}

func NewHandler(fns ...OptionFn) http.Handler {
	opts := NewOptions(fns...)
	return HandlerWithOptions(opts)
}

// HandlerWithOptions builds a handler from a pre-constructed Options value.
// The query name is the last path segment of the request.
func HandlerWithOptions(opts Options) http.Handler {
	opts = NewOptions(func(o *Options) { *o = opts })
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r == nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", http.MethodGet+", "+http.MethodHead)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		if opts.Guard != nil {
			if err := opts.Guard(r); err != nil {
				writeGuardError(w, err)
				return
			}
		}

		if opts.Registry == nil || opts.Fetcher == nil {
			writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: validation.GenericMessage})
			return
		}

		source := path.Base(r.URL.Path)
		q, err := opts.Registry.Get(source)
		if err != nil {
			writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "unknown option source"})
			return
		}
		q.Filters = append(q.Filters, requestFilters(r)...)

		list, err := opts.Fetcher.FetchAll(r.Context(), q)
		if err != nil {
			opts.Logger.Warn("option list unavailable", zap.String("source", source), zap.Error(err))
			writeJSON(w, r, http.StatusBadGateway, errorResponse{Error: validation.UserMessage(err)})
			return
		}

		query := r.URL.Query().Get(opts.SearchParam)
		limit := parseInt(r.URL.Query().Get(opts.LimitParam))

		results := SearchOptions(list, query, limit, opts)
		if results == nil {
			results = []Option{}
		}
		writeJSON(w, r, http.StatusOK, optionsResponse{Data: results})
	})
}

// requestFilters turns filter.<column>=value parameters into equality
// filters in a stable order.
func requestFilters(r *http.Request) []pkgoptions.Filter {
	var filters []pkgoptions.Filter
	for key, values := range r.URL.Query() {
		column := strings.TrimPrefix(key, FilterPrefix)
		if column == key || column == "" || len(values) == 0 {
			continue
		}
		filters = append(filters, pkgoptions.Filter{Column: column, Value: values[0]})
	}
	sort.Slice(filters, func(i, j int) bool { return filters[i].Column < filters[j].Column })
	return filters
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(payload)
}

func writeGuardError(w http.ResponseWriter, err error) {
	if w == nil {
		return
	}
	if err == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	code := http.StatusForbidden
	var httpErr HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		code = httpErr.StatusCode()
		if code <= 0 {
			code = http.StatusForbidden
		}
	}
	http.Error(w, http.StatusText(code), code)
}

func parseInt(raw string) int {
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

var _ Fetcher = (*pkgoptions.Resolver)(nil)

