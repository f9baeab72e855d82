package options

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/model"
)

const (
	// DefaultPageSize matches the smaller batch size used by the request
	// pages; MaxPageSize caps what a single round trip may ask for.
	DefaultPageSize = 500
	MaxPageSize     = 1000
)

// ErrFetchFailed is the generic error surfaced for any remote failure.
var ErrFetchFailed = errors.New("options: something went wrong, please try again later")

// PageFetcher loads a single page of options.
type PageFetcher interface {
	FetchPage(ctx context.Context, q Query, offset, limit int) (Page, error)
}

// PageFetcherFunc adapts a function into a PageFetcher.
type PageFetcherFunc func(ctx context.Context, q Query, offset, limit int) (Page, error)

// FetchPage calls the underlying function.
func (fn PageFetcherFunc) FetchPage(ctx context.Context, q Query, offset, limit int) (Page, error) {
	return fn(ctx, q, offset, limit)
}

// Observer receives pagination events, typically to record metrics.
type Observer interface {
	PageFetched(source string, rows int)
	FetchFailed(source string)
}

type nopObserver struct{}

func (nopObserver) PageFetched(string, int) {}
func (nopObserver) FetchFailed(string)      {}

// Option customises the Resolver.
type Option func(*Resolver)

// WithPageSize overrides the page size. Values outside 1..MaxPageSize are
// clamped.
func WithPageSize(size int) Option {
	return func(r *Resolver) {
		r.pageSize = size
	}
}

// WithLogger injects a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver registers a pagination observer.
func WithObserver(observer Observer) Option {
	return func(r *Resolver) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// Resolver walks paginated option lists.
type Resolver struct {
	fetcher  PageFetcher
	pageSize int
	logger   *zap.Logger
	observer Observer
}

// NewResolver constructs a Resolver over fetcher.
func NewResolver(fetcher PageFetcher, options ...Option) *Resolver {
	r := &Resolver{
		fetcher:  fetcher,
		pageSize: DefaultPageSize,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	r.pageSize = clampPageSize(r.pageSize)
	return r
}

// PageSize reports the effective page size.
func (r *Resolver) PageSize() int {
	return r.pageSize
}

// FetchAll retrieves every option matching q in server order. Options are
// re-numbered by position so Order is stable across pages.
func (r *Resolver) FetchAll(ctx context.Context, q Query) ([]model.Option, error) {
	if r == nil || r.fetcher == nil {
		return nil, errors.New("options: resolver has no fetcher")
	}
	q = q.WithDefaults()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var out []model.Option
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(q, offset, err)
		}
		page, err := r.fetcher.FetchPage(ctx, q, offset, r.pageSize)
		if err != nil {
			return nil, r.fail(q, offset, err)
		}
		r.observer.PageFetched(q.Source, len(page.Options))

		for _, option := range page.Options {
			option.Order = len(out)
			if option.FieldID == "" {
				option.FieldID = q.FieldID
			}
			out = append(out, option)
		}

		if len(page.Options) < r.pageSize {
			break
		}
		offset += r.pageSize
		if page.Total >= 0 && offset >= page.Total {
			break
		}
	}

	r.logger.Debug("options fetched",
		zap.String("source", q.Source),
		zap.Int("count", len(out)),
	)
	if out == nil {
		out = []model.Option{}
	}
	return out, nil
}

func (r *Resolver) fail(q Query, offset int, cause error) error {
	r.observer.FetchFailed(q.Source)
	r.logger.Warn("option fetch failed",
		zap.String("source", q.Source),
		zap.String("table", q.Table),
		zap.Int("offset", offset),
		zap.Error(cause),
	)
	return ErrFetchFailed
}

func clampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}
