// Package app wires configuration into the backend client, repository,
// option resolver, template sources and engine shared by every command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/internal/config"
	"github.com/goliatone/go-formflow/internal/metrics"
	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/backend/postgrest"
	"github.com/goliatone/go-formflow/pkg/backend/sqlstore"
	"github.com/goliatone/go-formflow/pkg/engine"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/repository"
	"github.com/goliatone/go-formflow/pkg/templates"
)

type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
	Client     backend.Client
	Repository *repository.Repository
	Bundle     *templates.Bundle
	Templates  templates.Source
	Resolver   *options.Resolver
	Engine     *engine.Engine

	closers []func() error
}

type Option func(*buildOptions)

type buildOptions struct {
	templatesFS fs.FS
	metrics     *metrics.Recorder
}

// WithTemplatesFS loads local templates from fsys instead of
// Config.TemplatesDir.
func WithTemplatesFS(fsys fs.FS) Option {
	return func(o *buildOptions) {
		o.templatesFS = fsys
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *buildOptions) {
		o.metrics = recorder
	}
}

// Open connects the configured backend and builds the App on top of it.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, closer, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := Build(cfg, client, logger, opts...)
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	return a, nil
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend.Client, func() error, error) {
	switch cfg.Backend.Kind {
	case config.BackendPostgREST:
		client, err := postgrest.New(postgrest.Config{
			URL:     cfg.Backend.URL,
			APIKey:  cfg.Backend.APIKey,
			Timeout: cfg.Backend.Timeout,
			Logger:  logger.Named("postgrest"),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	case config.BackendSQL:
		dialCtx := ctx
		if cfg.Backend.Timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.Backend.Timeout)
			defer cancel()
		}
		store, err := sqlstore.Open(dialCtx, cfg.Backend.DSN, logger.Named("sqlstore"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown backend %q", cfg.Backend.Kind)
	}
}

// Build assembles the App over an already connected client.
func Build(cfg config.Config, client backend.Client, logger *zap.Logger, opts ...Option) (*App, error) {
	if client == nil {
		return nil, errors.New("app: backend client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.templatesFS == nil && cfg.TemplatesDir != "" {
		o.templatesFS = os.DirFS(cfg.TemplatesDir)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	rate, err := cfg.Rate()
	if err != nil {
		return nil, err
	}

	bundle, err := templates.LoadFS(o.templatesFS)
	if err != nil {
		return nil, err
	}

	repo := repository.New(client,
		repository.WithTables(cfg.RepositoryTables()),
		repository.WithLogger(logger.Named("repository")),
	)
	source := templates.Chain(bundle, templates.DocumentSource(func(ctx context.Context, id string) ([]byte, error) {
		raw, err := repo.FormDocument(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", templates.ErrUnknownForm, err)
		}
		return raw, err
	}))

	resolver := options.NewResolver(backend.OptionFetcher(client),
		options.WithPageSize(cfg.PageSize),
		options.WithLogger(logger.Named("options")),
		options.WithObserver(o.metrics),
	)

	eng, err := engine.New(
		engine.WithTemplates(source),
		engine.WithOptionResolver(resolver),
		engine.WithQueries(bundle.Queries()),
		engine.WithSignerSource(repo),
		engine.WithSubmitter(repo),
		engine.WithLogger(logger.Named("engine")),
		engine.WithVATRate(rate),
		engine.WithCascadeObserver(o.metrics),
		engine.WithSubmitObserver(o.metrics),
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("app ready",
		zap.String("backend", cfg.Backend.Kind),
		zap.Int("localForms", len(bundle.FormIDs())),
		zap.Strings("queries", bundle.Queries().List()),
	)
	return &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    o.metrics,
		Client:     client,
		Repository: repo,
		Bundle:     bundle,
		Templates:  source,
		Resolver:   resolver,
		Engine:     eng,
	}, nil
}

// Queries exposes the named option queries loaded with the templates.
func (a *App) Queries() *options.Registry {
	return a.Bundle.Queries()
}

// Forms lists local and stored templates. Local forms shadow stored ones
// with the same id. A backend failure is logged and only local forms are
// returned when any exist.
func (a *App) Forms(ctx context.Context) ([]repository.FormSummary, error) {
	seen := map[string]struct{}{}
	var out []repository.FormSummary
	for _, id := range a.Bundle.FormIDs() {
		def, err := a.Bundle.Definition(ctx, id)
		if err != nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, repository.FormSummary{ID: id, Name: def.Form.Name})
	}

	stored, err := a.Repository.Forms(ctx)
	if err != nil {
		if len(out) == 0 {
			return nil, err
		}
		a.Logger.Warn("stored forms unavailable", zap.Error(err))
	}
	for _, form := range stored {
		if _, ok := seen[form.ID]; ok {
			continue
		}
		out = append(out, form)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close releases the backend connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
