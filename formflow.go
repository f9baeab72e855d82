// Package formflow is the top-level entry point: it wires a backend client
// and a bundle of templates into an engine whose sessions fill, validate,
// normalise and submit template-driven requests.
package formflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/engine"
	"github.com/goliatone/go-formflow/pkg/normalize"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/repository"
	"github.com/goliatone/go-formflow/pkg/templates"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// Engine opens sessions; alias of engine.Engine.
type Engine = engine.Engine

// Session is one form being filled.
type Session = engine.Session

// AppContext carries the requester identity explicitly into every session.
type AppContext = engine.AppContext

// Definition is a form template together with its cascade rules.
type Definition = templates.Definition

// Submission is the normalised payload stored for a request.
type Submission = normalize.Submission

// GenericMessage is the text shown for every remote failure.
const GenericMessage = validation.GenericMessage

// LoadTemplates reads every JSON/YAML template document under fsys.
func LoadTemplates(fsys fs.FS) (*templates.Bundle, error) {
	return templates.LoadFS(fsys)
}

// Settings tunes NewEngine. The zero value uses the default tables and page
// size.
type Settings struct {
	Tables   repository.Tables
	PageSize int
	Logger   *zap.Logger
}

// NewEngine builds an engine over client. Forms come from bundle first and
// then from the form template table; option queries come from bundle;
// signers and submissions go through a repository on the same client.
// Extra options are applied last and may override any of this.
func NewEngine(client backend.Client, bundle *templates.Bundle, settings Settings, opts ...engine.Option) (*Engine, error) {
	if client == nil {
		return nil, errors.New("formflow: backend client is required")
	}
	if bundle == nil {
		bundle = templates.NewBundle()
	}
	logger := settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	repo := repository.New(client, repository.WithTables(settings.Tables), repository.WithLogger(logger))
	stored := templates.DocumentSource(func(ctx context.Context, id string) ([]byte, error) {
		raw, err := repo.FormDocument(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", templates.ErrUnknownForm, err)
		}
		return raw, err
	})

	resolverOpts := []options.Option{options.WithLogger(logger)}
	if settings.PageSize > 0 {
		resolverOpts = append(resolverOpts, options.WithPageSize(settings.PageSize))
	}

	base := []engine.Option{
		engine.WithTemplates(templates.Chain(bundle, stored)),
		engine.WithOptionResolver(options.NewResolver(backend.OptionFetcher(client), resolverOpts...)),
		engine.WithQueries(bundle.Queries()),
		engine.WithSignerSource(repo),
		engine.WithSubmitter(repo),
		engine.WithLogger(logger),
	}
	return engine.New(append(base, opts...)...)
}
