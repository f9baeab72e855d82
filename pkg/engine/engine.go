// Package engine ties the form packages together. An Engine holds the
// collaborators shared by every form; a Session is one form being filled.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formflow/pkg/cascade"
	"github.com/goliatone/go-formflow/pkg/duplication"
	"github.com/goliatone/go-formflow/pkg/export"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/normalize"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/repository"
	"github.com/goliatone/go-formflow/pkg/sections"
	"github.com/goliatone/go-formflow/pkg/signers"
	"github.com/goliatone/go-formflow/pkg/templates"
	"github.com/goliatone/go-formflow/pkg/validation"
)

var (
	// ErrNoTemplates is returned by Open when no template source was set.
	ErrNoTemplates = errors.New("engine: template source is not configured")
	// ErrNoSubmitter is returned by Submit when no submitter was set.
	ErrNoSubmitter = errors.New("engine: submitter is not configured")
)

// DefaultCategorySignerKey is the option meta key holding the approval
// signer of an item category.
const DefaultCategorySignerKey = "signer_id"

const prefetchConcurrency = 4

// AppContext carries the caller identity explicitly instead of global state.
type AppContext struct {
	TeamID        string
	UserID        string
	SecurityGroup string
	Profile       map[string]string
}

// Owner maps the context onto the submitting owner columns.
func (a AppContext) Owner() repository.Owner {
	return repository.Owner{TeamID: a.TeamID, UserID: a.UserID}
}

// Submitter stores a normalised request.
type Submitter interface {
	Submit(ctx context.Context, submission normalize.Submission, owner repository.Owner) (string, error)
}

// SubmitObserver is told about every submission attempt.
type SubmitObserver interface {
	Submitted(formID string, err error)
}

type nopSubmitObserver struct{}

func (nopSubmitObserver) Submitted(string, error) {}

// Option customises the engine.
type Option func(*Engine)

// WithTemplates sets where form definitions come from.
func WithTemplates(source templates.Source) Option {
	return func(e *Engine) {
		e.templates = source
	}
}

// WithOptionResolver sets the paginated option fetcher used by cascades and
// prefetching.
func WithOptionResolver(resolver cascade.Fetcher) Option {
	return func(e *Engine) {
		e.fetcher = resolver
	}
}

// WithQueries sets the registry consulted for field option sources.
func WithQueries(registry *options.Registry) Option {
	return func(e *Engine) {
		e.queries = registry
	}
}

// WithSignerSource sets where project signer lists come from.
func WithSignerSource(source signers.Source) Option {
	return func(e *Engine) {
		e.signerSource = source
	}
}

// WithSubmitter sets the request store.
func WithSubmitter(submitter Submitter) Option {
	return func(e *Engine) {
		e.submitter = submitter
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDecorators registers decorators applied, in order, to a private copy
// of the form template every time a session opens.
func WithDecorators(decorators ...model.Decorator) Option {
	return func(e *Engine) {
		for _, d := range decorators {
			if d != nil {
				e.decorators = append(e.decorators, d)
			}
		}
	}
}

// WithIDGenerator overrides duplication id generation.
func WithIDGenerator(gen duplication.IDGenerator) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// WithVATRate overrides the rate used by vat computations.
func WithVATRate(rate decimal.Decimal) Option {
	return func(e *Engine) {
		e.vatRate = rate
	}
}

// WithCascadeObserver receives every cascade run.
func WithCascadeObserver(observer cascade.Observer) Option {
	return func(e *Engine) {
		e.cascadeObserver = observer
	}
}

// WithSubmitObserver receives every submission outcome.
func WithSubmitObserver(observer SubmitObserver) Option {
	return func(e *Engine) {
		if observer != nil {
			e.submitObserver = observer
		}
	}
}

// WithRules adds validation rules run on every Validate.
func WithRules(rules ...validation.Rule) Option {
	return func(e *Engine) {
		e.rules = append(e.rules, rules...)
	}
}

// WithExporter replaces the default text export layout.
func WithExporter(renderer *export.Renderer) Option {
	return func(e *Engine) {
		e.exporter = renderer
	}
}

// WithCategorySignerKey sets the option meta key holding category signers.
func WithCategorySignerKey(key string) Option {
	return func(e *Engine) {
		if key != "" {
			e.categoryKey = key
		}
	}
}

// Engine opens sessions.
type Engine struct {
	templates       templates.Source
	fetcher         cascade.Fetcher
	queries         *options.Registry
	signerSource    signers.Source
	submitter       Submitter
	logger          *zap.Logger
	newID           duplication.IDGenerator
	vatRate         decimal.Decimal
	cascadeObserver cascade.Observer
	submitObserver  SubmitObserver
	rules           []validation.Rule
	exporter        *export.Renderer
	categoryKey     string
	decorators      []model.Decorator
}

// New constructs an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:         zap.NewNop(),
		submitObserver: nopSubmitObserver{},
		categoryKey:    DefaultCategorySignerKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.exporter == nil {
		renderer, err := export.New()
		if err != nil {
			return nil, fmt.Errorf("engine: default exporter: %w", err)
		}
		e.exporter = renderer
	}
	return e, nil
}

// Open loads formID and builds a session with one instance per template
// section. Field option sources are prefetched concurrently.
func (e *Engine) Open(ctx context.Context, app AppContext, formID string) (*Session, error) {
	if e.templates == nil {
		return nil, ErrNoTemplates
	}
	def, err := e.templates.Definition(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("engine: open %q: %w", formID, err)
	}
	if def, err = e.decorate(def); err != nil {
		return nil, fmt.Errorf("engine: open %q: %w", formID, err)
	}

	initial := make([]model.SectionInstance, 0, len(def.Form.Sections))
	for _, tpl := range def.Form.Sections {
		initial = append(initial, model.NewSectionInstance(tpl, ""))
	}

	cache := options.NewCache()
	if err := e.prefetch(ctx, def.Form, initial, cache); err != nil {
		return nil, err
	}

	store := sections.NewStore(initial...)
	logger := e.logger.With(zap.String("form", def.Form.ID), zap.String("team", app.TeamID))

	dupOpts := []duplication.Option{duplication.WithCache(cache), duplication.WithLogger(logger)}
	if e.newID != nil {
		dupOpts = append(dupOpts, duplication.WithIDGenerator(e.newID))
	}
	cascadeOpts := []cascade.Option{cascade.WithCache(cache), cascade.WithLogger(logger)}
	if e.cascadeObserver != nil {
		cascadeOpts = append(cascadeOpts, cascade.WithObserver(e.cascadeObserver))
	}
	if !e.vatRate.IsZero() {
		cascadeOpts = append(cascadeOpts, cascade.WithVATRate(e.vatRate))
	}

	signerResolver := signers.NewResolver(def.Form.Signers, e.signerSource, logger)
	s := &Session{
		engine:     e,
		app:        app,
		def:        def,
		initial:    model.CloneSections(initial),
		store:      store,
		cache:      cache,
		dup:        duplication.NewManager(def.Form, store, dupOpts...),
		cascade:    cascade.NewResolver(def.Graph, store, e.optionFetcher(), cascadeOpts...),
		signers:    signerResolver,
		validator:  validation.New(e.rules...),
		normalizer: normalize.New(def.Form, normalize.WithLogger(logger)),
		logger:     logger,
	}
	s.baseSigners = signerResolver.Default()
	s.active = s.withCategorySigners(s.baseSigners)
	logger.Debug("session opened", zap.Int("sections", len(initial)))
	return s, nil
}

// unconfiguredFetcher fails every fetch; cascades declared without an
// option resolver behave like a backend outage.
type unconfiguredFetcher struct{}

func (unconfiguredFetcher) FetchAll(context.Context, options.Query) ([]model.Option, error) {
	return nil, options.ErrFetchFailed
}

func (e *Engine) optionFetcher() cascade.Fetcher {
	if e.fetcher == nil {
		return unconfiguredFetcher{}
	}
	return e.fetcher
}

type prefetchSlot struct {
	section int
	field   int
	source  string
	list    []model.Option
	fetched bool
}

// prefetch fills every field naming an option source. Independent sources
// run concurrently; one failure fails the open. Sources missing from the
// registry are skipped with a warning and the field keeps its template
// options.
func (e *Engine) prefetch(ctx context.Context, form model.FormTemplate, initial []model.SectionInstance, cache *options.Cache) error {
	var slots []*prefetchSlot
	for i, section := range initial {
		tpl, _ := form.Section(section.SectionID)
		for j, field := range tpl.Fields {
			if field.Source != "" {
				slots = append(slots, &prefetchSlot{section: i, field: j, source: field.Source})
			}
		}
	}
	if len(slots) == 0 {
		return nil
	}
	if e.queries == nil || e.fetcher == nil {
		e.logger.Warn("option sources declared but no resolver configured", zap.String("form", form.ID))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)
	for _, slot := range slots {
		slot := slot
		q, err := e.queries.Get(slot.source)
		if errors.Is(err, options.ErrUnknownQuery) {
			e.logger.Warn("option source not registered, keeping template options",
				zap.String("form", form.ID),
				zap.String("source", slot.source),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("engine: form %q: %w", form.ID, err)
		}
		slot.fetched = true
		q.FieldID = initial[slot.section].Fields[slot.field].FieldID
		g.Go(func() error {
			list, err := e.fetcher.FetchAll(gctx, q)
			if err != nil {
				return err
			}
			slot.list = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, slot := range slots {
		if !slot.fetched {
			continue
		}
		field := &initial[slot.section].Fields[slot.field]
		field.Options = slot.list
		cache.Put(initial[slot.section].SectionID, field.Name, slot.list)
	}
	return nil
}

func (e *Engine) decorate(def templates.Definition) (templates.Definition, error) {
	if len(e.decorators) == 0 {
		return def, nil
	}
	def.Form = def.Form.Clone()
	for _, d := range e.decorators {
		if err := d.Decorate(&def.Form); err != nil {
			return templates.Definition{}, err
		}
	}
	if err := def.Validate(); err != nil {
		return templates.Definition{}, err
	}
	return def, nil
}
