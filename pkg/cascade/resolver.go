package cascade

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/condition"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/sections"
	"github.com/goliatone/go-formflow/pkg/vat"
)

// ErrUnknownField is returned when the changed field is not part of the
// section.
var ErrUnknownField = errors.New("cascade: unknown field")

// Fetcher loads a complete option list. *options.Resolver implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, q options.Query) ([]model.Option, error)
}

// Observer is notified after every handled change.
type Observer interface {
	CascadeRun(section, driver string, err error)
}

type nopObserver struct{}

func (nopObserver) CascadeRun(string, string, error) {}

// Change reports what a field change did to its section.
type Change struct {
	Section   model.Key `json:"section"`
	Reset     []string  `json:"reset,omitempty"`
	Populated []string  `json:"populated,omitempty"`
	Inserted  []string  `json:"inserted,omitempty"`
	Removed   []string  `json:"removed,omitempty"`
	Computed  []string  `json:"computed,omitempty"`
	// Others lists instances of other templates whose options were
	// replaced.
	Others []model.Key `json:"others,omitempty"`
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithCache records lists fetched for other section templates.
func WithCache(cache *options.Cache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver reports every handled change.
func WithObserver(observer Observer) Option {
	return func(r *Resolver) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithVATRate configures the built-in vat computations.
func WithVATRate(rate decimal.Decimal) Option {
	return func(r *Resolver) {
		for name, fn := range builtins(vat.New(rate)) {
			r.funcs[name] = fn
		}
	}
}

// WithFunc registers a custom computation, replacing a built-in of the same
// name.
func WithFunc(name string, fn ComputeFunc) Option {
	return func(r *Resolver) {
		if name != "" && fn != nil {
			r.funcs[name] = fn
		}
	}
}

// Resolver applies graph rules to the sections of one store.
type Resolver struct {
	graph    Graph
	store    *sections.Store
	fetcher  Fetcher
	cache    *options.Cache
	cond     *condition.Evaluator
	funcs    map[string]ComputeFunc
	logger   *zap.Logger
	observer Observer
}

// NewResolver wires a graph to a store and option fetcher.
func NewResolver(graph Graph, store *sections.Store, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		graph:    graph,
		store:    store,
		fetcher:  fetcher,
		cond:     condition.New(),
		funcs:    builtins(vat.New(vat.DefaultRate)),
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Graph returns the rules the resolver runs.
func (r *Resolver) Graph() Graph { return r.graph }

// OnFieldChange stores value in the field of the section at sectionIndex and
// runs the matching rule. Fetches happen before any other field is touched;
// when one fails the driver is cleared, nothing else changes and
// options.ErrFetchFailed is returned.
func (r *Resolver) OnFieldChange(ctx context.Context, sectionIndex int, field, value string) (Change, error) {
	section, ok := r.store.At(sectionIndex)
	if !ok {
		return Change{}, fmt.Errorf("%w: section %d", sections.ErrIndexOutOfRange, sectionIndex)
	}
	driverIdx := section.FieldIndex(field)
	if driverIdx < 0 {
		return Change{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, section.SectionID, field)
	}

	change := Change{Section: section.Key()}
	section.Fields[driverIdx].Value = value

	rule, ok := r.graph.Rule(section.SectionID, field)
	if !ok {
		return change, r.commit(sectionIndex, section, nil)
	}

	var (
		results []stepResult
		err     error
	)
	if value != "" {
		results, err = r.fetch(ctx, rule, section, section.Fields[driverIdx])
		if err != nil {
			r.observer.CascadeRun(section.SectionID, field, err)
			return change, r.rollback(sectionIndex, field, err)
		}
	}

	change.Reset = resetDownstream(&section, rule, driverIdx)
	var others map[string][]stepResult
	change.Populated, others = populate(&section, results)

	if err := r.applyInsertions(&section, rule, &change); err != nil {
		r.observer.CascadeRun(section.SectionID, field, err)
		return Change{}, err
	}
	r.applyComputations(&section, rule, &change)

	if err := r.commit(sectionIndex, section, others); err != nil {
		r.observer.CascadeRun(section.SectionID, field, err)
		return Change{}, err
	}
	change.Others = r.recordOthers(others)
	r.observer.CascadeRun(section.SectionID, field, nil)
	r.logger.Debug("cascade applied",
		zap.String("section", change.Section.String()),
		zap.String("driver", field),
		zap.Strings("reset", change.Reset),
		zap.Strings("populated", change.Populated),
	)
	return change, nil
}

type stepResult struct {
	step    Step
	options []model.Option
}

func (r *Resolver) fetch(ctx context.Context, rule Rule, section model.SectionInstance, driver model.FieldInstance) ([]stepResult, error) {
	sc := scope{value: driver.Value, section: section, driver: driver, refs: make(map[string]string)}
	results := make([]stepResult, 0, len(rule.Steps))
	for _, step := range rule.Steps {
		q, err := sc.bind(step.Query)
		if err != nil {
			return nil, err
		}
		if q.FieldID == "" {
			q.FieldID = targetFieldID(section, step)
		}
		list, err := r.fetcher.FetchAll(ctx, q)
		if err != nil {
			return nil, err
		}
		if step.Capture != "" {
			if len(list) == 0 {
				return nil, fmt.Errorf("%w: capture %q matched nothing", ErrUnresolvedPlaceholder, step.Capture)
			}
			sc.refs[step.Capture] = list[0].ID
		}
		results = append(results, stepResult{step: step, options: list})
	}
	return results, nil
}

func targetFieldID(section model.SectionInstance, step Step) string {
	if step.TargetSection != "" || step.Target == "" {
		return ""
	}
	if idx := section.FieldIndex(step.Target); idx >= 0 {
		return section.Fields[idx].FieldID
	}
	return ""
}

// rollback clears the driver in the stored section and leaves everything
// else as it was before the change.
func (r *Resolver) rollback(index int, field string, cause error) error {
	err := r.store.Mutate(func(all []model.SectionInstance) ([]model.SectionInstance, error) {
		if index < len(all) {
			if f, ok := all[index].Field(field); ok {
				f.Value = ""
			}
		}
		return all, nil
	})
	if err != nil {
		r.logger.Warn("cascade rollback failed", zap.Error(err))
	}
	r.logger.Warn("cascade fetch failed",
		zap.Int("section", index),
		zap.String("driver", field),
		zap.Error(cause),
	)
	return options.ErrFetchFailed
}

// resetDownstream empties and locks the dependants of the driver. Without a
// declared list every field after the driver is a dependant, unless the rule
// only inserts or computes.
func resetDownstream(section *model.SectionInstance, rule Rule, driverIdx int) []string {
	var names []string
	switch {
	case len(rule.Downstream) > 0:
		names = rule.Downstream
	case len(rule.Steps) == 0:
		return nil
	default:
		for _, f := range section.Fields[driverIdx+1:] {
			names = append(names, f.Name)
		}
	}

	var reset []string
	for _, name := range names {
		if f, ok := section.Field(name); ok {
			f.Reset()
			reset = append(reset, name)
		}
	}
	return reset
}

// populate hands fetched lists to same-section targets and groups the rest
// by target template.
func populate(section *model.SectionInstance, results []stepResult) ([]string, map[string][]stepResult) {
	var populated []string
	others := make(map[string][]stepResult)
	for _, res := range results {
		if res.step.Target == "" {
			continue
		}
		if res.step.TargetSection != "" {
			others[res.step.TargetSection] = append(others[res.step.TargetSection], res)
			continue
		}
		if f, ok := section.Field(res.step.Target); ok {
			unlock(f, res.options)
			populated = append(populated, res.step.Target)
		}
	}
	return populated, others
}

func unlock(field *model.FieldInstance, list []model.Option) {
	field.Options = model.CloneOptions(list)
	field.Value = ""
	field.ReadOnly = false
}

func (r *Resolver) applyInsertions(section *model.SectionInstance, rule Rule, change *Change) error {
	for _, insertion := range rule.Insertions {
		ok, err := r.cond.Eval(insertion.When, condition.Values(section.Values()))
		if err != nil {
			return fmt.Errorf("cascade: insertion %q: %w", insertion.Field.Name, err)
		}
		present := section.FieldIndex(insertion.Field.Name) >= 0
		switch {
		case ok && !present:
			at := len(section.Fields)
			if insertion.After != "" {
				if idx := section.FieldIndex(insertion.After); idx >= 0 {
					at = idx + 1
				}
			}
			section.InsertField(at, model.NewFieldInstance(insertion.Field, section.DuplicationID()))
			change.Inserted = append(change.Inserted, insertion.Field.Name)
		case !ok && present:
			section.RemoveField(insertion.Field.Name)
			change.Removed = append(change.Removed, insertion.Field.Name)
		}
	}
	return nil
}

// applyComputations runs in declaration order so later computations see
// earlier results. Inputs that do not parse leave the target empty.
func (r *Resolver) applyComputations(section *model.SectionInstance, rule Rule, change *Change) {
	for _, computation := range rule.Computations {
		target, ok := section.Field(computation.Target)
		if !ok {
			continue
		}
		values := condition.Values(section.Values())
		if when, err := r.cond.Eval(computation.When, values); err != nil || !when {
			continue
		}
		fn, ok := r.funcs[computation.Func]
		if !ok {
			r.logger.Warn("cascade: unknown computation", zap.String("func", computation.Func))
			continue
		}
		result, err := fn(computation.Args, values)
		if err != nil {
			r.logger.Debug("cascade: computation skipped",
				zap.String("target", computation.Target),
				zap.Error(err),
			)
			result = ""
		}
		target.Value = result
		change.Computed = append(change.Computed, computation.Target)
	}
}

// commit writes the section back and applies lists aimed at other templates
// to every one of their instances.
func (r *Resolver) commit(index int, section model.SectionInstance, others map[string][]stepResult) error {
	return r.store.Mutate(func(all []model.SectionInstance) ([]model.SectionInstance, error) {
		if index >= len(all) || all[index].SectionID != section.SectionID {
			return nil, fmt.Errorf("%w: section %d moved", sections.ErrIndexOutOfRange, index)
		}
		all[index] = section
		for i := range all {
			for _, res := range others[all[i].SectionID] {
				if f, ok := all[i].Field(res.step.Target); ok {
					unlock(f, res.options)
				}
			}
		}
		return all, nil
	})
}

func (r *Resolver) recordOthers(others map[string][]stepResult) []model.Key {
	if len(others) == 0 {
		return nil
	}
	for templateID, results := range others {
		for _, res := range results {
			r.cache.Put(templateID, res.step.Target, res.options)
		}
	}
	var keys []model.Key
	for _, section := range r.store.All() {
		if _, ok := others[section.SectionID]; ok {
			keys = append(keys, section.Key())
		}
	}
	return keys
}
