package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/cascade"
	"github.com/goliatone/go-formflow/pkg/duplication"
	"github.com/goliatone/go-formflow/pkg/export"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/normalize"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/sections"
	"github.com/goliatone/go-formflow/pkg/signers"
	"github.com/goliatone/go-formflow/pkg/templates"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// Session is one form being filled. Every mutating call holds the session
// lock, so driver handlers never interleave.
type Session struct {
	mu sync.Mutex

	engine     *Engine
	app        AppContext
	def        templates.Definition
	initial    []model.SectionInstance
	store      *sections.Store
	cache      *options.Cache
	dup        *duplication.Manager
	cascade    *cascade.Resolver
	signers    *signers.Resolver
	validator  *validation.Validator
	normalizer *normalize.Normalizer
	logger     *zap.Logger

	baseSigners model.SignerList
	active      model.SignerList
}

// Form returns the template the session was opened with.
func (s *Session) Form() model.FormTemplate {
	return s.def.Form
}

// App returns the caller context.
func (s *Session) App() AppContext {
	return s.app
}

// Sections returns a copy of the current sections.
func (s *Session) Sections() []model.SectionInstance {
	return s.store.All()
}

// Signers returns the active signer list.
func (s *Session) Signers() model.SignerList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Clone()
}

// SetValue stores a value without running cascade rules.
func (s *Session) SetValue(index int, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Mutate(func(all []model.SectionInstance) ([]model.SectionInstance, error) {
		if index < 0 || index >= len(all) {
			return nil, fmt.Errorf("%w: section %d", sections.ErrIndexOutOfRange, index)
		}
		f, ok := all[index].Field(field)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", cascade.ErrUnknownField, all[index].SectionID, field)
		}
		f.Value = value
		return all, nil
	})
}

// OnFieldChange stores value and runs the cascade rule of the field. When
// the field drives the signer list the list is recomputed; a failure there
// clears the driver again and restores the default list.
func (s *Session) OnFieldChange(ctx context.Context, index int, field, value string) (cascade.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.cascade.OnFieldChange(ctx, index, field, value)
	if err != nil {
		s.resyncSigners(index, field)
		return change, err
	}

	if err := s.recomputeSigners(ctx, index, field); err != nil {
		if _, rollbackErr := s.cascade.OnFieldChange(ctx, index, field, ""); rollbackErr != nil {
			s.logger.Warn("signer driver rollback failed", zap.Error(rollbackErr))
		}
		s.resyncSigners(index, field)
		return cascade.Change{}, err
	}
	return change, nil
}

// resyncSigners realigns the signer list with the stored values after a
// failed change. A cleared driver means the template defaults apply again.
func (s *Session) resyncSigners(index int, field string) {
	form := s.def.Form
	switch {
	case form.SignerDriver != "" && field == form.SignerDriver:
		section, ok := s.store.At(index)
		if ok && section.Value(field) != "" {
			return
		}
		s.baseSigners = s.signers.Default()
	case form.CategoryField != "" && field == form.CategoryField:
	default:
		return
	}
	s.active = s.withCategorySigners(s.baseSigners)
}

func (s *Session) recomputeSigners(ctx context.Context, index int, field string) error {
	form := s.def.Form
	switch {
	case form.SignerDriver != "" && field == form.SignerDriver:
		section, ok := s.store.At(index)
		if !ok {
			return fmt.Errorf("%w: section %d", sections.ErrIndexOutOfRange, index)
		}
		projectID := ""
		if section.Value(field) != "" {
			id, ok := normalize.ResolveOption(section, field)
			if !ok {
				return fmt.Errorf("engine: %w: %q", normalize.ErrUnresolvedOption, section.Value(field))
			}
			projectID = id
		}
		list, err := s.signers.ForProject(ctx, projectID)
		if err != nil {
			return err
		}
		s.baseSigners = list
	case form.CategoryField != "" && field == form.CategoryField:
	default:
		return nil
	}
	s.active = s.withCategorySigners(s.baseSigners)
	s.logger.Debug("signers recomputed", zap.Int("count", len(s.active)))
	return nil
}

func (s *Session) withCategorySigners(base model.SignerList) model.SignerList {
	field := s.def.Form.CategoryField
	if field == "" {
		return base.Clone()
	}
	return signers.AppendCategorySigners(base, s.store.All(), field, s.engine.categoryKey)
}

// Duplicate adds an instance of a duplicatable section template.
func (s *Session) Duplicate(templateID string) (model.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dup.Duplicate(templateID)
}

// Remove deletes the instance with duplicationID.
func (s *Session) Remove(duplicationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dup.Remove(duplicationID); err != nil {
		return err
	}
	s.active = s.withCategorySigners(s.baseSigners)
	return nil
}

// RemoveAt deletes the instance at index.
func (s *Session) RemoveAt(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dup.RemoveAt(index); err != nil {
		return err
	}
	s.active = s.withCategorySigners(s.baseSigners)
	return nil
}

// CanDuplicate reports whether another instance of templateID may be added.
func (s *Session) CanDuplicate(templateID string) bool {
	return s.dup.CanDuplicate(templateID)
}

// Validate runs field validation and the configured rules.
func (s *Session) Validate() error {
	return s.validator.Validate(s.store.All())
}

// CheckQuantityCaps rejects line items of templateID whose summed quantity
// exceeds the linked document caps, keyed by item name.
func (s *Session) CheckQuantityCaps(templateID string, caps map[string]decimal.Decimal) error {
	fold := s.def.Form.Fold
	return validation.QuantityCaps(s.store.All(), templateID, fold.NameField, fold.QuantityField, caps)
}

// Normalize produces the submission payload without sending it.
func (s *Session) Normalize() (normalize.Submission, error) {
	s.mu.Lock()
	signerList := s.active.Clone()
	s.mu.Unlock()
	return s.normalizer.Normalize(s.store.All(), signerList)
}

// Submit validates, normalises and stores the request. Store field errors
// come back as *validation.Error mapped onto the form.
func (s *Session) Submit(ctx context.Context) (string, error) {
	formID := s.def.Form.ID
	id, err := s.submit(ctx)
	s.engine.submitObserver.Submitted(formID, err)
	return id, err
}

func (s *Session) submit(ctx context.Context) (string, error) {
	if s.engine.submitter == nil {
		return "", ErrNoSubmitter
	}
	if err := s.Validate(); err != nil {
		return "", err
	}
	submission, err := s.Normalize()
	if err != nil {
		return "", err
	}
	id, err := s.engine.submitter.Submit(ctx, submission, s.app.Owner())
	if err != nil {
		var backendErr *backend.Error
		if errors.As(err, &backendErr) && len(backendErr.Fields) > 0 {
			return "", validation.MapErrors(s.store.All(), backendErr.Fields)
		}
		return "", err
	}
	s.logger.Info("request submitted", zap.String("request", id))
	return id, nil
}

// Reset restores the freshly opened state: one instance per template with
// the prefetched option lists, default signers and an empty cascade cache.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Replace(model.CloneSections(s.initial))
	s.cache.Clear()
	for _, section := range s.initial {
		for _, field := range section.Fields {
			if len(field.Options) > 0 {
				s.cache.Put(section.SectionID, field.Name, field.Options)
			}
		}
	}
	s.baseSigners = s.signers.Default()
	s.active = s.withCategorySigners(s.baseSigners)
}

// Lines returns the pre-formatted field list for external renderers.
func (s *Session) Lines() []export.Line {
	return export.Lines(s.def.Form, s.store.All())
}

// Export renders the plain-text rendition of the form.
func (s *Session) Export(out ...io.Writer) (string, error) {
	title := s.def.Form.Name
	if title == "" {
		title = s.def.Form.ID
	}
	return s.engine.exporter.Render(export.Document{
		Title:   title,
		Lines:   s.Lines(),
		Signers: s.Signers(),
	}, out...)
}
