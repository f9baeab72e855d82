// Package duplication creates and removes repeatable section instances.
//
// The first instance of a duplicatable template is canonical and carries no
// duplication id. Every later instance gets a fresh id shared by all of its
// fields, which is how the rest of the engine tells clones apart.
package duplication

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/sections"
	"github.com/goliatone/go-formflow/pkg/validation"
)

var (
	ErrUnknownSection   = errors.New("duplication: unknown section template")
	ErrNotDuplicatable  = errors.New("duplication: section is not duplicatable")
	ErrCapReached       = errors.New("duplication: section limit reached")
	ErrCanonicalRemoval = errors.New("duplication: canonical instance cannot be removed by id")
	ErrUnknownInstance  = errors.New("duplication: no instance with that duplication id")
)

// IDGenerator returns candidate duplication ids.
type IDGenerator func() string

// Option customises a Manager.
type Option func(*Manager)

// WithCache attaches option lists fetched earlier to new clones.
func WithCache(cache *options.Cache) Option {
	return func(m *Manager) {
		m.cache = cache
	}
}

// WithIDGenerator overrides the uuid based generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager duplicates and removes section instances of one form.
type Manager struct {
	form   model.FormTemplate
	store  *sections.Store
	cache  *options.Cache
	newID  IDGenerator
	logger *zap.Logger
	order  map[string]int
}

// NewManager binds a manager to the form template and its section store.
func NewManager(form model.FormTemplate, store *sections.Store, opts ...Option) *Manager {
	m := &Manager{
		form:   form,
		store:  store,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
		order:  make(map[string]int, len(form.Sections)),
	}
	for i, section := range form.Sections {
		m.order[section.ID] = i
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Count returns the number of live instances of templateID.
func (m *Manager) Count(templateID string) int {
	return len(m.store.IndicesOf(templateID))
}

// CanDuplicate reports whether Duplicate would currently succeed.
func (m *Manager) CanDuplicate(templateID string) bool {
	tpl, ok := m.form.Section(templateID)
	if !ok {
		return false
	}
	count := m.Count(templateID)
	if count > 0 && !tpl.Duplicatable {
		return false
	}
	return tpl.MaxInstances == 0 || count < tpl.MaxInstances
}

// Duplicate inserts a new instance of templateID after its last existing
// instance and returns the key of the new instance.
func (m *Manager) Duplicate(templateID string) (model.Key, error) {
	tpl, ok := m.form.Section(templateID)
	if !ok {
		return model.Key{}, fmt.Errorf("%w: %q", ErrUnknownSection, templateID)
	}

	var key model.Key
	err := m.store.Mutate(func(all []model.SectionInstance) ([]model.SectionInstance, error) {
		count, last := 0, -1
		used := make(map[string]struct{})
		for i, section := range all {
			if id := section.DuplicationID(); id != "" {
				used[id] = struct{}{}
			}
			if section.SectionID == templateID {
				count++
				last = i
			}
		}

		if count > 0 && !tpl.Duplicatable {
			return nil, fmt.Errorf("%w: %q", ErrNotDuplicatable, templateID)
		}
		if tpl.MaxInstances > 0 && count >= tpl.MaxInstances {
			return nil, &validation.BusinessRuleError{
				Rule:  fmt.Sprintf("at most %d instances allowed", tpl.MaxInstances),
				Items: []string{sectionLabel(tpl)},
				Cause: ErrCapReached,
			}
		}

		id := ""
		if count > 0 {
			id = m.freshID(used)
		}
		instance := model.NewSectionInstance(tpl, id)
		for i := range instance.Fields {
			if cached, ok := m.cache.Get(templateID, instance.Fields[i].Name); ok {
				instance.Fields[i].Options = cached
			}
		}

		at := last + 1
		if last < 0 {
			at = m.insertionPoint(all, tpl)
		}
		all = append(all, model.SectionInstance{})
		copy(all[at+1:], all[at:])
		all[at] = instance
		key = instance.Key()
		return all, nil
	})
	if err != nil {
		return model.Key{}, err
	}

	m.logger.Debug("section duplicated",
		zap.String("section", templateID),
		zap.String("key", key.String()),
	)
	return key, nil
}

// Remove deletes the instance carrying duplicationID. When only one instance
// of the template is left it is demoted to canonical.
func (m *Manager) Remove(duplicationID string) error {
	if duplicationID == "" {
		return ErrCanonicalRemoval
	}
	return m.removeWhere(func(all []model.SectionInstance) (int, error) {
		for i, section := range all {
			if section.DuplicationID() == duplicationID {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: %q", ErrUnknownInstance, duplicationID)
	})
}

// RemoveAt deletes the instance at index. Index 0 is a valid target.
func (m *Manager) RemoveAt(index int) error {
	return m.removeWhere(func(all []model.SectionInstance) (int, error) {
		if index < 0 || index >= len(all) {
			return -1, fmt.Errorf("%w: remove %d (len %d)", sections.ErrIndexOutOfRange, index, len(all))
		}
		return index, nil
	})
}

func (m *Manager) removeWhere(locate func([]model.SectionInstance) (int, error)) error {
	var removed model.Key
	err := m.store.Mutate(func(all []model.SectionInstance) ([]model.SectionInstance, error) {
		idx, err := locate(all)
		if err != nil {
			return nil, err
		}
		removed = all[idx].Key()
		all = append(all[:idx], all[idx+1:]...)

		// The first remaining instance becomes canonical; with one instance
		// left this is the demotion of the survivor.
		for i := range all {
			if all[i].SectionID == removed.TemplateID {
				all[i].SetDuplicationID("")
				break
			}
		}
		return all, nil
	})
	if err != nil {
		return err
	}
	m.logger.Debug("section removed", zap.String("key", removed.String()))
	return nil
}

const maxIDAttempts = 16

// freshID asks the generator for an unused id and falls back to uuid when the
// generator keeps colliding.
func (m *Manager) freshID(used map[string]struct{}) string {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := m.newID()
		if id == "" {
			continue
		}
		if _, taken := used[id]; !taken {
			return id
		}
	}
	for {
		id := uuid.NewString()
		if _, taken := used[id]; !taken {
			return id
		}
	}
}

// insertionPoint places the first instance of a template before the first
// section whose template comes later in the form.
func (m *Manager) insertionPoint(all []model.SectionInstance, tpl model.SectionTemplate) int {
	want := m.order[tpl.ID]
	for i, section := range all {
		if order, ok := m.order[section.SectionID]; ok && order > want {
			return i
		}
	}
	return len(all)
}

func sectionLabel(tpl model.SectionTemplate) string {
	if tpl.Name != "" {
		return tpl.Name
	}
	return model.DefaultLabeler(tpl.ID)
}
