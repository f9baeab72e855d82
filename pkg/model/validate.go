package model

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	errFormIDMissing    = errors.New("model: form id is required")
	errSectionsMissing  = errors.New("model: form has no sections")
	errSectionIDMissing = errors.New("model: section id is required")
)

// Validate checks structural invariants of a template: ids present and
// unique, known field types, compilable patterns and a sane fold config.
func (f FormTemplate) Validate() error {
	if f.ID == "" {
		return errFormIDMissing
	}
	if len(f.Sections) == 0 {
		return errSectionsMissing
	}
	seenSections := make(map[string]struct{}, len(f.Sections))
	for _, section := range f.Sections {
		if section.ID == "" {
			return errSectionIDMissing
		}
		if _, ok := seenSections[section.ID]; ok {
			return fmt.Errorf("model: duplicate section %q", section.ID)
		}
		seenSections[section.ID] = struct{}{}
		if section.MaxInstances < 0 {
			return fmt.Errorf("model: section %q has negative maxInstances", section.ID)
		}
		if err := validateFields(section); err != nil {
			return err
		}
	}
	if f.Fold.HeaderSections < 0 || f.Fold.CompareFrom < 0 {
		return fmt.Errorf("model: form %q has a negative fold index", f.ID)
	}
	return nil
}

func validateFields(section SectionTemplate) error {
	seen := make(map[string]struct{}, len(section.Fields))
	for _, field := range section.Fields {
		if field.Name == "" {
			return fmt.Errorf("model: section %q has a field without name", section.ID)
		}
		if _, ok := seen[field.Name]; ok {
			return fmt.Errorf("model: section %q defines field %q twice", section.ID, field.Name)
		}
		seen[field.Name] = struct{}{}
		if !field.Type.Valid() {
			return fmt.Errorf("model: field %s.%s has unknown type %q", section.ID, field.Name, field.Type)
		}
		if field.Pattern != "" {
			if _, err := regexp.Compile(field.Pattern); err != nil {
				return fmt.Errorf("model: field %s.%s pattern: %w", section.ID, field.Name, err)
			}
		}
	}
	return nil
}
