// Package cascade interprets the declarative dependency graph that links a
// driver field to the fields it controls: option lists fetched from the
// backend, fields reset when the driver changes, conditional field
// insertions and computed values.
package cascade

import (
	"fmt"

	"github.com/goliatone/go-formflow/pkg/condition"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/options"
)

// Step fetches one option list. Filter values may reference placeholders
// such as {{value}} or {{ref:region_id}}.
type Step struct {
	Query options.Query `json:"query" yaml:"query"`
	// Capture stores the id of the first returned option under this ref
	// name for later steps.
	Capture string `json:"capture,omitempty" yaml:"capture,omitempty"`
	// Target is the field whose options receive the list.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// TargetSection redirects Target to every instance of another section
	// template. The list is also recorded in the option cache.
	TargetSection string `json:"targetSection,omitempty" yaml:"targetSection,omitempty"`
}

// Insertion adds Field to the section while When holds and removes it
// otherwise.
type Insertion struct {
	When  string              `json:"when" yaml:"when"`
	Field model.FieldTemplate `json:"field" yaml:"field"`
	// After names the field the insertion follows; empty appends.
	After string `json:"after,omitempty" yaml:"after,omitempty"`
}

// Computation writes the result of a named function into Target.
type Computation struct {
	Target string   `json:"target" yaml:"target"`
	Func   string   `json:"func" yaml:"func"`
	Args   []string `json:"args,omitempty" yaml:"args,omitempty"`
	When   string   `json:"when,omitempty" yaml:"when,omitempty"`
}

// Rule declares everything that happens when Driver changes inside an
// instance of Section.
type Rule struct {
	Section      string        `json:"section" yaml:"section"`
	Driver       string        `json:"driver" yaml:"driver"`
	Steps        []Step        `json:"steps,omitempty" yaml:"steps,omitempty"`
	Downstream   []string      `json:"downstream,omitempty" yaml:"downstream,omitempty"`
	Insertions   []Insertion   `json:"insertions,omitempty" yaml:"insertions,omitempty"`
	Computations []Computation `json:"computations,omitempty" yaml:"computations,omitempty"`
}

// Graph is the set of rules of one form.
type Graph struct {
	Rules []Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Rule returns the rule for a driver field of a section template.
func (g Graph) Rule(section, driver string) (Rule, bool) {
	for _, rule := range g.Rules {
		if rule.Section == section && rule.Driver == driver {
			return rule, true
		}
	}
	return Rule{}, false
}

// Drivers lists the driver fields declared for a section template.
func (g Graph) Drivers(section string) []string {
	var out []string
	for _, rule := range g.Rules {
		if rule.Section == section {
			out = append(out, rule.Driver)
		}
	}
	return out
}

// Validate checks the graph against the form template.
func (g Graph) Validate(form model.FormTemplate) error {
	seen := make(map[string]struct{}, len(g.Rules))
	for _, rule := range g.Rules {
		id := rule.Section + "." + rule.Driver
		if _, dup := seen[id]; dup {
			return fmt.Errorf("cascade: duplicate rule for %s", id)
		}
		seen[id] = struct{}{}

		section, ok := form.Section(rule.Section)
		if !ok {
			return fmt.Errorf("cascade: rule %s references unknown section", id)
		}
		if _, ok := section.Field(rule.Driver); !ok {
			return fmt.Errorf("cascade: rule %s references unknown driver", id)
		}
		for _, name := range rule.Downstream {
			if _, ok := section.Field(name); !ok && !inserts(rule, name) {
				return fmt.Errorf("cascade: rule %s resets unknown field %q", id, name)
			}
		}
		for i, step := range rule.Steps {
			if err := validateStep(form, section, rule, step); err != nil {
				return fmt.Errorf("cascade: rule %s step %d: %w", id, i, err)
			}
		}
		for _, insertion := range rule.Insertions {
			if insertion.Field.Name == "" {
				return fmt.Errorf("cascade: rule %s inserts a field without name", id)
			}
			if _, err := condition.Compile(insertion.When); err != nil {
				return fmt.Errorf("cascade: rule %s: %w", id, err)
			}
		}
		for _, computation := range rule.Computations {
			if computation.Target == "" || computation.Func == "" {
				return fmt.Errorf("cascade: rule %s has an incomplete computation", id)
			}
			if _, err := condition.Compile(computation.When); err != nil {
				return fmt.Errorf("cascade: rule %s: %w", id, err)
			}
		}
	}
	return nil
}

func validateStep(form model.FormTemplate, section model.SectionTemplate, rule Rule, step Step) error {
	if err := step.Query.WithDefaults().Validate(); err != nil {
		return err
	}
	if step.Target == "" && step.Capture == "" {
		return fmt.Errorf("step needs a target or a capture")
	}
	if step.Target == "" {
		return nil
	}
	if step.TargetSection != "" {
		other, ok := form.Section(step.TargetSection)
		if !ok {
			return fmt.Errorf("unknown target section %q", step.TargetSection)
		}
		if _, ok := other.Field(step.Target); !ok {
			return fmt.Errorf("unknown target %s.%s", step.TargetSection, step.Target)
		}
		return nil
	}
	if _, ok := section.Field(step.Target); !ok && !inserts(rule, step.Target) {
		return fmt.Errorf("unknown target %q", step.Target)
	}
	return nil
}

func inserts(rule Rule, name string) bool {
	for _, insertion := range rule.Insertions {
		if insertion.Field.Name == name {
			return true
		}
	}
	return false
}
