package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Rule inspects the sections and records problems on errs.
type Rule func(sections []model.SectionInstance, errs *Error)

// Validator runs the built-in required, number and pattern checks followed
// by any extra rules.
type Validator struct {
	rules []Rule

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// New creates a validator with additional rules.
func New(rules ...Rule) *Validator {
	return &Validator{
		rules:    append([]Rule(nil), rules...),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Validate returns a *Error when any field fails, nil otherwise.
func (v *Validator) Validate(sections []model.SectionInstance) error {
	errs := &Error{}
	for _, section := range sections {
		key := section.Key()
		for _, field := range section.Fields {
			path := model.FieldPath(key, field.Name)
			value := strings.TrimSpace(field.Value)
			if field.Required && value == "" {
				errs.Add(path, fmt.Sprintf("%s is required", labelOf(field)))
				continue
			}
			if value == "" {
				continue
			}
			if field.Type == model.FieldTypeNumber && !isNumber(value) {
				errs.Add(path, fmt.Sprintf("%s must be a number", labelOf(field)))
				continue
			}
			if field.Pattern == "" {
				continue
			}
			re, err := v.compile(field.Pattern)
			if err != nil {
				errs.Add(path, fmt.Sprintf("%s has an invalid pattern", labelOf(field)))
				continue
			}
			if !re.MatchString(value) {
				errs.Add(path, fmt.Sprintf("%s has an invalid format", labelOf(field)))
			}
		}
	}
	for _, rule := range v.rules {
		rule(sections, errs)
	}
	return errs.OrNil()
}

// isNumber accepts decimals with optional thousands separators.
func isNumber(value string) bool {
	_, err := decimal.NewFromString(strings.ReplaceAll(value, ",", ""))
	return err == nil
}

func (v *Validator) compile(pattern string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	v.patterns[pattern] = re
	return re, nil
}

// UniqueValue flags every instance of templateID whose field value repeats an
// earlier instance. Comparison ignores case and surrounding whitespace.
func UniqueValue(templateID, field string) Rule {
	return func(sections []model.SectionInstance, errs *Error) {
		seen := make(map[string]struct{})
		for _, section := range sections {
			if section.SectionID != templateID {
				continue
			}
			value := strings.ToLower(strings.TrimSpace(section.Value(field)))
			if value == "" {
				continue
			}
			if _, ok := seen[value]; ok {
				errs.Add(model.FieldPath(section.Key(), field), "name is already used")
				continue
			}
			seen[value] = struct{}{}
		}
	}
}

// QuantityCaps rejects submissions whose summed quantity per item exceeds the
// remaining quantity of a linked document. caps is keyed by item name. An
// empty nameField means the first field of each section, as in folding.
func QuantityCaps(sections []model.SectionInstance, templateID, nameField, quantityField string, caps map[string]decimal.Decimal) error {
	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, section := range sections {
		if section.SectionID != templateID {
			continue
		}
		field := nameField
		if field == "" && len(section.Fields) > 0 {
			field = section.Fields[0].Name
		}
		name := strings.TrimSpace(section.Value(field))
		if _, capped := caps[name]; !capped {
			continue
		}
		qty, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(section.Value(quantityField)), ",", ""))
		if err != nil {
			continue
		}
		if _, ok := totals[name]; !ok {
			order = append(order, name)
		}
		totals[name] = totals[name].Add(qty)
	}

	var offending []string
	for _, name := range order {
		if totals[name].GreaterThan(caps[name]) {
			offending = append(offending, fmt.Sprintf("%s (%s > %s)", name, totals[name].String(), caps[name].String()))
		}
	}
	if len(offending) == 0 {
		return nil
	}
	return Reject("quantity exceeds the linked document", offending...)
}

func labelOf(field model.FieldInstance) string {
	if field.Label != "" {
		return field.Label
	}
	return model.DefaultLabeler(field.Name)
}
