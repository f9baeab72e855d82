// Package normalize prepares in-progress sections for submission: repeated
// line items are folded together, bookkeeping is stripped, the project
// option is resolved and free text is sanitised.
package normalize

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Fold merges line-item sections that describe the same item. Sections
// after the header sections are the same item when they share a template,
// their name field values are equal, and every field from CompareFrom onward
// (except name and quantity) has the same value. Quantities of folded
// sections are summed; the first occurrence keeps its position. Sections
// whose quantity does not parse are never folded, and later occurrences of
// the same item fold into the first occurrence that does parse.
//
// Fold is idempotent and returns a new slice.
func Fold(sections []model.SectionInstance, cfg model.FoldConfig) []model.SectionInstance {
	out := model.CloneSections(sections)
	if !cfg.Enabled() {
		return out
	}
	header := cfg.HeaderSections
	if header <= 0 {
		header = 1
	}
	if len(out) <= header {
		return out
	}

	items := make([]model.SectionInstance, 0, len(out)-header)
	for _, section := range out[header:] {
		merged := false
		for i := range items {
			if sameItem(items[i], section, cfg) && addQuantity(&items[i], section, cfg.QuantityField) {
				merged = true
				break
			}
		}
		if !merged {
			items = append(items, section)
		}
	}
	return append(out[:header:header], items...)
}

func sameItem(a, b model.SectionInstance, cfg model.FoldConfig) bool {
	if a.SectionID != b.SectionID {
		return false
	}
	name := nameField(a, cfg)
	if name == "" || strings.TrimSpace(a.Value(name)) != strings.TrimSpace(b.Value(name)) {
		return false
	}
	return attributesEqual(attributes(a, name, cfg), attributes(b, name, cfg))
}

func nameField(section model.SectionInstance, cfg model.FoldConfig) string {
	if cfg.NameField != "" {
		return cfg.NameField
	}
	if len(section.Fields) == 0 {
		return ""
	}
	return section.Fields[0].Name
}

func attributes(section model.SectionInstance, name string, cfg model.FoldConfig) map[string]string {
	out := make(map[string]string)
	for i, field := range section.Fields {
		if i < cfg.CompareFrom || field.Name == name || field.Name == cfg.QuantityField {
			continue
		}
		out[field.Name] = strings.TrimSpace(field.Value)
	}
	return out
}

func attributesEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}

// addQuantity adds the quantity of src to dst and reports whether both
// parsed.
func addQuantity(dst *model.SectionInstance, src model.SectionInstance, field string) bool {
	target, ok := dst.Field(field)
	if !ok {
		return false
	}
	left, err := parseQuantity(target.Value)
	if err != nil {
		return false
	}
	right, err := parseQuantity(src.Value(field))
	if err != nil {
		return false
	}
	target.Value = left.Add(right).String()
	return true
}

func parseQuantity(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
