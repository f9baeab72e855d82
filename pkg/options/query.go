package options

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Filter operators understood by the backends.
const (
	OpEq    = "eq"
	OpNeq   = "neq"
	OpILike = "ilike"
	OpIn    = "in"
)

// Filter restricts the rows of a query. Value may contain placeholders that
// the cascade resolver expands before the query runs.
type Filter struct {
	Column string `json:"column" yaml:"column"`
	Op     string `json:"op,omitempty" yaml:"op,omitempty"`
	Value  string `json:"value" yaml:"value"`
}

// Operator returns the filter operator, defaulting to equality.
func (f Filter) Operator() string {
	op := strings.ToLower(strings.TrimSpace(f.Op))
	if op == "" {
		return OpEq
	}
	return op
}

// Query describes one option list living in a backend table.
type Query struct {
	// Source is the registry name of the query, used for logs and metrics.
	Source      string   `json:"source,omitempty" yaml:"source,omitempty"`
	Table       string   `json:"table" yaml:"table"`
	IDColumn    string   `json:"idColumn,omitempty" yaml:"idColumn,omitempty"`
	ValueColumn string   `json:"valueColumn,omitempty" yaml:"valueColumn,omitempty"`
	OrderColumn string   `json:"orderColumn,omitempty" yaml:"orderColumn,omitempty"`
	MetaColumns []string `json:"metaColumns,omitempty" yaml:"metaColumns,omitempty"`
	Filters     []Filter `json:"filters,omitempty" yaml:"filters,omitempty"`
	// FieldID stamps fetched options with their owning field.
	FieldID string `json:"fieldId,omitempty" yaml:"fieldId,omitempty"`
}

// WithDefaults fills in the conventional column names.
func (q Query) WithDefaults() Query {
	if q.IDColumn == "" {
		q.IDColumn = "id"
	}
	if q.ValueColumn == "" {
		q.ValueColumn = "name"
	}
	if q.OrderColumn == "" {
		q.OrderColumn = q.IDColumn
	}
	if q.Source == "" {
		q.Source = q.Table
	}
	return q
}

// Validate reports missing mandatory parts of the query.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Table) == "" {
		return fmt.Errorf("options: query %q missing table", q.Source)
	}
	for _, filter := range q.Filters {
		if strings.TrimSpace(filter.Column) == "" {
			return fmt.Errorf("options: query %q has a filter without column", q.Source)
		}
		switch filter.Operator() {
		case OpEq, OpNeq, OpILike, OpIn:
		default:
			return fmt.Errorf("options: query %q uses unsupported operator %q", q.Source, filter.Op)
		}
	}
	return nil
}

// Clone returns a copy that does not share filter or column slices.
func (q Query) Clone() Query {
	out := q
	out.Filters = append([]Filter(nil), q.Filters...)
	out.MetaColumns = append([]string(nil), q.MetaColumns...)
	return out
}

// Page is one batch returned by a PageFetcher. Total is the exact row count
// when the backend reports one and -1 otherwise.
type Page struct {
	Options []model.Option
	Total   int
}

// RowToOption maps a generic row onto an Option using the query columns.
func RowToOption(q Query, row map[string]any, order int) model.Option {
	option := model.Option{
		ID:      stringify(row[q.IDColumn]),
		Value:   stringify(row[q.ValueColumn]),
		Order:   order,
		FieldID: q.FieldID,
	}
	if len(q.MetaColumns) > 0 {
		option.Meta = make(map[string]string, len(q.MetaColumns))
		for _, column := range q.MetaColumns {
			if value, ok := row[column]; ok && value != nil {
				option.Meta[column] = stringify(value)
			}
		}
		if len(option.Meta) == 0 {
			option.Meta = nil
		}
	}
	return option
}

// SelectColumns lists the distinct columns needed to build options.
func (q Query) SelectColumns() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(column string) {
		column = strings.TrimSpace(column)
		if column == "" {
			return
		}
		if _, ok := seen[column]; ok {
			return
		}
		seen[column] = struct{}{}
		out = append(out, column)
	}
	add(q.IDColumn)
	add(q.ValueColumn)
	meta := append([]string(nil), q.MetaColumns...)
	sort.Strings(meta)
	for _, column := range meta {
		add(column)
	}
	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}
