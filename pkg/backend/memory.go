package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-formflow/pkg/options"
)

// Memory is a Client backed by in-process tables. It is used by tests, the
// CLI demo mode and as a fixture loader.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

var _ Client = (*Memory)(nil)

// NewMemory creates a store seeded with tables.
func NewMemory(tables map[string][]Row) *Memory {
	m := &Memory{tables: make(map[string][]Row, len(tables))}
	for name, rows := range tables {
		for _, row := range rows {
			m.tables[name] = append(m.tables[name], cloneRow(row))
		}
	}
	return m
}

// Rows filters, sorts and pages a table. Unknown tables are empty.
func (m *Memory) Rows(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Row
	for _, row := range m.tables[req.Table] {
		ok, err := matches(row, req.Filters)
		if err != nil {
			return Result{}, err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	if column, asc := OrderSpec(req.Order); column != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][column], matched[j][column])
			if asc {
				return c < 0
			}
			return c > 0
		})
	}

	total := -1
	if req.Count {
		total = len(matched)
	}
	start := req.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if req.Limit > 0 && start+req.Limit < end {
		end = start + req.Limit
	}

	out := Result{Total: total, Rows: make([]Row, 0, end-start)}
	for _, row := range matched[start:end] {
		out.Rows = append(out.Rows, project(row, req.Columns))
	}
	return out, nil
}

// Insert appends row, assigning a uuid id when none is set.
func (m *Memory) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("backend: table is required")
	}
	stored := cloneRow(row)
	if id, ok := stored["id"]; !ok || id == nil || id == "" {
		stored["id"] = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], stored)
	return cloneRow(stored), nil
}

// Table returns a copy of every row of a table.
func (m *Memory) Table(name string) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Row, 0, len(m.tables[name]))
	for _, row := range m.tables[name] {
		out = append(out, cloneRow(row))
	}
	return out
}

func matches(row Row, filters []options.Filter) (bool, error) {
	for _, filter := range filters {
		value := fmt.Sprint(valueOrEmpty(row[filter.Column]))
		switch filter.Operator() {
		case options.OpEq:
			if value != filter.Value {
				return false, nil
			}
		case options.OpNeq:
			if value == filter.Value {
				return false, nil
			}
		case options.OpILike:
			if !likeMatch(strings.ToLower(value), strings.ToLower(filter.Value)) {
				return false, nil
			}
		case options.OpIn:
			found := false
			for _, candidate := range strings.Split(filter.Value, ",") {
				if strings.TrimSpace(candidate) == value {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("backend: unsupported operator %q", filter.Op)
		}
	}
	return true, nil
}

// likeMatch supports the % wildcard (and PostgREST's *) anywhere in pattern.
func likeMatch(value, pattern string) bool {
	pattern = strings.ReplaceAll(pattern, "*", "%")
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return value == pattern
	}
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return strings.HasSuffix(value, last)
}

func compareValues(a, b any) int {
	af, aNum := number(a)
	bf, bNum := number(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(valueOrEmpty(a)), fmt.Sprint(valueOrEmpty(b)))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func project(row Row, columns []string) Row {
	if len(columns) == 0 {
		return cloneRow(row)
	}
	out := make(Row, len(columns))
	for _, column := range columns {
		if value, ok := row[column]; ok {
			out[column] = value
		}
	}
	return out
}

func cloneRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
