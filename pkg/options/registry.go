package options

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownQuery is returned by Get for names that were never registered.
var ErrUnknownQuery = errors.New("options: unknown query")

// Registry stores named queries so HTTP handlers, the CLI and template
// fields can refer to option lists by name.
type Registry struct {
	mu      sync.RWMutex
	queries map[string]Query
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{queries: make(map[string]Query)}
}

// Register adds a query under name. Duplicate names return an error.
func (r *Registry) Register(name string, q Query) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("options: query name is required")
	}
	q.Source = name
	q = q.WithDefaults()
	if err := q.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.queries[name]; exists {
		return fmt.Errorf("options: query %q already registered", name)
	}
	r.queries[name] = q.Clone()
	return nil
}

// Get retrieves a query by name.
func (r *Registry) Get(name string) (Query, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queries[name]
	if !ok {
		return Query{}, fmt.Errorf("%w %q", ErrUnknownQuery, name)
	}
	return q.Clone(), nil
}

// List returns the sorted query names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queries))
	for name := range r.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
