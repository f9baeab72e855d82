// Package templates loads form templates, their cascade graphs and named
// option queries from JSON or YAML documents, and derives templates from
// OpenAPI request bodies.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formflow/pkg/cascade"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/options"
)

// ErrUnknownForm is returned when no template has the requested id.
var ErrUnknownForm = errors.New("templates: unknown form")

// Definition is a form template together with its cascade rules.
type Definition struct {
	Form  model.FormTemplate
	Graph cascade.Graph
}

// Validate checks the form and the graph against it.
func (d Definition) Validate() error {
	if err := d.Form.Validate(); err != nil {
		return err
	}
	return d.Graph.Validate(d.Form)
}

// Source resolves a form id to its definition.
type Source interface {
	Definition(ctx context.Context, formID string) (Definition, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context, formID string) (Definition, error)

// Definition calls fn.
func (fn SourceFunc) Definition(ctx context.Context, formID string) (Definition, error) {
	return fn(ctx, formID)
}

// DocumentSource decodes definitions fetched as raw documents, for example
// the definition column of the form template table.
func DocumentSource(fetch func(ctx context.Context, formID string) ([]byte, error)) Source {
	return SourceFunc(func(ctx context.Context, formID string) (Definition, error) {
		data, err := fetch(ctx, formID)
		if err != nil {
			return Definition{}, err
		}
		return DecodeDefinition(data, formID)
	})
}

// formFile is the on-disk shape of a form: the template plus an optional
// cascade block.
type formFile struct {
	model.FormTemplate `yaml:",inline"`
	Cascade            cascade.Graph `json:"cascade" yaml:"cascade"`
}

type documentFile struct {
	Forms   []formFile               `json:"forms" yaml:"forms"`
	Queries map[string]options.Query `json:"queries" yaml:"queries"`
}

// DecodeDefinition parses a single form document. An empty form id falls
// back to fallbackID.
func DecodeDefinition(data []byte, fallbackID string) (Definition, error) {
	var file formFile
	if err := decode(data, &file); err != nil {
		return Definition{}, fmt.Errorf("templates: form %q: %w", fallbackID, err)
	}
	def := Definition{Form: file.FormTemplate, Graph: file.Cascade}
	if def.Form.ID == "" {
		def.Form.ID = fallbackID
	}
	if err := def.Validate(); err != nil {
		return Definition{}, fmt.Errorf("templates: form %q: %w", def.Form.ID, err)
	}
	return def, nil
}

// Bundle holds every definition and query loaded from documents.
type Bundle struct {
	mu      sync.RWMutex
	forms   map[string]Definition
	queries *options.Registry
}

var _ Source = (*Bundle)(nil)

// NewBundle creates an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{forms: make(map[string]Definition), queries: options.NewRegistry()}
}

// LoadFS walks fsys and parses every JSON/YAML document. A nil fsys yields
// an empty bundle.
func LoadFS(fsys fs.FS) (*Bundle, error) {
	bundle := NewBundle()
	if fsys == nil {
		return bundle, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isDocument(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("templates: read %s: %w", path, err)
		}
		return bundle.loadDocument(data, path)
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (b *Bundle) loadDocument(data []byte, source string) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("templates: file %s is empty", source)
	}
	var doc documentFile
	if err := decode(data, &doc); err != nil {
		return fmt.Errorf("templates: parse %s: %w", source, err)
	}

	names := make([]string, 0, len(doc.Queries))
	for name := range doc.Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.queries.Register(name, doc.Queries[name]); err != nil {
			return fmt.Errorf("templates: file %s: %w", source, err)
		}
	}

	for _, file := range doc.Forms {
		def := Definition{Form: file.FormTemplate, Graph: file.Cascade}
		if err := def.Validate(); err != nil {
			return fmt.Errorf("templates: file %s: %w", source, err)
		}
		if err := b.Add(def); err != nil {
			return fmt.Errorf("templates: file %s: %w", source, err)
		}
	}
	return nil
}

// Add registers a definition. Duplicate form ids are rejected.
func (b *Bundle) Add(def Definition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.forms[def.Form.ID]; exists {
		return fmt.Errorf("templates: duplicate form %q", def.Form.ID)
	}
	b.forms[def.Form.ID] = def
	return nil
}

// Definition returns the definition of formID.
func (b *Bundle) Definition(_ context.Context, formID string) (Definition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	def, ok := b.forms[formID]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownForm, formID)
	}
	return def, nil
}

// FormIDs lists the loaded forms in sorted order.
func (b *Bundle) FormIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.forms))
	for id := range b.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Queries returns the registry of named option queries.
func (b *Bundle) Queries() *options.Registry {
	return b.queries
}

func decode(data []byte, target any) error {
	if err := json.Unmarshal(data, target); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return errors.New("invalid JSON or YAML")
	}
	return nil
}

func isDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Chain tries each source in order, moving on only when a source does not
// know the form. Other errors stop the walk.
func Chain(sources ...Source) Source {
	return SourceFunc(func(ctx context.Context, formID string) (Definition, error) {
		for _, source := range sources {
			if source == nil {
				continue
			}
			def, err := source.Definition(ctx, formID)
			if err == nil {
				return def, nil
			}
			if !errors.Is(err, ErrUnknownForm) {
				return Definition{}, err
			}
		}
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownForm, formID)
	})
}
