// Package export turns a filled form into the pre-formatted field list an
// external PDF renderer consumes, plus a plain-text rendition.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Line is one printable field.
type Line struct {
	Section string `json:"section"`
	// Ordinal numbers repeated instances of a duplicatable section from 1;
	// it is 0 for sections that cannot repeat.
	Ordinal int    `json:"ordinal,omitempty"`
	Field   string `json:"field"`
	Value   string `json:"value"`
}

// Group collects the lines of one section instance.
type Group struct {
	Heading string
	Lines   []Line
}

// Lines flattens sections into labelled lines in form order.
func Lines(form model.FormTemplate, sections []model.SectionInstance) []Line {
	counts := make(map[string]int)
	var out []Line
	for _, section := range sections {
		tpl, _ := form.Section(section.SectionID)
		label := tpl.Name
		if label == "" {
			label = model.DefaultLabeler(section.SectionID)
		}
		ordinal := 0
		if tpl.Duplicatable || section.Duplicatable {
			counts[section.SectionID]++
			ordinal = counts[section.SectionID]
		}
		for _, field := range section.Fields {
			fieldLabel := field.Label
			if fieldLabel == "" {
				fieldLabel = model.DefaultLabeler(field.Name)
			}
			out = append(out, Line{
				Section: label,
				Ordinal: ordinal,
				Field:   fieldLabel,
				Value:   displayValue(field),
			})
		}
	}
	return out
}

// Groups splits lines at section instance boundaries.
func Groups(lines []Line) []Group {
	var groups []Group
	for _, line := range lines {
		heading := line.Section
		if line.Ordinal > 0 {
			heading += " #" + strconv.Itoa(line.Ordinal)
		}
		if n := len(groups); n == 0 || groups[n-1].Heading != heading {
			groups = append(groups, Group{Heading: heading})
		}
		groups[len(groups)-1].Lines = append(groups[len(groups)-1].Lines, line)
	}
	return groups
}

func displayValue(field model.FieldInstance) string {
	value := strings.TrimSpace(field.Value)
	if field.Type == model.FieldTypeBoolean && value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			if b {
				return "Yes"
			}
			return "No"
		}
	}
	return value
}

// DefaultTemplate is the built-in plain-text layout.
const DefaultTemplate = `{{ title }}
{% for group in groups %}
{{ group.Heading }}
{% for line in group.Lines %}  {{ line.Field }}: {{ line.Value|default:"-" }}
{% endfor %}{% endfor %}{% if signers %}
Signers
{% for signer in signers %}  {{ forloop.Counter }}. {{ signer.TeamMemberID }} ({{ signer.Action }}){% if signer.Primary %} *{% endif %}
{% endfor %}{% endif %}`

// Option configures a Renderer.
type Option func(*config)

type config struct {
	source   string
	files    fs.FS
	fileName string
}

// WithTemplate replaces the built-in layout with source.
func WithTemplate(source string) Option {
	return func(cfg *config) {
		if strings.TrimSpace(source) != "" {
			cfg.source = source
		}
	}
}

// WithTemplateFS loads the layout from name inside files. Templates loaded
// this way may include or extend siblings.
func WithTemplateFS(files fs.FS, name string) Option {
	return func(cfg *config) {
		cfg.files = files
		cfg.fileName = strings.TrimSpace(name)
	}
}

// Renderer produces the plain-text export.
type Renderer struct {
	tmpl *pongo2.Template
}

// New compiles the layout.
func New(opts ...Option) (*Renderer, error) {
	cfg := &config{source: DefaultTemplate}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	if cfg.files != nil {
		if cfg.fileName == "" {
			return nil, errors.New("export: template name is required with a filesystem")
		}
		set := pongo2.NewSet("formflow-export", pongo2.NewFSLoader(cfg.files))
		tmpl, err := set.FromFile(cfg.fileName)
		if err != nil {
			return nil, fmt.Errorf("export: load template %q: %w", cfg.fileName, err)
		}
		return &Renderer{tmpl: tmpl}, nil
	}

	tmpl, err := pongo2.FromString(cfg.source)
	if err != nil {
		return nil, fmt.Errorf("export: parse template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Document is the data handed to the layout.
type Document struct {
	Title   string
	Lines   []Line
	Signers model.SignerList
}

// Render executes the layout. The result is also written to every writer.
func (r *Renderer) Render(doc Document, out ...io.Writer) (string, error) {
	if r == nil || r.tmpl == nil {
		return "", errors.New("export: renderer is nil")
	}
	ctx := pongo2.Context{
		"title":   doc.Title,
		"lines":   doc.Lines,
		"groups":  Groups(doc.Lines),
		"signers": []model.Signer(doc.Signers),
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteWriter(ctx, &buf); err != nil {
		return "", fmt.Errorf("export: execute template: %w", err)
	}
	rendered := buf.String()
	for _, w := range out {
		if _, err := io.WriteString(w, rendered); err != nil {
			return "", err
		}
	}
	return rendered, nil
}
