package normalize

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/model"
)

// ErrUnresolvedOption is returned when the submitted project value matches
// none of the header options.
var ErrUnresolvedOption = errors.New("normalize: project value matches no option")

// SubmittedField is a field without UI bookkeeping.
type SubmittedField struct {
	FieldID string `json:"fieldId"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// SubmittedSection is a section ready for transmission.
type SubmittedSection struct {
	SectionID string           `json:"sectionId"`
	Fields    []SubmittedField `json:"fields"`
}

// Submission is the payload handed to the backend.
type Submission struct {
	FormID          string             `json:"formId"`
	ProjectOptionID string             `json:"projectOptionId,omitempty"`
	Sections        []SubmittedSection `json:"sections"`
	Signers         model.SignerList   `json:"signers"`
}

// Strip drops duplication ids, read-only flags and option lists.
func Strip(sections []model.SectionInstance) []SubmittedSection {
	out := make([]SubmittedSection, 0, len(sections))
	for _, section := range sections {
		submitted := SubmittedSection{
			SectionID: section.SectionID,
			Fields:    make([]SubmittedField, 0, len(section.Fields)),
		}
		for _, field := range section.Fields {
			submitted.Fields = append(submitted.Fields, SubmittedField{
				FieldID: field.FieldID,
				Name:    field.Name,
				Value:   field.Value,
			})
		}
		out = append(out, submitted)
	}
	return out
}

// ResolveOption returns the id of the option of field whose display value
// equals the submitted value.
func ResolveOption(section model.SectionInstance, field string) (string, bool) {
	idx := section.FieldIndex(field)
	if idx < 0 {
		return "", false
	}
	option, ok := section.Fields[idx].SelectedOption()
	if !ok {
		return "", false
	}
	return option.ID, true
}

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// SanitizeText removes markup from a free-text value.
func SanitizeText(raw string) string {
	if !strings.ContainsAny(raw, "<>&") {
		return strings.TrimSpace(raw)
	}
	cleaned := textSanitizer().Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// Normalizer turns the sections of one form into a Submission.
type Normalizer struct {
	form   model.FormTemplate
	logger *zap.Logger
}

// New creates a Normalizer for form.
func New(form model.FormTemplate, opts ...Option) *Normalizer {
	n := &Normalizer{form: form, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Normalize folds, sanitises and strips sections and resolves the project
// option id from the signer driver field.
func (n *Normalizer) Normalize(sections []model.SectionInstance, signers model.SignerList) (Submission, error) {
	folded := Fold(sections, n.form.Fold)
	for i := range folded {
		for j := range folded[i].Fields {
			field := &folded[i].Fields[j]
			if field.Type == model.FieldTypeText || field.Type == model.FieldTypeTextArea {
				field.Value = SanitizeText(field.Value)
			}
		}
	}

	submission := Submission{
		FormID:   n.form.ID,
		Sections: Strip(folded),
		Signers:  signers.Clone(),
	}

	if driver := n.form.SignerDriver; driver != "" {
		for _, section := range folded {
			if section.FieldIndex(driver) < 0 {
				continue
			}
			if section.Value(driver) == "" {
				break
			}
			id, ok := ResolveOption(section, driver)
			if !ok {
				return Submission{}, fmt.Errorf("%w: %q", ErrUnresolvedOption, section.Value(driver))
			}
			submission.ProjectOptionID = id
			break
		}
	}

	n.logger.Debug("submission normalized",
		zap.String("form", n.form.ID),
		zap.Int("sections_in", len(sections)),
		zap.Int("sections_out", len(submission.Sections)),
	)
	return submission, nil
}
