package model

// FieldType is the simplified enum for form-friendly field kinds.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextArea FieldType = "textarea"
	FieldTypeNumber   FieldType = "number"
	FieldTypeSelect   FieldType = "select"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
)

// Valid reports whether t is one of the known field kinds.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeTextArea, FieldTypeNumber, FieldTypeSelect, FieldTypeBoolean, FieldTypeDate:
		return true
	default:
		return false
	}
}

// Option is a selectable entry of a field. Static options come from the
// template, dynamic ones are fetched when another field changes. Meta keeps
// additional row columns (for example the approval signer of an item
// category).
type Option struct {
	ID      string            `json:"id" yaml:"id"`
	Value   string            `json:"value" yaml:"value"`
	Order   int               `json:"order" yaml:"order"`
	FieldID string            `json:"fieldId,omitempty" yaml:"fieldId,omitempty"`
	Meta    map[string]string `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// FieldTemplate is the designer-authored definition of a single input.
type FieldTemplate struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Label    string    `json:"label,omitempty" yaml:"label,omitempty"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
	ReadOnly bool      `json:"readOnly" yaml:"readOnly"`
	Order    int       `json:"order" yaml:"order"`
	Pattern  string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Options  []Option  `json:"options,omitempty" yaml:"options,omitempty"`
	// Source names a registered option query used to prefill Options when a
	// session opens.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// SectionTemplate groups fields. Duplicatable sections may be repeated up to
// MaxInstances times (0 means unlimited).
type SectionTemplate struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Order        int             `json:"order" yaml:"order"`
	Duplicatable bool            `json:"duplicatable" yaml:"duplicatable"`
	MaxInstances int             `json:"maxInstances,omitempty" yaml:"maxInstances,omitempty"`
	Fields       []FieldTemplate `json:"fields" yaml:"fields"`
}

// Field returns the template field with the provided name.
func (s SectionTemplate) Field(name string) (FieldTemplate, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldTemplate{}, false
}

// FoldConfig describes how repeated line-item sections are merged before
// submission.
type FoldConfig struct {
	// HeaderSections is the number of leading sections excluded from folding.
	HeaderSections int `json:"headerSections,omitempty" yaml:"headerSections,omitempty"`
	// NameField is the business key field; defaults to the first field.
	NameField string `json:"nameField,omitempty" yaml:"nameField,omitempty"`
	// QuantityField is summed when two sections fold together.
	QuantityField string `json:"quantityField,omitempty" yaml:"quantityField,omitempty"`
	// CompareFrom is the first field index taking part in attribute equality.
	CompareFrom int `json:"compareFrom,omitempty" yaml:"compareFrom,omitempty"`
}

// Enabled reports whether folding was configured.
func (c FoldConfig) Enabled() bool {
	return c.QuantityField != ""
}

// FormTemplate is the immutable definition fetched once per form.
type FormTemplate struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name" yaml:"name"`
	Sections []SectionTemplate `json:"sections" yaml:"sections"`
	// Signers is the default signer set used until a project is chosen.
	Signers []Signer `json:"signers,omitempty" yaml:"signers,omitempty"`
	// SignerDriver names the field whose selection recomputes signers.
	SignerDriver string `json:"signerDriver,omitempty" yaml:"signerDriver,omitempty"`
	// CategoryField names the field whose option carries an approval signer.
	CategoryField string            `json:"categoryField,omitempty" yaml:"categoryField,omitempty"`
	Fold          FoldConfig        `json:"fold,omitempty" yaml:"fold,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Section returns the template section with the provided id.
func (f FormTemplate) Section(id string) (SectionTemplate, bool) {
	for _, section := range f.Sections {
		if section.ID == id {
			return section, true
		}
	}
	return SectionTemplate{}, false
}

// Signer is a team member asked to act on a submitted request.
type Signer struct {
	TeamMemberID string `json:"teamMemberId" yaml:"teamMemberId"`
	Action       string `json:"action" yaml:"action"`
	Primary      bool   `json:"primary" yaml:"primary"`
}

// SignerList is the ordered, currently active signer set.
type SignerList []Signer

// Clone returns a copy of the list.
func (l SignerList) Clone() SignerList {
	if l == nil {
		return nil
	}
	return append(SignerList(nil), l...)
}

// Contains reports whether a signer with the team member id is present.
func (l SignerList) Contains(teamMemberID string) bool {
	for _, signer := range l {
		if signer.TeamMemberID == teamMemberID {
			return true
		}
	}
	return false
}
