package model

// FieldInstance is the live state of a template field inside one section
// instance.
type FieldInstance struct {
	FieldID       string    `json:"fieldId"`
	Name          string    `json:"name"`
	Label         string    `json:"label,omitempty"`
	Type          FieldType `json:"type"`
	Value         string    `json:"value"`
	Options       []Option  `json:"options,omitempty"`
	DuplicationID string    `json:"duplicationId,omitempty"`
	Required      bool      `json:"required"`
	ReadOnly      bool      `json:"readOnly"`
	Pattern       string    `json:"pattern,omitempty"`
}

// NewFieldInstance creates an empty instance of the template field stamped
// with duplicationID.
func NewFieldInstance(tpl FieldTemplate, duplicationID string) FieldInstance {
	return FieldInstance{
		FieldID:       tpl.ID,
		Name:          tpl.Name,
		Label:         tpl.Label,
		Type:          tpl.Type,
		Options:       CloneOptions(tpl.Options),
		DuplicationID: duplicationID,
		Required:      tpl.Required,
		ReadOnly:      tpl.ReadOnly,
		Pattern:       tpl.Pattern,
	}
}

// Clone returns a deep copy of the field.
func (f FieldInstance) Clone() FieldInstance {
	out := f
	out.Options = CloneOptions(f.Options)
	return out
}

// SelectedOption returns the option whose Value matches the field value.
func (f FieldInstance) SelectedOption() (Option, bool) {
	if f.Value == "" {
		return Option{}, false
	}
	for _, option := range f.Options {
		if option.Value == f.Value {
			return option, true
		}
	}
	return Option{}, false
}

// Reset clears value and options and applies the read-only lock.
func (f *FieldInstance) Reset() {
	f.Value = ""
	f.Options = nil
	f.ReadOnly = true
}

// SectionInstance is one concrete occurrence of a section template.
type SectionInstance struct {
	SectionID    string          `json:"sectionId"`
	Fields       []FieldInstance `json:"fields"`
	Duplicatable bool            `json:"duplicatable"`
}

// NewSectionInstance instantiates every field of the template with the shared
// duplication id.
func NewSectionInstance(tpl SectionTemplate, duplicationID string) SectionInstance {
	section := SectionInstance{
		SectionID:    tpl.ID,
		Duplicatable: tpl.Duplicatable,
		Fields:       make([]FieldInstance, 0, len(tpl.Fields)),
	}
	for _, field := range tpl.Fields {
		section.Fields = append(section.Fields, NewFieldInstance(field, duplicationID))
	}
	return section
}

// DuplicationID returns the id carried by the first field. Sections without
// fields report an empty id.
func (s SectionInstance) DuplicationID() string {
	if len(s.Fields) == 0 {
		return ""
	}
	return s.Fields[0].DuplicationID
}

// Key returns the composite identity of the instance.
func (s SectionInstance) Key() Key {
	return Key{TemplateID: s.SectionID, DuplicationID: s.DuplicationID()}
}

// SetDuplicationID stamps every field with id.
func (s *SectionInstance) SetDuplicationID(id string) {
	for i := range s.Fields {
		s.Fields[i].DuplicationID = id
	}
}

// FieldIndex returns the position of the named field or -1.
func (s SectionInstance) FieldIndex(name string) int {
	for i, field := range s.Fields {
		if field.Name == name {
			return i
		}
	}
	return -1
}

// Field returns a pointer to the named field for in-place edits.
func (s *SectionInstance) Field(name string) (*FieldInstance, bool) {
	idx := s.FieldIndex(name)
	if idx < 0 {
		return nil, false
	}
	return &s.Fields[idx], true
}

// Value returns the value of the named field.
func (s SectionInstance) Value(name string) string {
	idx := s.FieldIndex(name)
	if idx < 0 {
		return ""
	}
	return s.Fields[idx].Value
}

// Values flattens field values keyed by field name.
func (s SectionInstance) Values() map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, field := range s.Fields {
		out[field.Name] = field.Value
	}
	return out
}

// InsertField places field at index, clamping out-of-range positions to the
// end of the section.
func (s *SectionInstance) InsertField(index int, field FieldInstance) {
	if index < 0 || index > len(s.Fields) {
		index = len(s.Fields)
	}
	s.Fields = append(s.Fields, FieldInstance{})
	copy(s.Fields[index+1:], s.Fields[index:])
	s.Fields[index] = field
}

// RemoveField drops the named field and reports whether it existed.
func (s *SectionInstance) RemoveField(name string) bool {
	idx := s.FieldIndex(name)
	if idx < 0 {
		return false
	}
	s.Fields = append(s.Fields[:idx], s.Fields[idx+1:]...)
	return true
}

// Clone returns a deep copy of the section.
func (s SectionInstance) Clone() SectionInstance {
	out := s
	if s.Fields != nil {
		out.Fields = make([]FieldInstance, len(s.Fields))
		for i, field := range s.Fields {
			out.Fields[i] = field.Clone()
		}
	}
	return out
}

// CloneSections deep-copies a slice of sections.
func CloneSections(sections []SectionInstance) []SectionInstance {
	if sections == nil {
		return nil
	}
	out := make([]SectionInstance, len(sections))
	for i, section := range sections {
		out[i] = section.Clone()
	}
	return out
}

// CloneOptions deep-copies an option list.
func CloneOptions(options []Option) []Option {
	if options == nil {
		return nil
	}
	out := make([]Option, len(options))
	for i, option := range options {
		out[i] = option
		if len(option.Meta) > 0 {
			meta := make(map[string]string, len(option.Meta))
			for k, v := range option.Meta {
				meta[k] = v
			}
			out[i].Meta = meta
		}
	}
	return out
}
