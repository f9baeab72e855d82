package model

// Decorator adjusts a loaded form template before a session is built from it,
// for example to lock fields for a security group.
type Decorator interface {
	Decorate(*FormTemplate) error
}

// DecoratorFunc adapts a function into a Decorator.
type DecoratorFunc func(*FormTemplate) error

// Decorate calls the underlying function.
func (fn DecoratorFunc) Decorate(form *FormTemplate) error {
	return fn(form)
}

// ReadOnlyFields marks every field with one of names read-only in all
// sections.
func ReadOnlyFields(names ...string) Decorator {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return DecoratorFunc(func(form *FormTemplate) error {
		for i := range form.Sections {
			for j := range form.Sections[i].Fields {
				if _, ok := set[form.Sections[i].Fields[j].Name]; ok {
					form.Sections[i].Fields[j].ReadOnly = true
				}
			}
		}
		return nil
	})
}

// Clone returns a deep copy so decorators never touch shared definitions.
func (f FormTemplate) Clone() FormTemplate {
	out := f
	out.Sections = make([]SectionTemplate, len(f.Sections))
	for i, section := range f.Sections {
		section.Fields = append([]FieldTemplate(nil), section.Fields...)
		for j := range section.Fields {
			section.Fields[j].Options = CloneOptions(section.Fields[j].Options)
		}
		out.Sections[i] = section
	}
	out.Signers = append([]Signer(nil), f.Signers...)
	if f.Metadata != nil {
		out.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
