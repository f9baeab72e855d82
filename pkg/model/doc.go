// Package model defines the form template and form state types shared by the
// engine packages. Templates (FormTemplate, SectionTemplate, FieldTemplate)
// are immutable once loaded; SectionInstance and FieldInstance carry the
// in-progress values of one request. Repeated sections are correlated through
// a shared duplication id stamped on every field of the instance, and the
// pair (template id, duplication id) forms the Key used by the section store
// lookup index. Canonical instances (the first instance of a template) have
// an empty duplication id.
package model
