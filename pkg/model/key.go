package model

import "strings"

const keySeparator = "#"

// Key identifies a section instance by template and duplication id. Canonical
// instances have an empty DuplicationID.
type Key struct {
	TemplateID    string
	DuplicationID string
}

// String renders the key as "template" or "template#dup".
func (k Key) String() string {
	if k.DuplicationID == "" {
		return k.TemplateID
	}
	return k.TemplateID + keySeparator + k.DuplicationID
}

// ParseKey is the inverse of Key.String.
func ParseKey(raw string) Key {
	raw = strings.TrimSpace(raw)
	template, dup, _ := strings.Cut(raw, keySeparator)
	return Key{TemplateID: template, DuplicationID: dup}
}

// FieldPath joins a key and a field name into the dotted path used for
// field-level error messages.
func FieldPath(key Key, field string) string {
	return key.String() + "." + field
}
