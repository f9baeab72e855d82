package validation

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-formflow/pkg/model"
)

// MapErrors turns a backend error payload into an *Error. Paths that match a
// known "template#dup.field" path (optionally wrapped in body/request
// segments, or addressed as sections[i].field) become field messages;
// everything else is kept as form-level messages so nothing is lost.
func MapErrors(sections []model.SectionInstance, payload map[string][]string) *Error {
	out := &Error{}
	if len(payload) == 0 {
		return out
	}

	known := make(map[string]struct{})
	for _, section := range sections {
		for _, field := range section.Fields {
			known[model.FieldPath(section.Key(), field.Name)] = struct{}{}
		}
	}

	for raw, messages := range payload {
		messages = normalizeMessages(messages)
		if len(messages) == 0 {
			continue
		}
		path, formLevel := mapErrorPath(raw, sections, known)
		for _, message := range messages {
			if formLevel {
				out.Add("", message)
				continue
			}
			out.Add(path, message)
		}
	}
	return out
}

func mapErrorPath(raw string, sections []model.SectionInstance, known map[string]struct{}) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if isFormLevelKey(trimmed) {
		return "", true
	}
	segments := dropWrapperSegments(parsePathSegments(trimmed))
	if len(segments) == 0 {
		return "", true
	}

	// sections/2/quantity addresses an instance by position.
	if len(segments) == 3 && strings.EqualFold(segments[0], "sections") {
		if idx, err := strconv.Atoi(segments[1]); err == nil && idx >= 0 && idx < len(sections) {
			segments = []string{sections[idx].Key().String(), segments[2]}
		}
	}
	if len(segments) >= 2 {
		candidate := segments[0] + "." + segments[1]
		if _, ok := known[candidate]; ok {
			return candidate, false
		}
	}
	return "", true
}

func parsePathSegments(path string) []string {
	clean := strings.TrimSpace(path)
	for strings.HasPrefix(clean, "$") || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, ".") {
		clean = strings.TrimLeft(clean, "$/.")
	}

	replacer := strings.NewReplacer("[", ".", "]", "", "//", "/")
	clean = strings.Trim(replacer.Replace(clean), "./")
	if clean == "" {
		return nil
	}

	parts := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		out = append(out, segment)
	}
	return out
}

func dropWrapperSegments(segments []string) []string {
	wrappers := map[string]struct{}{
		"body":       {},
		"request":    {},
		"payload":    {},
		"data":       {},
		"attributes": {},
	}

	out := segments
	for len(out) > 0 {
		if _, ok := wrappers[strings.ToLower(out[0])]; ok {
			out = out[1:]
			continue
		}
		break
	}
	return out
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "base", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}
