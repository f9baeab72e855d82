// Package validation implements the error taxonomy of form submission:
// field-level validation failures, business-rule rejections and the generic
// remote failure shown to users without detail.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// GenericMessage is the only text users see for remote failures.
const GenericMessage = "Something went wrong. Please try again later."

// ErrRemote marks a failed backend call. The cause is logged, never shown.
var ErrRemote = errors.New("validation: remote call failed")

// Error collects field-level messages keyed by "template#dup.field" paths
// plus messages that belong to the form as a whole.
type Error struct {
	Fields map[string][]string `json:"fields,omitempty"`
	Form   []string            `json:"form,omitempty"`
}

// Add records message under path. An empty path adds a form-level message.
func (e *Error) Add(path, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	if path == "" {
		e.Form = normalizeMessages(append(e.Form, message))
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[path] = normalizeMessages(append(e.Fields[path], message))
}

// Empty reports whether nothing was recorded.
func (e *Error) Empty() bool {
	return e == nil || (len(e.Fields) == 0 && len(e.Form) == 0)
}

// OrNil returns e as an error, or nil when it is empty.
func (e *Error) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *Error) Error() string {
	paths := make([]string, 0, len(e.Fields))
	for path := range e.Fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	parts := make([]string, 0, len(paths)+len(e.Form))
	for _, path := range paths {
		parts = append(parts, fmt.Sprintf("%s: %s", path, strings.Join(e.Fields[path], "; ")))
	}
	parts = append(parts, e.Form...)
	return "validation: " + strings.Join(parts, ", ")
}

// BusinessRuleError rejects an action and lists the offending items. Cause
// lets callers match a package sentinel with errors.Is.
type BusinessRuleError struct {
	Rule  string
	Items []string
	Cause error
}

func (e *BusinessRuleError) Error() string {
	if len(e.Items) == 0 {
		return "validation: " + e.Rule
	}
	return fmt.Sprintf("validation: %s: %s", e.Rule, strings.Join(e.Items, ", "))
}

func (e *BusinessRuleError) Unwrap() error { return e.Cause }

// Reject builds a BusinessRuleError.
func Reject(rule string, items ...string) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Items: append([]string(nil), items...)}
}

// UserMessage returns the text that can be displayed for err. Anything that
// is not a validation or business-rule error, including
// options.ErrFetchFailed and ErrRemote, collapses to GenericMessage.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		fieldErr *Error
		ruleErr  *BusinessRuleError
	)
	switch {
	case errors.As(err, &ruleErr):
		if len(ruleErr.Items) == 0 {
			return ruleErr.Rule
		}
		return ruleErr.Rule + ": " + strings.Join(ruleErr.Items, ", ")
	case errors.As(err, &fieldErr):
		return "Please correct the highlighted fields."
	default:
		return GenericMessage
	}
}

func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}

	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
