package cascade

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/options"
)

// ErrUnresolvedPlaceholder is returned when a filter references data that is
// not available, such as a driver option without the requested meta key.
var ErrUnresolvedPlaceholder = errors.New("cascade: unresolved placeholder")

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-z.]+)(?::([^\}\s]+))?\s*\}\}`)

// scope carries what placeholders can read while a rule runs.
type scope struct {
	value   string
	section model.SectionInstance
	driver  model.FieldInstance
	refs    map[string]string
}

func (s scope) expand(raw string) (string, error) {
	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(raw, func(match string) string {
		parts := placeholderPattern.FindStringSubmatch(match)
		resolved, err := s.resolve(parts[1], parts[2])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return resolved
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (s scope) resolve(kind, arg string) (string, error) {
	switch kind {
	case "value":
		return s.value, nil
	case "field":
		if idx := s.section.FieldIndex(arg); idx >= 0 {
			return s.section.Fields[idx].Value, nil
		}
		return "", fmt.Errorf("%w: field %q", ErrUnresolvedPlaceholder, arg)
	case "ref":
		if v, ok := s.refs[arg]; ok {
			return v, nil
		}
		return "", fmt.Errorf("%w: ref %q", ErrUnresolvedPlaceholder, arg)
	case "option.id":
		if option, ok := s.driver.SelectedOption(); ok {
			return option.ID, nil
		}
		return "", fmt.Errorf("%w: no option selected for %q", ErrUnresolvedPlaceholder, s.driver.Name)
	case "option.meta":
		if option, ok := s.driver.SelectedOption(); ok {
			if v, ok := option.Meta[arg]; ok {
				return v, nil
			}
		}
		return "", fmt.Errorf("%w: option meta %q", ErrUnresolvedPlaceholder, arg)
	default:
		return "", fmt.Errorf("%w: {{%s}}", ErrUnresolvedPlaceholder, strings.TrimSpace(kind))
	}
}

// bind returns a copy of q with placeholders in filter values expanded.
func (s scope) bind(q options.Query) (options.Query, error) {
	out := q.Clone()
	for i, filter := range out.Filters {
		value, err := s.expand(filter.Value)
		if err != nil {
			return options.Query{}, err
		}
		out.Filters[i].Value = value
	}
	return out, nil
}
