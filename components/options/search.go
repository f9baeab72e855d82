package options

import (
	"sort"
	"strings"

	"github.com/goliatone/go-formflow/pkg/model"
)

// Option is one entry of the JSON response.
type Option struct {
	Value string            `json:"value"`
	Label string            `json:"label"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Search filters list by a case-insensitive substring of the display
// value. Prefix matches come first; otherwise server order is kept.
func Search(list []model.Option, query string, limit int, opts Options) []model.Option {
	limit = clampLimit(limit, opts)
	if limit == 0 {
		return nil
	}

	query = strings.TrimSpace(query)
	if query == "" {
		if opts.EmptySearchMode == EmptySearchTop {
			if len(list) <= limit {
				return append([]model.Option{}, list...)
			}
			return append([]model.Option{}, list[:limit]...)
		}
		return nil
	}

	q := strings.ToLower(query)
	matches := make([]matchedOption, 0, 32)
	for _, option := range list {
		lower := strings.ToLower(option.Value)
		if !strings.Contains(lower, q) {
			continue
		}
		matches = append(matches, matchedOption{
			option:   option,
			isPrefix: strings.HasPrefix(lower, q),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].isPrefix && !matches[j].isPrefix
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]model.Option, 0, len(matches))
	for _, match := range matches {
		out = append(out, match.option)
	}
	return out
}

// SearchOptions runs Search and shapes the response entries.
func SearchOptions(list []model.Option, query string, limit int, opts Options) []Option {
	results := Search(list, query, limit, opts)
	if len(results) == 0 {
		return nil
	}

	out := make([]Option, 0, len(results))
	for _, option := range results {
		out = append(out, Option{Value: option.ID, Label: option.Value, Meta: option.Meta})
	}
	return out
}

type matchedOption struct {
	option   model.Option
	isPrefix bool
}
