package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/pkg/options"
)

var (
	optionFilters []string
	optionMeta    bool
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Inspect named option queries",
}

var optionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered option queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		for _, name := range a.Queries().List() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var optionsFetchCmd = &cobra.Command{
	Use:   "fetch <query>",
	Short: "Fetch every option of a named query, page by page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		q, err := a.Queries().Get(args[0])
		if err != nil {
			return err
		}
		filters, err := parseFilters(optionFilters)
		if err != nil {
			return err
		}
		q.Filters = append(q.Filters, filters...)

		list, err := a.Resolver.FetchAll(ctx, q)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, option := range list {
			line := option.ID + "\t" + option.Value
			if optionMeta && len(option.Meta) > 0 {
				line += "\t" + formatMeta(option.Meta)
			}
			fmt.Fprintln(w, line)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d options\n", len(list))
		return nil
	},
}

func init() {
	optionsFetchCmd.Flags().StringArrayVarP(&optionFilters, "filter", "f", nil, "extra filter column=value or column~pattern (repeatable)")
	optionsFetchCmd.Flags().BoolVar(&optionMeta, "meta", false, "print meta columns")
	optionsCmd.AddCommand(optionsListCmd, optionsFetchCmd)
}

// parseFilters accepts "column=value" (equality) and "column~pattern"
// (case-insensitive match, * as wildcard).
func parseFilters(raw []string) ([]options.Filter, error) {
	out := make([]options.Filter, 0, len(raw))
	for _, item := range raw {
		if column, value, ok := strings.Cut(item, "="); ok && strings.TrimSpace(column) != "" {
			out = append(out, options.Filter{Column: strings.TrimSpace(column), Value: value})
			continue
		}
		if column, value, ok := strings.Cut(item, "~"); ok && strings.TrimSpace(column) != "" {
			out = append(out, options.Filter{Column: strings.TrimSpace(column), Op: options.OpILike, Value: value})
			continue
		}
		return nil, fmt.Errorf("invalid filter %q: want column=value or column~pattern", item)
	}
	return out, nil
}

func formatMeta(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+meta[key])
	}
	return strings.Join(parts, " ")
}
