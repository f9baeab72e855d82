package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/pkg/csvimport"
)

var (
	csvColumns []string
	csvForm    string
	csvSection string
)

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "CSV import helpers",
}

var csvCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Check an upload's header against the expected columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		expected := csvColumns
		if len(expected) == 0 {
			if csvForm == "" || csvSection == "" {
				return errors.New("either --columns or --form and --section are required")
			}
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			def, err := a.Templates.Definition(ctx, csvForm)
			if err != nil {
				return err
			}
			section, ok := def.Form.Section(csvSection)
			if !ok {
				return fmt.Errorf("form %q has no section %q", csvForm, csvSection)
			}
			for _, field := range section.Fields {
				expected = append(expected, field.Name)
			}
		}

		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		result, err := csvimport.Parse(ctx, file, expected)
		if errors.Is(err, csvimport.ErrIncompatibleColumns) {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "compatible: %d rows, %d blank lines skipped\n", len(result.Rows), result.Skipped)
		return nil
	},
}

func init() {
	csvCheckCmd.Flags().StringSliceVar(&csvColumns, "columns", nil, "expected column names")
	csvCheckCmd.Flags().StringVar(&csvForm, "form", "", "form whose section fields are the expected columns")
	csvCheckCmd.Flags().StringVar(&csvSection, "section", "", "section of --form")
	csvCmd.AddCommand(csvCheckCmd)
}
