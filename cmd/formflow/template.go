package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formflow/pkg/cascade"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/templates"
)

var templateFormat string

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Inspect and derive form templates",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local and stored forms",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		forms, err := a.Forms(cmd.Context())
		if err != nil {
			return err
		}
		for _, form := range forms {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", form.ID, form.Name)
		}
		return nil
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <form-id>",
	Short: "Print a form definition with its cascade rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		def, err := a.Templates.Definition(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeDefinitions(cmd.OutOrStdout(), templateFormat, []templates.Definition{def})
	},
}

var templateImportCmd = &cobra.Command{
	Use:   "import <openapi-file>",
	Short: "Derive form templates from OpenAPI request bodies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		defs, err := templates.FromOpenAPI(cmd.Context(), data)
		if err != nil {
			return err
		}
		return writeDefinitions(cmd.OutOrStdout(), templateFormat, defs)
	},
}

func init() {
	templateCmd.PersistentFlags().StringVarP(&templateFormat, "format", "o", "yaml", "output format: yaml or json")
	templateCmd.AddCommand(templateListCmd, templateShowCmd, templateImportCmd)
}

// formDoc mirrors the document layout read by templates.LoadFS so the
// output can be saved into a templates directory as is.
type formDoc struct {
	model.FormTemplate `yaml:",inline"`
	Cascade            cascade.Graph `json:"cascade,omitempty" yaml:"cascade,omitempty"`
}

func writeDefinitions(w io.Writer, format string, defs []templates.Definition) error {
	forms := make([]formDoc, 0, len(defs))
	for _, def := range defs {
		forms = append(forms, formDoc{FormTemplate: def.Form, Cascade: def.Graph})
	}
	doc := map[string]any{"forms": forms}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
