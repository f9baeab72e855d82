// Package testsupport holds fixtures shared by the package tests.
package testsupport

import (
	"bytes"
	"context"
	"io"
	"testing"
	"testing/fstest"

	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/templates"
)

// PurchaseDocument is a template document with a project driven signer
// list, a category field carrying approval signers, a duplicatable item
// section folded by name, and a VAT cascade on the has_vat toggle.
const PurchaseDocument = `
queries:
  projects:
    table: projects
  categories:
    table: categories
    metaColumns: [signer_id]
forms:
  - id: purchase
    name: Purchase request
    signerDriver: project
    categoryField: category
    signers:
      - {teamMemberId: finance-1, action: approve, primary: true}
    fold: {headerSections: 1, nameField: item_name, quantityField: quantity, compareFrom: 0}
    sections:
      - id: header
        name: Header
        fields:
          - {id: h1, name: project, type: select, required: true, source: projects}
          - {id: h2, name: purpose, type: textarea}
      - id: items
        name: Items
        duplicatable: true
        maxInstances: 3
        fields:
          - {id: i1, name: item_name, type: text, required: true}
          - {id: i2, name: quantity, type: number, required: true, pattern: "^[0-9]+(\\.[0-9]+)?$"}
          - {id: i3, name: category, type: select, source: categories}
          - {id: i4, name: amount, type: number}
          - {id: i5, name: has_vat, type: boolean}
    cascade:
      rules:
        - section: items
          driver: has_vat
          insertions:
            - when: has_vat == true
              after: has_vat
              field: {id: i6, name: vat, type: number, readOnly: true}
          computations:
            - when: has_vat == true
              target: vat
              func: vat
              args: [amount]
`

// PurchaseTables returns rows backing the queries of PurchaseDocument plus
// the project signer table read by the repository.
func PurchaseTables() map[string][]backend.Row {
	return map[string][]backend.Row{
		"projects": {
			{"id": "p1", "name": "Warehouse"},
			{"id": "p2", "name": "Office"},
		},
		"categories": {
			{"id": "c1", "name": "Hardware", "signer_id": "it-lead"},
			{"id": "c2", "name": "Stationery", "signer_id": ""},
		},
		"project_signers": {
			{"project_id": "p1", "team_member_id": "ops-1", "action": "approve", "is_primary": true, "position": 1},
			{"project_id": "p1", "team_member_id": "ops-2", "action": "review", "is_primary": false, "position": 2},
		},
	}
}

// MustBundle loads documents keyed by file name into a bundle.
func MustBundle(t *testing.T, files map[string]string) *templates.Bundle {
	t.Helper()

	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	bundle, err := templates.LoadFS(fsys)
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	return bundle
}

// PurchaseBundle loads PurchaseDocument.
func PurchaseBundle(t *testing.T) *templates.Bundle {
	t.Helper()
	return MustBundle(t, map[string]string{"purchase.yaml": PurchaseDocument})
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// CaptureOutput runs a function that both returns and writes its output,
// returning the two so tests can assert they match.
func CaptureOutput(t *testing.T, render func(io.Writer) (string, error)) (string, string) {
	t.Helper()

	var buf bytes.Buffer
	out, err := render(&buf)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out, buf.String()
}
