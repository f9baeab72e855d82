package formflow_test

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow"
	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/normalize"
	"github.com/goliatone/go-formflow/pkg/templates"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

func memberIDs(list model.SignerList) []string {
	out := make([]string, 0, len(list))
	for _, signer := range list {
		out = append(out, signer.TeamMemberID)
	}
	return out
}

func TestPurchaseRequestEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := testsupport.Context()
	store := backend.NewMemory(testsupport.PurchaseTables())
	eng, err := formflow.NewEngine(store, testsupport.PurchaseBundle(t), formflow.Settings{PageSize: 1})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	session, err := eng.Open(ctx, formflow.AppContext{TeamID: "team-9", UserID: "user-3"}, "purchase")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"finance-1"}, memberIDs(session.Signers())); diff != "" {
		t.Fatalf("default signers mismatch (-want +got):\n%s", diff)
	}

	if _, err := session.OnFieldChange(ctx, 0, "project", "Warehouse"); err != nil {
		t.Fatalf("project change: %v", err)
	}
	if diff := cmp.Diff([]string{"ops-1", "ops-2"}, memberIDs(session.Signers())); diff != "" {
		t.Fatalf("project signers mismatch (-want +got):\n%s", diff)
	}

	if _, err := session.OnFieldChange(ctx, 1, "category", "Hardware"); err != nil {
		t.Fatalf("category change: %v", err)
	}
	if diff := cmp.Diff([]string{"ops-1", "ops-2", "it-lead"}, memberIDs(session.Signers())); diff != "" {
		t.Fatalf("category signers mismatch (-want +got):\n%s", diff)
	}
	if _, err := session.OnFieldChange(ctx, 1, "category", ""); err != nil {
		t.Fatalf("category clear: %v", err)
	}
	if diff := cmp.Diff([]string{"ops-1", "ops-2"}, memberIDs(session.Signers())); diff != "" {
		t.Fatalf("signers after clear mismatch (-want +got):\n%s", diff)
	}

	for _, set := range []struct {
		index        int
		field, value string
	}{
		{1, "item_name", "Cable"},
		{1, "quantity", "2"},
	} {
		if err := session.SetValue(set.index, set.field, set.value); err != nil {
			t.Fatalf("SetValue(%d, %s): %v", set.index, set.field, err)
		}
	}
	if _, err := session.Duplicate("items"); err != nil {
		t.Fatalf("Duplicate returned error: %v", err)
	}
	if err := session.SetValue(2, "item_name", "Cable"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := session.SetValue(2, "quantity", "3"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	id, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	rows := store.Table("requests")
	if len(rows) != 1 || rows[0]["id"] != id {
		t.Fatalf("expected one stored request with id %q, got %+v", id, rows)
	}
	row := rows[0]
	if row["form_id"] != "purchase" || row["project_option_id"] != "p1" || row["team_id"] != "team-9" {
		t.Fatalf("unexpected request row %+v", row)
	}

	var sections []normalize.SubmittedSection
	if err := json.Unmarshal(row["sections"].(json.RawMessage), &sections); err != nil {
		t.Fatalf("decode sections: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected header plus one folded item, got %d sections", len(sections))
	}
	var quantity string
	for _, field := range sections[1].Fields {
		if field.Name == "quantity" {
			quantity = field.Value
		}
	}
	if quantity != "5" {
		t.Fatalf("expected folded quantity 5, got %q", quantity)
	}

	out, written := testsupport.CaptureOutput(t, func(w io.Writer) (string, error) {
		return session.Export(w)
	})
	if out != written || !strings.Contains(out, "Cable") {
		t.Fatalf("unexpected export output:\n%s", out)
	}
}

func TestStoredTemplatesAreFallback(t *testing.T) {
	t.Parallel()

	tables := testsupport.PurchaseTables()
	tables["form_templates"] = []backend.Row{
		{"id": "memo", "name": "Memo", "definition": `{"name": "Memo", "sections": [{"id": "body", "fields": [{"name": "text", "type": "textarea"}]}]}`},
	}
	eng, err := formflow.NewEngine(backend.NewMemory(tables), nil, formflow.Settings{})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	session, err := eng.Open(testsupport.Context(), formflow.AppContext{}, "memo")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if session.Form().Name != "Memo" {
		t.Fatalf("unexpected form %+v", session.Form())
	}

	if _, err := eng.Open(testsupport.Context(), formflow.AppContext{}, "purchase"); !errors.Is(err, templates.ErrUnknownForm) {
		t.Fatalf("expected ErrUnknownForm, got %v", err)
	}
	if _, err := formflow.NewEngine(nil, nil, formflow.Settings{}); err == nil {
		t.Fatalf("expected error without client")
	}
}
