package model_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/model"
)

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key  model.Key
		want string
	}{
		{key: model.Key{TemplateID: "header"}, want: "header"},
		{key: model.Key{TemplateID: "items", DuplicationID: "a1b2"}, want: "items#a1b2"},
	}
	for _, tc := range cases {
		if got := tc.key.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
		if diff := cmp.Diff(tc.key, model.ParseKey(" "+tc.want+" ")); diff != "" {
			t.Fatalf("ParseKey mismatch (-want +got):\n%s", diff)
		}
	}
	if got := model.FieldPath(model.Key{TemplateID: "items", DuplicationID: "x"}, "quantity"); got != "items#x.quantity" {
		t.Fatalf("FieldPath = %q", got)
	}
}

func TestNewSectionInstanceSharesDuplicationID(t *testing.T) {
	t.Parallel()

	tpl := model.SectionTemplate{
		ID:           "items",
		Duplicatable: true,
		Fields: []model.FieldTemplate{
			{ID: "f1", Name: "name", Type: model.FieldTypeSelect, Options: []model.Option{{ID: "1", Value: "Laptop", Meta: map[string]string{"signer": "u1"}}}},
			{ID: "f2", Name: "quantity", Type: model.FieldTypeNumber, Required: true},
		},
	}

	section := model.NewSectionInstance(tpl, "dup-1")
	for _, field := range section.Fields {
		if field.DuplicationID != "dup-1" {
			t.Fatalf("field %s carries %q", field.Name, field.DuplicationID)
		}
	}
	if got := section.Key(); got != (model.Key{TemplateID: "items", DuplicationID: "dup-1"}) {
		t.Fatalf("Key() = %v", got)
	}

	section.Fields[0].Options[0].Meta["signer"] = "changed"
	if tpl.Fields[0].Options[0].Meta["signer"] != "u1" {
		t.Fatalf("instance aliases template option meta")
	}
}

func TestSectionInstanceFieldHelpers(t *testing.T) {
	t.Parallel()

	section := model.SectionInstance{
		SectionID: "payment",
		Fields: []model.FieldInstance{
			{Name: "invoice_amount", Value: "112"},
			{Name: "cost", Value: "100"},
		},
	}

	section.InsertField(1, model.FieldInstance{Name: "vat", Value: "12"})
	section.InsertField(99, model.FieldInstance{Name: "notes"})
	names := make([]string, 0, len(section.Fields))
	for _, field := range section.Fields {
		names = append(names, field.Name)
	}
	if diff := cmp.Diff([]string{"invoice_amount", "vat", "cost", "notes"}, names); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}

	if !section.RemoveField("vat") || section.RemoveField("vat") {
		t.Fatalf("RemoveField should succeed once")
	}
	if field, ok := section.Field("cost"); !ok || field.Value != "100" {
		t.Fatalf("Field(cost) = %v, %v", field, ok)
	}
	want := map[string]string{"invoice_amount": "112", "cost": "100", "notes": ""}
	if diff := cmp.Diff(want, section.Values()); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}

	section.SetDuplicationID("z")
	if section.DuplicationID() != "z" || section.Fields[2].DuplicationID != "z" {
		t.Fatalf("SetDuplicationID did not stamp every field")
	}
}

func TestFieldResetAndSelectedOption(t *testing.T) {
	t.Parallel()

	field := model.FieldInstance{
		Name:    "region",
		Value:   "NCR",
		Options: []model.Option{{ID: "13", Value: "NCR"}, {ID: "4", Value: "CALABARZON"}},
	}
	option, ok := field.SelectedOption()
	if !ok || option.ID != "13" {
		t.Fatalf("SelectedOption() = %v, %v", option, ok)
	}

	field.Reset()
	if field.Value != "" || field.Options != nil || !field.ReadOnly {
		t.Fatalf("Reset left %+v", field)
	}
	if _, ok := field.SelectedOption(); ok {
		t.Fatalf("expected no selection after reset")
	}
}

func TestFormTemplateValidate(t *testing.T) {
	t.Parallel()

	valid := model.FormTemplate{
		ID: "purchase",
		Sections: []model.SectionTemplate{
			{ID: "header", Fields: []model.FieldTemplate{{Name: "project", Type: model.FieldTypeSelect}}},
			{ID: "items", Duplicatable: true, MaxInstances: 3, Fields: []model.FieldTemplate{
				{Name: "name", Type: model.FieldTypeText},
				{Name: "quantity", Type: model.FieldTypeNumber, Pattern: `[0-9]+`},
			}},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() returned %v", err)
	}

	cases := map[string]func(*model.FormTemplate){
		"missing id":       func(f *model.FormTemplate) { f.ID = "" },
		"duplicate section": func(f *model.FormTemplate) { f.Sections[1].ID = "header" },
		"negative cap":     func(f *model.FormTemplate) { f.Sections[1].MaxInstances = -1 },
		"duplicate field":  func(f *model.FormTemplate) { f.Sections[1].Fields[1].Name = "name" },
		"unknown type":     func(f *model.FormTemplate) { f.Sections[0].Fields[0].Type = "blob" },
		"bad pattern":      func(f *model.FormTemplate) { f.Sections[1].Fields[1].Pattern = "([" },
		"negative fold":    func(f *model.FormTemplate) { f.Fold.CompareFrom = -2 },
	}
	for name, mutate := range cases {
		form := valid
		form.Sections = cloneTemplates(valid.Sections)
		mutate(&form)
		err := form.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !strings.HasPrefix(err.Error(), "model: ") {
			t.Fatalf("%s: unexpected message %q", name, err)
		}
	}
}

func TestSignerListHelpers(t *testing.T) {
	t.Parallel()

	list := model.SignerList{{TeamMemberID: "u1", Action: "approve", Primary: true}}
	clone := list.Clone()
	clone[0].Action = "review"
	if list[0].Action != "approve" {
		t.Fatalf("Clone aliases the original")
	}
	if !list.Contains("u1") || list.Contains("u2") {
		t.Fatalf("Contains mismatch")
	}
}

func TestDefaultLabeler(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"invoice_amount": "Invoice Amount",
		"teamMemberId":   "Team member id",
		"csi-code":       "Csi Code",
		"":               "",
	}
	for input, want := range cases {
		if got := model.DefaultLabeler(input); got != want {
			t.Fatalf("DefaultLabeler(%q) = %q, want %q", input, got, want)
		}
	}
}

func cloneTemplates(sections []model.SectionTemplate) []model.SectionTemplate {
	out := make([]model.SectionTemplate, len(sections))
	for i, section := range sections {
		out[i] = section
		out[i].Fields = append([]model.FieldTemplate(nil), section.Fields...)
	}
	return out
}

func TestCloneIsolatesDecorators(t *testing.T) {
	t.Parallel()

	form := model.FormTemplate{
		ID:   "f",
		Name: "Form",
		Sections: []model.SectionTemplate{{ID: "s", Name: "S", Fields: []model.FieldTemplate{
			{ID: "a", Name: "amount", Type: model.FieldTypeNumber},
			{ID: "n", Name: "note", Type: model.FieldTypeText, Options: []model.Option{{ID: "x", Meta: map[string]string{"k": "v"}}}},
		}}},
	}
	clone := form.Clone()
	if err := model.ReadOnlyFields("amount").Decorate(&clone); err != nil {
		t.Fatalf("Decorate returned error: %v", err)
	}
	clone.Sections[0].Fields[1].Options[0].Meta["k"] = "changed"

	if form.Sections[0].Fields[0].ReadOnly {
		t.Fatalf("original field was modified")
	}
	if !clone.Sections[0].Fields[0].ReadOnly || clone.Sections[0].Fields[1].ReadOnly {
		t.Fatalf("unexpected read-only flags %+v", clone.Sections[0].Fields)
	}
	if got := form.Sections[0].Fields[1].Options[0].Meta["k"]; got != "v" {
		t.Fatalf("original option meta = %q, want v", got)
	}
}
