package app

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/internal/config"
	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/engine"
	"github.com/goliatone/go-formflow/pkg/repository"
	"github.com/goliatone/go-formflow/pkg/templates"
)

const localForms = `
queries:
  projects:
    table: projects
forms:
  - id: purchase
    name: Purchase request
    sections:
      - id: header
        name: Header
        fields:
          - {id: h1, name: project, type: select, source: projects}
`

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Backend.URL = "https://project.example.co"
	cfg.Backend.APIKey = "key"
	return cfg
}

func testClient() *backend.Memory {
	return backend.NewMemory(map[string][]backend.Row{
		"projects": {
			{"id": "p1", "name": "Alpha"},
			{"id": "p2", "name": "Beta"},
		},
		"form_templates": {
			{"id": "memo", "name": "Memo", "definition": `{"sections": [{"id": "body", "fields": [{"name": "text", "type": "textarea"}]}]}`},
			{"id": "purchase", "name": "Old purchase", "definition": `{"sections": [{"id": "header", "fields": [{"name": "x", "type": "text"}]}]}`},
		},
	})
}

func TestBuildWiresLocalAndStoredTemplates(t *testing.T) {
	t.Parallel()

	a, err := Build(testConfig(), testClient(), nil, WithTemplatesFS(fstest.MapFS{
		"forms/purchase.yaml": {Data: []byte(localForms)},
	}))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	defer a.Close()

	if diff := cmp.Diff([]string{"projects"}, a.Queries().List()); diff != "" {
		t.Fatalf("queries mismatch (-want +got):\n%s", diff)
	}

	session, err := a.Engine.Open(context.Background(), engine.AppContext{TeamID: "t1"}, "purchase")
	if err != nil {
		t.Fatalf("Open(purchase) returned error: %v", err)
	}
	field := session.Sections()[0].Fields[0]
	var values []string
	for _, option := range field.Options {
		values = append(values, option.Value)
	}
	if diff := cmp.Diff([]string{"Alpha", "Beta"}, values); diff != "" {
		t.Fatalf("prefetched options mismatch (-want +got):\n%s", diff)
	}

	memo, err := a.Engine.Open(context.Background(), engine.AppContext{}, "memo")
	if err != nil {
		t.Fatalf("Open(memo) returned error: %v", err)
	}
	if memo.Form().ID != "memo" {
		t.Fatalf("unexpected memo form %+v", memo.Form())
	}

	if _, err := a.Templates.Definition(context.Background(), "missing"); !errors.Is(err, templates.ErrUnknownForm) {
		t.Fatalf("expected ErrUnknownForm, got %v", err)
	}

	forms, err := a.Forms(context.Background())
	if err != nil {
		t.Fatalf("Forms returned error: %v", err)
	}
	want := []repository.FormSummary{{ID: "memo", Name: "Memo"}, {ID: "purchase", Name: "Purchase request"}}
	if diff := cmp.Diff(want, forms); diff != "" {
		t.Fatalf("forms mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRejectsMissingClient(t *testing.T) {
	t.Parallel()

	if _, err := Build(testConfig(), nil, nil); err == nil {
		t.Fatalf("expected error without client")
	}
}

func TestOpenPostgRESTBackend(t *testing.T) {
	t.Parallel()

	a, err := Open(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	cfg := testConfig()
	cfg.Backend.Kind = "mongo"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
