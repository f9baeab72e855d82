package signers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/validation"
)

var defaults = model.SignerList{{TeamMemberID: "hr", Action: "review", Primary: true}}

func TestForProject(t *testing.T) {
	t.Parallel()

	source := SourceFunc(func(_ context.Context, id string) (model.SignerList, error) {
		switch id {
		case "p1":
			return model.SignerList{{TeamMemberID: "pm", Action: "approve", Primary: true}, {TeamMemberID: "fin", Action: "note"}}, nil
		case "down":
			return nil, errors.New("connection refused")
		default:
			return nil, nil
		}
	})
	resolver := NewResolver(defaults, source, nil)
	ctx := context.Background()

	got, err := resolver.ForProject(ctx, "p1")
	if err != nil {
		t.Fatalf("ForProject returned error: %v", err)
	}
	if diff := cmp.Diff(model.SignerList{{TeamMemberID: "pm", Action: "approve", Primary: true}, {TeamMemberID: "fin", Action: "note"}}, got); diff != "" {
		t.Fatalf("signers mismatch (-want +got):\n%s", diff)
	}

	for _, id := range []string{"", "unconfigured"} {
		got, err = resolver.ForProject(ctx, id)
		if err != nil {
			t.Fatalf("ForProject(%q) returned error: %v", id, err)
		}
		if diff := cmp.Diff(defaults, got); diff != "" {
			t.Fatalf("ForProject(%q) mismatch (-want +got):\n%s", id, diff)
		}
	}

	if _, err := resolver.ForProject(ctx, "down"); !errors.Is(err, validation.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}

	got[0].Action = "mutated"
	if resolver.Default()[0].Action != "review" {
		t.Fatalf("default list aliased")
	}
}

func TestAppendCategorySigners(t *testing.T) {
	t.Parallel()

	category := func(value string) model.SectionInstance {
		return model.SectionInstance{SectionID: "items", Fields: []model.FieldInstance{{
			Name:  "category",
			Value: value,
			Options: []model.Option{
				{ID: "1", Value: "IT", Meta: map[string]string{"signer": "it-head"}},
				{ID: "2", Value: "Office", Meta: map[string]string{"signer": "hr"}},
				{ID: "3", Value: "Misc"},
			},
		}}}
	}
	sections := []model.SectionInstance{category("IT"), category("IT"), category("Office"), category("Misc"), category("")}

	got := AppendCategorySigners(defaults, sections, "category", "signer")
	want := model.SignerList{
		{TeamMemberID: "hr", Action: "review", Primary: true},
		{TeamMemberID: "it-head", Action: ActionApprove},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("signers mismatch (-want +got):\n%s", diff)
	}
	if len(defaults) != 1 {
		t.Fatalf("input list modified")
	}
}
