package csvimport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompatible(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		expected []string
		uploaded []string
		want     bool
	}{
		{name: "reordered case", expected: []string{"Name", "Email"}, uploaded: []string{"email", "name"}, want: true},
		{name: "different column", expected: []string{"Name", "Email"}, uploaded: []string{"Name", "Phone"}, want: false},
		{name: "whitespace", expected: []string{"Name", "Email"}, uploaded: []string{" NAME ", "Email  "}, want: true},
		{name: "extra column", expected: []string{"Name"}, uploaded: []string{"Name", "Email"}, want: false},
		{name: "both empty", expected: nil, uploaded: []string{" "}, want: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Compatible(tc.expected, tc.uploaded); got != tc.want {
				t.Fatalf("Compatible(%v, %v) = %v, want %v", tc.expected, tc.uploaded, got, tc.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	input := "\ufeffemail, name\nann@example.com, Ann\n\n,\nbob@example.com\n"
	result, err := Parse(context.Background(), strings.NewReader(input), []string{"Name", "Email"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := Result{
		Columns: []string{"Email", "Name"},
		Rows: []Row{
			{"Email": "ann@example.com", "Name": "Ann"},
			{"Email": "bob@example.com", "Name": ""},
		},
		Skipped: 1,
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsIncompatibleHeader(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), strings.NewReader("Name,Phone\nAnn,1\n"), []string{"Name", "Email"})
	if !errors.Is(err, ErrIncompatibleColumns) {
		t.Fatalf("expected ErrIncompatibleColumns, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing [Email]") || !strings.Contains(err.Error(), "unexpected [Phone]") {
		t.Fatalf("error lacks column diff: %v", err)
	}

	if _, err := Parse(context.Background(), strings.NewReader(""), []string{"Name"}); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestParseHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Parse(ctx, strings.NewReader("Name\nAnn\n"), []string{"Name"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
