package options

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/model"
)

func TestRowToOptionMapsColumnsAndMeta(t *testing.T) {
	t.Parallel()

	q := Query{Table: "item_categories", MetaColumns: []string{"approval_signer", "missing"}, FieldID: "f-1"}.WithDefaults()
	got := RowToOption(q, map[string]any{
		"id":              float64(42),
		"name":            "Laptops",
		"approval_signer": "tm-7",
	}, 3)

	want := model.Option{
		ID:      "42",
		Value:   "Laptops",
		Order:   3,
		FieldID: "f-1",
		Meta:    map[string]string{"approval_signer": "tm-7"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("option mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectColumnsDeduplicates(t *testing.T) {
	t.Parallel()

	q := Query{Table: "t", IDColumn: "code", ValueColumn: "code", MetaColumns: []string{"b", "a", "code"}}
	if diff := cmp.Diff([]string{"code", "a", "b"}, q.SelectColumns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryRejectsDuplicatesAndBadOperators(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	if err := reg.Register("regions", Query{Table: "regions"}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := reg.Register("regions", Query{Table: "regions"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := reg.Register("bad", Query{Table: "x", Filters: []Filter{{Column: "a", Op: "gt"}}}); err == nil {
		t.Fatalf("expected unsupported operator error")
	}
	got, err := reg.Get("regions")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Source != "regions" || got.IDColumn != "id" || got.ValueColumn != "name" {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if diff := cmp.Diff([]string{"regions"}, reg.List()); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Put("items", "item", []model.Option{{ID: "1", Value: "Chair", Meta: map[string]string{"k": "v"}}})

	got, ok := cache.Get("items", "item")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	got[0].Value = "mutated"
	got[0].Meta["k"] = "mutated"

	again, _ := cache.Get("items", "item")
	if again[0].Value != "Chair" || again[0].Meta["k"] != "v" {
		t.Fatalf("cache entry was mutated: %+v", again[0])
	}
	if _, ok := cache.Get("items", "other"); ok {
		t.Fatalf("expected cache miss")
	}
}
