package sqlstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"

	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/options"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres"), nil), mock
}

func TestRowsBuildsQuotedStatement(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectQuery(`SELECT "id", "name" FROM "provinces" WHERE "region_id"::text = $1 AND "name"::text ILIKE $2 ORDER BY "name" DESC LIMIT $3 OFFSET $4`).
		WithArgs("7", "%bo%", 500, 500).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(501), []byte("Cebu")).AddRow(int64(502), "Bohol"))
	mock.ExpectQuery(`SELECT count(*) FROM "provinces" WHERE "region_id"::text = $1 AND "name"::text ILIKE $2`).
		WithArgs("7", "%bo%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1234))

	res, err := store.Rows(context.Background(), backend.Request{
		Table:   "provinces",
		Columns: []string{"id", "name"},
		Filters: []options.Filter{{Column: "region_id", Value: "7"}, {Column: "name", Op: "ilike", Value: "*bo*"}},
		Order:   "-name",
		Offset:  500,
		Limit:   500,
		Count:   true,
	})
	if err != nil {
		t.Fatalf("Rows returned error: %v", err)
	}
	want := backend.Result{
		Total: 1234,
		Rows:  []backend.Row{{"id": int64(501), "name": "Cebu"}, {"id": int64(502), "name": "Bohol"}},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRowsWithoutCountOrFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectQuery(`SELECT * FROM "weird""table"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	res, err := store.Rows(context.Background(), backend.Request{Table: `weird"table`})
	if err != nil {
		t.Fatalf("Rows returned error: %v", err)
	}
	if res.Total != -1 || len(res.Rows) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertReturnsStoredRow(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO "requests" ("form_id", "team_id") VALUES ($1, $2) RETURNING *`).
		WithArgs("purchase", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "form_id", "team_id"}).AddRow("r-1", "purchase", "t1"))

	row, err := store.Insert(context.Background(), "requests", backend.Row{"team_id": "t1", "form_id": "purchase"})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if diff := cmp.Diff(backend.Row{"id": "r-1", "form_id": "purchase", "team_id": "t1"}, row); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUnsupportedOperator(t *testing.T) {
	t.Parallel()

	store, _ := newMock(t)
	_, err := store.Rows(context.Background(), backend.Request{
		Table:   "regions",
		Filters: []options.Filter{{Column: "id", Op: "gt", Value: "1"}},
	})
	if err == nil {
		t.Fatalf("expected error for unsupported operator")
	}
}
