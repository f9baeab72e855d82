// Package backend defines the table-shaped CRUD contract the engine needs
// from the hosted data store, plus an in-memory implementation.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/options"
)

// Row is one record keyed by column name.
type Row map[string]any

// Request selects rows from a table.
type Request struct {
	Table   string
	Columns []string
	Filters []options.Filter
	// Order is the column rows are sorted by, ascending. A leading "-"
	// sorts descending.
	Order  string
	Offset int
	Limit  int
	// Count asks the backend for the exact number of matching rows.
	Count bool
}

// Result is one page of rows. Total is -1 when no count was requested or
// the backend could not provide one.
type Result struct {
	Rows  []Row
	Total int
}

// Client is the opaque table store.
type Client interface {
	Rows(ctx context.Context, req Request) (Result, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
}

// Error is a failure reported by the remote store.
type Error struct {
	Status  int
	Message string
	// Fields carries per-field messages when the store reports them.
	Fields map[string][]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// OptionFetcher exposes a Client as an options.PageFetcher.
func OptionFetcher(client Client) options.PageFetcher {
	return options.PageFetcherFunc(func(ctx context.Context, q options.Query, offset, limit int) (options.Page, error) {
		res, err := client.Rows(ctx, Request{
			Table:   q.Table,
			Columns: q.SelectColumns(),
			Filters: q.Filters,
			Order:   q.OrderColumn,
			Offset:  offset,
			Limit:   limit,
			Count:   true,
		})
		if err != nil {
			return options.Page{}, err
		}
		page := options.Page{Total: res.Total, Options: make([]model.Option, 0, len(res.Rows))}
		for i, row := range res.Rows {
			page.Options = append(page.Options, options.RowToOption(q, row, offset+i))
		}
		return page, nil
	})
}

// OrderSpec splits an order column into name and direction.
func OrderSpec(order string) (column string, ascending bool) {
	order = strings.TrimSpace(order)
	if strings.HasPrefix(order, "-") {
		return strings.TrimSpace(order[1:]), false
	}
	return order, true
}
