// Package sqlstore implements backend.Client directly on PostgreSQL.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/options"
)

// Store runs backend requests as SQL statements.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ backend.Client = (*Store)(nil)

// New wraps an open database handle.
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Open connects with the lib/pq driver.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlstore: DSN is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect: %w", err)
	}
	return New(db, logger), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Rows selects a page of rows. With Count set a second statement counts all
// matching rows.
func (s *Store) Rows(ctx context.Context, req backend.Request) (backend.Result, error) {
	query, args, err := selectStatement(req)
	if err != nil {
		return backend.Result{}, err
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return backend.Result{}, fmt.Errorf("sqlstore: select %s: %w", req.Table, err)
	}
	defer rows.Close()

	result := backend.Result{Total: -1}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return backend.Result{}, fmt.Errorf("sqlstore: scan %s: %w", req.Table, err)
		}
		result.Rows = append(result.Rows, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return backend.Result{}, fmt.Errorf("sqlstore: iterate %s: %w", req.Table, err)
	}

	if req.Count {
		countQuery, countArgs, err := countStatement(req)
		if err != nil {
			return backend.Result{}, err
		}
		var total int
		if err := s.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
			return backend.Result{}, fmt.Errorf("sqlstore: count %s: %w", req.Table, err)
		}
		result.Total = total
	}
	return result, nil
}

// Insert writes one row and returns it as stored.
func (s *Store) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("sqlstore: table is required")
	}
	if len(row) == 0 {
		return nil, errors.New("sqlstore: row is empty")
	}

	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	holders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		quoted[i] = pq.QuoteIdentifier(column)
		holders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[column]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(holders, ", "))

	stored := map[string]any{}
	if err := s.db.QueryRowxContext(ctx, query, args...).MapScan(stored); err != nil {
		return nil, fmt.Errorf("sqlstore: insert into %s: %w", table, err)
	}
	s.logger.Debug("row inserted", zap.String("table", table))
	return normalizeRow(stored), nil
}

func selectStatement(req backend.Request) (string, []any, error) {
	if strings.TrimSpace(req.Table) == "" {
		return "", nil, errors.New("sqlstore: table is required")
	}
	columns := "*"
	if len(req.Columns) > 0 {
		quoted := make([]string, len(req.Columns))
		for i, column := range req.Columns {
			quoted[i] = pq.QuoteIdentifier(column)
		}
		columns = strings.Join(quoted, ", ")
	}

	where, args, err := whereClause(req.Filters)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", columns, pq.QuoteIdentifier(req.Table), where)
	if column, asc := backend.OrderSpec(req.Order); column != "" {
		dir := "ASC"
		if !asc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", pq.QuoteIdentifier(column), dir)
	}
	if req.Limit > 0 {
		args = append(args, req.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if req.Offset > 0 {
		args = append(args, req.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args, nil
}

func countStatement(req backend.Request) (string, []any, error) {
	where, args, err := whereClause(req.Filters)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT count(*) FROM %s%s", pq.QuoteIdentifier(req.Table), where), args, nil
}

func whereClause(filters []options.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, filter := range filters {
		column := pq.QuoteIdentifier(filter.Column)
		holder := fmt.Sprintf("$%d", len(args)+1)
		switch filter.Operator() {
		case options.OpEq:
			clauses = append(clauses, fmt.Sprintf("%s::text = %s", column, holder))
			args = append(args, filter.Value)
		case options.OpNeq:
			clauses = append(clauses, fmt.Sprintf("%s::text <> %s", column, holder))
			args = append(args, filter.Value)
		case options.OpILike:
			clauses = append(clauses, fmt.Sprintf("%s::text ILIKE %s", column, holder))
			args = append(args, strings.ReplaceAll(filter.Value, "*", "%"))
		case options.OpIn:
			values := strings.Split(filter.Value, ",")
			for i := range values {
				values[i] = strings.TrimSpace(values[i])
			}
			clauses = append(clauses, fmt.Sprintf("%s::text = ANY(%s)", column, holder))
			args = append(args, pq.Array(values))
		default:
			return "", nil, fmt.Errorf("sqlstore: unsupported operator %q", filter.Op)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// normalizeRow turns driver byte slices into strings so rows marshal and
// compare like the REST backend's.
func normalizeRow(row map[string]any) backend.Row {
	out := make(backend.Row, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			out[k] = string(b)
			continue
		}
		out[k] = v
	}
	return out
}
