// Package csvimport reads bulk uploads (for example asset inventory lists)
// and checks that their columns match what the form expects.
package csvimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrIncompatibleColumns is returned when the uploaded header differs from
// the expected columns.
var ErrIncompatibleColumns = errors.New("csvimport: uploaded columns do not match the template")

// ErrEmptyFile is returned for uploads without a header row.
var ErrEmptyFile = errors.New("csvimport: file has no header row")

// Compatible reports whether two column lists hold the same names, ignoring
// case, surrounding whitespace, order and repeats.
func Compatible(expected, uploaded []string) bool {
	want := columnSet(expected)
	got := columnSet(uploaded)
	if len(want) != len(got) {
		return false
	}
	for name := range want {
		if _, ok := got[name]; !ok {
			return false
		}
	}
	return true
}

// Diff lists expected columns missing from the upload and uploaded columns
// that were not expected, in input order.
func Diff(expected, uploaded []string) (missing, unexpected []string) {
	got := columnSet(uploaded)
	want := columnSet(expected)
	for _, name := range expected {
		if _, ok := got[canonical(name)]; !ok {
			missing = append(missing, strings.TrimSpace(name))
		}
	}
	for _, name := range uploaded {
		if _, ok := want[canonical(name)]; !ok {
			unexpected = append(unexpected, strings.TrimSpace(name))
		}
	}
	return missing, unexpected
}

func columnSet(columns []string) map[string]struct{} {
	out := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		if name := canonical(column); name != "" {
			out[name] = struct{}{}
		}
	}
	return out
}

func canonical(column string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(column, "\ufeff")))
}

// Row is one data line keyed by the expected column spelling.
type Row map[string]string

// Result holds the parsed rows plus counters for the import summary.
type Result struct {
	Columns []string
	Rows    []Row
	Skipped int
}

// Parse reads r, verifies its header against expected and returns the data
// rows. Blank lines are skipped; short rows are padded with empty values.
func Parse(ctx context.Context, r io.Reader, expected []string) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, ErrEmptyFile
	}
	if err != nil {
		return Result{}, fmt.Errorf("csvimport: read header: %w", err)
	}
	if !Compatible(expected, header) {
		missing, unexpected := Diff(expected, header)
		return Result{}, fmt.Errorf("%w: missing %v, unexpected %v", ErrIncompatibleColumns, missing, unexpected)
	}

	spelling := make(map[string]string, len(expected))
	for _, name := range expected {
		spelling[canonical(name)] = strings.TrimSpace(name)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = spelling[canonical(name)]
	}

	result := Result{Columns: append([]string(nil), columns...)}
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("csvimport: read row %d: %w", len(result.Rows)+result.Skipped+2, err)
		}
		if blank(record) {
			result.Skipped++
			continue
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			if column == "" {
				continue
			}
			if i < len(record) {
				row[column] = strings.TrimSpace(record[i])
			} else if _, ok := row[column]; !ok {
				row[column] = ""
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func blank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
