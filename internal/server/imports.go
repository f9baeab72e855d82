package server

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-formflow/pkg/csvimport"
)

type importCheckResponse struct {
	Compatible bool     `json:"compatible"`
	Columns    []string `json:"columns"`
	Rows       int      `json:"rows"`
	Skipped    int      `json:"skipped"`
	Missing    []string `json:"missing,omitempty"`
	Unexpected []string `json:"unexpected,omitempty"`
}

// checkImport compares an uploaded CSV header with the expected columns.
// Expected columns come from repeated ?columns= parameters or from the
// field names of ?form=&section=. The file is the raw body or the "file"
// part of a multipart upload.
func (s *Server) checkImport(w http.ResponseWriter, r *http.Request) {
	expected, ok := s.expectedColumns(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	data, err := readUpload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid upload"})
		return
	}

	result, err := csvimport.Parse(r.Context(), bytes.NewReader(data), expected)
	switch {
	case errors.Is(err, csvimport.ErrEmptyFile):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "The file is empty."})
	case errors.Is(err, csvimport.ErrIncompatibleColumns):
		header, _ := csv.NewReader(bytes.NewReader(data)).Read()
		missing, unexpected := csvimport.Diff(expected, header)
		writeJSON(w, http.StatusUnprocessableEntity, importCheckResponse{
			Columns:    expected,
			Missing:    missing,
			Unexpected: unexpected,
		})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "The file could not be read."})
	default:
		writeJSON(w, http.StatusOK, importCheckResponse{
			Compatible: true,
			Columns:    result.Columns,
			Rows:       len(result.Rows),
			Skipped:    result.Skipped,
		})
	}
}

func (s *Server) expectedColumns(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	query := r.URL.Query()
	if columns := splitColumns(query["columns"]); len(columns) > 0 {
		return columns, true
	}

	formID, sectionID := query.Get("form"), query.Get("section")
	if formID == "" || sectionID == "" || s.deps.Templates == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "columns or form and section are required"})
		return nil, false
	}
	def, err := s.deps.Templates.Definition(r.Context(), formID)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	section, ok := def.Form.Section(sectionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown section"})
		return nil, false
	}
	columns := make([]string, 0, len(section.Fields))
	for _, field := range section.Fields {
		columns = append(columns, field.Name)
	}
	return columns, true
}

func splitColumns(values []string) []string {
	var out []string
	for _, value := range values {
		for _, column := range strings.Split(value, ",") {
			if column = strings.TrimSpace(column); column != "" {
				out = append(out, column)
			}
		}
	}
	return out
}

func readUpload(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}
