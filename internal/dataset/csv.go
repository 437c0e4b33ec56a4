// Package dataset reads and writes the flat CSV and NDJSON files exchanged
// between pipeline stages.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/model"
)

// ReadCSV loads a headed CSV file. Duplicate or empty header names and ragged
// rows are malformed.
func ReadCSV(path string) (*model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	t, err := DecodeCSV(f)
	if err != nil {
		if errors.Is(err, audit.ErrMalformedDocument) {
			return nil, err
		}
		return nil, audit.Malformed(path, err.Error())
	}
	t.Source = path
	return t, nil
}

// DecodeCSV reads a headed CSV stream.
func DecodeCSV(r io.Reader) (*model.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV, no header")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if h == "" {
			return nil, fmt.Errorf("CSV header has an empty column name")
		}
		if seen[h] {
			return nil, fmt.Errorf("CSV header repeats column %q", h)
		}
		seen[h] = true
	}

	t := &model.Table{Columns: header}
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", len(t.Rows)+1, err)
		}
		rec := make(model.Record, len(header))
		for i, h := range header {
			rec[h] = fields[i]
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// EncodeCSV writes the table's columns in order. Missing cells are empty.
// Lines end in CRLF.
func EncodeCSV(w io.Writer, t *model.Table) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	line := make([]string, len(t.Columns))
	for _, rec := range t.Rows {
		for i, c := range t.Columns {
			line[i] = rec[c]
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
