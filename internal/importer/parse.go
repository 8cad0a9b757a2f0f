package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dlcdb/dlcdb/internal/lifecycle"
)

// Row is one parsed CSV data row, keyed by canonical column name. Cells are
// whitespace-trimmed; a missing column reads as the empty string.
type Row map[string]string

// Get returns the trimmed cell for the given column, or "" if absent.
func (r Row) Get(col string) string { return r[col] }

// ParseCSV reads a header row plus data rows from r. Blank rows are dropped;
// ragged rows are rejected. A UTF-8 byte order mark on the first header cell
// is stripped.
func ParseCSV(r io.Reader) ([]string, []Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	raw, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil, lifecycle.NewValidationError("csv", "the file contains no rows")
	}

	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers[i] = strings.TrimSpace(h)
	}

	var rows []Row
	for _, cells := range raw[1:] {
		if isBlankRow(cells) {
			continue
		}
		if len(cells) != len(headers) {
			return nil, nil, lifecycle.NewValidationError("csv",
				"row has %d cells, expected %d", len(cells), len(headers))
		}
		row := make(Row, len(headers))
		for i, cell := range cells {
			row[headers[i]] = strings.TrimSpace(cell)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// isBlankRow reports whether every cell in the row is empty.
func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseISODate parses a YYYY-MM-DD cell. Empty cells yield nil.
func parseISODate(col, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, lifecycle.NewValidationError(col, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

// nullable converts an identifier cell into a nullable value: empty cells are
// stored as NULL to preserve the uniqueness constraints on EDV-ID and SAP-ID.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
