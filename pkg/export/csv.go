// Package export renders report rows as downloadable files.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is a header row followed by records laid out in header order.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Append adds a record. Short records are padded, long ones rejected at render time.
func (t *Table) Append(values ...string) {
	t.Rows = append(t.Rows, values)
}

// CSV encodes the table, header first.
func CSV(t Table) ([]byte, error) {
	if len(t.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(t.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i, row := range t.Rows {
		if len(row) > len(t.Headers) {
			return nil, fmt.Errorf("csv row %d has %d columns, want %d", i, len(row), len(t.Headers))
		}
		record := make([]string, len(t.Headers))
		copy(record, row)
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
