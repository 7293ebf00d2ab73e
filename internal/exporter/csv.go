// Package exporter serializes table snapshots for download as CSV or
// Excel workbooks.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"flowforge/internal/table"
)

// CSVOptions configures CSV export behavior.
type CSVOptions struct {
	// BOMPrefix prepends a UTF-8 BOM so Excel recognizes the encoding.
	BOMPrefix bool
	// NullAs is the text emitted for null cells. Defaults to empty.
	NullAs string
}

// WriteCSV writes the table to w as RFC 4180 CSV with a header row.
// Values are rendered with their canonical text form; nulls become
// opts.NullAs.
func WriteCSV(w io.Writer, t *table.Table, opts CSVOptions) error {
	if opts.BOMPrefix {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)

	headers := make([]string, t.ColumnCount())
	for i, col := range t.Columns() {
		headers[i] = col.Name
	}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	record := make([]string, t.ColumnCount())
	for r := 0; r < t.RowCount(); r++ {
		for c, v := range t.Row(r) {
			if v == nil {
				record[c] = opts.NullAs
			} else {
				record[c] = table.FormatValue(v)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", r, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
