// Package ingest parses uploaded files into table snapshots. Column
// types are inferred from the data so the pipeline starts from a typed
// schema rather than all-string columns.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "flowforge/internal/errors"
	"flowforge/internal/table"
)

// CSVOptions configures CSV ingestion.
type CSVOptions struct {
	// Comma is the field delimiter. Defaults to ','.
	Comma rune
	// NullLiterals are cell texts treated as null in addition to the
	// empty string.
	NullLiterals []string
}

// ReadCSV parses CSV data from r into a table. The first record is the
// header; each column's type is inferred from its values.
func ReadCSV(r io.Reader, opts CSVOptions) (*table.Table, error) {
	reader := csv.NewReader(stripBOM(r))
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewSchemaError("malformed CSV: %v", err)
	}
	if len(records) == 0 {
		return nil, apperrors.NewSchemaError("file has no header row")
	}

	header := records[0]
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
		if header[i] == "" {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	nulls := make(map[string]bool, len(opts.NullLiterals)+1)
	nulls[""] = true
	for _, lit := range opts.NullLiterals {
		nulls[lit] = true
	}

	body := records[1:]
	cols := make([]table.Column, len(header))
	for c, name := range header {
		cols[c] = table.Column{Name: name, Type: inferColumnType(body, c, nulls)}
	}

	rows := make([][]any, len(body))
	for r, record := range body {
		if len(record) != len(header) {
			return nil, apperrors.NewSchemaError("row %d has %d fields, want %d", r+1, len(record), len(header))
		}
		row := make([]any, len(header))
		for c, cell := range record {
			if nulls[cell] {
				row[c] = nil
			} else {
				row[c] = cell
			}
		}
		rows[r] = row
	}

	return table.Load(cols, rows)
}

// inferColumnType picks the narrowest type every non-null value fits.
// Order matters: int before float, bool before string.
func inferColumnType(rows [][]string, col int, nulls map[string]bool) table.Type {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, row := range rows {
		if col >= len(row) || nulls[row[col]] {
			continue
		}
		seen = true
		v := strings.TrimSpace(row[col])
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			switch strings.ToLower(v) {
			case "true", "false":
			default:
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			break
		}
	}

	switch {
	case !seen:
		return table.TypeString
	case isBool:
		return table.TypeBool
	case isInt:
		return table.TypeInt
	case isFloat:
		return table.TypeFloat
	default:
		return table.TypeString
	}
}

// stripBOM removes a leading UTF-8 BOM so the first header name parses
// clean.
func stripBOM(r io.Reader) io.Reader {
	return &bomReader{r: r}
}

type bomReader struct {
	r       io.Reader
	checked bool
	buf     []byte
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head := make([]byte, 3)
		n, err := io.ReadFull(b.r, head)
		head = head[:n]
		if n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
			head = head[3:]
		}
		b.buf = head
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return 0, err
		}
	}
	if len(b.buf) > 0 {
		n := copy(p, b.buf)
		b.buf = b.buf[n:]
		return n, nil
	}
	return b.r.Read(p)
}
