package exporter

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"flowforge/internal/table"
)

// ExcelOptions configures workbook export.
type ExcelOptions struct {
	// SheetName names the data sheet. Defaults to "Data".
	SheetName string
	// FreezeHeader pins the header row while scrolling.
	FreezeHeader bool
}

// WriteExcel writes the table as an .xlsx workbook to w. Cells keep
// their native types so spreadsheet formulas work on exported numbers
// and dates.
func WriteExcel(w io.Writer, t *table.Table, opts ExcelOptions) error {
	sheet := opts.SheetName
	if sheet == "" {
		sheet = "Data"
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]interface{}, t.ColumnCount())
	for i, col := range t.Columns() {
		header[i] = excelize.Cell{Value: col.Name, StyleID: 0}
	}
	cell, _ := excelize.CoordinatesToCellName(1, 1)
	if err := sw.SetRow(cell, header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for r := 0; r < t.RowCount(); r++ {
		row := make([]interface{}, t.ColumnCount())
		for c, v := range t.Row(r) {
			row[c] = excelValue(v)
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush stream writer: %w", err)
	}

	if opts.FreezeHeader {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func excelValue(v any) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		// excelize serializes time values with the workbook's date
		// format; render the canonical text instead so exports match
		// the CSV view.
		return table.FormatValue(x)
	default:
		return v
	}
}
