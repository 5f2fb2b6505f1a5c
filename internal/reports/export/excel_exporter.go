package export

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter exports registers to an Excel workbook
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName    string
	FreezeHeader bool
	AutoFilter   bool
	DateFormat   string
	HeaderFill   string
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:    "So van ban",
		FreezeHeader: true,
		AutoFilter:   true,
		DateFormat:   "dd/mm/yyyy",
		HeaderFill:   "4472C4",
	}
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	file := excelize.NewFile()
	file.SetSheetName("Sheet1", options.SheetName)
	return &ExcelExporter{file: file, options: options}
}

// WriteTable writes the header with styling, then the rows. Dates are stored
// as real date cells.
func (e *ExcelExporter) WriteTable(t Table) error {
	sheet := e.options.SheetName

	headerStyle, err := e.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    borders(),
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	dataStyle, err := e.file.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border:    borders(),
	})
	if err != nil {
		return fmt.Errorf("failed to create data style: %w", err)
	}
	dateFormat := e.options.DateFormat
	dateStyle, err := e.file.NewStyle(&excelize.Style{
		CustomNumFmt: &dateFormat,
		Alignment:    &excelize.Alignment{Vertical: "top"},
		Border:       borders(),
	})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	widths := make([]float64, len(t.Columns))
	for i, col := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
		widths[i] = cellWidth(col)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
	if err := e.file.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return err
	}

	for r, row := range t.Rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			style := dataStyle
			switch v := val.(type) {
			case time.Time:
				if v.IsZero() {
					val = nil
				} else {
					style = dateStyle
				}
			case *time.Time:
				if v == nil || v.IsZero() {
					val = nil
				} else {
					val = *v
					style = dateStyle
				}
			}
			if err := e.file.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
			if err := e.file.SetCellStyle(sheet, cell, cell, style); err != nil {
				return err
			}
			if c < len(widths) {
				if w := cellWidth(formatValue(val, "02/01/2006")); w > widths[c] {
					widths[c] = w
				}
			}
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := e.file.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}

	if e.options.FreezeHeader {
		if err := e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return err
		}
	}
	if e.options.AutoFilter && len(t.Rows) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(t.Columns), len(t.Rows)+1)
		if err := e.file.AutoFilter(sheet, "A1:"+lastCell, nil); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo writes the workbook to w
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func borders() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "BFBFBF", Style: 1},
		{Type: "top", Color: "BFBFBF", Style: 1},
		{Type: "right", Color: "BFBFBF", Style: 1},
		{Type: "bottom", Color: "BFBFBF", Style: 1},
	}
}

// cellWidth estimates a column width between 10 and 50 characters.
func cellWidth(s string) float64 {
	w := float64(utf8.RuneCountInString(s)) + 2
	if w < 10 {
		return 10
	}
	if w > 50 {
		return 50
	}
	return w
}
