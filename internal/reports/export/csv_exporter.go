package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVOptions configures CSV export behavior
type CSVOptions struct {
	Delimiter  rune
	UseCRLF    bool
	DateFormat string
	// WriteBOM prefixes a UTF-8 byte order mark so spreadsheet tools detect
	// Vietnamese text correctly.
	WriteBOM bool
}

// DefaultCSVOptions returns default CSV export options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:  ',',
		UseCRLF:    true,
		DateFormat: "02/01/2006",
		WriteBOM:   true,
	}
}

// WriteCSV writes the table header and rows to w.
func WriteCSV(w io.Writer, t Table, options CSVOptions) error {
	if options.WriteBOM {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if options.Delimiter != 0 {
		writer.Comma = options.Delimiter
	}
	writer.UseCRLF = options.UseCRLF

	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range t.Rows {
		record := make([]string, len(row))
		for i, val := range row {
			record[i] = formatValue(val, options.DateFormat)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
