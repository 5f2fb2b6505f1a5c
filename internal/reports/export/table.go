// Package export renders document registers and processing slips as CSV,
// Excel and PDF.
package export

import (
	"fmt"
	"strconv"
	"time"
)

// Format is an output format accepted by the export endpoints.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
	FormatPDF   Format = "pdf"
)

// ParseFormat maps a query value to a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatExcel, "excel":
		return FormatExcel, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

func (f Format) Extension() string {
	return string(f)
}

// Table is a titled register: one header row and any number of value rows.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]any
}

// AddRow appends a row; it must have one value per column.
func (t *Table) AddRow(values ...any) {
	t.Rows = append(t.Rows, values)
}

// formatValue renders one cell as text
func formatValue(val any, dateFormat string) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "x"
		}
		return ""
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(dateFormat)
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return v.Format(dateFormat)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
