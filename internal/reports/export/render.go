package export

import (
	"io"
)

// Render writes t to w in the given format.
func Render(w io.Writer, f Format, t Table, pdf PDFOptions) error {
	switch f {
	case FormatExcel:
		e := NewExcelExporter(DefaultExcelOptions())
		defer e.Close()
		if err := e.WriteTable(t); err != nil {
			return err
		}
		return e.WriteTo(w)
	case FormatPDF:
		if len(t.Columns) > 5 {
			pdf.Orientation = "landscape"
		}
		g := NewPDFGenerator(pdf)
		g.GenerateTable(t)
		out, err := g.OutputToBytes()
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return WriteCSV(w, t, DefaultCSVOptions())
	}
}
