package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PDFOptions configures PDF generation
type PDFOptions struct {
	PageSize    string
	Orientation string
	DateFormat  string
	// FontPath points to a UTF-8 TrueType font. Without it the core Arial font
	// is used and Vietnamese diacritics are folded to ASCII.
	FontPath string
	Margin   float64
}

// DefaultPDFOptions returns default PDF options
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:    "A4",
		Orientation: "portrait",
		DateFormat:  "02/01/2006 15:04",
		Margin:      15,
	}
}

// PDFGenerator renders registers and slips
type PDFGenerator struct {
	pdf     *gofpdf.Fpdf
	options PDFOptions
	family  string
	text    func(string) string
}

// NewPDFGenerator creates a new PDF generator
func NewPDFGenerator(options PDFOptions) *PDFGenerator {
	orientation := "P"
	if options.Orientation == "landscape" {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", options.PageSize, "")
	pdf.SetMargins(options.Margin, options.Margin, options.Margin)
	pdf.SetAutoPageBreak(true, options.Margin)

	g := &PDFGenerator{pdf: pdf, options: options}
	if options.FontPath != "" {
		pdf.AddUTF8Font("body", "", options.FontPath)
		pdf.AddUTF8Font("body", "B", options.FontPath)
		g.family = "body"
		g.text = func(s string) string { return s }
	} else {
		tr := pdf.UnicodeTranslatorFromDescriptor("")
		g.family = "Arial"
		g.text = func(s string) string { return tr(foldDiacritics(s)) }
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(g.family, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")
	return g
}

// Slip is a one-document processing sheet
type Slip struct {
	Title       string
	Fields      [][2]string
	Sections    []Table
	GeneratedAt time.Time
}

// GenerateTable renders a register as a single table.
func (g *PDFGenerator) GenerateTable(t Table) {
	g.pdf.AddPage()
	g.addTitle(t.Title)
	g.addDate(time.Now())
	g.pdf.Ln(4)
	g.addTable(t)
}

// GenerateSlip renders the field list followed by each section table.
func (g *PDFGenerator) GenerateSlip(s Slip) {
	g.pdf.AddPage()
	g.addTitle(s.Title)
	at := s.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	g.addDate(at)
	g.pdf.Ln(4)

	pageWidth, _ := g.pdf.GetPageSize()
	labelWidth := 45.0
	valueWidth := pageWidth - 2*g.options.Margin - labelWidth
	for _, f := range s.Fields {
		g.pdf.SetFont(g.family, "B", 10)
		g.pdf.CellFormat(labelWidth, 7, g.text(f[0]), "", 0, "L", false, 0, "")
		g.pdf.SetFont(g.family, "", 10)
		g.pdf.MultiCell(valueWidth, 7, g.text(f[1]), "", "L", false)
	}

	for _, section := range s.Sections {
		g.pdf.Ln(5)
		g.pdf.SetFont(g.family, "B", 11)
		g.pdf.CellFormat(0, 8, g.text(section.Title), "", 1, "L", false, 0, "")
		g.addTable(section)
	}
}

func (g *PDFGenerator) addTitle(title string) {
	g.pdf.SetFont(g.family, "B", 14)
	g.pdf.SetTextColor(0, 0, 0)
	g.pdf.CellFormat(0, 10, g.text(strings.ToUpper(title)), "", 1, "C", false, 0, "")
}

func (g *PDFGenerator) addDate(at time.Time) {
	g.pdf.SetFont(g.family, "", 9)
	g.pdf.SetTextColor(128, 128, 128)
	g.pdf.CellFormat(0, 6, g.text(at.Format(g.options.DateFormat)), "", 1, "R", false, 0, "")
	g.pdf.SetTextColor(0, 0, 0)
}

func (g *PDFGenerator) addTable(t Table) {
	if len(t.Columns) == 0 {
		return
	}
	pageWidth, _ := g.pdf.GetPageSize()
	width := (pageWidth - 2*g.options.Margin) / float64(len(t.Columns))

	header := func() {
		g.pdf.SetFont(g.family, "B", 9)
		g.pdf.SetFillColor(68, 114, 196)
		g.pdf.SetTextColor(255, 255, 255)
		for _, col := range t.Columns {
			g.pdf.CellFormat(width, 8, g.text(col), "1", 0, "C", true, 0, "")
		}
		g.pdf.Ln(-1)
		g.pdf.SetFont(g.family, "", 9)
		g.pdf.SetTextColor(0, 0, 0)
	}
	header()

	_, pageHeight := g.pdf.GetPageSize()
	for i, row := range t.Rows {
		if g.pdf.GetY()+7 > pageHeight-g.options.Margin {
			g.pdf.AddPage()
			header()
		}
		if i%2 == 1 {
			g.pdf.SetFillColor(242, 242, 242)
		} else {
			g.pdf.SetFillColor(255, 255, 255)
		}
		for _, val := range row {
			cell := g.text(formatValue(val, g.options.DateFormat))
			for g.pdf.GetStringWidth(cell) > width-2 && len(cell) > 3 {
				cell = cell[:len(cell)-4] + "..."
			}
			g.pdf.CellFormat(width, 7, cell, "1", 0, "L", true, 0, "")
		}
		g.pdf.Ln(-1)
	}
}

// OutputToBytes returns the PDF as bytes
func (g *PDFGenerator) OutputToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := g.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var diacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldDiacritics maps Vietnamese text to its unaccented form for core fonts.
func foldDiacritics(s string) string {
	s = strings.NewReplacer("đ", "d", "Đ", "D").Replace(s)
	out, _, err := transform.String(diacritics, s)
	if err != nil {
		return s
	}
	return out
}
