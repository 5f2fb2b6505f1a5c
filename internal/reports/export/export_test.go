package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() Table {
	t := Table{
		Title:   "Sổ văn bản đến",
		Columns: []string{"Số", "Trích yếu", "Ngày nhận", "Khẩn"},
	}
	received := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	t.AddRow("IN-001", "Công văn về kế hoạch", received, true)
	t.AddRow("IN-002", "Báo cáo, quý 1", (*time.Time)(nil), false)
	return t
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("excel")
	require.NoError(t, err)
	assert.Equal(t, FormatExcel, f)

	_, err = ParseFormat("docx")
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultCSVOptions()
	opts.UseCRLF = false
	require.NoError(t, WriteCSV(&buf, sampleTable(), opts))

	out := strings.TrimPrefix(buf.String(), "\ufeff")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Số,Trích yếu,Ngày nhận,Khẩn", lines[0])
	assert.Equal(t, "IN-001,Công văn về kế hoạch,05/03/2024,x", lines[1])
	assert.Equal(t, `IN-002,"Báo cáo, quý 1",,`, lines[2])
}

func TestExcelExporter(t *testing.T) {
	e := NewExcelExporter(DefaultExcelOptions())
	require.NoError(t, e.WriteTable(sampleTable()))

	var buf bytes.Buffer
	require.NoError(t, e.WriteTo(&buf))
	require.NoError(t, e.Close())

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("So van ban", "A2")
	require.NoError(t, err)
	assert.Equal(t, "IN-001", v)
	v, err = f.GetCellValue("So van ban", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Trích yếu", v)
}

func TestPDFGenerator(t *testing.T) {
	g := NewPDFGenerator(DefaultPDFOptions())
	g.GenerateSlip(Slip{
		Title:    "Phiếu xử lý văn bản đến",
		Fields:   [][2]string{{"Số", "IN-001"}, {"Đơn vị xử lý", "Phòng Điều hành"}},
		Sections: []Table{sampleTable()},
	})
	data, err := g.OutputToBytes()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestFoldDiacritics(t *testing.T) {
	assert.Equal(t, "Truong phong phe duyet", foldDiacritics("Trưởng phòng phê duyệt"))
	assert.Equal(t, "Dang ky", foldDiacritics("Đăng ký"))
}

func TestRender(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatExcel, FormatPDF} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, f, sampleTable(), DefaultPDFOptions()))
			assert.NotZero(t, buf.Len())
		})
	}
}
