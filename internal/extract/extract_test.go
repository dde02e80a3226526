package extract_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"smartdoc/internal/apperr"
	"smartdoc/internal/extract"
	"smartdoc/internal/text"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_PlainText(t *testing.T) {
	out, err := extract.New().Extract([]byte("  hello\xff world \n"), "text/plain; charset=utf-8", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestExtract_ExtensionFallback(t *testing.T) {
	out, err := extract.New().Extract([]byte("notes"), "application/octet-stream", "notes.MD")
	require.NoError(t, err)
	assert.Equal(t, "notes", out)
}

func TestExtract_Unsupported(t *testing.T) {
	_, err := extract.New().Extract([]byte{0x89, 0x50}, "image/png", "scan.png")
	assert.ErrorIs(t, err, apperr.ErrUnsupportedMedia)
}

func TestExtract_DOCX(t *testing.T) {
	data := buildDOCX(t,
		`<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>`)

	out, err := extract.New().Extract(data, extract.MIMEDOCX, "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\n\nSecond paragraph", out)
}

func TestExtract_DOCX_Corrupt(t *testing.T) {
	_, err := extract.New().Extract([]byte("not a zip"), "", "report.docx")
	assert.ErrorIs(t, err, apperr.ErrUnsupportedMedia)
}

func TestExtract_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Price"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Tea"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 3))
	_, err := f.NewSheet("Empty")
	require.NoError(t, err)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := extract.New().Extract(buf.Bytes(), extract.MIMEXLSX, "prices.xlsx")
	require.NoError(t, err)
	assert.Equal(t, text.SectionMarker("Sheet: Sheet1")+"\nName | Price\n\nTea | 3", out)

	windows := text.NewChunker(1000, 0).Split(out)
	require.Len(t, windows, 1)
	assert.Equal(t, "Sheet: Sheet1", windows[0].Section)
}

func TestExtract_PDF_Corrupt(t *testing.T) {
	_, err := extract.New().Extract([]byte("%PDF-garbage"), extract.MIMEPDF, "x.pdf")
	assert.ErrorIs(t, err, apperr.ErrUnsupportedMedia)
}
