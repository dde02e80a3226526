// Package extract turns uploaded document bytes into plain text. Paged and
// tabbed formats are emitted with section markers so the chunker can label
// the chunks it cuts from each page or sheet.
package extract

import (
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"smartdoc/internal/apperr"
	"smartdoc/internal/text"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type format int

const (
	formatUnknown format = iota
	formatPDF
	formatDOCX
	formatXLSX
	formatText
)

var extensions = map[string]format{
	".pdf":  formatPDF,
	".docx": formatDOCX,
	".xlsx": formatXLSX,
	".txt":  formatText,
	".md":   formatText,
	".csv":  formatText,
}

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract picks a reader by mimetype, then by filename extension. Formats
// neither identifies fail with apperr.ErrUnsupportedMedia.
func (e *Extractor) Extract(data []byte, mimetype, filename string) (string, error) {
	f := detect(mimetype, filename)

	var (
		out string
		err error
	)
	switch f {
	case formatPDF:
		out, err = extractPDF(data)
	case formatDOCX:
		out, err = extractDOCX(data)
	case formatXLSX:
		out, err = extractXLSX(data)
	case formatText:
		out = strings.ToValidUTF8(string(data), "")
	default:
		return "", fmt.Errorf("%w: %s", apperr.ErrUnsupportedMedia, describe(mimetype, filename))
	}
	if err != nil {
		return "", err
	}

	out = strings.TrimSpace(out)
	slog.Debug("text extracted", "mimetype", mimetype, "filename", filename, "chars", len(out))
	return out, nil
}

func detect(mimetype, filename string) format {
	if mt, _, err := mime.ParseMediaType(mimetype); err == nil {
		switch {
		case mt == MIMEPDF:
			return formatPDF
		case mt == MIMEDOCX:
			return formatDOCX
		case mt == MIMEXLSX:
			return formatXLSX
		case strings.HasPrefix(mt, "text/"):
			return formatText
		}
	}
	return extensions[strings.ToLower(filepath.Ext(filename))]
}

func describe(mimetype, filename string) string {
	if mimetype != "" {
		return mimetype
	}
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	return "unknown type"
}

func writeSection(sb *strings.Builder, label, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	sb.WriteString(text.SectionMarker(label))
	sb.WriteString("\n")
	sb.WriteString(body)
}
