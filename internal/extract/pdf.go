package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"smartdoc/internal/apperr"
)

// extractPDF emits one section per page. The reader panics on some
// malformed files; that is reported as unsupported media.
func extractPDF(data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: unreadable pdf: %v", apperr.ErrUnsupportedMedia, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: unreadable pdf: %v", apperr.ErrUnsupportedMedia, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("failed to extract pdf page", "page", i, "error", err)
			continue
		}
		writeSection(&sb, fmt.Sprintf("Page %d", i), content)
	}
	return sb.String(), nil
}
