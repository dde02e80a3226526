package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"smartdoc/internal/apperr"
)

// extractXLSX emits one section per sheet and one paragraph per non-empty
// row, cells joined by " | ".
func extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: unreadable xlsx: %v", apperr.ErrUnsupportedMedia, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close workbook", "error", err)
		}
	}()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			slog.Warn("failed to read sheet", "sheet", sheet, "error", err)
			continue
		}
		var lines []string
		for _, row := range rows {
			var cells []string
			for _, c := range row {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " | "))
			}
		}
		writeSection(&sb, "Sheet: "+sheet, strings.Join(lines, "\n\n"))
	}
	return sb.String(), nil
}
