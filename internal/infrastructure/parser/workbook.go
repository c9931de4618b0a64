package parser

import (
	"strings"

	"github.com/tealeg/xlsx/v2"

	"HypothesisValidator/internal/domain"
)

// WorkbookRow is one data row of an article workbook. Row is 1-based as shown in spreadsheet tools.
type WorkbookRow struct {
	Row   int
	URL   string
	Title string
}

// ReadWorkbook reads the first sheet of an .xlsx file whose header row names a URL column
// and optionally a Title column. Blank rows are skipped; rows with an empty URL are kept.
func ReadWorkbook(data []byte) ([]WorkbookRow, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, domain.Invalid("read workbook: %v", err)
	}
	if len(f.Sheets) == 0 || len(f.Sheets[0].Rows) == 0 {
		return nil, domain.Invalid("workbook has no rows")
	}

	sheet := f.Sheets[0]
	urlCol, titleCol := -1, -1
	for i, cell := range rowToStrings(sheet.Rows[0]) {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "url":
			urlCol = i
		case "title":
			titleCol = i
		}
	}
	if urlCol < 0 {
		return nil, domain.Invalid("workbook header must contain a URL column")
	}

	var rows []WorkbookRow
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		rows = append(rows, WorkbookRow{
			Row:   i + 2,
			URL:   cellAt(cells, urlCol),
			Title: cellAt(cells, titleCol),
		})
	}
	return rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func cellAt(cells []string, col int) string {
	if col < 0 || col >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[col])
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

