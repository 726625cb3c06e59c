package parser

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// SpreadsheetParser handles .xlsx, .xls, and .csv. Rows are grouped into
// batches of RowBatchSize (first row of each sheet treated as a header and
// repeated into every group's text for context) so a huge sheet doesn't
// collapse into one unchunkable block.
type SpreadsheetParser struct {
	RowBatchSize int
}

func (p *SpreadsheetParser) Parse(path string, docID uuid.UUID) ([]Block, Properties, error) {
	if p.RowBatchSize <= 0 {
		p.RowBatchSize = 200
	}

	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		rows, err := readCSVRows(path)
		if err != nil {
			return nil, nil, err
		}
		return rowsToBlocks(docID, "Sheet1", rows, p.RowBatchSize), Properties{}, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var blocks []Block
	for _, sheet := range f.GetSheetList() {
		rows, rowsErr := f.GetRows(sheet)
		if rowsErr != nil {
			return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, rowsErr)
		}
		blocks = append(blocks, rowsToBlocks(docID, sheet, rows, p.RowBatchSize)...)
	}

	return blocks, Properties{"sheet_count": len(f.GetSheetList())}, nil
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

func rowsToBlocks(docID uuid.UUID, sheet string, rows [][]string, batchSize int) []Block {
	if len(rows) == 0 {
		return nil
	}

	header := rows[0]
	body := rows[1:]

	var blocks []Block
	for start := 0; start < len(body); start += batchSize {
		end := start + batchSize
		if end > len(body) {
			end = len(body)
		}

		var sb strings.Builder
		sb.WriteString(strings.Join(header, " | "))
		sb.WriteString("\n")
		for _, row := range body[start:end] {
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteString("\n")
		}

		blocks = append(blocks, Block{
			DocID:   docID,
			Type:    BlockTableRowsGroup,
			Text:    strings.TrimRight(sb.String(), "\n"),
			Section: sheet,
			Metadata: map[string]interface{}{
				"sheet":     sheet,
				"start_row": start + 1,
				"end_row":   end,
			},
		})
	}

	if len(blocks) == 0 {
		blocks = append(blocks, Block{
			DocID:   docID,
			Type:    BlockTableRowsGroup,
			Text:    strings.Join(header, " | "),
			Section: sheet,
		})
	}

	return blocks
}
