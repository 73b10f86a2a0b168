// Package xlsxreader decodes XLSX spreadsheets into a block stream, one
// TableCell block per row (tab-joined cell values) per sheet.
package xlsxreader

import (
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Aman-CERP/hybridstore/internal/block"
)

// Reader implements block.Reader for .xlsx files.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) ReadFile(path string, _ string) ([]block.Block, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return []block.Block{block.Diagnostic(0, err.Error())}, nil
	}
	defer f.Close()

	var blocks []block.Block
	order := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.Rows(sheet)
		if err != nil {
			blocks = append(blocks, block.Diagnostic(order, sheet+": "+err.Error()))
			order++
			continue
		}
		for rows.Next() {
			cells, err := rows.Columns()
			if err != nil {
				continue
			}
			line := strings.Join(cells, "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			blocks = append(blocks, block.Block{
				Kind:  block.TableCell,
				Text:  line,
				Order: order,
				Attrs: map[string]string{"sheet": sheet},
			})
			order++
		}
		rows.Close()
	}
	if len(blocks) == 0 {
		blocks = append(blocks, block.Block{Kind: block.TableCell, Text: "", Order: 0})
	}
	return blocks, nil
}

var _ block.Reader = (*Reader)(nil)
