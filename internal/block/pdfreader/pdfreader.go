// Package pdfreader extracts text from PDF files page by page using
// ledongthuc/pdf, emitting one Paragraph block per page with the page
// recorded as both PageStart and PageEnd.
package pdfreader

import (
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/Aman-CERP/hybridstore/internal/block"
)

// Reader implements block.Reader for .pdf files.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) ReadFile(path string, _ string) ([]block.Block, error) {
	f, doc, err := pdf.Open(path)
	if err != nil {
		return []block.Block{block.Diagnostic(0, err.Error())}, nil
	}
	defer f.Close()

	numPages := doc.NumPage()
	blocks := make([]block.Block, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			blocks = append(blocks, block.Diagnostic(i-1, fmt.Sprintf("page %d: %v", i, err)))
			continue
		}
		blocks = append(blocks, block.Block{
			Kind:      block.Paragraph,
			Text:      text,
			Order:     i - 1,
			PageStart: i,
			PageEnd:   i,
		})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, block.Block{Kind: block.Paragraph, Text: "", Order: 0})
	}
	return blocks, nil
}

var _ block.Reader = (*Reader)(nil)
