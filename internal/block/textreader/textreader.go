// Package textreader reads plain-text files into a block stream, one
// Paragraph block per blank-line-delimited run.
package textreader

import (
	"os"
	"strings"

	"github.com/Aman-CERP/hybridstore/internal/block"
)

// Reader implements block.Reader for plain text / unknown-extension files.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) ReadFile(path string, encoding string) ([]block.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return []block.Block{block.Diagnostic(0, err.Error())}, nil
	}
	text := block.DecodeText(raw, encoding)

	paras := strings.Split(text, "\n\n")
	blocks := make([]block.Block, 0, len(paras))
	order := 0
	for _, p := range paras {
		if strings.TrimSpace(p) == "" {
			continue
		}
		blocks = append(blocks, block.Block{
			Kind:  block.Paragraph,
			Text:  p,
			Order: order,
		})
		order++
	}
	if len(blocks) == 0 {
		blocks = append(blocks, block.Block{Kind: block.Paragraph, Text: "", Order: 0})
	}
	return blocks, nil
}

var _ block.Reader = (*Reader)(nil)
