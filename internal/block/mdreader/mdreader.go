// Package mdreader reads Markdown files into a block stream, emitting
// Heading blocks for ATX headers and Paragraph blocks for blank-line
// delimited prose in between. Chunking itself is the segmenter's job; this
// reader only establishes block kind, order and heading level.
package mdreader

import (
	"os"
	"regexp"
	"strings"

	"github.com/Aman-CERP/hybridstore/internal/block"
)

var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// Reader implements block.Reader for .md/.markdown files.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) ReadFile(path string, encoding string) ([]block.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return []block.Block{block.Diagnostic(0, err.Error())}, nil
	}
	text := block.DecodeText(raw, encoding)
	return parse(text), nil
}

func parse(content string) []block.Block {
	lines := strings.Split(content, "\n")
	var blocks []block.Block
	var para strings.Builder
	order := 0

	flush := func() {
		if strings.TrimSpace(para.String()) != "" {
			blocks = append(blocks, block.Block{
				Kind:  block.Paragraph,
				Text:  para.String(),
				Order: order,
			})
			order++
		}
		para.Reset()
	}

	for _, line := range lines {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1])
			blocks = append(blocks, block.Block{
				Kind:         block.Heading,
				HeadingLevel: level,
				Text:         strings.TrimSpace(m[2]),
				Order:        order,
			})
			order++
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		para.WriteString(line)
		para.WriteString("\n")
	}
	flush()

	if len(blocks) == 0 {
		blocks = append(blocks, block.Block{Kind: block.Paragraph, Text: "", Order: 0})
	}
	return blocks
}

var _ block.Reader = (*Reader)(nil)
