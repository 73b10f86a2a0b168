// Package docxreader walks the OOXML body of a .docx file and emits
// Heading/Paragraph/TableCell blocks. DOCX is a zip archive of XML parts;
// no pack dependency parses it directly, so this reads word/document.xml
// with the standard library (see DESIGN.md).
package docxreader

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/Aman-CERP/hybridstore/internal/block"
)

// Reader implements block.Reader for .docx files.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) ReadFile(path string, _ string) ([]block.Block, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return []block.Block{block.Diagnostic(0, err.Error())}, nil
	}
	defer zr.Close()

	var docXML *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML = f
			break
		}
	}
	if docXML == nil {
		return []block.Block{block.Diagnostic(0, "word/document.xml not found")}, nil
	}

	rc, err := docXML.Open()
	if err != nil {
		return []block.Block{block.Diagnostic(0, err.Error())}, nil
	}
	defer rc.Close()

	blocks, err := parseDocument(rc)
	if err != nil {
		return []block.Block{block.Diagnostic(0, err.Error())}, nil
	}
	if len(blocks) == 0 {
		blocks = append(blocks, block.Block{Kind: block.Paragraph, Text: "", Order: 0})
	}
	return blocks, nil
}

// wordProcessingML paragraph style names that map to heading levels, e.g.
// "Heading1" -> level 1, "heading 2" -> level 2.
func headingLevel(styleID string) int {
	s := strings.ToLower(strings.ReplaceAll(styleID, " ", ""))
	if !strings.HasPrefix(s, "heading") && !strings.HasPrefix(s, "titre") {
		return 0
	}
	digits := strings.TrimLeft(s, "headingtitre")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > 9 {
		return 0
	}
	return n
}

func parseDocument(r io.Reader) ([]block.Block, error) {
	dec := xml.NewDecoder(r)
	var blocks []block.Block
	order := 0

	var inParagraph bool
	var pStyle string
	var textBuf strings.Builder
	var inTable bool
	var rowCells []string
	var inTableRow bool
	var inTableCell bool

	flushParagraph := func() {
		text := textBuf.String()
		textBuf.Reset()
		if strings.TrimSpace(text) == "" {
			return
		}
		if lvl := headingLevel(pStyle); lvl > 0 {
			blocks = append(blocks, block.Block{Kind: block.Heading, HeadingLevel: lvl, Text: text, Order: order})
		} else {
			blocks = append(blocks, block.Block{Kind: block.Paragraph, Text: text, Order: order})
		}
		order++
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return blocks, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch localName(t.Name) {
			case "tbl":
				inTable = true
			case "tr":
				inTableRow = true
				rowCells = nil
			case "tc":
				inTableCell = true
			case "p":
				inParagraph = true
				pStyle = ""
			case "pStyle":
				for _, a := range t.Attr {
					if localName(a.Name) == "val" {
						pStyle = a.Value
					}
				}
			case "t":
				if inParagraph {
					var s string
					if err := dec.DecodeElement(&s, &t); err == nil {
						textBuf.WriteString(s)
					}
				}
			}
		case xml.EndElement:
			switch localName(t.Name) {
			case "p":
				if inTableCell {
					rowCells = append(rowCells, textBuf.String())
					textBuf.Reset()
				} else {
					flushParagraph()
				}
				inParagraph = false
			case "tc":
				inTableCell = false
			case "tr":
				inTableRow = false
				line := strings.Join(rowCells, "\t")
				if strings.TrimSpace(line) != "" {
					blocks = append(blocks, block.Block{Kind: block.TableCell, Text: line, Order: order})
					order++
				}
			case "tbl":
				inTable = false
			}
		}
		_ = inTable
		_ = inTableRow
	}
	return blocks, nil
}

func localName(n xml.Name) string {
	return n.Local
}

var _ block.Reader = (*Reader)(nil)
