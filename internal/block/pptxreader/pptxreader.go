// Package pptxreader walks slideN.xml entries inside a .pptx zip and emits
// one Paragraph block per text-body paragraph, grouped by slide. Grounded
// on original_source/file-chunker/src/reader_pptx.rs's "one block per <a:p>
// paragraph, text built from <a:t> runs" shape, reimplemented against
// archive/zip + encoding/xml (no pack library parses PPTX directly).
package pptxreader

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Aman-CERP/hybridstore/internal/block"
)

// Reader implements block.Reader for .pptx files.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) ReadFile(path string, _ string) ([]block.Block, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return []block.Block{block.Diagnostic(0, err.Error())}, nil
	}
	defer zr.Close()

	type slideFile struct {
		num int
		f   *zip.File
	}
	var slides []slideFile
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(f.Name, "ppt/slides/slide"), ".xml")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{num: n, f: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var blocks []block.Block
	order := 0
	for _, s := range slides {
		rc, err := s.f.Open()
		if err != nil {
			blocks = append(blocks, block.Diagnostic(order, fmt.Sprintf("slide %d: %v", s.num, err)))
			order++
			continue
		}
		paras, err := parseSlide(rc)
		rc.Close()
		if err != nil {
			blocks = append(blocks, block.Diagnostic(order, fmt.Sprintf("slide %d: %v", s.num, err)))
			order++
			continue
		}
		for _, text := range paras {
			if strings.TrimSpace(text) == "" {
				continue
			}
			blocks = append(blocks, block.Block{
				Kind:      block.Paragraph,
				Text:      text,
				Order:     order,
				PageStart: s.num,
				PageEnd:   s.num,
			})
			order++
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, block.Block{Kind: block.Paragraph, Text: "", Order: 0})
	}
	return blocks, nil
}

func parseSlide(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var paras []string
	var inParagraph bool
	var buf strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return paras, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				buf.Reset()
			case "t":
				if inParagraph {
					var s string
					if err := dec.DecodeElement(&s, &t); err == nil {
						buf.WriteString(s)
					}
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				paras = append(paras, buf.String())
				inParagraph = false
			}
		}
	}
	return paras, nil
}

var _ block.Reader = (*Reader)(nil)
