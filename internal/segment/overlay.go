package segment

import "github.com/Aman-CERP/hybridstore/internal/block"

// GroupByH1 splits a block stream into one sub-stream per level-1 heading,
// starting a new segmenter invocation at each occurrence. Blocks preceding
// the first H1 form their own leading group.
func GroupByH1(blocks []block.Block) [][]block.Block {
	var groups [][]block.Block
	var current []block.Block
	for _, b := range blocks {
		if b.Kind == block.Heading && b.HeadingLevel == 1 && len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, b)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// GroupByDerivedLevel implements the DOCX "derived level grouping" overlay:
// count heading occurrences per level (1..9); the first level with >= 2
// occurrences becomes the chapter cut, the next such level the section
// cut. A chapter heading is never separated from its immediately
// following section heading.
func GroupByDerivedLevel(blocks []block.Block) [][]block.Block {
	counts := make([]int, 10) // index 1..9
	for _, b := range blocks {
		if b.Kind == block.Heading && b.HeadingLevel >= 1 && b.HeadingLevel <= 9 {
			counts[b.HeadingLevel]++
		}
	}

	chapterLevel, sectionLevel := 0, 0
	for lvl := 1; lvl <= 9; lvl++ {
		if counts[lvl] >= 2 {
			if chapterLevel == 0 {
				chapterLevel = lvl
			} else if sectionLevel == 0 {
				sectionLevel = lvl
				break
			}
		}
	}

	if chapterLevel == 0 {
		return [][]block.Block{blocks}
	}

	var groups [][]block.Block
	var current []block.Block
	for i, b := range blocks {
		isChapter := b.Kind == block.Heading && b.HeadingLevel == chapterLevel
		isSection := sectionLevel != 0 && b.Kind == block.Heading && b.HeadingLevel == sectionLevel
		// A section heading right after its chapter heading stays with it.
		followsChapter := i > 0 && blocks[i-1].Kind == block.Heading && blocks[i-1].HeadingLevel == chapterLevel
		if (isChapter || (isSection && !followsChapter)) && len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, b)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}
