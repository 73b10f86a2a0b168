// Package segment turns a block stream into chunk-sized text segments
// under (min, max, cap) length bounds, using boundary scoring and a greedy
// cut-selection loop. It is a pure function over block text: it never
// errors, and an empty input yields a single empty segment.
package segment

import (
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/hybridstore/internal/block"
)

// Params bounds and tunes the segmenter.
type Params struct {
	MinChars int
	MaxChars int
	CapChars int

	PenalizeShortLine         bool
	PenalizePageBoundaryNoNewline bool
}

// DefaultParams returns the standard (400, 600, 800) min/max/cap bounds.
func DefaultParams() Params {
	return Params{MinChars: 400, MaxChars: 600, CapChars: 800, PenalizeShortLine: true, PenalizePageBoundaryNoNewline: true}
}

// Segment is one emitted piece of text with its covering page span. A
// PageStart of 0 means no block in this segment declared a page.
type Segment struct {
	Text      string
	PageStart int
	PageEnd   int
}

var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

type candidate struct {
	offset int // rune offset, cut point BEFORE this rune
	score  float64
}

// Segment concatenates the block texts (in Order) and splits the result
// into segments honouring Params. Concatenating the returned segments
// (modulo per-segment whitespace trim) reproduces the concatenation of the
// block texts — this is invariant P1.
func Segment(blocks []block.Block, p Params) []Segment {
	if p.MinChars <= 0 {
		p.MinChars = 400
	}
	if p.MaxChars <= p.MinChars {
		p.MaxChars = p.MinChars + 200
	}
	if p.CapChars < p.MaxChars {
		p.CapChars = p.MaxChars + 200
	}

	text, pageAt, blockJoints := flatten(blocks)
	runes := []rune(text)
	n := len(runes)

	if strings.TrimSpace(text) == "" {
		return []Segment{{Text: ""}}
	}

	scores := scoreBoundaries(runes, blockJoints, pageAt, p)

	var segments []Segment
	start := 0
	for start < n {
		minB := clamp(start+p.MinChars, start, n)
		maxB := clamp(start+p.MaxChars, start, n)
		capB := clamp(start+p.CapChars, start, n)

		if capB >= n {
			segments = append(segments, makeSegment(runes, pageAt, start, n))
			break
		}

		cut := pickCut(scores, start, minB, maxB, capB, runes)
		if cut <= start {
			cut = capB
		}
		segments = append(segments, makeSegment(runes, pageAt, start, cut))
		start = cut
	}

	return segments
}

// flatten concatenates block texts and records, per rune offset, the
// source block's page (0 if unset), plus the set of offsets that land on a
// block joint (candidates with score 1.0).
func flatten(blocks []block.Block) (string, []int, map[int]bool) {
	var sb strings.Builder
	var pageAt []int
	joints := map[int]bool{}

	for _, b := range blocks {
		page := 0
		if b.HasPageSpan() {
			page = b.PageStart
		}
		for _, r := range b.Text {
			sb.WriteRune(r)
			pageAt = append(pageAt, page)
		}
		joints[len(pageAt)] = true
	}
	return sb.String(), pageAt, joints
}

func scoreBoundaries(runes []rune, joints map[int]bool, pageAt []int, p Params) map[int]float64 {
	scores := map[int]float64{}
	set := func(offset int, s float64) {
		if cur, ok := scores[offset]; !ok || s > cur {
			scores[offset] = s
		}
	}

	n := len(runes)
	for off := range joints {
		if off > 0 && off < n {
			set(off, 1.0)
		}
	}

	for i := 0; i < n; i++ {
		if runes[i] != '\n' {
			continue
		}
		if i+1 < n && runes[i+1] == '\n' {
			set(i+2, 0.95)
		} else {
			set(i+1, 0.8)
		}
	}

	for i := 0; i < n; i++ {
		if sentenceTerminators[runes[i]] {
			set(i+1, 0.6)
		}
	}

	for off, s := range scores {
		adj := s
		if p.PenalizeShortLine && precedingLineLen(runes, off) < 10 {
			adj -= 0.35
		}
		if p.PenalizePageBoundaryNoNewline && joints[off] && onPageTransitionNoNewline(runes, pageAt, off) {
			adj -= 0.4
		}
		if inDotLeaderRun(runes, off, 3) {
			adj -= 0.6
		}
		scores[off] = adj
	}

	return scores
}

func precedingLineLen(runes []rune, offset int) int {
	lineStart := offset
	for lineStart > 0 && runes[lineStart-1] != '\n' {
		lineStart--
	}
	return offset - lineStart
}

func onPageTransitionNoNewline(runes []rune, pageAt []int, offset int) bool {
	if offset <= 0 || offset >= len(pageAt) {
		return false
	}
	if pageAt[offset-1] == pageAt[offset] {
		return false
	}
	return runes[offset-1] != '\n'
}

// inDotLeaderRun reports whether offset falls inside (not at the very
// start of) a run of at least minRun consecutive '.' characters.
func inDotLeaderRun(runes []rune, offset int, minRun int) bool {
	if offset <= 0 || offset >= len(runes) {
		return false
	}
	if runes[offset-1] != '.' || runes[offset] != '.' {
		return false
	}
	start := offset
	for start > 0 && runes[start-1] == '.' {
		start--
	}
	end := offset
	for end < len(runes) && runes[end] == '.' {
		end++
	}
	return end-start >= minRun
}

func pickCut(scores map[int]float64, start, minB, maxB, capB int, runes []rune) int {
	span := float64(capB - minB)
	if span <= 0 {
		span = 1
	}

	bestOffset := -1
	bestValue := -1e18
	for off, s := range scores {
		if off <= start || off < minB || off > capB || inDotLeaderRun(runes, off, 3) {
			continue
		}
		dist := float64(maxB - off)
		if dist < 0 {
			dist = -dist
		}
		value := s - dist/span
		if value > bestValue {
			bestValue = value
			bestOffset = off
		}
	}
	if bestOffset > start {
		return bestOffset
	}

	// No in-range boundary: first boundary strictly after capB. Boundaries
	// inside a dot-leader run are never chosen.
	afterOffset := -1
	for off := range scores {
		if off > capB && !inDotLeaderRun(runes, off, 3) && (afterOffset == -1 || off < afterOffset) {
			afterOffset = off
		}
	}
	if afterOffset != -1 {
		return afterOffset
	}

	// Else the last known boundary before capB (other than start itself).
	lastOffset := -1
	for off := range scores {
		if off > start && off <= capB && off > lastOffset && !inDotLeaderRun(runes, off, 3) {
			lastOffset = off
		}
	}
	if lastOffset != -1 {
		return lastOffset
	}

	// Hard cut at cap, nudged left out of a dot-leader run.
	cut := capB
	for cut > minB && inDotLeaderRun(runes, cut, 3) {
		cut--
	}
	return cut
}

func makeSegment(runes []rune, pageAt []int, start, end int) Segment {
	text := strings.TrimSpace(string(runes[start:end]))
	pageStart, pageEnd := 0, 0
	for i := start; i < end && i < len(pageAt); i++ {
		if pageAt[i] == 0 {
			continue
		}
		if pageStart == 0 || pageAt[i] < pageStart {
			pageStart = pageAt[i]
		}
		if pageAt[i] > pageEnd {
			pageEnd = pageAt[i]
		}
	}
	return Segment{Text: text, PageStart: pageStart, PageEnd: pageEnd}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RuneLen is a small helper used by callers that need a UTF-8-safe length
// check on segmenter output (e.g. tests asserting the cap bound).
func RuneLen(s string) int { return utf8.RuneCountInString(s) }
