// Package lexical implements the lexical full-text index (C5) over
// blevesearch/bleve/v2, with corruption detection and auto-recovery on
// open. Unlike a code-search tokenizer (camelCase/snake_case splitting),
// this index tokenizes general prose: Latin/alphanumeric runs as whole
// words, CJK runs as overlapping bigrams, so bilingual documents are
// searchable without a dictionary.
package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
)

const (
	tokenizerName = "chunk_tokenizer"
	analyzerName  = "chunk_analyzer"
	contentField  = "content"
	docIDField    = "doc_id"
	sourceField   = "source_uri"
)

func init() {
	_ = registry.RegisterTokenizer(tokenizerName, tokenizerConstructor)
}

// Index wraps a bleve.Index as the lexical index. Documents carry
// doc_id/source_uri as untokenised keyword fields so the filter planner can push
// DocIdEq/DocIdIn/SourceUriPrefix down as bleve term/prefix queries.
type Index struct {
	mu     sync.RWMutex
	bleve  bleve.Index
	path   string
	closed bool
}

type document struct {
	Content   string `json:"content"`
	DocID     string `json:"doc_id"`
	SourceURI string `json:"source_uri"`
}

// Caps declares this index's pushdownable filter shapes.
func Caps() chunkmodel.IndexCaps {
	return chunkmodel.IndexCaps{
		DocIdEq: true, DocIdIn: true, SourceUriPrefix: true,
		MetaEq: false, MetaIn: false, RangeNumeric: false, RangeIsoDate: false,
	}
}

// Open creates or opens a bleve index at path; an empty path opens an
// in-memory index, useful for tests.
func Open(path string) (*Index, error) {
	m, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("build index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		dir := filepath.Dir(path)
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, mkErr)
		}
		if validErr := validateIntegrity(path); validErr != nil {
			_ = os.RemoveAll(path)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		} else if err != nil && isCorruptionError(err) {
			_ = os.RemoveAll(path)
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open lexical index: %w", err)
	}

	return &Index{bleve: idx, path: path}, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(analyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     tokenizerName,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}
	kw := bleve.NewKeywordFieldMapping()
	m.DefaultMapping.AddFieldMappingsAt(docIDField, kw)
	m.DefaultMapping.AddFieldMappingsAt(sourceField, kw)
	m.DefaultAnalyzer = analyzerName
	return m, nil
}

// Upsert indexes or reindexes records. Callable safely from the
// orchestrator even when nothing changed (no-op on empty input).
func (idx *Index) Upsert(ctx context.Context, records []chunkmodel.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := idx.bleve.NewBatch()
	for _, r := range records {
		doc := document{Content: r.Text, DocID: r.DocID, SourceURI: r.SourceURI}
		if err := batch.Index(r.ChunkID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", r.ChunkID, err)
		}
	}
	return idx.bleve.Batch(batch)
}

// DeleteByIDs removes chunk ids from the index.
func (idx *Index) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}
	batch := idx.bleve.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return idx.bleve.Batch(batch)
}

// SearchOptions bounds a lexical query.
type SearchOptions struct {
	TopK        int
	FetchFactor int
}

// Search returns up to top_k * fetch_factor matches (at least top_k),
// scored normalised larger-is-better in [0,1). Pushdown-eligible clauses in
// filters are applied as bleve term/prefix queries; the rest are left for
// the orchestrator's post-filter pass.
func (idx *Index) Search(ctx context.Context, query string, filters []chunkmodel.FilterClause, opts SearchOptions) ([]chunkmodel.TextMatch, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	fetch := opts.TopK * opts.FetchFactor
	if fetch < opts.TopK {
		fetch = opts.TopK
	}
	if fetch <= 0 {
		fetch = 10
	}

	must := []bleve.Query{bleveMatchQuery(query)}
	for _, c := range filters {
		if q := pushdownQuery(c); q != nil {
			must = append(must, q)
		}
	}
	var q bleve.Query = bleve.NewConjunctionQuery(must...)
	if len(must) == 1 {
		q = must[0]
	}

	req := bleve.NewSearchRequest(q)
	req.Size = fetch

	result, err := idx.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	matches := make([]chunkmodel.TextMatch, 0, len(result.Hits))
	for _, hit := range result.Hits {
		matches = append(matches, chunkmodel.TextMatch{
			ChunkID:  hit.ID,
			Score:    normalizeScore(hit.Score),
			RawScore: hit.Score,
		})
	}
	return matches, nil
}

func bleveMatchQuery(query string) bleve.Query {
	q := bleve.NewMatchQuery(query)
	q.SetField(contentField)
	return q
}

func pushdownQuery(c chunkmodel.FilterClause) bleve.Query {
	switch c.Op {
	case chunkmodel.DocIdEq:
		q := bleve.NewTermQuery(c.Value)
		q.SetField(docIDField)
		return q
	case chunkmodel.DocIdIn:
		if len(c.Values) == 0 {
			return nil
		}
		var disjuncts []bleve.Query
		for _, v := range c.Values {
			q := bleve.NewTermQuery(v)
			q.SetField(docIDField)
			disjuncts = append(disjuncts, q)
		}
		return bleve.NewDisjunctionQuery(disjuncts...)
	case chunkmodel.SourceUriPrefix:
		q := bleve.NewPrefixQuery(c.Value)
		q.SetField(sourceField)
		return q
	default:
		return nil
	}
}

// normalizeScore maps bleve's native larger-is-better, unbounded relevance
// score into [0,1) via the order-preserving squash x/(1+x): as the raw
// score increases the squashed value increases too, so rank order survives
// the transform (a smaller-is-better raw score would use 1/(1+r) instead).
func normalizeScore(score float64) float64 {
	if score < 0 {
		score = 0
	}
	return score / (1 + score)
}

// Stats reports the document count.
func (idx *Index) Stats(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}
	n, err := idx.bleve.DocCount()
	return int(n), err
}

// Close closes the underlying bleve index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.bleve.Close()
}

// tokenizerConstructor builds the bigram-for-CJK, whole-word-for-Latin
// tokenizer registered under tokenizerName.
func tokenizerConstructor(config map[string]any, cache *registry.Cache) (analysis.Tokenizer, error) {
	return chunkTokenizer{}, nil
}

type chunkTokenizer struct{}

func (chunkTokenizer) Tokenize(input []byte) analysis.TokenStream {
	runes := []rune(string(input))
	var stream analysis.TokenStream
	pos := 1

	emit := func(term string, start, end int) {
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}

	i := 0
	byteOffset := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case isWordRune(r):
			start := i
			startByte := byteOffset
			for i < len(runes) && isWordRune(runes[i]) {
				byteOffset += len(string(runes[i]))
				i++
			}
			emit(string(runes[start:i]), startByte, byteOffset)
		case isCJK(r):
			start := i
			startByte := byteOffset
			for i < len(runes) && isCJK(runes[i]) {
				byteOffset += len(string(runes[i]))
				i++
			}
			run := runes[start:i]
			runStartByte := startByte
			if len(run) == 1 {
				emit(string(run), runStartByte, byteOffset)
			} else {
				off := runStartByte
				for j := 0; j < len(run)-1; j++ {
					bg := string(run[j : j+2])
					bgLen := len(bg)
					emit(bg, off, off+bgLen)
					off += len(string(run[j]))
				}
			}
		default:
			byteOffset += len(string(r))
			i++
		}
	}
	return stream
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) && !isCJK(r) || unicode.IsDigit(r)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
}
