// Package hybridstore is the root query surface (C9): the single entry
// point that wires the primary store, lexical index, vector index and
// embedding facade behind one set of ingest/search/delete verbs, built
// from a config.Config.
package hybridstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Aman-CERP/hybridstore/internal/block"
	"github.com/Aman-CERP/hybridstore/internal/block/docxreader"
	"github.com/Aman-CERP/hybridstore/internal/block/mdreader"
	"github.com/Aman-CERP/hybridstore/internal/block/pdfreader"
	"github.com/Aman-CERP/hybridstore/internal/block/pptxreader"
	"github.com/Aman-CERP/hybridstore/internal/block/textreader"
	"github.com/Aman-CERP/hybridstore/internal/block/xlsxreader"
	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
	"github.com/Aman-CERP/hybridstore/internal/config"
	"github.com/Aman-CERP/hybridstore/internal/embedder"
	"github.com/Aman-CERP/hybridstore/internal/lexical"
	"github.com/Aman-CERP/hybridstore/internal/orchestrator"
	"github.com/Aman-CERP/hybridstore/internal/primarystore"
	"github.com/Aman-CERP/hybridstore/internal/segment"
	"github.com/Aman-CERP/hybridstore/internal/svcerr"
	"github.com/Aman-CERP/hybridstore/internal/vector"
)

// ErrEmptyText is returned by IngestText when the supplied text is empty
// after trimming.
var ErrEmptyText = errors.New("text is empty")

// readerBinding pairs a block.Reader with the MIME type it produces.
type readerBinding struct {
	reader block.Reader
	mime   string
}

// extensionReaders maps a lowercased file extension to the reader that
// handles it and the source_mime stamped on every chunk it produces.
// Unknown extensions fall back to textreader/text-plain.
var extensionReaders = map[string]readerBinding{
	".txt":      {textreader.New(), "text/plain"},
	".text":     {textreader.New(), "text/plain"},
	".md":       {mdreader.New(), "text/markdown"},
	".markdown": {mdreader.New(), "text/markdown"},
	".pdf":      {pdfreader.New(), "application/pdf"},
	".docx":     {docxreader.New(), "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".pptx":     {pptxreader.New(), "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	".xlsx":     {xlsxreader.New(), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
}

func readerForPath(path string) readerBinding {
	ext := strings.ToLower(filepath.Ext(path))
	if rb, ok := extensionReaders[ext]; ok {
		return rb
	}
	return readerBinding{textreader.New(), "text/plain"}
}

// Store is the assembled hybrid retrieval engine: one primary store, one
// lexical index, one vector index and an embedder, coordinated by an
// Orchestrator.
type Store struct {
	cfg  *config.Config
	db   *primarystore.Store
	text *lexical.Index
	vec  *vector.Index
	emb  embedder.Embedder
	orch *orchestrator.Orchestrator

	segParams segment.Params
	vectorDir string
}

// Open builds a Store from cfg. A nil cfg falls back to config.NewConfig's
// defaults. Every component directory is created under cfg.Store.DataDir
// when not overridden.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, svcerr.ServiceError(svcerr.ErrCodeInternal, "invalid configuration", err)
	}

	dbPath := ""
	if cfg.Store.DataDir != "" {
		dbPath = filepath.Join(cfg.Store.DataDir, "primary.db")
	}
	db, err := primarystore.Open(dbPath)
	if err != nil {
		return nil, svcerr.StoreError(svcerr.ErrCodeStoreNotFound, "open primary store", err)
	}

	lexicalPath := cfg.Lexical.IndexDir
	if lexicalPath == "" && cfg.Store.DataDir != "" {
		lexicalPath = filepath.Join(cfg.Store.DataDir, "lexical")
	}
	textIdx, err := lexical.Open(lexicalPath)
	if err != nil {
		_ = db.Close()
		return nil, svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "open lexical index", err)
	}

	emb, err := buildEmbedder(cfg.Embeddings)
	if err != nil {
		_ = db.Close()
		_ = textIdx.Close()
		return nil, svcerr.EmbedderError(svcerr.ErrCodeEmbedderUnavailable, "build embedder", err)
	}

	vectorDir := cfg.Vector.IndexDir
	if vectorDir == "" && cfg.Store.DataDir != "" {
		vectorDir = filepath.Join(cfg.Store.DataDir, "vector")
	}
	vecCfg := vector.Config{Dimensions: emb.Info().Dimensions, M: cfg.Vector.M, EfSearch: cfg.Vector.EfSearch, FetchFactor: cfg.Vector.FetchFactor}
	vecIdx, err := openOrCreateVectorIndex(vectorDir, vecCfg)
	if err != nil {
		_ = db.Close()
		_ = textIdx.Close()
		_ = emb.Close()
		return nil, svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "open vector index", err)
	}

	orch, err := orchestrator.New(db, emb,
		orchestrator.WithTextIndex(textIdx, lexical.Caps()),
		orchestrator.WithVectorIndex(vecIdx),
		orchestrator.WithFusionWeights(orchestrator.FusionWeights{Text: cfg.Fusion.TextWeight, Vector: cfg.Fusion.VectorWeight}),
		orchestrator.WithBatchOptions(orchestrator.BatchOptions{
			Auto:           true,
			InitialSize:    cfg.Embeddings.BatchSize,
			MinSize:        1,
			MaxInputTokens: cfg.Embeddings.MaxInputTokens,
		}),
	)
	if err != nil {
		_ = db.Close()
		_ = textIdx.Close()
		_ = emb.Close()
		return nil, svcerr.ServiceError(svcerr.ErrCodeInternal, "build orchestrator", err)
	}

	return &Store{
		cfg:  cfg,
		db:   db,
		text: textIdx,
		vec:  vecIdx,
		emb:  emb,
		orch: orch,
		segParams: segment.Params{
			MinChars:                      cfg.Segmenter.MinChars,
			MaxChars:                      cfg.Segmenter.MaxChars,
			CapChars:                      cfg.Segmenter.CapChars,
			PenalizeShortLine:             cfg.Segmenter.PenalizeShortLine,
			PenalizePageBoundaryNoNewline: cfg.Segmenter.PenalizePageBoundaryNoNewline,
		},
		vectorDir: vectorDir,
	}, nil
}

// buildEmbedder constructs the configured embedding backend, wrapped in an
// LRU cache when CacheSize is positive.
func buildEmbedder(cfg config.EmbeddingsConfig) (embedder.Embedder, error) {
	var inner embedder.Embedder
	switch strings.ToLower(cfg.Provider) {
	case "native":
		rt, err := embedder.BindNativeRuntime(cfg.NativeLibPath)
		if err != nil {
			return nil, err
		}
		inner = rt
	default:
		inner = embedder.NewStaticEmbedder(cfg.Dimensions, cfg.MaxInputTokens)
	}
	if cfg.CacheSize > 0 {
		return embedder.NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}

// openOrCreateVectorIndex loads a snapshot from dir if one exists, or
// starts a fresh empty index otherwise. An empty dir always starts fresh
// in-memory (no snapshot directory to check).
func openOrCreateVectorIndex(dir string, cfg vector.Config) (*vector.Index, error) {
	if dir == "" {
		return vector.New(cfg), nil
	}
	if _, err := os.Stat(filepath.Join(dir, "map.tsv")); err != nil {
		return vector.New(cfg), nil
	}
	return vector.Load(dir, cfg)
}

// saveVectorSnapshot persists the resident vector index and swaps the
// orchestrator over to the freshly loaded copy, matching §5's "many
// readers, one writer" resident-ANN policy.
func (s *Store) saveVectorSnapshot() error {
	if s.vectorDir == "" {
		return nil
	}
	if err := s.vec.Save(s.vectorDir); err != nil {
		return fmt.Errorf("save vector snapshot: %w", err)
	}
	reloaded, err := vector.Load(s.vectorDir, vector.Config{Dimensions: s.emb.Info().Dimensions, M: s.cfg.Vector.M, EfSearch: s.cfg.Vector.EfSearch, FetchFactor: s.cfg.Vector.FetchFactor})
	if err != nil {
		return fmt.Errorf("reload vector snapshot: %w", err)
	}
	s.vec = reloaded
	s.orch.SwapVectorIndexes([]orchestrator.VectorIndex{reloaded})
	return nil
}

// IngestFile reads path with the reader its extension maps to, segments
// the resulting block stream and ingests every segment as one chunk. docID
// defaults to a fresh UUID when empty.
func (s *Store) IngestFile(ctx context.Context, path string, docID string) error {
	return s.IngestFileWithProgress(ctx, path, docID, nil, nil)
}

// IngestFileWithProgress is IngestFile with push progress events and
// cooperative cancellation.
func (s *Store) IngestFileWithProgress(ctx context.Context, path string, docID string, progress chan<- orchestrator.ProgressEvent, token *orchestrator.CancelToken) error {
	if docID == "" {
		docID = uuid.New().String()
	}

	rb := readerForPath(path)
	blocks, err := rb.reader.ReadFile(path, "auto")
	if err != nil {
		return svcerr.ServiceError(svcerr.ErrCodeInvalidPath, fmt.Sprintf("read file %s", path), err)
	}

	segments := segment.Segment(blocks, s.segParams)
	inputs := make([]orchestrator.SegmentInput, len(segments))
	for i, sg := range segments {
		inputs[i] = orchestrator.SegmentInput{Text: sg.Text, PageStart: sg.PageStart, PageEnd: sg.PageEnd}
	}

	sourceURI := "file://" + path
	if err := s.orch.IngestSegments(ctx, docID, sourceURI, rb.mime, inputs, progress, token); err != nil {
		return err
	}
	return s.saveVectorSnapshot()
}

// IngestText ingests one literal string as a single chunk, rejecting empty
// text. docID defaults to a fresh UUID when empty. Returns the effective
// document id and the id of the single chunk produced.
func (s *Store) IngestText(ctx context.Context, text string, docID string) (string, string, error) {
	if strings.TrimSpace(text) == "" {
		return "", "", ErrEmptyText
	}
	if docID == "" {
		docID = uuid.New().String()
	}

	if err := s.orch.IngestSegments(ctx, docID, "text://"+docID, "text/plain", []orchestrator.SegmentInput{{Text: text}}, nil, nil); err != nil {
		return "", "", err
	}
	if err := s.saveVectorSnapshot(); err != nil {
		return "", "", err
	}
	return docID, fmt.Sprintf("%s#0", docID), nil
}

// IngestChunks ingests pre-built records directly, bypassing file reading
// and segmentation. vectors may be nil to skip vector indexing.
func (s *Store) IngestChunks(ctx context.Context, records []chunkmodel.ChunkRecord, vectors [][]float32) error {
	if err := s.orch.IngestChunksOrchestrated(ctx, records, vectors); err != nil {
		return err
	}
	return s.saveVectorSnapshot()
}

// SearchText runs a lexical-only search.
func (s *Store) SearchText(ctx context.Context, query string, topK int, filters []chunkmodel.FilterClause) ([]chunkmodel.SearchHit, error) {
	return s.orch.SearchText(ctx, query, filters, orchestrator.SearchOptions{TopK: topK})
}

// SearchHybrid runs a lexical+vector search fused by weighted linear sum.
func (s *Store) SearchHybrid(ctx context.Context, query string, topK int, filters []chunkmodel.FilterClause, wText, wVec float64) ([]chunkmodel.SearchHit, error) {
	return s.orch.SearchHybrid(ctx, query, filters, orchestrator.SearchOptions{TopK: topK}, orchestrator.FusionWeights{Text: wText, Vector: wVec})
}

// DeleteByFilter deletes every chunk matching filters, batchSize ids at a
// time, and persists the resulting vector snapshot.
func (s *Store) DeleteByFilter(ctx context.Context, filters []chunkmodel.FilterClause, batchSize int) (chunkmodel.DeleteReport, error) {
	report, err := s.orch.DeleteByFilterOrchestrated(ctx, filters, batchSize)
	if err != nil {
		return report, err
	}
	if err := s.saveVectorSnapshot(); err != nil {
		return report, err
	}
	return report, nil
}

// RepoCounts reports chunk_count and text_mirror_count for diagnostics.
func (s *Store) RepoCounts(ctx context.Context) (int, int, error) {
	return s.orch.RepoCounts(ctx)
}

// Close releases every underlying resource. Safe to call once.
func (s *Store) Close() error {
	var firstErr error
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.text.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.vec.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.emb.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
