package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
	"github.com/Aman-CERP/hybridstore/internal/embedder"
	"github.com/Aman-CERP/hybridstore/internal/lexical"
	"github.com/Aman-CERP/hybridstore/internal/primarystore"
	"github.com/Aman-CERP/hybridstore/internal/svcerr"
	"github.com/Aman-CERP/hybridstore/internal/vector"
)

// TextIndex is the subset of the lexical index's API the orchestrator
// depends on, satisfied by *lexical.Index.
type TextIndex interface {
	Upsert(ctx context.Context, records []chunkmodel.ChunkRecord) error
	DeleteByIDs(ctx context.Context, ids []string) error
	Search(ctx context.Context, query string, filters []chunkmodel.FilterClause, opts lexical.SearchOptions) ([]chunkmodel.TextMatch, error)
}

// VectorIndex is the subset of the vector index's API the orchestrator
// depends on, satisfied by *vector.Index.
type VectorIndex interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	DeleteByIDs(ctx context.Context, ids []string) error
	Search(ctx context.Context, query []float32, topK int) ([]vector.Match, error)
}

type textBinding struct {
	index TextIndex
	caps  chunkmodel.IndexCaps
}

// Orchestrator wires the primary store, zero or more lexical indexes and
// zero or more vector indexes behind the ingest/delete/search pipelines of
// §4.8. Every write path that touches more than one component goes through
// here rather than the caller coordinating store+index calls directly, so
// the ordering guarantees in §5 hold in one place.
type Orchestrator struct {
	store *primarystore.Store
	emb   embedder.Embedder

	text []textBinding

	// vecMu guards vectors: many readers (search), one writer (ingest,
	// delete, snapshot reload) — the "resident ANN" policy of §4.8/§5.
	vecMu   sync.RWMutex
	vectors []VectorIndex

	batch   BatchOptions
	weights FusionWeights
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithTextIndex registers a lexical index and its capability declaration.
func WithTextIndex(idx TextIndex, caps chunkmodel.IndexCaps) Option {
	return func(o *Orchestrator) {
		o.text = append(o.text, textBinding{index: idx, caps: caps})
	}
}

// WithVectorIndex registers a vector index.
func WithVectorIndex(idx VectorIndex) Option {
	return func(o *Orchestrator) {
		o.vectors = append(o.vectors, idx)
	}
}

// WithBatchOptions overrides the default adaptive-embedding batch sizing.
func WithBatchOptions(b BatchOptions) Option {
	return func(o *Orchestrator) { o.batch = b }
}

// WithFusionWeights overrides the default hybrid fusion weights.
func WithFusionWeights(w FusionWeights) Option {
	return func(o *Orchestrator) { o.weights = w }
}

// New builds an Orchestrator. store and emb must be non-nil.
func New(store *primarystore.Store, emb embedder.Embedder, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, svcerr.OrchestratorError(svcerr.ErrCodeInvalidFilter, "primary store is required", nil)
	}
	if emb == nil {
		return nil, svcerr.OrchestratorError(svcerr.ErrCodeInvalidFilter, "embedder is required", nil)
	}

	o := &Orchestrator{
		store:   store,
		emb:     emb,
		batch:   BatchOptions{}.withDefaults(),
		weights: FusionWeights{Text: 0.5, Vector: 0.5},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SwapVectorIndexes atomically replaces the set of resident vector indexes,
// used after a write path reloads a fresh on-disk snapshot.
func (o *Orchestrator) SwapVectorIndexes(idxs []VectorIndex) {
	o.vecMu.Lock()
	defer o.vecMu.Unlock()
	o.vectors = idxs
}

func (o *Orchestrator) vectorSnapshot() []VectorIndex {
	o.vecMu.RLock()
	defer o.vecMu.RUnlock()
	out := make([]VectorIndex, len(o.vectors))
	copy(out, o.vectors)
	return out
}

// IngestChunksOrchestrated upserts records (and, if provided, their
// embedding vectors) into the primary store and every wired index. An
// empty records slice is a no-op success.
func (o *Orchestrator) IngestChunksOrchestrated(ctx context.Context, records []chunkmodel.ChunkRecord, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if vectors != nil && len(vectors) != len(records) {
		return svcerr.OrchestratorError(svcerr.ErrCodeInvalidFilter,
			fmt.Sprintf("records and vectors length mismatch: %d vs %d", len(records), len(vectors)), nil)
	}

	if err := o.store.UpsertChunks(ctx, records); err != nil {
		return svcerr.StoreError(svcerr.ErrCodeStoreNotFound, "upsert chunks", err)
	}

	if err := o.MaybeRebuildTextIndex(ctx); err != nil {
		return svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "rebuild text index", err)
	}

	for _, tb := range o.text {
		if err := tb.index.Upsert(ctx, records); err != nil {
			return svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "lexical upsert", err)
		}
	}

	if vectors != nil {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ChunkID
		}
		for _, vi := range o.vectorSnapshot() {
			if err := vi.Upsert(ctx, ids, vectors); err != nil {
				return svcerr.IndexError(svcerr.ErrCodeIndexDimensionMismatch, "vector upsert", err)
			}
		}
	}

	return nil
}

// MaybeRebuildTextIndex repairs an empty lexical mirror when the primary
// store has rows — the case of a lexical index freshly attached to an
// already-populated store. It is cheap to call unconditionally: when every
// wired lexical index already has documents, or the store is empty, it is
// a no-op.
func (o *Orchestrator) MaybeRebuildTextIndex(ctx context.Context) error {
	if len(o.text) == 0 {
		return nil
	}
	storeCount, err := o.store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("count primary store: %w", err)
	}
	if storeCount == 0 {
		return nil
	}

	for _, tb := range o.text {
		stats, ok := tb.index.(interface{ Stats(context.Context) (int, error) })
		if !ok {
			continue
		}
		n, err := stats.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats lexical index: %w", err)
		}
		if n > 0 {
			continue
		}
		all, err := o.store.AllChunks(ctx)
		if err != nil {
			return fmt.Errorf("read all chunks: %w", err)
		}
		if err := tb.index.Upsert(ctx, all); err != nil {
			return fmt.Errorf("rebuild lexical mirror: %w", err)
		}
	}
	return nil
}

// DeleteByFilterOrchestrated deletes every chunk matching filters from the
// primary store and every wired index, batch_size ids at a time. An empty
// filter set is refused — callers must never delete everything by
// accident.
func (o *Orchestrator) DeleteByFilterOrchestrated(ctx context.Context, filters []chunkmodel.FilterClause, batchSize int) (chunkmodel.DeleteReport, error) {
	if len(filters) == 0 {
		return chunkmodel.DeleteReport{}, svcerr.OrchestratorError(svcerr.ErrCodeInvalidFilter, "delete requires at least one filter", nil)
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	var report chunkmodel.DeleteReport
	for {
		ids, err := o.store.ListChunkIDsByFilter(ctx, filters, batchSize, 0)
		if err != nil {
			return report, svcerr.StoreError(svcerr.ErrCodeStoreNotFound, "list chunk ids", err)
		}
		if len(ids) == 0 {
			break
		}

		n, err := o.store.DeleteByIDs(ctx, ids)
		if err != nil {
			return report, svcerr.StoreError(svcerr.ErrCodeStoreNotFound, "delete by ids", err)
		}
		report.TotalIDs += len(ids)
		report.DBDeleted += n
		report.Batches++

		for _, tb := range o.text {
			report.TextDeleteAttempts++
			if err := tb.index.DeleteByIDs(ctx, ids); err != nil {
				return report, svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "lexical delete", err)
			}
		}
		for _, vi := range o.vectorSnapshot() {
			report.VectorDeleteAttempts++
			if err := vi.DeleteByIDs(ctx, ids); err != nil {
				return report, svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "vector delete", err)
			}
		}
	}

	return report, nil
}

// SearchOptions bounds a search call.
type SearchOptions struct {
	TopK        int
	FetchFactor int
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.TopK <= 0 {
		o.TopK = 20
	}
	if o.FetchFactor <= 0 {
		o.FetchFactor = 4
	}
	return o
}

// SearchText runs a lexical-only search, applying the orchestrator's
// filter planner against every wired text index and post-filtering the
// materialised records before truncating to topK.
func (o *Orchestrator) SearchText(ctx context.Context, query string, filters []chunkmodel.FilterClause, opts SearchOptions) ([]chunkmodel.SearchHit, error) {
	opts = opts.withDefaults()
	if len(o.text) == 0 {
		return nil, nil
	}

	seen := make(map[string]chunkmodel.TextMatch)
	for _, tb := range o.text {
		pre, _ := Plan(filters, tb.caps)
		matches, err := tb.index.Search(ctx, query, pre, lexical.SearchOptions{TopK: opts.TopK, FetchFactor: opts.FetchFactor})
		if err != nil {
			return nil, svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "lexical search", err)
		}
		for _, m := range matches {
			if existing, ok := seen[m.ChunkID]; !ok || m.Score > existing.Score {
				seen[m.ChunkID] = m
			}
		}
	}

	return o.materialize(ctx, seen, filters, opts.TopK)
}

// SearchHybrid combines lexical and vector search using weighted linear
// fusion (see fusion.go), with w_text=1,w_vec=0 reproducing SearchText
// exactly and w_text=0,w_vec=1 reproducing a vector-only search exactly.
func (o *Orchestrator) SearchHybrid(ctx context.Context, query string, filters []chunkmodel.FilterClause, opts SearchOptions, weights FusionWeights) ([]chunkmodel.SearchHit, error) {
	opts = opts.withDefaults()

	var textMatches, vecMatches []chunkmodel.TextMatch

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var matches []chunkmodel.TextMatch
		for _, tb := range o.text {
			pre, _ := Plan(filters, tb.caps)
			m, err := tb.index.Search(gctx, query, pre, lexical.SearchOptions{TopK: opts.TopK, FetchFactor: opts.FetchFactor})
			if err != nil {
				return svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "lexical search", err)
			}
			matches = append(matches, m...)
		}
		textMatches = matches
		return nil
	})

	if weights.Vector > 0 {
		g.Go(func() error {
			qvec, err := o.emb.Embed(gctx, query)
			if err != nil {
				return svcerr.EmbedderError(svcerr.ErrCodeEmbedderUnavailable, "embed query", err)
			}
			var matches []chunkmodel.TextMatch
			for _, vi := range o.vectorSnapshot() {
				effort := opts.TopK * opts.FetchFactor
				if effort < opts.TopK {
					effort = opts.TopK
				}
				vm, err := vi.Search(gctx, qvec, effort)
				if err != nil {
					return svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "vector search", err)
				}
				for _, m := range vm {
					matches = append(matches, chunkmodel.TextMatch{ChunkID: m.ChunkID, Score: m.Score, RawScore: m.Distance})
				}
			}
			vecMatches = matches
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(textMatches, vecMatches, weights, 0)
	byID := make(map[string]chunkmodel.TextMatch, len(fused))
	for _, f := range fused {
		byID[f.id] = chunkmodel.TextMatch{ChunkID: f.id, Score: f.score}
	}

	return o.materialize(ctx, byID, filters, opts.TopK)
}

// materialize fetches full records for every candidate id, re-applies every
// filter clause (pre and post partitions alike), preserves each candidate's fused score, sorts
// descending by score and truncates to topK.
func (o *Orchestrator) materialize(ctx context.Context, candidates map[string]chunkmodel.TextMatch, filters []chunkmodel.FilterClause, topK int) ([]chunkmodel.SearchHit, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}

	records, err := o.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, svcerr.StoreError(svcerr.ErrCodeStoreNotFound, "get chunks by ids", err)
	}

	hits := make([]chunkmodel.SearchHit, 0, len(records))
	for _, r := range records {
		if !MatchesAll(filters, r) {
			continue
		}
		m := candidates[r.ChunkID]
		hits = append(hits, chunkmodel.SearchHit{ChunkID: r.ChunkID, Score: m.Score, Record: r})
	}

	sortHitsDescending(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func sortHitsDescending(hits []chunkmodel.SearchHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && less(hits[j-1], hits[j]); j-- {
			hits[j-1], hits[j] = hits[j], hits[j-1]
		}
	}
}

func less(a, b chunkmodel.SearchHit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ChunkID > b.ChunkID
}

// RepoCounts reports chunk_count and text_index_count for diagnostics.
func (o *Orchestrator) RepoCounts(ctx context.Context) (int, int, error) {
	chunkCount, err := o.store.Counts(ctx)
	if err != nil {
		return 0, 0, svcerr.StoreError(svcerr.ErrCodeStoreNotFound, "counts", err)
	}
	var textCount int
	for _, tb := range o.text {
		if stats, ok := tb.index.(interface{ Stats(context.Context) (int, error) }); ok {
			n, err := stats.Stats(ctx)
			if err != nil {
				return 0, 0, svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "lexical stats", err)
			}
			textCount += n
		}
	}
	return chunkCount, textCount, nil
}

// SegmentInput is one pre-segmented piece of text to ingest, carrying the
// page span its source segmenter attached (PageStart 0 means unknown).
type SegmentInput struct {
	Text      string
	PageStart int
	PageEnd   int
}

// IngestSegments runs the file-ingest pipeline over pre-segmented text:
// build ChunkRecords stamped with a UTC extraction time, embed them
// (adaptively batched per batch.go), assert every vector has the embedder's
// configured dimension, then run IngestChunksOrchestrated. Progress is
// pushed to progress (nil to skip), and cancellation is checked at the
// Start, EmbedBatch, pre-upsert and pre-index checkpoints.
func (o *Orchestrator) IngestSegments(ctx context.Context, docID, sourceURI, sourceMIME string, segments []SegmentInput, progress chan<- ProgressEvent, token *CancelToken) error {
	emit(progress, ProgressEvent{Stage: StageStart, ChunksTotal: len(segments)})
	if err := checkpoint(token); err != nil {
		emit(progress, ProgressEvent{Stage: StageCanceled, Err: err})
		return svcerr.OrchestratorError(svcerr.ErrCodeCanceled, "canceled at start", err)
	}
	if len(segments) == 0 {
		emit(progress, ProgressEvent{Stage: StageFinished})
		return nil
	}

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}

	emit(progress, ProgressEvent{Stage: StageEmbedBatch, ChunksTotal: len(texts)})
	vectors, err := EmbedAdaptive(ctx, o.emb, texts, o.batch)
	if err != nil {
		emit(progress, ProgressEvent{Stage: StageCanceled, Err: err})
		return svcerr.EmbedderError(svcerr.ErrCodeEmbedderUnavailable, "adaptive embed", err)
	}
	if err := checkpoint(token); err != nil {
		emit(progress, ProgressEvent{Stage: StageCanceled, Err: err})
		return svcerr.OrchestratorError(svcerr.ErrCodeCanceled, "canceled after embed", err)
	}

	dims := o.emb.Info().Dimensions
	for i, v := range vectors {
		if len(v) != dims {
			return svcerr.IndexError(svcerr.ErrCodeIndexDimensionMismatch,
				fmt.Sprintf("chunk %d: vector has %d dims, embedder reports %d", i, len(v), dims), nil)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	records := make([]chunkmodel.ChunkRecord, len(segments))
	for i, s := range segments {
		records[i] = chunkmodel.ChunkRecord{
			SchemaMajor: chunkmodel.SchemaMajor,
			DocID:       docID,
			ChunkID:     fmt.Sprintf("%s#%d", docID, i),
			SourceURI:   sourceURI,
			SourceMIME:  sourceMIME,
			ExtractedAt: now,
			PageStart:   s.PageStart,
			PageEnd:     s.PageEnd,
			Text:        s.Text,
		}
	}

	if err := checkpoint(token); err != nil {
		emit(progress, ProgressEvent{Stage: StageCanceled, Err: err})
		return svcerr.OrchestratorError(svcerr.ErrCodeCanceled, "canceled before upsert", err)
	}
	emit(progress, ProgressEvent{Stage: StageUpsertDb, ChunksTotal: len(records)})
	if err := o.store.UpsertChunks(ctx, records); err != nil {
		return svcerr.StoreError(svcerr.ErrCodeStoreNotFound, "upsert chunks", err)
	}

	if err := o.MaybeRebuildTextIndex(ctx); err != nil {
		return svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "rebuild text index", err)
	}

	if err := checkpoint(token); err != nil {
		emit(progress, ProgressEvent{Stage: StageCanceled, Err: err})
		return svcerr.OrchestratorError(svcerr.ErrCodeCanceled, "canceled before index", err)
	}
	emit(progress, ProgressEvent{Stage: StageIndexText, ChunksTotal: len(records)})
	for _, tb := range o.text {
		if err := tb.index.Upsert(ctx, records); err != nil {
			return svcerr.IndexError(svcerr.ErrCodeIndexCorrupt, "lexical upsert", err)
		}
	}

	emit(progress, ProgressEvent{Stage: StageIndexVector, ChunksTotal: len(records)})
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ChunkID
	}
	for _, vi := range o.vectorSnapshot() {
		if err := vi.Upsert(ctx, ids, vectors); err != nil {
			return svcerr.IndexError(svcerr.ErrCodeIndexDimensionMismatch, "vector upsert", err)
		}
	}

	emit(progress, ProgressEvent{Stage: StageSaveIndexes})
	emit(progress, ProgressEvent{Stage: StageFinished, ChunksTotal: len(records), ChunksDone: len(records)})
	return nil
}
