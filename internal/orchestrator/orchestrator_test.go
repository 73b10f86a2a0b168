package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
	"github.com/Aman-CERP/hybridstore/internal/embedder"
	"github.com/Aman-CERP/hybridstore/internal/lexical"
	"github.com/Aman-CERP/hybridstore/internal/primarystore"
	"github.com/Aman-CERP/hybridstore/internal/vector"
)

// fakeTextIndex is an in-memory stand-in for *lexical.Index satisfying
// TextIndex, giving these tests control over scores and failure injection
// without depending on bleve.
type fakeTextIndex struct {
	docs map[string]chunkmodel.ChunkRecord
	fail error
}

func newFakeTextIndex() *fakeTextIndex {
	return &fakeTextIndex{docs: make(map[string]chunkmodel.ChunkRecord)}
}

func (f *fakeTextIndex) Upsert(ctx context.Context, records []chunkmodel.ChunkRecord) error {
	if f.fail != nil {
		return f.fail
	}
	for _, r := range records {
		f.docs[r.ChunkID] = r
	}
	return nil
}

func (f *fakeTextIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeTextIndex) Search(ctx context.Context, query string, filters []chunkmodel.FilterClause, opts lexical.SearchOptions) ([]chunkmodel.TextMatch, error) {
	var out []chunkmodel.TextMatch
	for id := range f.docs {
		out = append(out, chunkmodel.TextMatch{ChunkID: id, Score: 0.5})
	}
	return out, nil
}

func (f *fakeTextIndex) Stats(ctx context.Context) (int, error) {
	return len(f.docs), nil
}

// fakeVectorIndex is an in-memory stand-in for *vector.Index satisfying
// VectorIndex.
type fakeVectorIndex struct {
	ids    map[string][]float32
	scores map[string]float64
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{ids: make(map[string][]float32), scores: make(map[string]float64)}
}

func (f *fakeVectorIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	for i, id := range ids {
		f.ids[id] = vectors[i]
	}
	return nil
}

func (f *fakeVectorIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.ids, id)
	}
	return nil
}

func (f *fakeVectorIndex) Search(ctx context.Context, query []float32, topK int) ([]vector.Match, error) {
	var out []vector.Match
	for id := range f.ids {
		score := f.scores[id]
		out = append(out, vector.Match{ChunkID: id, Score: score})
	}
	return out, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *primarystore.Store, *fakeTextIndex, *fakeVectorIndex) {
	t.Helper()
	store, err := primarystore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	text := newFakeTextIndex()
	vec := newFakeVectorIndex()
	emb := embedder.NewStaticEmbedder(8, 0)

	o, err := New(store, emb, WithTextIndex(text, chunkmodel.IndexCaps{DocIdEq: true, DocIdIn: true}), WithVectorIndex(vec))
	require.NoError(t, err)
	return o, store, text, vec
}

func TestNew_RejectsNilStore(t *testing.T) {
	emb := embedder.NewStaticEmbedder(8, 0)
	_, err := New(nil, emb)
	assert.Error(t, err)
}

func TestNew_RejectsNilEmbedder(t *testing.T) {
	store, err := primarystore.Open("")
	require.NoError(t, err)
	defer store.Close()

	_, err = New(store, nil)
	assert.Error(t, err)
}

func TestIngestChunksOrchestrated_EmptyRecordsIsNoOp(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	err := o.IngestChunksOrchestrated(context.Background(), nil, nil)
	assert.NoError(t, err)
}

func TestIngestChunksOrchestrated_RejectsMismatchedVectorCount(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	records := []chunkmodel.ChunkRecord{{ChunkID: "c1", DocID: "d1", Text: "hello"}}
	err := o.IngestChunksOrchestrated(context.Background(), records, [][]float32{{1}, {2}})
	assert.Error(t, err)
}

func TestIngestChunksOrchestrated_PropagatesToStoreTextAndVectorIndexes(t *testing.T) {
	o, store, text, vec := newTestOrchestrator(t)
	records := []chunkmodel.ChunkRecord{{ChunkID: "c1", DocID: "d1", Text: "hello world"}}
	vectors := [][]float32{{1, 0, 0, 0, 0, 0, 0, 0}}

	err := o.IngestChunksOrchestrated(context.Background(), records, vectors)
	require.NoError(t, err)

	n, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, text.docs, "c1")
	assert.Contains(t, vec.ids, "c1")
}

func TestMaybeRebuildTextIndex_RepairsEmptyMirrorWhenStoreHasRows(t *testing.T) {
	store, err := primarystore.Open("")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.UpsertChunks(context.Background(), []chunkmodel.ChunkRecord{
		{ChunkID: "c1", DocID: "d1", Text: "hello"},
	}))

	text := newFakeTextIndex() // attached after the store already has rows
	emb := embedder.NewStaticEmbedder(8, 0)
	o, err := New(store, emb, WithTextIndex(text, chunkmodel.IndexCaps{}))
	require.NoError(t, err)

	err = o.MaybeRebuildTextIndex(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text.docs, "c1")
}

func TestMaybeRebuildTextIndex_NoOpWhenStoreEmpty(t *testing.T) {
	o, _, text, _ := newTestOrchestrator(t)
	err := o.MaybeRebuildTextIndex(context.Background())
	require.NoError(t, err)
	assert.Empty(t, text.docs)
}

func TestDeleteByFilterOrchestrated_RefusesEmptyFilterSet(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	_, err := o.DeleteByFilterOrchestrated(context.Background(), nil, 10)
	assert.Error(t, err)
}

func TestDeleteByFilterOrchestrated_DeletesAcrossStoreAndIndexes(t *testing.T) {
	o, store, text, vec := newTestOrchestrator(t)
	records := []chunkmodel.ChunkRecord{
		{ChunkID: "c1", DocID: "d1", Text: "hello"},
		{ChunkID: "c2", DocID: "d1", Text: "world"},
	}
	require.NoError(t, o.IngestChunksOrchestrated(context.Background(), records, nil))

	filters := []chunkmodel.FilterClause{{Op: chunkmodel.DocIdEq, Value: "d1"}}
	report, err := o.DeleteByFilterOrchestrated(context.Background(), filters, 10)

	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalIDs)
	assert.Equal(t, 2, report.DBDeleted)
	assert.Equal(t, 1, report.Batches)

	n, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NotContains(t, text.docs, "c1")
	assert.NotContains(t, vec.ids, "c1")
}

func TestSearchText_ReturnsMaterializedHitsFilteredAndSorted(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	records := []chunkmodel.ChunkRecord{
		{ChunkID: "c1", DocID: "d1", Text: "alpha"},
		{ChunkID: "c2", DocID: "d2", Text: "beta"},
	}
	require.NoError(t, o.IngestChunksOrchestrated(context.Background(), records, nil))

	hits, err := o.SearchText(context.Background(), "alpha", []chunkmodel.FilterClause{{Op: chunkmodel.DocIdEq, Value: "d1"}}, SearchOptions{TopK: 10})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
}

func TestSearchHybrid_CombinesTextAndVectorScoresByWeight(t *testing.T) {
	o, _, text, vec := newTestOrchestrator(t)
	records := []chunkmodel.ChunkRecord{{ChunkID: "c1", DocID: "d1", Text: "alpha"}}
	require.NoError(t, o.IngestChunksOrchestrated(context.Background(), records, nil))
	text.docs["c1"] = records[0]
	vec.scores["c1"] = 0.8
	vec.ids["c1"] = []float32{1}

	hits, err := o.SearchHybrid(context.Background(), "alpha", nil, SearchOptions{TopK: 10}, FusionWeights{Text: 0.5, Vector: 0.5})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.65, hits[0].Score, 1e-9) // 0.5*0.5 (text) + 0.5*0.8 (vector)
}

func TestSearchHybrid_ZeroVectorWeightSkipsEmbedding(t *testing.T) {
	o, _, text, _ := newTestOrchestrator(t)
	records := []chunkmodel.ChunkRecord{{ChunkID: "c1", DocID: "d1", Text: "alpha"}}
	require.NoError(t, o.IngestChunksOrchestrated(context.Background(), records, nil))
	text.docs["c1"] = records[0]

	hits, err := o.SearchHybrid(context.Background(), "alpha", nil, SearchOptions{TopK: 10}, FusionWeights{Text: 1, Vector: 0})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.5, hits[0].Score, 1e-9)
}

func TestRepoCounts_ReportsStoreAndTextMirrorCounts(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	records := []chunkmodel.ChunkRecord{{ChunkID: "c1", DocID: "d1", Text: "alpha"}}
	require.NoError(t, o.IngestChunksOrchestrated(context.Background(), records, nil))

	chunks, textMirror, err := o.RepoCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)
	assert.Equal(t, 1, textMirror)
}

func TestIngestSegments_EmitsProgressEventsInOrderAndFinishes(t *testing.T) {
	o, store, _, vec := newTestOrchestrator(t)
	progress := make(chan ProgressEvent, 16)

	segments := []SegmentInput{{Text: "hello world"}, {Text: "goodbye", PageStart: 1, PageEnd: 1}}
	err := o.IngestSegments(context.Background(), "doc1", "file:///a.txt", "text/plain", segments, progress, nil)
	require.NoError(t, err)
	close(progress)

	var stages []Stage
	for ev := range progress {
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []Stage{
		StageStart, StageEmbedBatch, StageUpsertDb, StageIndexText, StageIndexVector, StageSaveIndexes, StageFinished,
	}, stages)

	n, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, vec.ids, 2)
}

func TestIngestSegments_CancelledTokenHaltsAtStart(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)
	tok := NewCancelToken()
	tok.Cancel()
	progress := make(chan ProgressEvent, 4)

	err := o.IngestSegments(context.Background(), "doc1", "file:///a.txt", "text/plain", []SegmentInput{{Text: "hello"}}, progress, tok)
	close(progress)

	assert.Error(t, err)
	n, cerr := store.Counts(context.Background())
	require.NoError(t, cerr)
	assert.Equal(t, 0, n)

	var sawCanceled bool
	for ev := range progress {
		if ev.Stage == StageCanceled {
			sawCanceled = true
		}
	}
	assert.True(t, sawCanceled)
}
