package hybridstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
	"github.com/Aman-CERP/hybridstore/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Store.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 32
	cfg.Embeddings.CacheSize = 0
	return cfg
}

func TestOpen_BuildsStoreWithDefaultsAndEmptyCounts(t *testing.T) {
	// Given: a fresh data directory and no prior ingestion
	store, err := Open(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	// Then: the repository starts empty
	chunks, mirror, err := store.RepoCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, chunks)
	assert.Equal(t, 0, mirror)
}

func TestIngestText_RejectsEmptyText(t *testing.T) {
	store, err := Open(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	_, _, err = store.IngestText(context.Background(), "   ", "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestIngestText_ProducesOneSearchableChunk(t *testing.T) {
	store, err := Open(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	docID, chunkID, err := store.IngestText(context.Background(), "the quick brown fox jumps", "")
	require.NoError(t, err)
	assert.NotEmpty(t, docID)
	assert.Equal(t, docID+"#0", chunkID)

	hits, err := store.SearchText(context.Background(), "quick", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, chunkID, hits[0].ChunkID)
}

func TestIngestFile_SegmentsTextFileAndIsSearchable(t *testing.T) {
	store, err := Open(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hybrid retrieval combines lexical and vector search"), 0o644))

	err = store.IngestFile(context.Background(), path, "doc-1")
	require.NoError(t, err)

	chunks, _, err := store.RepoCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)

	hits, err := store.SearchText(context.Background(), "lexical", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "text/plain", hits[0].Record.SourceMIME)
}

func TestIngestChunks_BypassesSegmentationAndIndexesDirectly(t *testing.T) {
	store, err := Open(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	records := []chunkmodel.ChunkRecord{
		{ChunkID: "c1", DocID: "d1", Text: "alpha beta"},
		{ChunkID: "c2", DocID: "d1", Text: "gamma delta"},
	}
	require.NoError(t, store.IngestChunks(context.Background(), records, nil))

	chunks, _, err := store.RepoCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, chunks)
}

func TestSearchHybrid_CombinesLexicalAndVectorScores(t *testing.T) {
	store, err := Open(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	_, _, err = store.IngestText(context.Background(), "vector search over dense embeddings", "")
	require.NoError(t, err)

	hits, err := store.SearchHybrid(context.Background(), "vector", 10, nil, 0.5, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestDeleteByFilter_RemovesIngestedChunk(t *testing.T) {
	store, err := Open(testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	docID, _, err := store.IngestText(context.Background(), "content to be deleted", "doc-del")
	require.NoError(t, err)

	report, err := store.DeleteByFilter(context.Background(), []chunkmodel.FilterClause{
		{Op: chunkmodel.DocIdEq, Value: docID},
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalIDs)

	chunks, _, err := store.RepoCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, chunks)
}

func TestReaderForPath_DispatchesByExtension(t *testing.T) {
	assert.Equal(t, "text/markdown", readerForPath("notes.md").mime)
	assert.Equal(t, "application/pdf", readerForPath("report.PDF").mime)
	assert.Equal(t, "text/plain", readerForPath("unknown.xyz").mime)
}
