package primarystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
)

func rec(docID, chunkID, text, extractedAt string) chunkmodel.ChunkRecord {
	return chunkmodel.ChunkRecord{
		SchemaMajor: chunkmodel.SchemaMajor,
		DocID:       docID,
		ChunkID:     chunkID,
		Text:        text,
		ExtractedAt: extractedAt,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	r := rec("doc-001", "doc-001#0", "hello world", "2024-01-02")
	require.NoError(t, s.UpsertChunks(ctx, []chunkmodel.ChunkRecord{r}))
	require.NoError(t, s.UpsertChunks(ctx, []chunkmodel.ChunkRecord{r}))

	n, err := s.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestUpsertSkipsEmptyTextWithoutAbortingBatch(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	good := rec("doc-001", "doc-001#0", "hello world", "")
	bad := rec("doc-001", "doc-001#1", "   ", "")
	require.NoError(t, s.UpsertChunks(ctx, []chunkmodel.ChunkRecord{good, bad}))

	n, err := s.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestGetChunksByIDsPreservesOrderAndOmitsMissing(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertChunks(ctx, []chunkmodel.ChunkRecord{
		rec("doc-001", "a", "A", ""),
		rec("doc-001", "b", "B", ""),
		rec("doc-001", "c", "C", ""),
	}))

	got, err := s.GetChunksByIDs(ctx, []string{"a", "missing", "c", "b"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"a", "c", "b"}, []string{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
}

func TestFilterPushdownPlusPostFilter(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertChunks(ctx, []chunkmodel.ChunkRecord{
		rec("doc-001", "c1", "hello", "2024-01-02"),
		rec("doc-001", "c2", "hello", "2025-01-10"),
		rec("doc-002", "c3", "hello", "2024-06-01"),
	}))

	clauses := []chunkmodel.FilterClause{
		{Op: chunkmodel.DocIdEq, Kind: chunkmodel.PreferPre, Value: "doc-001"},
		{Op: chunkmodel.RangeIsoDate, Kind: chunkmodel.PreferPre, Start: "2024-01-01", End: "2025-01-01", InclStart: true, InclEnd: false},
	}
	ids, err := s.ListChunkIDsByFilter(ctx, clauses, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, ids)
}

func TestDeleteByFilterRemovesOnlyMatching(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	var batch []chunkmodel.ChunkRecord
	for _, doc := range []string{"doc-A", "doc-B", "doc-C"} {
		for i := 0; i < 10; i++ {
			batch = append(batch, rec(doc, doc+"#"+string(rune('0'+i)), "text", ""))
		}
	}
	require.NoError(t, s.UpsertChunks(ctx, batch))

	n, err := s.DeleteByFilter(ctx, []chunkmodel.FilterClause{{Op: chunkmodel.DocIdEq, Value: "doc-B"}})
	require.NoError(t, err)
	require.Equal(t, 10, n)

	remaining, err := s.ListChunkIDsByFilter(ctx, []chunkmodel.FilterClause{{Op: chunkmodel.DocIdEq, Value: "doc-B"}}, 100, 0)
	require.NoError(t, err)
	require.Empty(t, remaining)

	total, err := s.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 20, total)
}
