// Package primarystore implements the transactional primary store (C4):
// the authoritative keyed record of chunks, backed by modernc.org/sqlite in
// WAL mode.
// connection-setup and corruption-recovery conventions.
package primarystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
)

// Store is the primary keyed chunk store.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Caps declares the FilterClause shapes this store can push into SQL.
// Doc id equality/membership, source-URI prefix and extracted_at date
// ranges are pushed into SQL; meta and numeric-range clauses are not, and
// are checked in Go on the fetched rows.
func Caps() chunkmodel.IndexCaps {
	return chunkmodel.IndexCaps{
		DocIdEq: true, DocIdIn: true, SourceUriPrefix: true,
		MetaEq: false, MetaIn: false, // meta lives in a JSON blob; no pushdown
		RangeNumeric: false, RangeIsoDate: true,
	}
}

// Open creates or opens the primary store at path. An empty path opens an
// in-memory database, useful for tests.
func Open(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		if err := validateIntegrity(path); err != nil {
			slog.Warn("primary_store_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("store corrupted at %s and cannot remove: %w (original: %v)", path, rmErr, err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("primary_store_cleared", slog.String("path", path), slog.String("reason", "corruption detected"))
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT UNIQUE NOT NULL,
		doc_id TEXT NOT NULL,
		schema_major INTEGER NOT NULL,
		source_uri TEXT NOT NULL DEFAULT '',
		source_mime TEXT NOT NULL DEFAULT '',
		extracted_at TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		page_start INTEGER,
		page_end INTEGER,
		section_path TEXT NOT NULL DEFAULT '[]',
		meta TEXT NOT NULL DEFAULT '{}',
		extra TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_source_uri ON chunks(source_uri);
	CREATE INDEX IF NOT EXISTS idx_chunks_extracted_at ON chunks(extracted_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertChunks is atomic over the batch. Records failing soft validation
// are skipped without aborting the batch. On conflict by chunk_id, all
// mutable fields are overwritten while the row identity (rowid) is
// preserved, so insertion order (used by ListChunkIDsByFilter) is stable.
func (s *Store) UpsertChunks(ctx context.Context, records []chunkmodel.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(chunk_id, doc_id, schema_major, source_uri, source_mime, extracted_at, text, page_start, page_end, section_path, meta, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			doc_id = excluded.doc_id,
			schema_major = excluded.schema_major,
			source_uri = excluded.source_uri,
			source_mime = excluded.source_mime,
			extracted_at = excluded.extracted_at,
			text = excluded.text,
			page_start = excluded.page_start,
			page_end = excluded.page_end,
			section_path = excluded.section_path,
			meta = excluded.meta,
			extra = excluded.extra
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if err := chunkmodel.ValidateSoft(r); err != nil {
			continue
		}
		sectionPath, _ := json.Marshal(r.SectionPath)
		meta, _ := json.Marshal(r.Meta)
		extra, _ := json.Marshal(r.Extra)

		var pageStart, pageEnd any
		if r.PageStart > 0 {
			pageStart = r.PageStart
		}
		if r.PageEnd > 0 {
			pageEnd = r.PageEnd
		}

		if _, err := stmt.ExecContext(ctx, r.ChunkID, r.DocID, r.SchemaMajor, r.SourceURI, r.SourceMIME,
			r.ExtractedAt, r.Text, pageStart, pageEnd, string(sectionPath), string(meta), string(extra)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.ChunkID, err)
		}
	}

	return tx.Commit()
}

// DeleteByIDs removes chunks by chunk_id and returns the number removed.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders, args := inClause(ids)
	res, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE chunk_id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteByFilter deletes every chunk matching the (pre+post, already fully
// resolved) filter clauses and returns the count removed. Callers
// (the orchestrator) are responsible for refusing an empty filter set.
func (s *Store) DeleteByFilter(ctx context.Context, clauses []chunkmodel.FilterClause) (int, error) {
	ids, err := s.ListChunkIDsByFilter(ctx, clauses, 0, 0)
	if err != nil {
		return 0, err
	}
	return s.DeleteByIDs(ctx, ids)
}

// ListChunkIDsByFilter returns ids in stable insertion order. limit <= 0
// means unbounded.
func (s *Store) ListChunkIDsByFilter(ctx context.Context, clauses []chunkmodel.FilterClause, limit, offset int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	where, args := buildWhere(clauses)
	q := "SELECT chunk_id, doc_id, source_uri, extracted_at, meta FROM chunks"
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY rowid"
	// limit/offset are applied after post-filtering below, not in SQL,
	// since pushdown alone cannot guarantee the post-filtered result set
	// size; unbounded callers (limit<=0) still get the SQL ORDER BY.

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, docID, sourceURI, extractedAt, metaJSON string
		if err := rows.Scan(&id, &docID, &sourceURI, &extractedAt, &metaJSON); err != nil {
			return nil, err
		}
		rec := postFilterRecord{docID: docID, sourceURI: sourceURI, extractedAt: extractedAt, metaJSON: metaJSON}
		if !matchesAll(clauses, rec) {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit > 0 {
		if offset >= len(ids) {
			return []string{}, nil
		}
		end := offset + limit
		if end > len(ids) {
			end = len(ids)
		}
		ids = ids[offset:end]
	}
	return ids, nil
}

// GetChunksByIDs returns records in input order; missing ids are silently
// omitted (P5).
func (s *Store) GetChunksByIDs(ctx context.Context, ids []string) ([]chunkmodel.ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, schema_major, source_uri, source_mime, extracted_at, text,
		       COALESCE(page_start, 0), COALESCE(page_end, 0), section_path, meta, extra
		FROM chunks WHERE chunk_id IN (`+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]chunkmodel.ChunkRecord, len(ids))
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		byID[r.ChunkID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]chunkmodel.ChunkRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (chunkmodel.ChunkRecord, error) {
	var r chunkmodel.ChunkRecord
	var sectionPath, meta, extra string
	if err := rows.Scan(&r.ChunkID, &r.DocID, &r.SchemaMajor, &r.SourceURI, &r.SourceMIME,
		&r.ExtractedAt, &r.Text, &r.PageStart, &r.PageEnd, &sectionPath, &meta, &extra); err != nil {
		return r, fmt.Errorf("scan chunk: %w", err)
	}
	_ = json.Unmarshal([]byte(sectionPath), &r.SectionPath)
	_ = json.Unmarshal([]byte(meta), &r.Meta)
	_ = json.Unmarshal([]byte(extra), &r.Extra)
	return r, nil
}

// Counts returns the number of chunks in the store. The text index count
// comes from the caller (orchestrator) since the primary store has no
// view into the lexical mirror.
func (s *Store) Counts(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// AllChunks returns every chunk_id and text, in insertion order, used by
// MaybeRebuildTextIndex to repair an empty lexical mirror.
func (s *Store) AllChunks(ctx context.Context) ([]chunkmodel.ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, schema_major, source_uri, source_mime, extracted_at, text,
		       COALESCE(page_start, 0), COALESCE(page_end, 0), section_path, meta, extra
		FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chunkmodel.ChunkRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

// Close closes the store. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
