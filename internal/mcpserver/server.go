package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/hybridstore"
	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
	"github.com/Aman-CERP/hybridstore/pkg/version"
)

// Server bridges AI clients (Claude Code, Cursor, ...) to a hybridstore.Store
// over MCP: every tool is a thin jsonschema-typed wrapper around one Store
// verb.
type Server struct {
	mcp    *mcp.Server
	store  *hybridstore.Store
	logger *slog.Logger
}

// NewServer wires the store's verbs into a fresh MCP server and registers
// every tool. store must not be nil.
func NewServer(store *hybridstore.Store) (*Server, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	s := &Server{
		store:  store,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "hybridstore",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer exposes the underlying SDK server, e.g. for tests that need to
// call tools directly.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.logger.Debug("registering mcp tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_file",
		Description: "Read a file from disk, split it into chunks and index it for lexical and vector search.",
	}, s.handleIngestFile)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_text",
		Description: "Index one literal string of text as a single searchable chunk.",
	}, s.handleIngestText)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_text",
		Description: "Lexical (keyword) search over the indexed corpus.",
	}, s.handleSearchText)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_hybrid",
		Description: "Hybrid search combining lexical and vector similarity, fused by weighted sum. Prefer this over search_text when the query is conceptual rather than a literal keyword match.",
	}, s.handleSearchHybrid)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_by_filter",
		Description: "Delete every chunk belonging to a document id from the primary store and both indexes.",
	}, s.handleDeleteByFilter)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repo_counts",
		Description: "Report how many chunks are currently indexed, for diagnostics.",
	}, s.handleRepoCounts)

	s.logger.Info("mcp tools registered", slog.Int("count", 6))
}

func (s *Server) handleIngestFile(ctx context.Context, _ *mcp.CallToolRequest, input IngestFileInput) (*mcp.CallToolResult, IngestOutput, error) {
	if input.Path == "" {
		return nil, IngestOutput{}, NewInvalidParamsError("path parameter is required")
	}
	docID := input.DocID
	if docID == "" {
		docID = uuid.New().String()
	}
	if err := s.store.IngestFile(ctx, input.Path, docID); err != nil {
		return nil, IngestOutput{}, MapError(err)
	}
	return nil, IngestOutput{DocID: docID}, nil
}

func (s *Server) handleIngestText(ctx context.Context, _ *mcp.CallToolRequest, input IngestTextInput) (*mcp.CallToolResult, IngestOutput, error) {
	if input.Text == "" {
		return nil, IngestOutput{}, NewInvalidParamsError("text parameter is required")
	}
	docID, chunkID, err := s.store.IngestText(ctx, input.Text, input.DocID)
	if err != nil {
		if errors.Is(err, hybridstore.ErrEmptyText) {
			return nil, IngestOutput{}, NewInvalidParamsError("text must not be empty or whitespace only")
		}
		return nil, IngestOutput{}, MapError(err)
	}
	return nil, IngestOutput{DocID: docID, ChunkID: chunkID}, nil
}

func (s *Server) handleSearchText(ctx context.Context, _ *mcp.CallToolRequest, input SearchTextInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	hits, err := s.store.SearchText(ctx, input.Query, limit, docIDFilter(input.DocID))
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, SearchOutput{Results: toSearchResults(hits)}, nil
}

func (s *Server) handleSearchHybrid(ctx context.Context, _ *mcp.CallToolRequest, input SearchHybridInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	wText, wVec := input.TextWeight, input.VectorWeight
	if wText == 0 && wVec == 0 {
		wText, wVec = 0.5, 0.5
	}

	hits, err := s.store.SearchHybrid(ctx, input.Query, limit, docIDFilter(input.DocID), wText, wVec)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, SearchOutput{Results: toSearchResults(hits)}, nil
}

func (s *Server) handleDeleteByFilter(ctx context.Context, _ *mcp.CallToolRequest, input DeleteByFilterInput) (*mcp.CallToolResult, DeleteByFilterOutput, error) {
	if input.DocID == "" {
		return nil, DeleteByFilterOutput{}, NewInvalidParamsError("doc_id parameter is required")
	}
	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	report, err := s.store.DeleteByFilter(ctx, docIDFilter(input.DocID), batchSize)
	if err != nil {
		return nil, DeleteByFilterOutput{}, MapError(err)
	}
	return nil, DeleteByFilterOutput{
		TotalIDs:             report.TotalIDs,
		DBDeleted:            report.DBDeleted,
		TextDeleteAttempts:   report.TextDeleteAttempts,
		VectorDeleteAttempts: report.VectorDeleteAttempts,
		Batches:              report.Batches,
	}, nil
}

func (s *Server) handleRepoCounts(ctx context.Context, _ *mcp.CallToolRequest, _ RepoCountsInput) (*mcp.CallToolResult, RepoCountsOutput, error) {
	chunks, mirror, err := s.store.RepoCounts(ctx)
	if err != nil {
		return nil, RepoCountsOutput{}, MapError(err)
	}
	return nil, RepoCountsOutput{ChunkCount: chunks, TextMirrorCount: mirror}, nil
}

func docIDFilter(docID string) []chunkmodel.FilterClause {
	if docID == "" {
		return nil
	}
	return []chunkmodel.FilterClause{{Op: chunkmodel.DocIdEq, Kind: chunkmodel.PreferPre, Value: docID}}
}

func toSearchResults(hits []chunkmodel.SearchHit) []SearchResultOutput {
	out := make([]SearchResultOutput, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResultOutput{
			ChunkID:    h.ChunkID,
			DocID:      h.Record.DocID,
			Score:      h.Score,
			SourceURI:  h.Record.SourceURI,
			SourceMIME: h.Record.SourceMIME,
			PageStart:  h.Record.PageStart,
			PageEnd:    h.Record.PageEnd,
			Text:       h.Record.Text,
		})
	}
	return out
}

// Serve runs the server until ctx is canceled. Only the stdio transport is
// currently supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting mcp server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources, including the wrapped store.
func (s *Server) Close() error {
	return s.store.Close()
}
