package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
	"github.com/Aman-CERP/hybridstore/internal/output"
)

type searchOptions struct {
	limit        int
	docID        string
	format       string
	hybrid       bool
	textWeight   float64
	vectorWeight float64
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search runs a lexical search by default, or a hybrid lexical+vector
search with --hybrid.

Examples:
  hybridstore search "authentication middleware"
  hybridstore search "vector similarity" --hybrid --limit 5
  hybridstore search "setup instructions" --doc-id readme --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVar(&opts.docID, "doc-id", "", "restrict results to this document id")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json")
	cmd.Flags().BoolVar(&opts.hybrid, "hybrid", false, "fuse lexical and vector scores instead of lexical-only")
	cmd.Flags().Float64Var(&opts.textWeight, "text-weight", 0.5, "lexical weight used with --hybrid")
	cmd.Flags().Float64Var(&opts.vectorWeight, "vector-weight", 0.5, "vector weight used with --hybrid")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var filters []chunkmodel.FilterClause
	if opts.docID != "" {
		filters = []chunkmodel.FilterClause{{Op: chunkmodel.DocIdEq, Kind: chunkmodel.PreferPre, Value: opts.docID}}
	}

	var hits []chunkmodel.SearchHit
	if opts.hybrid {
		hits, err = store.SearchHybrid(ctx, query, opts.limit, filters, opts.textWeight, opts.vectorWeight)
	} else {
		hits, err = store.SearchText(ctx, query, opts.limit, filters)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := output.New(cmd.OutOrStdout())

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		out.Status("", "no results")
		return nil
	}
	for i, h := range hits {
		out.Statusf("", "%d. [%.4f] %s (%s)", i+1, h.Score, h.ChunkID, h.Record.SourceURI)
		out.Code(h.Record.Text)
	}
	return nil
}
