package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
	"github.com/Aman-CERP/hybridstore/internal/output"
)

type deleteOptions struct {
	docID     string
	batchSize int
}

func newDeleteCmd() *cobra.Command {
	var opts deleteOptions

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every chunk belonging to a document",
		Long: `Delete removes every chunk for --doc-id from the primary store and
both the lexical and vector indexes.

Example:
  hybridstore delete --doc-id report-2026`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.docID, "doc-id", "", "delete every chunk belonging to this document id (required)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 100, "number of ids deleted per batch")
	_ = cmd.MarkFlagRequired("doc-id")

	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, opts deleteOptions) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	report, err := store.DeleteByFilter(ctx, []chunkmodel.FilterClause{
		{Op: chunkmodel.DocIdEq, Kind: chunkmodel.PreferPre, Value: opts.docID},
	}, opts.batchSize)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("deleted %d chunk(s) for document %s (%d db row(s), %d batch(es))",
		report.TotalIDs, opts.docID, report.DBDeleted, report.Batches)
	return nil
}
