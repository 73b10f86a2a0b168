package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridstore/internal/orchestrator"
	"github.com/Aman-CERP/hybridstore/internal/output"
)

type ingestOptions struct {
	docID string
	text  string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest a file or literal text into the index",
		Long: `Ingest reads a file from disk, segments it and indexes every segment,
or, with --text, indexes one literal string as a single chunk.

Examples:
  hybridstore ingest notes.md
  hybridstore ingest --text "hybrid retrieval combines lexical and vector search"
  hybridstore ingest report.pdf --doc-id report-2026`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return runIngest(cmd.Context(), cmd, path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.docID, "doc-id", "", "document id to assign; a fresh id is generated when omitted")
	cmd.Flags().StringVar(&opts.text, "text", "", "ingest this literal text instead of reading a file")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, path string, opts ingestOptions) error {
	if path == "" && opts.text == "" {
		return fmt.Errorf("either a file path or --text is required")
	}
	if path != "" && opts.text != "" {
		return fmt.Errorf("only one of a file path or --text may be given")
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	out := output.New(cmd.OutOrStdout())

	if opts.text != "" {
		docID, chunkID, err := store.IngestText(ctx, opts.text, opts.docID)
		if err != nil {
			return fmt.Errorf("ingest text: %w", err)
		}
		out.Successf("ingested 1 chunk into document %s (%s)", docID, chunkID)
		return nil
	}

	progress := make(chan orchestrator.ProgressEvent, 8)
	token := orchestrator.NewCancelToken()
	done := make(chan error, 1)

	go func() {
		done <- store.IngestFileWithProgress(ctx, path, opts.docID, progress, token)
		close(progress)
	}()

	for ev := range progress {
		if ev.Err != nil {
			continue
		}
		switch ev.Stage {
		case orchestrator.StageFinished:
			out.Progress(ev.ChunksTotal, ev.ChunksTotal, "finished")
		default:
			out.Progress(ev.ChunksDone, max(ev.ChunksTotal, 1), string(ev.Stage))
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("ingest file: %w", err)
	}
	out.Success(fmt.Sprintf("ingested %s", path))
	return nil
}
