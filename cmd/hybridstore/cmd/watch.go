package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridstore/internal/output"
)

type watchOptions struct {
	docID    string
	debounce time.Duration
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Watch a file and re-ingest it on every write",
		Long: `Watch re-runs ingest against path every time it is written to, until
interrupted. It is sugar over repeated "hybridstore ingest" calls, not a
project-wide reindex daemon.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.docID, "doc-id", "", "document id to assign; a fresh id is generated when omitted")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 300*time.Millisecond, "minimum time between re-ingests of a burst of writes")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string, opts watchOptions) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "watching %s, ctrl-c to stop", abs)

	ingest := func() {
		if err := store.IngestFile(ctx, path, opts.docID); err != nil {
			out.Errorf("ingest %s: %v", path, err)
			return
		}
		out.Successf("re-ingested %s", path)
	}
	ingest()

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Default().Error("watch error", slog.String("error", err.Error()))
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(opts.debounce, ingest)
		}
	}
}
