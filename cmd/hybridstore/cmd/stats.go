package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridstore/internal/output"
)

// statsOutput is the JSON output format for the stats command.
type statsOutput struct {
	ChunkCount      int `json:"chunk_count"`
	TextMirrorCount int `json:"text_mirror_count"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show repository statistics",
		Long:  `Display the number of chunks in the primary store and lexical mirror, for diagnostics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	chunks, mirror, err := store.RepoCounts(cmd.Context())
	if err != nil {
		return fmt.Errorf("repo counts: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statsOutput{ChunkCount: chunks, TextMirrorCount: mirror})
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "chunks: %d", chunks)
	out.Statusf("", "text mirror: %d", mirror)
	return nil
}
