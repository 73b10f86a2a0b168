package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridstore/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Serve starts an MCP server exposing ingest/search/delete tools over the
given transport, so AI clients can drive the index directly.

Only stdio is currently supported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio")
	return cmd
}

func runServe(cmd *cobra.Command, transport string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	server, err := mcpserver.NewServer(store)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build mcp server: %w", err)
	}
	defer func() { _ = server.Close() }()

	return server.Serve(cmd.Context(), transport)
}
