// Package cmd provides the CLI commands for hybridstore.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridstore"
	"github.com/Aman-CERP/hybridstore/internal/config"
	"github.com/Aman-CERP/hybridstore/internal/obslog"
	"github.com/Aman-CERP/hybridstore/internal/profiling"
	"github.com/Aman-CERP/hybridstore/pkg/version"
)

var (
	dataDir string

	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()

	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the hybridstore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hybridstore",
		Short:   "Hybrid lexical + vector retrieval engine",
		Long:    `hybridstore ingests files and text into a local lexical + vector index and serves search over it, either directly from the CLI or as an MCP server for AI clients.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("hybridstore version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the primary store, lexical index and vector index (defaults to the layered config's store.data_dir)")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "write execution trace to file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to ~/.hybridstore/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		logger, cleanup, err := obslog.Setup(obslog.DebugConfig())
		if err != nil {
			return fmt.Errorf("setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug logging enabled", slog.String("log_file", obslog.DefaultLogPath()))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("start trace: %w", err)
		}
	}

	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig loads the layered config from the current directory and
// applies the --data-dir override when set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	return cfg, nil
}

// openStore loads the layered config and assembles a hybridstore.Store from
// it. Callers must Close the returned store.
func openStore() (*hybridstore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return hybridstore.Open(cfg)
}
