package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/perf-snapshot/internal/service"
	"github.com/perf-snapshot/pkg/config"
	"github.com/perf-snapshot/pkg/telemetry"
	"github.com/perf-snapshot/pkg/utils"
	"github.com/perf-snapshot/pkg/writer"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger            utils.Logger
	cfg               *config.Config
	telemetryShutdown telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "perf-snapshot",
	Short: "A profiler results toolkit",
	Long: `perf-snapshot builds, stores and presents profiler results.

It turns collapsed CPU stacks into calling context trees and exports them
per thread, captures allocation and liveness snapshots, diffs them, shows
the allocation paths of a class and pages through class histograms of any
size.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		logLevel := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stderr)
		utils.SetGlobalLogger(logger)

		shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry, Version)
		if err != nil {
			logger.Warn("Failed to initialize telemetry: %v", err)
		}
		telemetryShutdown = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(ctx); err != nil {
			logger.Warn("Failed to flush telemetry: %v", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	binName := BinName()
	rootCmd.Example = `  # Export the calling context tree of every thread as XML
  ` + binName + ` cct export -i ./cpu.collapsed -o ./trees

  # Capture an allocation snapshot with call paths
  ` + binName + ` snapshot build -i ./alloc.collapsed --stacks --name before

  # Diff two snapshots and show where String allocations grew
  ` + binName + ` snapshot diff <after-uuid> <before-uuid>
  ` + binName + ` snapshot tree <diff-uuid> java.lang.String

  # Page through the class histogram sorted by size
  ` + binName + ` objects page <uuid> --sort size --order desc --path 0`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return utils.OrNull(logger)
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

// newService creates and initializes the snapshot service.
func newService(ctx context.Context) (*service.Service, error) {
	if err := cfg.EnsureLocalDirs(); err != nil {
		return nil, fmt.Errorf("failed to create local directories: %w", err)
	}
	svc, err := service.New(cfg, GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	if err := svc.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize service: %w", err)
	}
	return svc, nil
}

// printJSON writes v as indented JSON.
func printJSON[T any](w io.Writer, v T) error {
	return writer.NewPrettyJSONWriter[T]().Write(v, w)
}

// openInput opens path, or stdin for "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}
