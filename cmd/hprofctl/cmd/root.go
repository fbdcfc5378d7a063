package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wroldwiedbwe/hprofkit/pkg/config"
	"github.com/wroldwiedbwe/hprofkit/pkg/telemetry"
	"github.com/wroldwiedbwe/hprofkit/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg             *config.Config
	logger          utils.Logger
	shutdownTracing telemetry.ShutdownFunc
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "hprofctl",
	Short: "Inspect and archive JVM HPROF heap dumps",
	Long: `hprofctl is a CLI for the hprof library: it opens binary HPROF heap
dump files (versions 1.0.2 and 1.0.3), lists their top-level records and
the classes of the objects in their heap dumps, materialises a specific heap dump, and can persist a flat
per-class digest of a dump to a database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)

		shutdown, err := telemetry.Init(context.Background())
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing: %v", err)
		}
		shutdownTracing = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTracing == nil {
			return nil
		}
		return shutdownTracing(context.Background())
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (yaml/toml/json; defaults searched if empty)")

	binName := BinName()
	rootCmd.Example = `  # List the top-level records in a dump
  ` + binName + ` records ./heap.hprof

  # List the classes of the objects in a dump's heap dumps
  ` + binName + ` classes ./heap.hprof

  # Summarise the first heap dump
  ` + binName + ` dump ./heap.hprof

  # Persist a per-class digest of a dump
  ` + binName + ` archive ./heap.hprof`
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}

// GetLogger returns the configured logger, valid once PersistentPreRunE runs.
func GetLogger() utils.Logger {
	return logger
}

// GetConfig returns the loaded configuration, valid once PersistentPreRunE runs.
func GetConfig() *config.Config {
	return cfg
}
