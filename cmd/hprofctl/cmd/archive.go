package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wroldwiedbwe/hprofkit/internal/archive"
	"github.com/wroldwiedbwe/hprofkit/pkg/parallel"
	"github.com/wroldwiedbwe/hprofkit/pkg/writer"
)

var (
	archiveWorkers int
	archiveTimeout time.Duration
)

var archiveCmd = &cobra.Command{
	Use:   "archive <source>...",
	Short: "Persist a per-class digest of one or more dumps",
	Long: `archive indexes each given dump (a local path, or an object key if
--storage-type is set to cos) and persists one row per observed class plus
one row for the file itself, via the configured database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().IntVar(&archiveWorkers, "workers", 0,
		"concurrent archivers for a multi-source batch (0 uses the pool default)")
	archiveCmd.Flags().DurationVar(&archiveTimeout, "timeout", 0,
		"overall deadline for a multi-source batch (0 means no timeout)")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	a, err := archive.NewArchiver(GetConfig(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if len(args) == 1 {
		digest, fileID, err := a.Run(ctx, args[0])
		if err != nil {
			return err
		}
		GetLogger().WithField("source", args[0]).WithField("file_id", fileID).Info("archived dump")
		return writer.NewPrettyJSONWriter[*archive.Digest]().Write(digest, os.Stdout)
	}

	cfg := parallel.DefaultPoolConfig().WithWorkers(archiveWorkers).WithTimeout(archiveTimeout)
	results, metrics := a.RunMany(ctx, args, cfg)
	for _, r := range results {
		if r.Err != nil {
			GetLogger().WithField("source", r.Source).Error("archive failed: %v", r.Err)
			continue
		}
		GetLogger().WithField("source", r.Source).WithField("file_id", r.FileID).Info("archived dump")
	}
	GetLogger().WithField("completed", metrics.CompletedTasks).WithField("failed", metrics.FailedTasks).
		Info("batch archive finished in %s", metrics.TotalDuration)
	return writer.NewPrettyJSONWriter[[]archive.RunResult]().Write(results, os.Stdout)
}
