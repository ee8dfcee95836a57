package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/sparseml/asynctrain/internal/dispatch"
	"github.com/sparseml/asynctrain/internal/dispatch/source"
	"github.com/sparseml/asynctrain/pkg/config"
)

var schedulerLease time.Duration

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler <file-glob>",
	Short: "Build a pool of work items from matching files and report how many were queued",
	Long: `Build a dispatch.Pool from the files matching <file-glob>, split
into the configured number of parts, and print how many items would be
assigned before exiting. This is a diagnostic entrypoint: the pool
itself is embedded into worker/server orchestration rather than run as
a standalone long-lived assignment service.`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.Flags().DurationVar(&schedulerLease, "lease", 5*time.Minute, "any positive value enables straggler reassignment; 0 disables it")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	pattern := args[0]

	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		log.Error("failed to load configuration: %v", err)
		return err
	}

	files, err := (source.LocalGlob{Pattern: pattern}).List(context.Background())
	if err != nil {
		log.Error("failed to list files: %v", err)
		return err
	}

	pool := dispatch.NewPool(schedulerLease)
	pool.Add(files, cfg.Worker.FormatTag, cfg.Scheduler.TaskBatchSize)

	log.Info("dispatch pool built: %d file(s), %d work item(s) queued", len(files), len(files)*cfg.Scheduler.TaskBatchSize)
	return nil
}
