package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sparseml/asynctrain/internal/service"
	"github.com/sparseml/asynctrain/pkg/config"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker <file-glob>",
	Short: "Run a worker process over a training pass",
	Long: `Run a worker process: read the files matching <file-glob> in
minibatches, localize their sparse keys, pull weights from the
parameter server, compute gradients, and push them back.

One invocation runs worker.num_epochs data passes (at least one),
with pass 0 triggering the push-count phase when embeddings are
enabled, and saves a checkpoint after the last pass.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	pattern := args[0]

	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		log.Error("failed to load configuration: %v", err)
		return err
	}

	svc := service.New(cfg, log)

	ctx := context.Background()
	if err := svc.Initialize(ctx); err != nil {
		log.Error("failed to initialize service: %v", err)
		return err
	}
	defer svc.Stop(context.Background())

	epochs := cfg.Worker.NumEpochs
	if epochs < 1 {
		epochs = 1
	}

	for pass := 0; pass < epochs; pass++ {
		firstPass := pass == 0
		log.Info("worker pass %d/%d over %s (first_pass=%v)", pass+1, epochs, pattern, firstPass)

		rec, err := svc.RunWorker(ctx, pattern, true, firstPass)
		if err != nil {
			log.Error("pass %d failed: %v", pass, err)
			return err
		}
		log.Info("pass %d done: counters=%v accumulators=%v", pass, rec.Ints, rec.Floats)
	}

	if err := svc.SaveCheckpoint(ctx); err != nil {
		log.Error("failed to save checkpoint: %v", err)
		return err
	}

	log.Info("worker finished")
	return nil
}
