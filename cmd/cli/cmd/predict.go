package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sparseml/asynctrain/internal/service"
	"github.com/sparseml/asynctrain/pkg/config"
)

// predictCmd represents the predict command
var predictCmd = &cobra.Command{
	Use:   "predict <file-glob>",
	Short: "Score a dataset against a trained model",
	Long: `Run a worker process in prediction mode: read, localize, and pull
weights for every row matching <file-glob>, but never push gradients
or update the model.`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
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

	rec, err := svc.RunWorker(ctx, pattern, false, false)
	if err != nil {
		log.Error("prediction pass failed: %v", err)
		return err
	}

	log.Info("prediction finished: counters=%v accumulators=%v", rec.Ints, rec.Floats)
	return nil
}
