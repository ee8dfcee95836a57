package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sparseml/asynctrain/internal/service"
	"github.com/sparseml/asynctrain/pkg/config"
	"github.com/sparseml/asynctrain/pkg/utils"
)

var (
	configPath = flag.String("c", "", "Path to configuration file")
	pattern    = flag.String("i", "", "Input file glob pattern (required)")
	version    = flag.Bool("v", false, "Print version and exit")
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("asynctrain-worker version %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	logger := utils.NewDefaultLogger(utils.LevelInfo, os.Stdout)
	utils.SetGlobalLogger(logger)

	if *pattern == "" {
		logger.Error("input file glob is required (-i)")
		os.Exit(1)
	}

	logger.Info("Starting asynctrain worker...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logger.Info("Algorithm: %s, loss: %s, embedding dim: %d", cfg.Algorithm.Name, cfg.Algorithm.Loss, cfg.Embedding.Dim)
	logger.Info("Shards: %d, max concurrent: %d", cfg.Server.NumShards, cfg.Worker.MaxConcurrent)

	if err := cfg.EnsureDataDir(); err != nil {
		logger.Error("Failed to create data directory: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := service.New(cfg, logger)

	if err := svc.Initialize(ctx); err != nil {
		logger.Error("Failed to initialize service: %v", err)
		os.Exit(1)
	}

	epochs := cfg.Worker.NumEpochs
	if epochs < 1 {
		epochs = 1
	}

	for pass := 0; pass < epochs; pass++ {
		firstPass := pass == 0
		rec, err := svc.RunWorker(ctx, *pattern, true, firstPass)
		if err != nil {
			logger.Error("Pass %d failed: %v", pass, err)
			os.Exit(1)
		}
		logger.Info("Pass %d/%d complete: counters=%v accumulators=%v", pass+1, epochs, rec.Ints, rec.Floats)
	}

	if err := svc.SaveCheckpoint(ctx); err != nil {
		logger.Error("Failed to save checkpoint: %v", err)
		os.Exit(1)
	}

	if err := svc.Stop(context.Background()); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}

	logger.Info("Worker finished")
}
