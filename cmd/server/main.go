package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sparseml/asynctrain/internal/service"
	"github.com/sparseml/asynctrain/pkg/config"
	"github.com/sparseml/asynctrain/pkg/utils"
)

var (
	configPath = flag.String("c", "", "Path to configuration file")
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
		fmt.Printf("asynctrain-server version %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	logger := utils.NewDefaultLogger(utils.LevelInfo, os.Stdout)
	utils.SetGlobalLogger(logger)

	logger.Info("Starting asynctrain parameter-server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logger.Info("Shards: %d, algorithm: %s, checkpoint: %s", cfg.Server.NumShards, cfg.Algorithm.Name, cfg.Server.CheckpointPath)
	logger.Info("Database: %s, storage: %s", cfg.Database.Type, cfg.Storage.Type)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	svc := service.New(cfg, logger)

	if err := svc.Initialize(ctx); err != nil {
		logger.Error("Failed to initialize service: %v", err)
		os.Exit(1)
	}

	go func() {
		sig := <-sigChan
		logger.Info("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()

	logger.Info("Parameter-server ready, serving shards...")
	if err := svc.ServeShards(ctx); err != nil {
		logger.Error("Server loop exited with error: %v", err)
	}

	if err := svc.Stop(context.Background()); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}

	logger.Info("Parameter-server stopped")
}
