package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sparseml/asynctrain/internal/service"
	"github.com/sparseml/asynctrain/pkg/config"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a parameter-server process",
	Long: `Run a parameter-server process owning one or more shards.

The server loads configuration, restores the shards' checkpoint (if
one exists), then blocks until it receives a shutdown signal,
reporting progress and checkpointing every server.save_interval
minutes and once more on the way out. The shards are reachable only
through the in-process transport; this command does not accept
push-count/pull-weights/push-gradient requests from other processes.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		log.Error("failed to load configuration: %v", err)
		return err
	}

	log.Info("starting parameter-server: %d shard(s), algorithm=%s, embedding_dim=%d",
		cfg.Server.NumShards, cfg.Algorithm.Name, cfg.Embedding.Dim)

	svc := service.New(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Initialize(ctx); err != nil {
		log.Error("failed to initialize service: %v", err)
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal %v, shutting down", sig)
		cancel()
	}()

	log.Info("parameter-server ready")
	if err := svc.ServeShards(ctx); err != nil {
		log.Error("server loop exited with error: %v", err)
		return err
	}

	if err := svc.Stop(context.Background()); err != nil {
		log.Error("error during shutdown: %v", err)
		return err
	}

	log.Info("parameter-server stopped")
	return nil
}
