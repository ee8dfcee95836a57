package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sparseml/asynctrain/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string
	logger     utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "asynctrain",
	Short: "A distributed asynchronous minibatch training engine",
	Long: `asynctrain trains sparse generalized linear and factorization models
(logistic regression, squared-hinge SVM, field-structured FM) with
asynchronous minibatch workers pulling and pushing against a sharded
parameter server.

Each subcommand runs one process role: worker, server, or predict.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	binName := BinName()
	rootCmd.Example = `  # Run a parameter-server process owning a shard range
  ` + binName + ` server -c ./configs/server.yaml

  # Run a worker process against a pattern of input files
  ` + binName + ` worker -c ./configs/worker.yaml ./data/part-*

  # Score a dataset against an already-trained model
  ` + binName + ` predict -c ./configs/worker.yaml ./data/eval-*`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// GetConfigPath returns the -c/--config flag value shared by every subcommand.
func GetConfigPath() string {
	return configPath
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
