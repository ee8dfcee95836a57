// Package config provides configuration management for the training engine.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. Every role binary
// (worker, server, scheduler) loads the same Config shape and reads
// only the sections relevant to its role.
type Config struct {
	Worker    WorkerConfig    `mapstructure:"worker"`
	Server    ServerConfig    `mapstructure:"server"`
	Algorithm AlgorithmConfig `mapstructure:"algorithm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	APM       APMConfig       `mapstructure:"apm"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// WorkerConfig holds worker-process configuration: the minibatch
// pipeline's shape and its bound on in-flight concurrency.
type WorkerConfig struct {
	DataDir         string  `mapstructure:"data_dir"`
	FormatTag       string  `mapstructure:"format_tag"`
	BatchSize       int     `mapstructure:"batch_size"`
	MaxConcurrent   int     `mapstructure:"max_concurrent"`
	ShuffleWindow   int     `mapstructure:"shuffle_window"`
	NegSamplingRate float64 `mapstructure:"neg_sampling_rate"`
	ClipValue       float32 `mapstructure:"clip_value"`
	DropoutRate     float32 `mapstructure:"dropout_rate"`
	NormalizeGrad   bool    `mapstructure:"normalize_grad"`
	NumEpochs       int     `mapstructure:"num_epochs"`
}

// ServerConfig holds parameter-server configuration: how many shards
// this process owns and the checkpoint it loads from / saves to.
type ServerConfig struct {
	NumShards      int    `mapstructure:"num_shards"`
	CheckpointPath string `mapstructure:"checkpoint_path"`
	SaveInterval   int    `mapstructure:"save_interval"` // minutes between periodic checkpoints; 0 disables them (one is still saved at shutdown)
}

// AlgorithmConfig holds the scalar update rule and its hyperparameters,
// shared by the FTRL, AdaGrad, and plain-SGD updaters.
type AlgorithmConfig struct {
	Name  string  `mapstructure:"name"` // ftrl, adagrad, sgd
	Loss  string  `mapstructure:"loss"` // logistic, squared_hinge, squared
	Alpha float32 `mapstructure:"alpha"`
	Beta  float32 `mapstructure:"beta"`
	L1    float32 `mapstructure:"l1"`
	L2    float32 `mapstructure:"l2"`
}

// EmbeddingConfig holds the factorization-machine embedding expansion
// knobs: the dimension workers grow a scalar entry into, the
// occurrence threshold that triggers growth, the AdaGrad rate the
// embedding coordinates update under, and the uniform init range.
type EmbeddingConfig struct {
	Dim          int     `mapstructure:"dim"`
	Threshold    uint64  `mapstructure:"threshold"`
	AlphaV       float32 `mapstructure:"alpha_v"`
	BetaV        float32 `mapstructure:"beta_v"`
	L2V          float32 `mapstructure:"l2_v"`
	InitMin      float32 `mapstructure:"init_min"`
	InitMax      float32 `mapstructure:"init_max"`
	L1ShrinkGate bool    `mapstructure:"l1_shrink_gate"`
}

// DatabaseConfig holds run/progress history database connection
// configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql, or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration for model
// checkpoints.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
	LocalPath string `mapstructure:"local_path"`
}

// APMConfig holds APM callback configuration, reported alongside
// progress so an external dashboard can track training runs.
type APMConfig struct {
	URL           string `mapstructure:"url"`
	RequestYunAPI bool   `mapstructure:"request_yunapi"`
	Enabled       bool   `mapstructure:"enabled"`
}

// SchedulerConfig holds shard-dispatch configuration.
type SchedulerConfig struct {
	PollInterval  int `mapstructure:"poll_interval"` // in seconds
	WorkerCount   int `mapstructure:"worker_count"`
	PrioritySlots int `mapstructure:"priority_slots"`
	TaskBatchSize int `mapstructure:"task_batch_size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// TelemetryConfig holds OTel tracer/exporter configuration for the
// pull/push/localize spans.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ExporterTarget string `mapstructure:"exporter_target"`
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/asynctrain")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.data_dir", "./data")
	v.SetDefault("worker.format_tag", "svmlight")
	v.SetDefault("worker.batch_size", 256)
	v.SetDefault("worker.max_concurrent", 8)
	v.SetDefault("worker.num_epochs", 1)

	v.SetDefault("server.num_shards", 1)
	v.SetDefault("server.checkpoint_path", "./checkpoints")

	v.SetDefault("algorithm.name", "ftrl")
	v.SetDefault("algorithm.loss", "logistic")
	v.SetDefault("algorithm.alpha", 0.1)
	v.SetDefault("algorithm.beta", 1.0)
	v.SetDefault("algorithm.l1", 1.0)
	v.SetDefault("algorithm.l2", 0.0)

	v.SetDefault("embedding.dim", 0)
	v.SetDefault("embedding.threshold", 10)
	v.SetDefault("embedding.alpha_v", 0.1)
	v.SetDefault("embedding.beta_v", 1.0)
	v.SetDefault("embedding.init_min", -0.01)
	v.SetDefault("embedding.init_max", 0.01)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("scheduler.poll_interval", 2)
	v.SetDefault("scheduler.worker_count", 5)
	v.SetDefault("scheduler.priority_slots", 2)
	v.SetDefault("scheduler.task_batch_size", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "asynctrain")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Algorithm.Name {
	case "ftrl", "adagrad", "sgd":
	default:
		return fmt.Errorf("unsupported algorithm: %s", c.Algorithm.Name)
	}

	switch c.Algorithm.Loss {
	case "", "logistic", "squared_hinge", "squared":
	default:
		return fmt.Errorf("unsupported loss: %s", c.Algorithm.Loss)
	}

	if c.Server.NumShards < 1 {
		return fmt.Errorf("server.num_shards must be at least 1")
	}

	if c.Worker.MaxConcurrent < 1 {
		return fmt.Errorf("worker.max_concurrent must be at least 1")
	}

	if c.Database.Type != "" && c.Database.Type != "postgres" && c.Database.Type != "mysql" && c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	return nil
}

// EnsureDataDir creates the worker's data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Worker.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Worker.DataDir, 0755)
}

// GetShardCheckpointPath returns the checkpoint file path for one shard.
func (c *Config) GetShardCheckpointPath(shard int) string {
	return filepath.Join(c.Server.CheckpointPath, fmt.Sprintf("shard-%04d.bin", shard))
}
