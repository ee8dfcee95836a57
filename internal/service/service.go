// Package service wires configuration, logging, telemetry, and the
// role-specific subsystem (worker pipeline or parameter-server shards)
// into the lifecycle each cmd/ entrypoint drives: Initialize, Run,
// Stop.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sparseml/asynctrain/internal/checkpoint"
	"github.com/sparseml/asynctrain/internal/dispatch/source"
	"github.com/sparseml/asynctrain/internal/feature"
	"github.com/sparseml/asynctrain/internal/kernel"
	"github.com/sparseml/asynctrain/internal/progress"
	"github.com/sparseml/asynctrain/internal/reader"
	"github.com/sparseml/asynctrain/internal/repository"
	"github.com/sparseml/asynctrain/internal/storage"
	"github.com/sparseml/asynctrain/internal/store"
	"github.com/sparseml/asynctrain/internal/transport"
	"github.com/sparseml/asynctrain/internal/worker"
	"github.com/sparseml/asynctrain/pkg/config"
	"github.com/sparseml/asynctrain/pkg/parallel"
	"github.com/sparseml/asynctrain/pkg/telemetry"
	"github.com/sparseml/asynctrain/pkg/utils"
)

// Service wires one role's dependencies together. A single Service
// value is reused across Initialize/Run/Stop; it is not goroutine-safe
// for concurrent Initialize calls.
type Service struct {
	config  *config.Config
	logger  utils.Logger
	shards  []*store.Shard
	client  transport.Client
	storage storage.Storage
	repos   *repository.Repositories

	shutdownTelemetry telemetry.ShutdownFunc
	running           bool
	runUUID           string
}

// New creates a Service from configuration.
func New(cfg *config.Config, logger utils.Logger) *Service {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Service{config: cfg, logger: logger}
}

// Initialize builds storage, the run/progress database, and the
// sharded parameter store, then loads any existing checkpoint.
func (s *Service) Initialize(ctx context.Context) error {
	s.runUUID = uuid.New().String()

	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		s.logger.Warn("telemetry init failed, continuing without tracing: %v", err)
		shutdown = func(context.Context) error { return nil }
	}
	s.shutdownTelemetry = shutdown

	st, err := storage.NewStorage(&s.config.Storage)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	s.storage = st

	if s.config.Database.Type != "" {
		gormDB, err := repository.NewGormDB(&repository.DBConfig{
			Type:     s.config.Database.Type,
			Host:     s.config.Database.Host,
			Port:     s.config.Database.Port,
			Database: s.config.Database.Database,
			User:     s.config.Database.User,
			Password: s.config.Database.Password,
			MaxConns: s.config.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		s.repos = repository.NewRepositories(gormDB, s.config.Database.Type)
	}

	factory := store.Factory{
		Algorithm: store.Algorithm(s.config.Algorithm.Name),
		Params: store.Params{
			Alpha: s.config.Algorithm.Alpha, Beta: s.config.Algorithm.Beta,
			L1: s.config.Algorithm.L1, L2: s.config.Algorithm.L2,
			Threshold:    s.config.Embedding.Threshold,
			EmbeddingDim: s.config.Embedding.Dim,
			L1ShrinkGate: s.config.Embedding.L1ShrinkGate,
			InitMin:      s.config.Embedding.InitMin, InitMax: s.config.Embedding.InitMax,
			AlphaV: s.config.Embedding.AlphaV, BetaV: s.config.Embedding.BetaV,
			L2V: s.config.Embedding.L2V,
		},
	}
	shards, err := store.NewShards(s.config.Server.NumShards, factory)
	if err != nil {
		return fmt.Errorf("building shards: %w", err)
	}
	s.shards = shards

	if err := checkpoint.LoadAll(ctx, s.storage, s.shards, s.checkpointPath); err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	backends := make([]transport.ShardBackend, len(shards))
	for i, sh := range shards {
		backends[i] = sh
	}
	s.client = transport.NewInProcess(backends, nil)

	return nil
}

func (s *Service) checkpointPath(shardIdx int) string {
	return filepath.Base(s.config.GetShardCheckpointPath(shardIdx))
}

// lossKind maps the configured loss name to a kernel.Kind.
func lossKind(name string) kernel.Kind {
	switch name {
	case "squared_hinge":
		return kernel.SquaredHinge
	case "squared":
		return kernel.Squared
	default:
		return kernel.Logistic
	}
}

// RunWorker reads every file matched by pattern, driving each through
// a worker.Worker, and returns the merged progress for the whole pass.
// firstPass gates the push-count phase per the worker's protocol.
func (s *Service) RunWorker(ctx context.Context, pattern string, training bool, firstPass bool) (progress.Record, error) {
	files, err := (source.LocalGlob{Pattern: pattern}).List(ctx)
	if err != nil {
		return progress.Record{}, fmt.Errorf("listing input files: %w", err)
	}
	if len(files) == 0 {
		return progress.Record{}, fmt.Errorf("no input files matched %q", pattern)
	}

	cfg := worker.DefaultConfig()
	cfg.Kind = lossKind(s.config.Algorithm.Loss)
	cfg.EmbeddingDim = s.config.Embedding.Dim
	cfg.Training = training
	cfg.FirstPass = firstPass
	cfg.MaxConcurrent = s.config.Worker.MaxConcurrent
	cfg.NumShards = s.config.Server.NumShards
	cfg.GradOptions = kernel.GradOptions{
		ClipValue:   s.config.Worker.ClipValue,
		DropoutRate: s.config.Worker.DropoutRate,
		Normalize:   s.config.Worker.NormalizeGrad,
	}
	cfg.Localize = feature.Options{
		CountOccurrences: firstPass && s.config.Embedding.Dim > 0,
		Pool:             parallel.DefaultPoolConfig(),
	}
	cfg.Logger = s.logger

	w := worker.New(s.client, cfg)

	var total progress.Record
	for i, f := range files {
		rec, err := s.runFile(ctx, w, f)
		if err != nil {
			return total, fmt.Errorf("reading %s: %w", f, err)
		}
		if i == 0 {
			total = rec
			continue
		}
		total.Merge(rec)
	}

	return total, nil
}

func (s *Service) runFile(ctx context.Context, w *worker.Worker, path string) (progress.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return progress.Record{}, err
	}
	defer f.Close()

	src := reader.Open(reader.NewSVMLightReader(f, f), reader.Shard{
		Filename:        path,
		FormatTag:       s.config.Worker.FormatTag,
		BatchSize:       s.config.Worker.BatchSize,
		ShuffleWindow:   s.config.Worker.ShuffleWindow,
		NegSamplingRate: s.config.Worker.NegSamplingRate,
	})
	return w.Run(ctx, src)
}

// SaveCheckpoint snapshots every shard to storage.
func (s *Service) SaveCheckpoint(ctx context.Context) error {
	return checkpoint.SaveAll(ctx, s.storage, s.shards, s.checkpointPath)
}

// RecordProgress appends a progress snapshot for a run, when a
// database is configured.
func (s *Service) RecordProgress(ctx context.Context, runUUID string, pass int, rec progress.Record) error {
	if s.repos == nil {
		return nil
	}
	snap := &repository.ProgressSnapshot{RunUUID: runUUID, PassNumber: pass}
	if len(rec.Ints) > progress.IdxRowsDone {
		snap.RowsDone = int64(rec.Ints[progress.IdxRowsDone])
	}
	if len(rec.Ints) > progress.IdxNewW {
		snap.NewWeights = int64(rec.Ints[progress.IdxNewW])
	}
	if len(rec.Ints) > progress.IdxNewV {
		snap.NewEmbed = int64(rec.Ints[progress.IdxNewV])
	}
	if len(rec.Floats) > progress.IdxObjectiveSum {
		snap.ObjectiveSum = rec.Floats[progress.IdxObjectiveSum]
	}
	return s.repos.Progress.SaveSnapshot(ctx, snap)
}

// shardProgress merges the new_w/new_V sparsity counters of every
// shard this process owns into one record, the primary sparsity
// metric reported to the scheduler.
func (s *Service) shardProgress() progress.Record {
	total := progress.NewStandard()
	for _, sh := range s.shards {
		newW, newV := sh.Counters()
		rec := progress.NewStandard()
		rec.Ints[progress.IdxNewW] = uint64(newW)
		rec.Ints[progress.IdxNewV] = uint64(newV)
		total.Merge(rec)
	}
	return total
}

// reportProgress merges the current sparsity counters across shards
// and persists them, when a database is configured.
func (s *Service) reportProgress(ctx context.Context, tick int) {
	rec := s.shardProgress()
	if err := s.RecordProgress(ctx, s.runUUID, tick, rec); err != nil {
		s.logger.Error("progress report failed: %v", err)
	}
}

// ServeShards blocks, periodically checkpointing the shards this
// process owns and reporting their new_w/new_V sparsity counters,
// until ctx is cancelled. It is the server role's main loop.
func (s *Service) ServeShards(ctx context.Context) error {
	s.running = true
	defer func() { s.running = false }()

	interval := time.Duration(s.config.Server.SaveInterval) * time.Minute
	if interval <= 0 {
		<-ctx.Done()
		s.reportProgress(context.Background(), 0)
		return s.SaveCheckpoint(context.Background())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			s.reportProgress(context.Background(), tick)
			return s.SaveCheckpoint(context.Background())
		case <-ticker.C:
			tick++
			s.reportProgress(ctx, tick)
			if err := s.SaveCheckpoint(ctx); err != nil {
				s.logger.Error("periodic checkpoint failed: %v", err)
			}
		}
	}
}

// IsRunning reports whether ServeShards is currently blocking.
func (s *Service) IsRunning() bool {
	return s.running
}

// HealthCheck verifies the database connection, when configured.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.repos == nil {
		return nil
	}
	return s.repos.HealthCheck(ctx)
}

// Stop releases database and telemetry resources.
func (s *Service) Stop(ctx context.Context) error {
	if s.repos != nil {
		if err := s.repos.Close(); err != nil {
			return err
		}
	}
	if s.shutdownTelemetry != nil {
		return s.shutdownTelemetry(ctx)
	}
	return nil
}
