package worker

import (
	"context"
	"strings"
	"testing"

	"github.com/sparseml/asynctrain/internal/feature"
	"github.com/sparseml/asynctrain/internal/reader"
	"github.com/sparseml/asynctrain/internal/store"
	"github.com/sparseml/asynctrain/internal/transport"
	"github.com/sparseml/asynctrain/pkg/parallel"
)

func newShardBackends(t *testing.T, n int, f store.Factory) []transport.ShardBackend {
	t.Helper()
	shards, err := store.NewShards(n, f)
	if err != nil {
		t.Fatalf("NewShards: %v", err)
	}
	out := make([]transport.ShardBackend, n)
	for i, s := range shards {
		out[i] = s
	}
	return out
}

func TestWorker_ScalarTrainingPipeline(t *testing.T) {
	client := transport.NewInProcess(newShardBackends(t, 4, store.Factory{
		Algorithm: store.AlgorithmFTRL,
		Params:    store.Params{Alpha: 0.1, Beta: 1, L1: 0},
	}), nil)

	data := "1 1:1 2:1\n-1 3:1 4:1\n1 2:1 5:1\n"
	src := reader.Open(reader.NewSVMLightReader(strings.NewReader(data), nil),
		reader.Shard{FormatTag: reader.SVMLightFormat, BatchSize: 2})

	cfg := DefaultConfig()
	cfg.NumShards = 4
	cfg.Training = true
	w := New(client, cfg)

	rec, err := w.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Ints[0] != 3 {
		t.Fatalf("rows processed = %d, want 3", rec.Ints[0])
	}
}

func TestWorker_PredictionModeSkipsPushes(t *testing.T) {
	backends := newShardBackends(t, 1, store.Factory{
		Algorithm: store.AlgorithmFTRL,
		Params:    store.Params{Alpha: 0.1, Beta: 1, L1: 0},
	})
	client := transport.NewInProcess(backends, nil)

	data := "1 1:1\n-1 2:1\n"
	src := reader.Open(reader.NewSVMLightReader(strings.NewReader(data), nil),
		reader.Shard{FormatTag: reader.SVMLightFormat, BatchSize: 10})

	var scores []float32
	cfg := DefaultConfig()
	cfg.Training = false
	cfg.Predict = func(score float32, label float32) { scores = append(scores, score) }
	w := New(client, cfg)

	if _, err := w.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("predict callback count = %d, want 2", len(scores))
	}

	s := backends[0].(*store.Shard)
	if s.Len() != 0 {
		t.Fatalf("prediction mode must not create server entries, got %d", s.Len())
	}
}

func TestWorker_EmbeddingExpansionAndGradientPush(t *testing.T) {
	backends := newShardBackends(t, 1, store.Factory{
		Algorithm: store.AlgorithmFTRL,
		Params: store.Params{
			Alpha: 0.1, Beta: 1, L1: 0,
			Threshold: 1, EmbeddingDim: 3, AlphaV: 0.1, BetaV: 1,
			InitMin: -0.01, InitMax: 0.01,
		},
	})
	client := transport.NewInProcess(backends, nil)

	data := "1 1:1 2:1\n-1 1:1 3:1\n"
	src := reader.Open(reader.NewSVMLightReader(strings.NewReader(data), nil),
		reader.Shard{FormatTag: reader.SVMLightFormat, BatchSize: 10})

	cfg := DefaultConfig()
	cfg.EmbeddingDim = 3
	cfg.FirstPass = true
	cfg.Training = true
	cfg.Localize = feature.Options{CountOccurrences: true, Pool: parallel.DefaultPoolConfig()}
	w := New(client, cfg)

	if _, err := w.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := backends[0].(*store.Shard)
	weights := s.Pull(1) // feature 1 appears in both rows: count==2 >= threshold 1
	if len(weights) != 1+3 {
		t.Fatalf("feature 1 should have expanded to size 4, got %d", len(weights))
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateReading:             "READING",
		StateDone:                "DONE",
		StatePushGradientPending: "PUSH_GRAD_PENDING",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestWorker_EmptySourceYieldsNoError(t *testing.T) {
	client := transport.NewInProcess(newShardBackends(t, 1, store.Factory{
		Algorithm: store.AlgorithmSGD,
		Params:    store.Params{Alpha: 0.1, Beta: 1},
	}), nil)
	src := reader.Open(reader.NewSVMLightReader(strings.NewReader(""), nil),
		reader.Shard{FormatTag: reader.SVMLightFormat, BatchSize: 10})

	w := New(client, DefaultConfig())
	rec, err := w.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Ints[0] != 0 {
		t.Fatalf("rows processed = %d, want 0", rec.Ints[0])
	}
}
