package transport

import (
	"context"
	"testing"

	"github.com/sparseml/asynctrain/internal/store"
	"github.com/sparseml/asynctrain/pkg/compression"
)

func newTestShards(t *testing.T) []ShardBackend {
	t.Helper()
	shards, err := store.NewShards(2, store.Factory{
		Algorithm: store.AlgorithmFTRL,
		Params:    store.Params{Alpha: 0.1, Beta: 1, L1: 1},
	})
	if err != nil {
		t.Fatalf("NewShards: %v", err)
	}
	backends := make([]ShardBackend, len(shards))
	for i, s := range shards {
		backends[i] = s
	}
	return backends
}

func TestInProcess_PushPullRoundTrip_NoCodec(t *testing.T) {
	ctx := context.Background()
	tr := NewInProcess(newTestShards(t), nil)

	if err := tr.PushGradient(ctx, PushGradientRequest{
		Shard: 0, Keys: []uint64{7}, Grads: []float32{2},
	}); err != nil {
		t.Fatalf("PushGradient: %v", err)
	}

	resp, err := tr.PullWeights(ctx, PullWeightsRequest{Shard: 0, Keys: []uint64{7}})
	if err != nil {
		t.Fatalf("PullWeights: %v", err)
	}
	if len(resp.Weights) != 1 || len(resp.Weights[0]) != 1 {
		t.Fatalf("weights = %+v, want one scalar entry", resp.Weights)
	}
	if resp.Weights[0][0] == 0 {
		t.Fatalf("weight should have moved off zero after a push-gradient of 2")
	}
}

func TestInProcess_PushPullRoundTrip_WithCodec(t *testing.T) {
	ctx := context.Background()
	codec := NewCodec(compression.NewNoOpCompressor())
	tr := NewInProcess(newTestShards(t), codec)

	if err := tr.PushCount(ctx, PushCountRequest{
		Shard: 1, Keys: []uint64{1, 2}, Counts: []uint64{3, 4},
	}); err != nil {
		t.Fatalf("PushCount: %v", err)
	}
	if err := tr.PushGradient(ctx, PushGradientRequest{
		Shard: 1, Keys: []uint64{1}, Grads: []float32{0.5},
	}); err != nil {
		t.Fatalf("PushGradient: %v", err)
	}

	resp, err := tr.PullWeights(ctx, PullWeightsRequest{Shard: 1, Keys: []uint64{1, 2}})
	if err != nil {
		t.Fatalf("PullWeights: %v", err)
	}
	if len(resp.Weights) != 2 {
		t.Fatalf("got %d weight rows, want 2", len(resp.Weights))
	}
}

func TestInProcess_WithZstdCodec(t *testing.T) {
	ctx := context.Background()
	zc, err := compression.NewZstdCompressor(compression.LevelFastest)
	if err != nil {
		t.Fatalf("NewZstdCompressor: %v", err)
	}
	defer zc.Close()
	codec := NewCodec(zc)
	tr := NewInProcess(newTestShards(t), codec)

	req := PushGradientRequest{
		Shard: 0,
		Keys:  []uint64{10, 11, 12},
		Grads: []float32{1, -1, 0.25},
	}
	if err := tr.PushGradient(ctx, req); err != nil {
		t.Fatalf("PushGradient: %v", err)
	}

	resp, err := tr.PullWeights(ctx, PullWeightsRequest{Shard: 0, Keys: []uint64{10, 11, 12}})
	if err != nil {
		t.Fatalf("PullWeights: %v", err)
	}
	if len(resp.Weights) != 3 {
		t.Fatalf("got %d rows, want 3", len(resp.Weights))
	}
}

func TestInProcess_UnknownShard(t *testing.T) {
	ctx := context.Background()
	tr := NewInProcess(newTestShards(t), nil)
	if _, err := tr.PullWeights(ctx, PullWeightsRequest{Shard: 99, Keys: []uint64{1}}); err == nil {
		t.Fatalf("expected error for out-of-range shard")
	}
}

func TestCodec_PushCountRoundTrip(t *testing.T) {
	codec := NewCodec(compression.NewNoOpCompressor())
	req := PushCountRequest{Shard: 3, Keys: []uint64{5, 6, 7}, Counts: []uint64{1, 2, 3}}
	buf, err := codec.EncodePushCount(req)
	if err != nil {
		t.Fatalf("EncodePushCount: %v", err)
	}
	got, err := codec.DecodePushCount(buf)
	if err != nil {
		t.Fatalf("DecodePushCount: %v", err)
	}
	if got.Shard != req.Shard || len(got.Keys) != len(req.Keys) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, req)
	}
	for i := range req.Keys {
		if got.Keys[i] != req.Keys[i] || got.Counts[i] != req.Counts[i] {
			t.Fatalf("round trip mismatch at %d: %+v vs %+v", i, got, req)
		}
	}
}

func TestCodec_PushGradientRoundTrip_WithEmbeddings(t *testing.T) {
	codec := NewCodec(compression.NewNoOpCompressor())
	req := PushGradientRequest{
		Shard: 0,
		Keys:  []uint64{1, 2},
		Grads: []float32{0.1, 0.2},
		EmbedGrad: [][]float32{
			{1, 2, 3},
			{4, 5, 6},
		},
	}
	buf, err := codec.EncodePushGradient(req)
	if err != nil {
		t.Fatalf("EncodePushGradient: %v", err)
	}
	got, err := codec.DecodePushGradient(buf)
	if err != nil {
		t.Fatalf("DecodePushGradient: %v", err)
	}
	if len(got.EmbedGrad) != 2 || len(got.EmbedGrad[0]) != 3 {
		t.Fatalf("embed grad shape mismatch: %+v", got.EmbedGrad)
	}
	for i, row := range req.EmbedGrad {
		for j, v := range row {
			if got.EmbedGrad[i][j] != v {
				t.Fatalf("embed grad mismatch at [%d][%d]: got %v want %v", i, j, got.EmbedGrad[i][j], v)
			}
		}
	}
}

func TestCodec_PullResponseRoundTrip_MixedRowLengths(t *testing.T) {
	codec := NewCodec(compression.NewNoOpCompressor())
	resp := PullWeightsResponse{Weights: [][]float32{{0}, {1, 2, 3, 4, 5}, {}}}
	buf, err := codec.EncodePullResponse(resp)
	if err != nil {
		t.Fatalf("EncodePullResponse: %v", err)
	}
	got, err := codec.DecodePullResponse(buf)
	if err != nil {
		t.Fatalf("DecodePullResponse: %v", err)
	}
	if len(got.Weights) != 3 || len(got.Weights[1]) != 5 {
		t.Fatalf("round trip mismatch: %+v", got.Weights)
	}
}
