package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparseml/asynctrain/internal/kernel"
	"github.com/sparseml/asynctrain/pkg/config"
	"github.com/sparseml/asynctrain/pkg/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		Algorithm: config.AlgorithmConfig{Name: "ftrl", Loss: "logistic", Alpha: 0.1, Beta: 1.0},
		Server:    config.ServerConfig{NumShards: 2, CheckpointPath: "./checkpoints"},
		Worker:    config.WorkerConfig{MaxConcurrent: 4, FormatTag: "svmlight", BatchSize: 32},
		Storage:   config.StorageConfig{Type: "local", LocalPath: "./test_storage"},
	}
}

func TestNew(t *testing.T) {
	t.Run("WithLogger", func(t *testing.T) {
		logger := utils.NewDefaultLogger(utils.LevelInfo, nil)
		svc := New(testConfig(), logger)
		require.NotNil(t, svc)
		assert.False(t, svc.IsRunning())
	})

	t.Run("WithoutLogger", func(t *testing.T) {
		svc := New(testConfig(), nil)
		require.NotNil(t, svc)
		assert.NotNil(t, svc.logger)
	})
}

func TestService_HealthCheck_NoDatabase(t *testing.T) {
	svc := New(testConfig(), nil)
	err := svc.HealthCheck(context.Background())
	assert.NoError(t, err)
}

func TestService_Stop_Uninitialized(t *testing.T) {
	svc := New(testConfig(), nil)
	err := svc.Stop(context.Background())
	assert.NoError(t, err)
}

func TestService_CheckpointPath(t *testing.T) {
	svc := New(testConfig(), nil)
	assert.Equal(t, "shard-0000.bin", svc.checkpointPath(0))
	assert.Equal(t, "shard-0003.bin", svc.checkpointPath(3))
}

func TestLossKind(t *testing.T) {
	cases := []struct {
		name string
		want kernel.Kind
	}{
		{"logistic", kernel.Logistic},
		{"squared_hinge", kernel.SquaredHinge},
		{"squared", kernel.Squared},
		{"", kernel.Logistic},
		{"unknown", kernel.Logistic},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, lossKind(c.name), "loss=%q", c.name)
	}
}

func TestService_RunWorker_NoMatches(t *testing.T) {
	svc := New(testConfig(), nil)
	_, err := svc.RunWorker(context.Background(), "./no-such-dir/*.nope", false, false)
	assert.Error(t, err)
}
