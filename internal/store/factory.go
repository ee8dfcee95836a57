package store

import (
	pkgerrors "github.com/sparseml/asynctrain/pkg/errors"
)

// Algorithm names the scalar-coordinate update rule a shard runs.
type Algorithm string

const (
	AlgorithmFTRL    Algorithm = "ftrl"
	AlgorithmAdaGrad Algorithm = "adagrad"
	AlgorithmSGD     Algorithm = "sgd"
)

// Factory builds the Updater named by configuration, the same
// mode-switch shape used elsewhere in this codebase to pick a
// concrete strategy from a small closed set.
type Factory struct {
	Algorithm Algorithm
	Params    Params
}

// Build returns the configured Updater, or a configuration error for
// an unrecognized algorithm name.
func (f Factory) Build() (Updater, error) {
	switch f.Algorithm {
	case AlgorithmFTRL:
		return NewFTRL(f.Params), nil
	case AlgorithmAdaGrad:
		return NewAdaGrad(f.Params), nil
	case AlgorithmSGD:
		return NewSGD(f.Params), nil
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfigInvalid,
			"unknown updater algorithm: "+string(f.Algorithm), nil)
	}
}

// NewShards builds n shards, each with its own Updater instance built
// from the same Factory (updaters hold no cross-shard state other
// than the plain-SGD step counter, which is intentionally per-shard
// since each shard is an independent server process in production).
func NewShards(n int, f Factory) ([]*Shard, error) {
	shards := make([]*Shard, n)
	for i := range shards {
		u, err := f.Build()
		if err != nil {
			return nil, err
		}
		shards[i] = NewShard(u, f.Params)
	}
	return shards, nil
}

// ShardFor returns the shard index owning key, by simple modulo
// partitioning over the shard count.
func ShardFor(key uint64, numShards int) int {
	return int(key % uint64(numShards))
}
