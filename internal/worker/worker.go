// Package worker drives the per-minibatch pipeline: read a row block,
// localize its feature IDs, pull weights from the parameter store,
// evaluate the objective and its gradient, and push the gradient back.
// At most Config.MaxConcurrent minibatches are in flight at any time.
package worker

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/sparseml/asynctrain/internal/feature"
	"github.com/sparseml/asynctrain/internal/kernel"
	"github.com/sparseml/asynctrain/internal/progress"
	"github.com/sparseml/asynctrain/internal/reader"
	"github.com/sparseml/asynctrain/internal/rowblock"
	"github.com/sparseml/asynctrain/internal/store"
	"github.com/sparseml/asynctrain/internal/transport"
	pkgerrors "github.com/sparseml/asynctrain/pkg/errors"
	"github.com/sparseml/asynctrain/pkg/parallel"
	"github.com/sparseml/asynctrain/pkg/utils"
)

// State names a minibatch's position in the pipeline.
type State int

const (
	StateReading State = iota
	StateLocalized
	StatePushCountPending
	StatePullWeightsPending
	StateEvaluating
	StatePushGradientPending
	StateDone
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "READING"
	case StateLocalized:
		return "LOCALIZED"
	case StatePushCountPending:
		return "PUSH_CNT_PENDING"
	case StatePullWeightsPending:
		return "PULL_W_PENDING"
	case StateEvaluating:
		return "EVALUATING"
	case StatePushGradientPending:
		return "PUSH_GRAD_PENDING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Config parameterizes one worker's run over a shard.
type Config struct {
	Kind         kernel.Kind
	EmbeddingDim int // 0 disables the bilinear term and embeddings entirely
	// Training selects training mode (push-count + push-gradient) versus
	// prediction mode, which only reads, localizes, pulls, and scores.
	Training bool
	// FirstPass marks data-pass 0: push-count is only ever sent then,
	// and only when EmbeddingDim > 0.
	FirstPass     bool
	MaxConcurrent int
	NumShards     int
	GradOptions   kernel.GradOptions
	Pool          parallel.PoolConfig
	Localize      feature.Options
	Logger        utils.Logger
	// Predict receives one (score, label) callback per row, in
	// training and prediction mode alike; nil disables prediction
	// output entirely.
	Predict func(score float32, label float32)
}

// DefaultConfig returns a single-shard, training-mode, no-embedding
// configuration suitable as a starting point.
func DefaultConfig() Config {
	return Config{
		Kind:          kernel.Logistic,
		Training:      true,
		MaxConcurrent: 8,
		NumShards:     1,
		Pool:          parallel.DefaultPoolConfig(),
		Localize:      feature.DefaultOptions(),
		Logger:        &utils.NullLogger{},
	}
}

// minibatch is the explicit state-machine struct the spec favors over
// chained callbacks: one value per in-flight block, advanced entirely
// within the goroutine that owns it.
type minibatch struct {
	id    int
	state State
	block *rowblock.Block
	local *rowblock.Local
	w     []float32
	v     *kernel.Matrix
	score []float32
	a     *kernel.Matrix
	res   *kernel.Result
}

// Worker pulls row blocks from a Source and drives them through the
// pipeline against a transport.Client, bounding the number of
// in-flight minibatches by Config.MaxConcurrent.
type Worker struct {
	cfg    Config
	client transport.Client

	mu       sync.Mutex
	rowsDone uint64
	objSum   float64
	nextID   int
}

// New builds a Worker against client with the given configuration.
func New(client transport.Client, cfg Config) *Worker {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.NumShards <= 0 {
		cfg.NumShards = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = &utils.NullLogger{}
	}
	return &Worker{cfg: cfg, client: client}
}

// Run drains src, processing every block it yields through the full
// pipeline, and returns the accumulated progress record. It blocks the
// reading loop whenever MaxConcurrent minibatches are already in
// flight, following the spec's bounded-concurrency invariant; a
// minibatch, once started, always runs to completion even if ctx is
// canceled mid-flight (cancellation only stops further reads).
func (w *Worker) Run(ctx context.Context, src reader.Source) (progress.Record, error) {
	sem := make(chan struct{}, w.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	var firstErr atomic.Value

	for {
		if ctx.Err() != nil {
			break
		}
		block, err := src.NextBlock(ctx)
		if err != nil {
			if err == reader.ErrDone {
				break
			}
			return progress.Record{}, err
		}
		if block.NumRows() == 0 {
			continue
		}

		w.mu.Lock()
		id := w.nextID
		w.nextID++
		w.mu.Unlock()

		sem <- struct{}{}
		wg.Add(1)
		go func(mb *minibatch) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.process(context.WithoutCancel(ctx), mb); err != nil {
				firstErr.CompareAndSwap(nil, err)
				w.cfg.Logger.Error("minibatch %d failed in state %s: %v", mb.id, mb.state, err)
			}
		}(&minibatch{id: id, state: StateReading, block: block})
	}

	wg.Wait()

	if v := firstErr.Load(); v != nil {
		return progress.Record{}, v.(error)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	rec := progress.NewStandard()
	rec.Ints[progress.IdxRowsDone] = w.rowsDone
	rec.Floats[progress.IdxObjectiveSum] = w.objSum
	return rec, nil
}

// process runs one minibatch through every pipeline state in order.
// Pull completion strictly precedes evaluation and evaluation strictly
// precedes the gradient push, per the spec's ordering guarantee; no
// ordering is enforced across minibatches.
func (w *Worker) process(ctx context.Context, mb *minibatch) error {
	local, err := feature.Localize(ctx, mb.block, w.cfg.Localize)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "localize failed", err)
	}
	mb.local = local
	mb.state = StateLocalized

	embeddingsEnabled := w.cfg.EmbeddingDim > 0

	if w.cfg.Training && embeddingsEnabled && w.cfg.FirstPass {
		mb.state = StatePushCountPending
		if err := w.pushCounts(ctx, local); err != nil {
			return err
		}
	}

	mb.state = StatePullWeightsPending
	w1, v1, err := w.pullWeights(ctx, local)
	if err != nil {
		return err
	}
	mb.w, mb.v = w1, v1

	mb.state = StateEvaluating
	score, a, objective := kernel.Forward(ctx, w.cfg.Kind, local, mb.w, mb.v, local.Labels, w.cfg.Pool)
	mb.score, mb.a = score, a

	if w.cfg.Predict != nil {
		for i, s := range score {
			w.cfg.Predict(s, local.Labels[i])
		}
	}

	if w.cfg.Training {
		res := kernel.Backward(ctx, w.cfg.Kind, local, score, local.Labels, mb.v, a, w.cfg.GradOptions, w.cfg.Pool)
		mb.res = res

		mb.state = StatePushGradientPending
		if err := w.pushGradient(ctx, local, res); err != nil {
			return err
		}
	}

	mb.state = StateDone
	w.mu.Lock()
	w.rowsDone += uint64(local.NumRows())
	w.objSum += float64(objective)
	w.mu.Unlock()
	return nil
}

// groupByShard partitions column indices [0, n) by the shard owning
// their global key, so one minibatch's columns can span every shard
// exactly like a real high-cardinality key space does.
func groupByShard(dict []uint64, numShards int) map[int][]int {
	groups := make(map[int][]int)
	for j, key := range dict {
		s := store.ShardFor(key, numShards)
		groups[s] = append(groups[s], j)
	}
	return groups
}

func (w *Worker) pushCounts(ctx context.Context, local *rowblock.Local) error {
	if local.Counts == nil {
		return nil
	}
	for shard, cols := range groupByShard(local.Dict, w.cfg.NumShards) {
		keys := make([]uint64, len(cols))
		counts := make([]uint64, len(cols))
		for i, j := range cols {
			keys[i] = local.Dict[j]
			counts[i] = uint64(local.Counts[j])
		}
		if err := w.client.PushCount(ctx, transport.PushCountRequest{
			Header: transport.Header{Command: transport.CmdPushCount},
			Shard:  shard,
			Keys:   keys,
			Counts: counts,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) pullWeights(ctx context.Context, local *rowblock.Local) ([]float32, *kernel.Matrix, error) {
	rows := make([][]float32, local.NumCols())
	for shard, cols := range groupByShard(local.Dict, w.cfg.NumShards) {
		keys := make([]uint64, len(cols))
		for i, j := range cols {
			keys[i] = local.Dict[j]
		}
		resp, err := w.client.PullWeights(ctx, transport.PullWeightsRequest{
			Header: transport.Header{Command: transport.CmdPullWeights},
			Shard:  shard,
			Keys:   keys,
		})
		if err != nil {
			return nil, nil, err
		}
		if len(resp.Weights) != len(cols) {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "pull response column count mismatch", nil)
		}
		for i, j := range cols {
			rows[j] = resp.Weights[i]
		}
	}

	dim := 0
	for _, row := range rows {
		if len(row) > 1 {
			dim = len(row) - 1
			break
		}
	}

	wVec := make([]float32, local.NumCols())
	var v *kernel.Matrix
	if dim > 0 {
		v = kernel.NewMatrix(local.NumCols(), dim)
	}
	for j, row := range rows {
		if len(row) == 0 {
			continue
		}
		wVec[j] = row[0]
		if v != nil && len(row) > 1 {
			copy(v.Row(j), row[1:])
		}
	}
	return wVec, v, nil
}

func (w *Worker) pushGradient(ctx context.Context, local *rowblock.Local, res *kernel.Result) error {
	for shard, cols := range groupByShard(local.Dict, w.cfg.NumShards) {
		keys := make([]uint64, len(cols))
		grads := make([]float32, len(cols))
		var embed [][]float32
		if res.GradV != nil {
			embed = make([][]float32, len(cols))
		}
		for i, j := range cols {
			keys[i] = local.Dict[j]
			grads[i] = res.GradW[j]
			if embed != nil {
				embed[i] = append([]float32(nil), res.GradV.Row(j)...)
			}
		}
		if err := w.client.PushGradient(ctx, transport.PushGradientRequest{
			Header:    transport.Header{Command: transport.CmdPushGradient},
			Shard:     shard,
			Keys:      keys,
			Grads:     grads,
			EmbedGrad: embed,
		}); err != nil {
			return err
		}
	}
	return nil
}

// NewGradOptionsWithDropout is a convenience constructor for the common
// case of clip+dropout+normalize all enabled together, seeding the
// dropout RNG deterministically for test reproducibility.
func NewGradOptionsWithDropout(clip, dropoutRate float32, normalize bool, seed int64) kernel.GradOptions {
	return kernel.GradOptions{
		ClipValue:   clip,
		DropoutRate: dropoutRate,
		Normalize:   normalize,
		Rand:        rand.New(rand.NewSource(seed)),
	}
}
