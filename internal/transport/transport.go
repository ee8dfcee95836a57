// Package transport defines the wire-level contract between workers and
// the parameter server shards and ships an in-process adapter that
// implements it well enough to drive a full worker+server pipeline inside
// one binary or test. The real distributed RPC layer is out of scope; any
// future gRPC/TCP adapter only has to satisfy Pusher/Puller.
package transport

import (
	"context"
	"sync"

	"github.com/sparseml/asynctrain/pkg/compression"
	pkgerrors "github.com/sparseml/asynctrain/pkg/errors"
)

// Command names the three message kinds of the push/pull protocol.
type Command uint8

const (
	CmdPushCount    Command = 0
	CmdPullWeights  Command = 1
	CmdPushGradient Command = 2
)

func (c Command) String() string {
	switch c {
	case CmdPushCount:
		return "push-count"
	case CmdPullWeights:
		return "pull-weights"
	case CmdPushGradient:
		return "push-gradient"
	default:
		return "unknown"
	}
}

// Header carries the protocol metadata that rides alongside every
// message: which command, whether the receiver should drop its pulled
// cache for this key set, the quantization width applied to the payload
// (0 means float32, no quantization), whether the payload is compressed,
// and the sender's logical clock for dependency tracking between a
// worker's push and a later pull.
type Header struct {
	Command        Command
	ClearCache     bool
	QuantizeBits   int
	Compress       bool
	CompressorType compression.Type
	DependencyTime uint64
}

// PushCountRequest carries observed per-key occurrence counts for a
// minibatch, keyed by the block-local dictionary order.
type PushCountRequest struct {
	Header Header
	Shard  int
	Keys   []uint64
	Counts []uint64
}

// PullWeightsRequest asks a shard to return its current weight arrays
// for a set of keys, in the same order as Keys.
type PullWeightsRequest struct {
	Header Header
	Shard  int
	Keys   []uint64
}

// PullWeightsResponse pairs each requested key with its weight array
// (length 1 for a scalar entry, 1+embeddingDim for an expanded one).
type PullWeightsResponse struct {
	Weights [][]float32
}

// PushGradientRequest carries one gradient per key, plus an optional
// per-key embedding gradient when the entry is (or may become) expanded.
type PushGradientRequest struct {
	Header    Header
	Shard     int
	Keys      []uint64
	Grads     []float32
	EmbedGrad [][]float32 // nil entries allowed; ignored by scalar entries
}

// Pusher sends push-count and push-gradient messages to a shard.
type Pusher interface {
	PushCount(ctx context.Context, req PushCountRequest) error
	PushGradient(ctx context.Context, req PushGradientRequest) error
}

// Puller sends a pull-weights message to a shard and waits for its
// response.
type Puller interface {
	PullWeights(ctx context.Context, req PullWeightsRequest) (PullWeightsResponse, error)
}

// Client is the combined worker-side view of the transport.
type Client interface {
	Pusher
	Puller
}

// ShardBackend is the minimal surface a parameter-store shard must
// expose to be driven by the in-process transport. *store.Shard
// satisfies this directly.
type ShardBackend interface {
	PushCount(key uint64, count uint64)
	PushGradient(key uint64, g float32, gV []float32)
	Pull(key uint64) []float32
}

// InProcess is a Pusher/Puller implementation that calls directly into
// a set of in-memory shards, skipping serialization unless a codec is
// configured. It is the default adapter: enough to run worker and
// server logic in one process or one test, with FIFO per-key ordering
// preserved by never processing two messages for the same shard
// concurrently.
type InProcess struct {
	shards []ShardBackend
	codec  *Codec

	mu   []sync.Mutex
	once sync.Once
}

// NewInProcess wraps shards (indexed by shard number) with an
// in-process transport. codec may be nil to skip wire (de)serialization
// entirely and call straight through; pass a non-nil Codec to exercise
// the encode/decode and compression path even though both ends live in
// the same process.
func NewInProcess(shards []ShardBackend, codec *Codec) *InProcess {
	t := &InProcess{shards: shards, codec: codec}
	t.mu = make([]sync.Mutex, len(shards))
	return t
}

func (t *InProcess) shardLock(shard int) (*sync.Mutex, error) {
	if shard < 0 || shard >= len(t.shards) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransportTransient, "unknown shard index", nil)
	}
	return &t.mu[shard], nil
}

// PushCount applies a push-count message to its shard, round-tripping
// it through the configured codec first when one is set.
func (t *InProcess) PushCount(ctx context.Context, req PushCountRequest) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransportTransient, "push-count canceled", err)
	}
	lock, err := t.shardLock(req.Shard)
	if err != nil {
		return err
	}
	if t.codec != nil {
		encoded, err := t.codec.EncodePushCount(req)
		if err != nil {
			return err
		}
		req, err = t.codec.DecodePushCount(encoded)
		if err != nil {
			return err
		}
	}
	if len(req.Keys) != len(req.Counts) {
		return pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "push-count: keys/counts length mismatch", nil)
	}
	lock.Lock()
	defer lock.Unlock()
	shard := t.shards[req.Shard]
	for i, k := range req.Keys {
		shard.PushCount(k, req.Counts[i])
	}
	return nil
}

// PushGradient applies a push-gradient message to its shard.
func (t *InProcess) PushGradient(ctx context.Context, req PushGradientRequest) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransportTransient, "push-gradient canceled", err)
	}
	lock, err := t.shardLock(req.Shard)
	if err != nil {
		return err
	}
	if t.codec != nil {
		encoded, err := t.codec.EncodePushGradient(req)
		if err != nil {
			return err
		}
		req, err = t.codec.DecodePushGradient(encoded)
		if err != nil {
			return err
		}
	}
	if len(req.Keys) != len(req.Grads) {
		return pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "push-gradient: keys/grads length mismatch", nil)
	}
	lock.Lock()
	defer lock.Unlock()
	shard := t.shards[req.Shard]
	for i, k := range req.Keys {
		var gv []float32
		if req.EmbedGrad != nil {
			gv = req.EmbedGrad[i]
		}
		shard.PushGradient(k, req.Grads[i], gv)
	}
	return nil
}

// PullWeights reads the current weights for req.Keys from their shard.
func (t *InProcess) PullWeights(ctx context.Context, req PullWeightsRequest) (PullWeightsResponse, error) {
	if err := ctx.Err(); err != nil {
		return PullWeightsResponse{}, pkgerrors.Wrap(pkgerrors.CodeTransportTransient, "pull-weights canceled", err)
	}
	lock, err := t.shardLock(req.Shard)
	if err != nil {
		return PullWeightsResponse{}, err
	}
	if t.codec != nil {
		encoded, err := t.codec.EncodePullWeights(req)
		if err != nil {
			return PullWeightsResponse{}, err
		}
		req, err = t.codec.DecodePullWeights(encoded)
		if err != nil {
			return PullWeightsResponse{}, err
		}
	}
	lock.Lock()
	defer lock.Unlock()
	shard := t.shards[req.Shard]
	resp := PullWeightsResponse{Weights: make([][]float32, len(req.Keys))}
	for i, k := range req.Keys {
		resp.Weights[i] = shard.Pull(k)
	}
	if t.codec != nil {
		encoded, err := t.codec.EncodePullResponse(resp)
		if err != nil {
			return PullWeightsResponse{}, err
		}
		return t.codec.DecodePullResponse(encoded)
	}
	return resp, nil
}
