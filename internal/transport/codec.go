package transport

import (
	"encoding/binary"
	"math"

	"github.com/sparseml/asynctrain/pkg/compression"
	pkgerrors "github.com/sparseml/asynctrain/pkg/errors"
)

// Codec (de)serializes transport messages to flat byte slices, optionally
// compressing the payload per Header.Compress. Exercising a Codec over
// NewInProcess is how a single-process test drives the same bytes a real
// network transport would carry, without opening a socket.
type Codec struct {
	compressor compression.Compressor
}

// NewCodec builds a Codec using the given compressor. Pass
// compression.NewNoOpCompressor() to exercise the framing without
// actually compressing.
func NewCodec(c compression.Compressor) *Codec {
	return &Codec{compressor: c}
}

func putUint64Slice(buf []byte, vs []uint64) {
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], v)
	}
}

func getUint64Slice(buf []byte, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return out
}

func putFloat32Slice(buf []byte, vs []float32) {
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
}

func getFloat32Slice(buf []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return out
}

func (c *Codec) compress(raw []byte) ([]byte, error) {
	out, err := c.compressor.Compress(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransportTransient, "codec: compress failed", err)
	}
	return out, nil
}

func (c *Codec) decompress(raw []byte) ([]byte, error) {
	out, err := c.compressor.Decompress(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "codec: decompress failed", err)
	}
	return out, nil
}

// EncodePushCount serializes a PushCountRequest as
// (shard:u32, n:u32, keys[n]:u64, counts[n]:u64), then compresses.
func (c *Codec) EncodePushCount(req PushCountRequest) ([]byte, error) {
	n := len(req.Keys)
	raw := make([]byte, 8+8*n+8*n)
	binary.LittleEndian.PutUint32(raw[0:4], uint32(req.Shard))
	binary.LittleEndian.PutUint32(raw[4:8], uint32(n))
	putUint64Slice(raw[8:8+8*n], req.Keys)
	putUint64Slice(raw[8+8*n:], req.Counts)
	return c.compress(raw)
}

// DecodePushCount reverses EncodePushCount. The Header is not part of
// the wire payload in this in-process adapter (it travels alongside,
// out of band); callers that need it round-tripped should carry it
// themselves.
func (c *Codec) DecodePushCount(buf []byte) (PushCountRequest, error) {
	raw, err := c.decompress(buf)
	if err != nil {
		return PushCountRequest{}, err
	}
	if len(raw) < 8 {
		return PushCountRequest{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "push-count: short buffer", nil)
	}
	shard := int(binary.LittleEndian.Uint32(raw[0:4]))
	n := int(binary.LittleEndian.Uint32(raw[4:8]))
	want := 8 + 8*n + 8*n
	if len(raw) != want {
		return PushCountRequest{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "push-count: length mismatch", nil)
	}
	return PushCountRequest{
		Shard:  shard,
		Keys:   getUint64Slice(raw[8:8+8*n], n),
		Counts: getUint64Slice(raw[8+8*n:], n),
	}, nil
}

// EncodePushGradient serializes a PushGradientRequest as
// (shard:u32, n:u32, dim:u32, keys[n]:u64, grads[n]:f32, embed[n*dim]:f32).
// dim==0 means no embedding gradients are carried.
func (c *Codec) EncodePushGradient(req PushGradientRequest) ([]byte, error) {
	n := len(req.Keys)
	dim := 0
	if req.EmbedGrad != nil {
		for _, g := range req.EmbedGrad {
			if len(g) > dim {
				dim = len(g)
			}
		}
	}
	raw := make([]byte, 12+8*n+4*n+4*n*dim)
	binary.LittleEndian.PutUint32(raw[0:4], uint32(req.Shard))
	binary.LittleEndian.PutUint32(raw[4:8], uint32(n))
	binary.LittleEndian.PutUint32(raw[8:12], uint32(dim))
	off := 12
	putUint64Slice(raw[off:off+8*n], req.Keys)
	off += 8 * n
	putFloat32Slice(raw[off:off+4*n], req.Grads)
	off += 4 * n
	if dim > 0 {
		for i := 0; i < n; i++ {
			row := make([]float32, dim)
			if req.EmbedGrad[i] != nil {
				copy(row, req.EmbedGrad[i])
			}
			putFloat32Slice(raw[off:off+4*dim], row)
			off += 4 * dim
		}
	}
	return c.compress(raw)
}

// DecodePushGradient reverses EncodePushGradient.
func (c *Codec) DecodePushGradient(buf []byte) (PushGradientRequest, error) {
	raw, err := c.decompress(buf)
	if err != nil {
		return PushGradientRequest{}, err
	}
	if len(raw) < 12 {
		return PushGradientRequest{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "push-gradient: short buffer", nil)
	}
	shard := int(binary.LittleEndian.Uint32(raw[0:4]))
	n := int(binary.LittleEndian.Uint32(raw[4:8]))
	dim := int(binary.LittleEndian.Uint32(raw[8:12]))
	want := 12 + 8*n + 4*n + 4*n*dim
	if len(raw) != want {
		return PushGradientRequest{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "push-gradient: length mismatch", nil)
	}
	off := 12
	keys := getUint64Slice(raw[off:off+8*n], n)
	off += 8 * n
	grads := getFloat32Slice(raw[off:off+4*n], n)
	off += 4 * n
	var embed [][]float32
	if dim > 0 {
		embed = make([][]float32, n)
		for i := 0; i < n; i++ {
			embed[i] = getFloat32Slice(raw[off:off+4*dim], dim)
			off += 4 * dim
		}
	}
	return PushGradientRequest{Shard: shard, Keys: keys, Grads: grads, EmbedGrad: embed}, nil
}

// EncodePullWeights serializes a PullWeightsRequest as
// (shard:u32, n:u32, keys[n]:u64).
func (c *Codec) EncodePullWeights(req PullWeightsRequest) ([]byte, error) {
	n := len(req.Keys)
	raw := make([]byte, 8+8*n)
	binary.LittleEndian.PutUint32(raw[0:4], uint32(req.Shard))
	binary.LittleEndian.PutUint32(raw[4:8], uint32(n))
	putUint64Slice(raw[8:], req.Keys)
	return c.compress(raw)
}

// DecodePullWeights reverses EncodePullWeights.
func (c *Codec) DecodePullWeights(buf []byte) (PullWeightsRequest, error) {
	raw, err := c.decompress(buf)
	if err != nil {
		return PullWeightsRequest{}, err
	}
	if len(raw) < 8 {
		return PullWeightsRequest{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "pull-weights: short buffer", nil)
	}
	shard := int(binary.LittleEndian.Uint32(raw[0:4]))
	n := int(binary.LittleEndian.Uint32(raw[4:8]))
	if len(raw) != 8+8*n {
		return PullWeightsRequest{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "pull-weights: length mismatch", nil)
	}
	return PullWeightsRequest{Shard: shard, Keys: getUint64Slice(raw[8:], n)}, nil
}

// EncodePullResponse serializes a PullWeightsResponse as
// (n:u32, len_0:u32, row_0[len_0]:f32, len_1:u32, row_1[len_1]:f32, ...)
// since each entry's weight array length varies with its expansion state.
func (c *Codec) EncodePullResponse(resp PullWeightsResponse) ([]byte, error) {
	size := 4
	for _, w := range resp.Weights {
		size += 4 + 4*len(w)
	}
	raw := make([]byte, size)
	binary.LittleEndian.PutUint32(raw[0:4], uint32(len(resp.Weights)))
	off := 4
	for _, w := range resp.Weights {
		binary.LittleEndian.PutUint32(raw[off:off+4], uint32(len(w)))
		off += 4
		putFloat32Slice(raw[off:off+4*len(w)], w)
		off += 4 * len(w)
	}
	return c.compress(raw)
}

// DecodePullResponse reverses EncodePullResponse.
func (c *Codec) DecodePullResponse(buf []byte) (PullWeightsResponse, error) {
	raw, err := c.decompress(buf)
	if err != nil {
		return PullWeightsResponse{}, err
	}
	if len(raw) < 4 {
		return PullWeightsResponse{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "pull-response: short buffer", nil)
	}
	n := int(binary.LittleEndian.Uint32(raw[0:4]))
	off := 4
	weights := make([][]float32, n)
	for i := 0; i < n; i++ {
		if off+4 > len(raw) {
			return PullWeightsResponse{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "pull-response: truncated", nil)
		}
		l := int(binary.LittleEndian.Uint32(raw[off : off+4]))
		off += 4
		if off+4*l > len(raw) {
			return PullWeightsResponse{}, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "pull-response: truncated row", nil)
		}
		weights[i] = getFloat32Slice(raw[off:off+4*l], l)
		off += 4 * l
	}
	return PullWeightsResponse{Weights: weights}, nil
}
