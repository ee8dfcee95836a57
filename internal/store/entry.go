// Package store implements the sharded parameter server: per-key
// entries with on-the-fly scalar-to-embedding expansion and the
// FTRL/AdaGrad/SGD update rules that mutate them.
package store

// Entry is one server-side model parameter, addressed by a feature
// ID. It behaves as a tagged variant: when Size() == 1 the scalar
// weight and its update-rule state are stored inline in this struct
// with no heap allocation; the Expanded pointer is populated only
// after the one-way growth to size 1+d.
type Entry struct {
	// FeatureCount is the monotonically non-decreasing observation
	// count used to gate expansion.
	FeatureCount uint64

	w0   float32 // scalar weight
	cg0  float32 // accumulated squared gradient for the scalar coordinate
	z0   float32 // FTRL smoothed-gradient state for the scalar coordinate

	expanded *expanded
}

// expanded holds the embedding coordinates once an entry has grown
// past size 1. It is allocated exactly once, on expansion, and never
// freed.
type expanded struct {
	v    []float32 // embedding weights, length d
	vcg  []float32 // per-coordinate squared-gradient accumulator, length d
}

// Size returns 1 for a scalar-only entry, or 1+d once expanded.
func (e *Entry) Size() int {
	if e.expanded == nil {
		return 1
	}
	return 1 + len(e.expanded.v)
}

// W0 returns the scalar weight.
func (e *Entry) W0() float32 { return e.w0 }

// Empty reports whether the entry is indistinguishable from an absent
// key: a scalar entry whose weight is exactly zero.
func (e *Entry) Empty() bool {
	return e.expanded == nil && e.w0 == 0
}

// Dim returns the embedding dimension, 0 when not expanded.
func (e *Entry) Dim() int {
	if e.expanded == nil {
		return 0
	}
	return len(e.expanded.v)
}

// V returns the embedding coordinates, or nil when not expanded.
// Callers must not retain the returned slice across further pushes.
func (e *Entry) V() []float32 {
	if e.expanded == nil {
		return nil
	}
	return e.expanded.v
}

// Weights returns the entry's weight array exactly as the pull
// response wire format lays it out: one scalar slot, or 1+d slots
// once expanded.
func (e *Entry) Weights() []float32 {
	if e.expanded == nil {
		return []float32{e.w0}
	}
	out := make([]float32, 1+len(e.expanded.v))
	out[0] = e.w0
	copy(out[1:], e.expanded.v)
	return out
}

// NewEntryFromWeights rebuilds an entry from a checkpointed weight
// row: a bare scalar row restores a size-1 entry, a 1+d row restores
// an expanded one with a freshly zeroed gradient accumulator (the
// optimizer's per-coordinate state is not itself checkpointed).
func NewEntryFromWeights(featureCount uint64, weights []float32) *Entry {
	e := &Entry{FeatureCount: featureCount}
	if len(weights) == 0 {
		return e
	}
	e.w0 = weights[0]
	if len(weights) > 1 {
		v := make([]float32, len(weights)-1)
		copy(v, weights[1:])
		e.expanded = &expanded{v: v, vcg: make([]float32, len(v))}
	}
	return e
}

// expand grows the entry from size 1 to size 1+d in place: d is the
// embedding dimension, initV draws each new coordinate from the
// configured range. Idempotent: a second call is a no-op.
func (e *Entry) expand(d int, initV func() float32) bool {
	if e.expanded != nil {
		return false
	}
	v := make([]float32, d)
	for i := range v {
		v[i] = initV()
	}
	e.expanded = &expanded{v: v, vcg: make([]float32, d)}
	return true
}
