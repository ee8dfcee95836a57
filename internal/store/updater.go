package store

import (
	"math"
	"math/rand"
	"sync/atomic"
)

// Params configures one updater instance. EmbeddingDim == 0 disables
// expansion entirely; the entry then stays scalar-only forever.
type Params struct {
	Alpha, Beta   float32
	L1, L2        float32
	Threshold     uint64
	EmbeddingDim  int
	L1ShrinkGate  bool // the "l1 shrinkage gating" flag from spec §4.4.2
	InitMin       float32
	InitMax       float32
	AlphaV, BetaV float32
	L2V           float32
}

// DefaultParams returns reasonable defaults matching the scenarios in
// spec §8.
func DefaultParams() Params {
	return Params{
		Alpha: 0.1, Beta: 1, L1: 1, L2: 0,
		Threshold: 0, EmbeddingDim: 0,
		L1ShrinkGate: false,
		InitMin:      -0.01, InitMax: 0.01,
		AlphaV: 0.1, BetaV: 1, L2V: 0,
	}
}

// Updater is the per-entry online update rule shared by every shard.
// Implementations must preserve the scalar-compact invariant: a
// pure push-count call never mutates weights or aux state except
// through expansion.
type Updater interface {
	// PushGradient applies a scalar gradient (and, when the entry is
	// expanded, the matching embedding gradient) to e. It returns the
	// delta to apply to the global new_w counter (+1 on a 0→nonzero
	// transition, -1 on nonzero→0, 0 otherwise).
	PushGradient(e *Entry, g float32, gV []float32) int

	// PushCount adds count to e.FeatureCount and expands e in place
	// when the gate in spec §4.4.2 is satisfied. It returns the delta
	// to apply to the global new_V counter (EmbeddingDim on a fresh
	// expansion, 0 otherwise).
	PushCount(e *Entry, count uint64) int
}

// base implements the shared expansion gate (§4.4.2) and embedding
// coordinate update (§4.4.3); FTRL/AdaGrad/SGD only differ in the
// scalar-coordinate rule, supplied via scalarUpdate.
type base struct {
	p            Params
	rng          func() float32
	scalarUpdate func(e *Entry, g float32) (isZero bool)
}

func (b *base) PushCount(e *Entry, count uint64) int {
	e.FeatureCount += count
	if b.p.EmbeddingDim <= 0 || e.Size() != 1 {
		return 0
	}
	if e.FeatureCount < b.p.Threshold {
		return 0
	}
	if b.p.L1ShrinkGate && e.w0 == 0 {
		return 0
	}
	if e.expand(b.p.EmbeddingDim, b.rng) {
		return b.p.EmbeddingDim
	}
	return 0
}

func (b *base) PushGradient(e *Entry, g float32, gV []float32) int {
	wasZero := e.w0 == 0
	isZero := b.scalarUpdate(e, g)

	if e.expanded != nil {
		updateEmbedding(e, gV, b.p)
	}

	switch {
	case wasZero && !isZero:
		return 1
	case !wasZero && isZero:
		return -1
	default:
		return 0
	}
}

// proxSoftThreshold implements the shared L1/L2 proximal operator used
// by FTRL, AdaGrad and SGD: w = 0 if |z| <= l1, else
// -(z - sign(z)*l1) / (eta + l2).
func proxSoftThreshold(z, eta, l1, l2 float32) float32 {
	if z > l1 {
		return -(z - l1) / (eta + l2)
	}
	if z < -l1 {
		return -(z + l1) / (eta + l2)
	}
	return 0
}

// updateEmbedding applies the AdaGrad-per-coordinate embedding rule of
// spec §4.4.3, independent of the scalar coordinate's update rule.
func updateEmbedding(e *Entry, gV []float32, p Params) {
	if gV == nil {
		return
	}
	v, vcg := e.expanded.v, e.expanded.vcg
	for i := range v {
		gi := gV[i] + p.L2V*v[i]
		vcg[i] = float32(math.Sqrt(float64(vcg[i])*float64(vcg[i]) + float64(gi)*float64(gi)))
		eta := p.AlphaV / (vcg[i] + p.BetaV)
		v[i] -= eta * gi
	}
}

// NewFTRL returns an Updater implementing FTRL-Proximal for the
// scalar coordinate.
func NewFTRL(p Params) Updater {
	b := &base{p: p, rng: uniformInit(p)}
	b.scalarUpdate = func(e *Entry, g float32) bool {
		cgOld := e.cg0
		cgNew := float32(math.Sqrt(float64(cgOld)*float64(cgOld) + float64(g)*float64(g)))
		sigma := (cgNew - cgOld) / p.Alpha
		e.z0 = e.z0 + g - sigma*e.w0
		eta := (p.Beta + cgNew) / p.Alpha
		e.cg0 = cgNew
		e.w0 = proxSoftThreshold(e.z0, eta, p.L1, p.L2)
		return e.w0 == 0
	}
	return b
}

// NewAdaGrad returns an Updater implementing AdaGrad for the scalar
// coordinate.
func NewAdaGrad(p Params) Updater {
	b := &base{p: p, rng: uniformInit(p)}
	b.scalarUpdate = func(e *Entry, g float32) bool {
		cgOld := e.cg0
		cgNew := float32(math.Sqrt(float64(cgOld)*float64(cgOld) + float64(g)*float64(g)))
		eta := (cgNew + p.Beta) / p.Alpha
		e.cg0 = cgNew
		e.w0 = proxSoftThreshold(g-eta*e.w0, eta, p.L1, p.L2)
		return e.w0 == 0
	}
	return b
}

// sgd implements plain SGD with a dynamic learning rate shared across
// every key it updates, mirroring the source's single stateful handle
// rather than a per-key step counter.
type sgd struct {
	base
	step atomic.Int64
}

// NewSGD returns an Updater implementing plain SGD with dynamic
// learning rate eta = (beta + sqrt(t))/alpha, t incremented on every
// push across all keys.
func NewSGD(p Params) Updater {
	s := &sgd{}
	s.p = p
	s.rng = uniformInit(p)
	s.scalarUpdate = func(e *Entry, g float32) bool {
		t := s.step.Add(1)
		eta := (p.Beta + float32(math.Sqrt(float64(t)))) / p.Alpha
		e.w0 = proxSoftThreshold(g-eta*e.w0, eta, p.L1, p.L2)
		return e.w0 == 0
	}
	return s
}

func uniformInit(p Params) func() float32 {
	lo, hi := p.InitMin, p.InitMax
	return func() float32 {
		return lo + rand.Float32()*(hi-lo)
	}
}
