package kernel

import (
	"context"
	"math"
	"math/rand"

	"github.com/sparseml/asynctrain/internal/rowblock"
	"github.com/sparseml/asynctrain/pkg/parallel"
)

// Kind selects the scalar objective evaluated over the linear score.
type Kind int

const (
	Logistic Kind = iota
	SquaredHinge
	Squared
)

// GradOptions configures the post-processing applied to embedding
// gradients after the backward pass, per column.
type GradOptions struct {
	// ClipValue, when positive, clamps every grad_V coordinate to
	// [-ClipValue, ClipValue].
	ClipValue float32
	// DropoutRate, in [0,1), zeroes each grad_V coordinate with this
	// probability.
	DropoutRate float32
	// Normalize L2-normalizes each row of grad_V.
	Normalize bool
	// Rand supplies dropout randomness; nil disables dropout
	// regardless of DropoutRate.
	Rand *rand.Rand
}

// Result holds the outcome of one forward+backward pass.
type Result struct {
	Objective float32
	GradW     []float32 // length U, one scalar-gradient slot per column
	GradV     *Matrix   // U rows × d, valid only where an embedding exists
	A         *Matrix   // X V, cached for callers that need it again
	Score     []float32 // s, the linear+bilinear score per row
}

// Forward computes the score s = Xw (+ bilinear term when V is non-nil)
// and the scalar objective for the given labels.
func Forward(ctx context.Context, kind Kind, d *rowblock.Local, w []float32, v *Matrix, labels []float32, cfg parallel.PoolConfig) (score []float32, a *Matrix, objective float32) {
	score = SpMVTimes(ctx, d, w, cfg)

	if v != nil && v.Cols > 0 {
		a = SpMMTimes(ctx, d, v, cfg)
		sqD := squareBlockValues(d)
		sqV := squareMatrix(v)
		bmat := SpMMTimes(ctx, sqD, sqV, cfg)

		for i := 0; i < d.NumRows(); i++ {
			var acc float32
			arow, brow := a.Row(i), bmat.Row(i)
			for j := 0; j < a.Cols; j++ {
				acc += arow[j]*arow[j] - brow[j]
			}
			score[i] += 0.5 * acc
		}
	}

	for i, s := range score {
		y := labels[i]
		switch kind {
		case Logistic:
			objective += float32(math.Log(1 + math.Exp(float64(-y*s))))
		case SquaredHinge:
			m := 1 - y*s
			if m > 0 {
				objective += m * m
			}
		case Squared:
			diff := s - y
			objective += 0.5 * diff * diff
		}
	}

	return score, a, objective
}

// dual computes the backward dual vector p per spec.md's loss kernel.
func dual(kind Kind, score, labels []float32) []float32 {
	p := make([]float32, len(score))
	for i, s := range score {
		y := labels[i]
		switch kind {
		case Logistic:
			p[i] = -y / (1 + float32(math.Exp(float64(y*s))))
		case SquaredHinge:
			if y*s > 1 {
				p[i] = y
			}
		case Squared:
			p[i] = s - y
		}
	}
	return p
}

// Backward computes grad_w = Xᵀp and, when v is non-nil, grad_V per
// the FM bilinear backward identity, applying GradOptions to grad_V.
func Backward(ctx context.Context, kind Kind, d *rowblock.Local, score, labels []float32, v, a *Matrix, opts GradOptions, cfg parallel.PoolConfig) *Result {
	p := dual(kind, score, labels)
	gradW := SpMVTransTimes(ctx, d, p, cfg)

	res := &Result{GradW: gradW, A: a, Score: score}

	if v == nil || v.Cols == 0 {
		return res
	}

	pMat := &Matrix{Rows: len(p), Cols: a.Cols, Data: make([]float32, len(p)*a.Cols)}
	for i := range p {
		row := pMat.Row(i)
		arow := a.Row(i)
		for c := 0; c < a.Cols; c++ {
			row[c] = p[i] * arow[c]
		}
	}
	term1 := SpMMTransTimes(ctx, d, pMat, cfg)

	sqD := squareBlockValues(d)
	sqVecVec := SpMVTransTimes(ctx, sqD, p, cfg) // (X⊙X)ᵀ p, length U

	gradV := NewMatrix(d.NumCols(), v.Cols)
	for j := 0; j < d.NumCols(); j++ {
		t1 := term1.Row(j)
		vj := v.Row(j)
		gj := gradV.Row(j)
		scale := sqVecVec[j]
		for c := 0; c < v.Cols; c++ {
			gj[c] = t1[c] - scale*vj[c]
		}
	}

	applyGradOptions(gradV, opts)
	res.GradV = gradV
	return res
}

func applyGradOptions(g *Matrix, opts GradOptions) {
	if opts.ClipValue > 0 {
		for i, v := range g.Data {
			if v > opts.ClipValue {
				g.Data[i] = opts.ClipValue
			} else if v < -opts.ClipValue {
				g.Data[i] = -opts.ClipValue
			}
		}
	}

	if opts.DropoutRate > 0 && opts.Rand != nil {
		for i := range g.Data {
			if opts.Rand.Float32() < opts.DropoutRate {
				g.Data[i] = 0
			}
		}
	}

	if opts.Normalize {
		for j := 0; j < g.Rows; j++ {
			row := g.Row(j)
			var norm float64
			for _, v := range row {
				norm += float64(v) * float64(v)
			}
			norm = math.Sqrt(norm)
			if norm == 0 {
				continue
			}
			for c := range row {
				row[c] = float32(float64(row[c]) / norm)
			}
		}
	}
}

// Sigmoid returns the logistic sigmoid of a raw score, used by
// prediction mode when probability output is requested.
func Sigmoid(s float32) float32 {
	return float32(1 / (1 + math.Exp(float64(-s))))
}
