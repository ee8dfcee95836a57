package kernel

import (
	"context"

	"github.com/sparseml/asynctrain/internal/rowblock"
	"github.com/sparseml/asynctrain/pkg/parallel"
)

// Matrix is a dense row-major matrix of Rows × Cols.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix allocates a zeroed dense matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// Row returns the slice backing row i.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// SpMMTimes computes Y = D X: D is the localized block (rows × U),
// X is dense U × d, Y is dense rows × d. Each worker owns a disjoint
// row range of D/Y.
func SpMMTimes(ctx context.Context, d *rowblock.Local, x *Matrix, cfg parallel.PoolConfig) *Matrix {
	n := d.NumRows()
	y := NewMatrix(n, x.Cols)
	if n == 0 {
		return y
	}

	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	cp := parallel.NewChunkProcessor[int, struct{}](cfg)
	cp.ProcessChunks(ctx, rows,
		func(ctx context.Context, chunk []int, workerID int) struct{} {
			for _, i := range chunk {
				start, end := d.RowSpan(i)
				yi := y.Row(i)
				for j := start; j < end; j++ {
					v := d.ValueAt(j)
					xi := x.Row(int(d.Index[j]))
					for c := 0; c < x.Cols; c++ {
						yi[c] += v * xi[c]
					}
				}
			}
			return struct{}{}
		},
		func(results []struct{}) struct{} { return struct{}{} },
	)

	return y
}

// SpMMTransTimes computes Y = Dᵀ P: D is rows × U, P is dense rows ×
// d, Y is dense U × d. Each worker owns a disjoint destination column
// range.
func SpMMTransTimes(ctx context.Context, d *rowblock.Local, p *Matrix, cfg parallel.PoolConfig) *Matrix {
	u := d.NumCols()
	y := NewMatrix(u, p.Cols)
	if u == 0 {
		return y
	}

	cols := make([]int, u)
	for i := range cols {
		cols[i] = i
	}

	cp := parallel.NewChunkProcessor[int, struct{}](cfg)
	cp.ProcessChunks(ctx, cols,
		func(ctx context.Context, chunk []int, workerID int) struct{} {
			lo, hi := chunk[0], chunk[len(chunk)-1]+1
			for i := 0; i < d.NumRows(); i++ {
				start, end := d.RowSpan(i)
				pi := p.Row(i)
				for j := start; j < end; j++ {
					col := int(d.Index[j])
					if col < lo || col >= hi {
						continue
					}
					v := d.ValueAt(j)
					yc := y.Row(col)
					for c := 0; c < p.Cols; c++ {
						yc[c] += v * pi[c]
					}
				}
			}
			return struct{}{}
		},
		func(results []struct{}) struct{} { return struct{}{} },
	)

	return y
}

// squareMatrix returns a matrix with every entry squared, used to
// build V⊙V for the FM bilinear identity.
func squareMatrix(m *Matrix) *Matrix {
	out := &Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]float32, len(m.Data))}
	for i, v := range m.Data {
		out.Data[i] = v * v
	}
	return out
}

// squareBlockValues returns a Local block with every explicit value
// squared (X⊙X), sharing the index/offset structure of d. When d has
// no explicit values every nonzero is 1, so squaring is a no-op and d
// itself is reused.
func squareBlockValues(d *rowblock.Local) *rowblock.Local {
	if d.Values == nil {
		return d
	}
	sq := *d
	sq.Values = make([]float32, len(d.Values))
	for i, v := range d.Values {
		sq.Values[i] = v * v
	}
	return &sq
}
