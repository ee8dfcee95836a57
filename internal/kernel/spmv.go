// Package kernel implements the sparse-times-dense numeric primitives
// shared by every objective: SpMV/SpMM products over a localized row
// block, and the logistic/squared-hinge/squared loss kernels built on
// top of them.
package kernel

import (
	"context"

	"github.com/sparseml/asynctrain/internal/rowblock"
	"github.com/sparseml/asynctrain/pkg/parallel"
)

// SpMVTimes computes y = D x, where D is the localized block (rows ×
// U sparse), x is dense of length U, and y is dense of length
// D.NumRows(). Each worker owns a disjoint row range of D, eliminating
// write races without any cross-thread synchronization.
func SpMVTimes(ctx context.Context, d *rowblock.Local, x []float32, cfg parallel.PoolConfig) []float32 {
	n := d.NumRows()
	y := make([]float32, n)
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
				var acc float32
				for j := start; j < end; j++ {
					acc += d.ValueAt(j) * x[d.Index[j]]
				}
				y[i] = acc
			}
			return struct{}{}
		},
		func(results []struct{}) struct{} { return struct{}{} },
	)

	return y
}

// SpMVTransTimes computes y = Dᵀ x, where x is dense of length
// D.NumRows() and y is dense of length D.NumCols(). Each worker owns a
// disjoint destination column range; the read pass over D is shared
// across workers (each worker scans every row but only accumulates
// into the columns it owns).
func SpMVTransTimes(ctx context.Context, d *rowblock.Local, x []float32, cfg parallel.PoolConfig) []float32 {
	u := d.NumCols()
	y := make([]float32, u)
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
				xi := x[i]
				if xi == 0 {
					continue
				}
				for j := start; j < end; j++ {
					col := int(d.Index[j])
					if col < lo || col >= hi {
						continue
					}
					y[col] += d.ValueAt(j) * xi
				}
			}
			return struct{}{}
		},
		func(results []struct{}) struct{} { return struct{}{} },
	)

	return y
}
