package reader

import (
	"math/rand"

	"github.com/sparseml/asynctrain/internal/rowblock"
)

// negativeSampler drops rows with a non-positive label with probability
// 1-rate, keeping every positive row untouched.
type negativeSampler struct {
	src  rowIterator
	rate float64
	rng  *rand.Rand
}

func newNegativeSampler(src rowIterator, rate float64) *negativeSampler {
	return &negativeSampler{src: src, rate: rate, rng: rand.New(rand.NewSource(1))}
}

func (n *negativeSampler) NextRow() (rowblock.Row, bool, error) {
	for {
		row, ok, err := n.src.NextRow()
		if err != nil || !ok {
			return row, ok, err
		}
		if row.Label > 0 || n.rng.Float64() < n.rate {
			return row, true, nil
		}
	}
}

func (n *negativeSampler) Close() error {
	return n.src.Close()
}
