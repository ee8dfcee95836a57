// Package reader implements the minibatch iterator over a file shard:
// parse rows, group them into row blocks of a bounded size, and
// optionally shuffle and negative-sample them before they reach the
// worker pipeline.
package reader

import (
	"context"
	"errors"
	"io"

	"github.com/sparseml/asynctrain/internal/rowblock"
)

// ErrDone is returned by Source.NextBlock once the shard is exhausted.
var ErrDone = errors.New("reader: shard exhausted")

// Shard names one file part a worker streams: the (filename, part_k,
// part_n, format_tag, batch_size) tuple from spec.md §6, plus the
// optional shuffle/negative-sampling knobs.
type Shard struct {
	Filename        string
	PartK           int
	PartN           int
	FormatTag       string
	BatchSize       int
	ShuffleWindow   int
	NegSamplingRate float64
}

// Source yields row blocks of up to BatchSize rows until the shard is
// exhausted, at which point it returns ErrDone.
type Source interface {
	NextBlock(ctx context.Context) (*rowblock.Block, error)
	Close() error
}

// RowSource is the lower-level per-row iterator a line format
// implements; Open wraps it into a batching Source, optionally adding
// shuffle and negative sampling.
type RowSource interface {
	NextRow() (rowblock.Row, bool, error)
	Close() error
}

// Open builds a batching Source over rs per shard's batching and
// sampling configuration. Rows are sampled (if configured) before
// shuffling, then shuffled (if configured), then batched.
func Open(rs RowSource, shard Shard) Source {
	var src rowIterator = &rowSourceAdapter{rs: rs}
	if shard.NegSamplingRate > 0 && shard.NegSamplingRate < 1 {
		src = newNegativeSampler(src, shard.NegSamplingRate)
	}
	if shard.ShuffleWindow > 1 {
		src = newShuffleRing(src, shard.ShuffleWindow)
	}
	batchSize := shard.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	return &batcher{rows: src, batchSize: batchSize}
}

// rowIterator is the internal composable row stream used to layer
// sampling and shuffling before batching; NextRow returns (row, false,
// nil) once the underlying source is exhausted.
type rowIterator interface {
	NextRow() (rowblock.Row, bool, error)
	Close() error
}

type rowSourceAdapter struct {
	rs RowSource
}

func (a *rowSourceAdapter) NextRow() (rowblock.Row, bool, error) {
	return a.rs.NextRow()
}

func (a *rowSourceAdapter) Close() error {
	return a.rs.Close()
}

// batcher groups a row stream into fixed-size blocks.
type batcher struct {
	rows      rowIterator
	batchSize int
	done      bool
}

func (b *batcher) NextBlock(ctx context.Context) (*rowblock.Block, error) {
	if b.done {
		return nil, ErrDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]rowblock.Row, 0, b.batchSize)
	for len(rows) < b.batchSize {
		row, ok, err := b.rows.NextRow()
		if err != nil {
			return nil, err
		}
		if !ok {
			b.done = true
			break
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrDone
	}
	return rowblock.FromRows(rows), nil
}

func (b *batcher) Close() error {
	return b.rows.Close()
}

// DrainAll reads every remaining block from src, for tests and small
// local runs where the whole shard fits comfortably in memory.
func DrainAll(ctx context.Context, src Source) ([]*rowblock.Block, error) {
	var blocks []*rowblock.Block
	for {
		blk, err := src.NextBlock(ctx)
		if err != nil {
			if err == ErrDone || err == io.EOF {
				return blocks, nil
			}
			return blocks, err
		}
		blocks = append(blocks, blk)
	}
}
