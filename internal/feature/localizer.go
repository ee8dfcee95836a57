// Package feature implements the worker-side localizer: it renumbers
// the arbitrary 64-bit feature IDs of one minibatch into the
// contiguous range [0, U) expected by the sparse kernels.
package feature

import (
	"context"
	"sort"

	"github.com/sparseml/asynctrain/internal/rowblock"
	pkgerrors "github.com/sparseml/asynctrain/pkg/errors"
	"github.com/sparseml/asynctrain/pkg/parallel"
)

// maxPosition is the largest value a single minibatch's position
// counter may take; positions are packed into a 32-bit unsigned field
// the same way the source's localizer does.
const maxPosition = ^uint32(0)

// Projection picks how a raw feature ID is mapped to a sort key before
// localization. The projection only changes the order of the unique
// IDs in the resulting dictionary; it never changes the set of unique
// IDs found. The dictionary holds the original IDs and shard
// assignment downstream is computed from those, so the projection does
// not change which shard an ID is sent to.
type Projection int

const (
	// ProjectionIdentity sorts by the feature ID verbatim.
	ProjectionIdentity Projection = iota
	// ProjectionReverseBytes sorts by the byte-reversal of the ID.
	ProjectionReverseBytes
	// ProjectionHashMod sorts by k mod MaxKey.
	ProjectionHashMod
)

// Options configures one localizer invocation.
type Options struct {
	Projection Projection
	// MaxKey is used only when Projection == ProjectionHashMod.
	MaxKey uint64
	// CountOccurrences, when true, also returns the per-column
	// occurrence count capped at the uint32 maximum.
	CountOccurrences bool
	Pool             parallel.PoolConfig
}

// DefaultOptions returns the identity projection with no counting.
func DefaultOptions() Options {
	return Options{
		Projection: ProjectionIdentity,
		Pool:       parallel.DefaultPoolConfig(),
	}
}

func reverseBytes(k uint64) uint64 {
	var r uint64
	for i := 0; i < 8; i++ {
		r = (r << 8) | (k & 0xff)
		k >>= 8
	}
	return r
}

func (o Options) projectedKey(k uint64) uint64 {
	switch o.Projection {
	case ProjectionReverseBytes:
		return reverseBytes(k)
	case ProjectionHashMod:
		if o.MaxKey > 0 {
			return k % o.MaxKey
		}
		return k
	default:
		return k
	}
}

// pair is one (projected key, original ID, original position) record,
// mirroring the source localizer's sort unit. id rides along as a
// sort tiebreaker: projectedKey is not injective under
// ProjectionHashMod, and without id as a tiebreaker two distinct IDs
// colliding on the same projected key could be merged into one U
// entry by the scan below. Sorting by (key, id) keeps every distinct
// id's records adjacent regardless of projection.
type pair struct {
	key uint64
	id  uint64
	pos uint32
}

func (p pair) less(o pair) bool {
	if p.key != o.key {
		return p.key < o.key
	}
	return p.id < o.id
}

// Localize renumbers b's feature IDs into [0, U). A zero-row block
// yields an empty, non-error result. A block whose nonzero count
// exceeds the 32-bit position counter is a hard capacity error.
func Localize(ctx context.Context, b *rowblock.Block, opts Options) (*rowblock.Local, error) {
	if b.NumRows() == 0 {
		return &rowblock.Local{
			Block: rowblock.Block{
				Labels:  b.Labels,
				Weights: b.Weights,
				Offsets: append([]uint32(nil), b.Offsets...),
			},
		}, nil
	}

	nnz := b.NNZ()
	if uint64(nnz) > uint64(maxPosition) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCapacityExceeded,
			"minibatch nonzero count overflows the position counter", nil)
	}

	pairs := make([]pair, nnz)
	for j := 0; j < nnz; j++ {
		k := b.Index[j]
		pairs[j] = pair{key: opts.projectedKey(k), id: k, pos: uint32(j)}
	}

	sortParallel(ctx, pairs, opts.Pool)

	dict, counts, remap := scanAndRemap(pairs, opts.CountOccurrences)

	local := &rowblock.Local{
		Block: rowblock.Block{
			Labels:  b.Labels,
			Weights: b.Weights,
			Offsets: make([]uint32, len(b.Offsets)),
			Index:   make([]uint64, 0, nnz),
		},
		Dict:   dict,
		Counts: counts,
	}
	if b.Values != nil {
		local.Values = make([]float32, 0, nnz)
	}

	out := 0
	for i := 0; i < b.NumRows(); i++ {
		start, end := b.RowSpan(i)
		for j := start; j < end; j++ {
			r := remap[j]
			if r == 0 {
				continue // filtered feature: no image in the localized block
			}
			local.Index = append(local.Index, uint64(r-1))
			if local.Values != nil {
				local.Values = append(local.Values, b.ValueAt(j))
			}
			out++
		}
		local.Offsets[i+1] = uint32(out)
	}

	return local, nil
}

// sortParallel sorts pairs by (key, id) using a chunk-then-merge
// strategy: each worker sorts a disjoint chunk in place, then the
// sorted chunks are merged pairwise. This keeps the per-thread grain
// coarse (one chunk per worker) the way the source's recursive
// divide-and-merge sort does, without needing true recursive fan-out
// for the grain sizes this system actually sees. Its output is the
// only sort in the pipeline: scanAndRemap consumes it directly.
func sortParallel(ctx context.Context, pairs []pair, cfg parallel.PoolConfig) {
	if len(pairs) < 2 {
		return
	}

	const minGrain = 16 * 1024
	numWorkers := cfg.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = parallel.DefaultPoolConfig().MaxWorkers
	}
	if len(pairs)/numWorkers < minGrain {
		numWorkers = (len(pairs) + minGrain - 1) / minGrain
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers == 1 {
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].less(pairs[j]) })
		return
	}

	cp := parallel.NewChunkProcessor[pair, []pair](cfg.WithWorkers(numWorkers))
	chunks := cp.ProcessChunks(ctx, pairs,
		func(ctx context.Context, chunk []pair, workerID int) []pair {
			sort.Slice(chunk, func(i, j int) bool { return chunk[i].less(chunk[j]) })
			return chunk
		},
		func(results [][]pair) []pair { return mergeAll(results) },
	)
	copy(pairs, chunks)
}

func mergeAll(chunks [][]pair) []pair {
	var nonEmpty [][]pair
	total := 0
	for _, c := range chunks {
		if len(c) > 0 {
			nonEmpty = append(nonEmpty, c)
			total += len(c)
		}
	}
	out := make([]pair, 0, total)
	for len(nonEmpty) > 1 {
		merged := mergeTwo(nonEmpty[0], nonEmpty[1])
		rest := append([][]pair{merged}, nonEmpty[2:]...)
		nonEmpty = rest
	}
	if len(nonEmpty) == 1 {
		out = append(out, nonEmpty[0]...)
	}
	return out
}

func mergeTwo(a, b []pair) []pair {
	out := make([]pair, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if !b[j].less(a[i]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// scanAndRemap walks pairs, already sorted by (key, id) from
// sortParallel, in one linear pass, extracting the unique original IDs
// in that order and building remap[j] = 1-based rank of pairs[j]'s
// original ID in U, or 0 if dropped. Because pairs is sorted with id
// as a tiebreaker under the projected key, every record sharing one
// original ID is already adjacent even when ProjectionHashMod collides
// two distinct IDs onto the same key, so no second sort is needed to
// regroup them. Nothing is ever dropped by this localizer (a position
// overflow fails the whole call with an error before this scan runs),
// but the 0 sentinel is kept so the wire shape matches the source's
// filtering localizer exactly.
func scanAndRemap(pairs []pair, countOccurrences bool) ([]uint64, []uint32, []uint32) {
	remap := make([]uint32, len(pairs))
	if len(pairs) == 0 {
		return nil, nil, remap
	}

	dict := make([]uint64, 0, len(pairs))
	var counts []uint32
	if countOccurrences {
		counts = make([]uint32, 0, len(pairs))
	}

	rank := uint32(0)
	for i := 0; i < len(pairs); {
		id := pairs[i].id
		rank++
		dict = append(dict, id)
		count := uint32(0)
		for i < len(pairs) && pairs[i].id == id {
			remap[pairs[i].pos] = rank
			if count < maxPosition {
				count++
			}
			i++
		}
		if countOccurrences {
			counts = append(counts, count)
		}
	}

	return dict, counts, remap
}
