// Package rowblock defines the batched sparse-row representation that
// flows from readers through the localizer into the loss kernels.
package rowblock

// Row is a single labelled sparse example: a binary label, an optional
// example weight, and an ordered sequence of (feature ID, value) pairs.
// A missing value means 1.
type Row struct {
	Label    float32
	Weight   float32
	Features []uint64
	Values   []float32 // nil means every feature in this row has value 1
}

// Block is the batched representation of a slice of rows sharing one
// index/value array, addressed through an offsets array of length
// len(Labels)+1: row i spans Index[Offsets[i]:Offsets[i+1]].
type Block struct {
	Labels  []float32
	Weights []float32 // optional, nil means every row has weight 1
	Offsets []uint32
	Index   []uint64
	Values  []float32 // optional, nil means every nonzero has value 1
}

// NumRows returns the number of rows carried by the block.
func (b *Block) NumRows() int {
	if b == nil {
		return 0
	}
	return len(b.Labels)
}

// NNZ returns the number of (row, feature) pairs in the block.
func (b *Block) NNZ() int {
	if b == nil {
		return 0
	}
	return len(b.Index)
}

// RowSpan returns the [start, end) range into Index/Values for row i.
func (b *Block) RowSpan(i int) (int, int) {
	return int(b.Offsets[i]), int(b.Offsets[i+1])
}

// ValueAt returns the value of the j-th nonzero, defaulting to 1 when
// the block carries no explicit value array.
func (b *Block) ValueAt(j int) float32 {
	if b.Values == nil {
		return 1
	}
	return b.Values[j]
}

// WeightAt returns the example weight of row i, defaulting to 1.
func (b *Block) WeightAt(i int) float32 {
	if b.Weights == nil {
		return 1
	}
	return b.Weights[i]
}

// FromRows assembles a Block from a slice of Rows, building the offsets
// array from each row's feature count. A row with a nil Values slice
// leaves the block-level Values array untouched only when every row
// agrees on that; mixed rows force every value to be materialized.
func FromRows(rows []Row) *Block {
	b := &Block{
		Labels:  make([]float32, len(rows)),
		Offsets: make([]uint32, len(rows)+1),
	}

	hasWeight := false
	hasValues := false
	for _, r := range rows {
		if r.Weight != 0 && r.Weight != 1 {
			hasWeight = true
		}
		if r.Values != nil {
			hasValues = true
		}
	}

	if hasWeight {
		b.Weights = make([]float32, len(rows))
	}

	nnz := 0
	for _, r := range rows {
		nnz += len(r.Features)
	}
	b.Index = make([]uint64, 0, nnz)
	if hasValues {
		b.Values = make([]float32, 0, nnz)
	}

	for i, r := range rows {
		b.Labels[i] = r.Label
		if b.Weights != nil {
			w := r.Weight
			if w == 0 {
				w = 1
			}
			b.Weights[i] = w
		}
		b.Index = append(b.Index, r.Features...)
		if b.Values != nil {
			if r.Values != nil {
				b.Values = append(b.Values, r.Values...)
			} else {
				for range r.Features {
					b.Values = append(b.Values, 1)
				}
			}
		}
		b.Offsets[i+1] = uint32(len(b.Index))
	}

	return b
}

// Local is a Block whose Index entries have been remapped into the
// contiguous range [0, len(Dict)) by the localizer, together with the
// dictionary that maps back to the original 64-bit feature IDs.
type Local struct {
	Block
	// Dict holds the sorted unique feature IDs that survived
	// localization; Dict[i] is the global ID of local column i.
	Dict []uint64
	// Counts holds, when requested, the per-column occurrence count
	// observed while building Dict, capped at the uint32 maximum.
	Counts []uint32
}

// NumCols returns the number of distinct local columns, i.e. len(Dict).
func (l *Local) NumCols() int {
	return len(l.Dict)
}
