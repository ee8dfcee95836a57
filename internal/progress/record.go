// Package progress implements the additive, merge-reducible counters
// that servers and workers periodically report to the scheduler, and
// their fixed binary wire format.
package progress

import (
	"encoding/binary"
	"math"

	pkgerrors "github.com/sparseml/asynctrain/pkg/errors"
)

var errShort = pkgerrors.New(pkgerrors.CodeDataMalformed, "progress record: truncated or mismatched buffer")

// Record is a flat vector of integer counters and float accumulators.
// Merge is coordinate-wise sum; an all-zero Record of the same shape
// (as built by New) is the identity.
type Record struct {
	Ints   []uint64
	Floats []float64
}

// Canonical slot layout shared by every worker and server reporter, so
// records from either role merge into one another. IdxNewW/IdxNewV are
// the new_w/new_V sparsity counters named in the bookkeeping
// invariant: the primary sparsity metric reported to the scheduler.
const (
	IdxRowsDone = iota
	IdxNewW
	IdxNewV
	numInts
)

const (
	IdxObjectiveSum = iota
	numFloats
)

// New allocates a Record with nInt integer slots and nFloat float
// slots, all zeroed.
func New(nInt, nFloat int) Record {
	return Record{Ints: make([]uint64, nInt), Floats: make([]float64, nFloat)}
}

// NewStandard allocates a Record in the canonical worker/server layout
// (rows done, new_w, new_V; objective sum).
func NewStandard() Record {
	return New(numInts, numFloats)
}

// Clear zeroes every slot in place.
func (r *Record) Clear() {
	for i := range r.Ints {
		r.Ints[i] = 0
	}
	for i := range r.Floats {
		r.Floats[i] = 0
	}
}

// Empty reports whether every slot is zero.
func (r Record) Empty() bool {
	for _, v := range r.Ints {
		if v != 0 {
			return false
		}
	}
	for _, v := range r.Floats {
		if v != 0 {
			return false
		}
	}
	return true
}

// Merge combines other into r coordinate-wise. Both records must have
// equal shape; Merge panics otherwise, since a shape mismatch means
// two reporters disagree about the record layout.
func (r *Record) Merge(other Record) {
	if len(r.Ints) != len(other.Ints) || len(r.Floats) != len(other.Floats) {
		panic("progress: Merge called on records of mismatched shape")
	}
	for i := range r.Ints {
		r.Ints[i] += other.Ints[i]
	}
	for i := range r.Floats {
		r.Floats[i] += other.Floats[i]
	}
}

// Serialize encodes the record as (int_count: u64, float_count: u64,
// int_bytes, float_bytes), little-endian throughout, matching the
// wire layout carried alongside the channel ID in the progress
// reporting protocol.
func (r Record) Serialize() []byte {
	size := 8 + 8 + 8*len(r.Ints) + 8*len(r.Floats)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(r.Ints)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(r.Floats)))
	off := 16
	for _, v := range r.Ints {
		binary.LittleEndian.PutUint64(buf[off:off+8], v)
		off += 8
	}
	for _, v := range r.Floats {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
		off += 8
	}
	return buf
}

// Parse decodes a Record from the wire format produced by Serialize.
func Parse(buf []byte) (Record, error) {
	if len(buf) < 16 {
		return Record{}, errShort
	}
	nInt := binary.LittleEndian.Uint64(buf[0:8])
	nFloat := binary.LittleEndian.Uint64(buf[8:16])
	want := 16 + 8*int(nInt) + 8*int(nFloat)
	if len(buf) != want {
		return Record{}, errShort
	}

	r := New(int(nInt), int(nFloat))
	off := 16
	for i := range r.Ints {
		r.Ints[i] = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}
	for i := range r.Floats {
		r.Floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
	}
	return r, nil
}
