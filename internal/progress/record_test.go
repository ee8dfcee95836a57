package progress

import (
	"reflect"
	"testing"
)

func TestMerge_CommutativeAssociative(t *testing.T) {
	a := Record{Ints: []uint64{1, 2}, Floats: []float64{0.5}}
	b := Record{Ints: []uint64{3, 4}, Floats: []float64{1.5}}
	c := Record{Ints: []uint64{5, 6}, Floats: []float64{2.5}}

	ab := clone(a)
	ab.Merge(b)
	ba := clone(b)
	ba.Merge(a)
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("merge is not commutative: %+v vs %+v", ab, ba)
	}

	abc1 := clone(a)
	abc1.Merge(b)
	abc1.Merge(c)

	bc := clone(b)
	bc.Merge(c)
	abc2 := clone(a)
	abc2.Merge(bc)

	if !reflect.DeepEqual(abc1, abc2) {
		t.Fatalf("merge is not associative: %+v vs %+v", abc1, abc2)
	}
}

func TestMerge_ZeroIsIdentity(t *testing.T) {
	a := Record{Ints: []uint64{1, 2}, Floats: []float64{3.5}}
	zero := New(2, 1)

	got := clone(a)
	got.Merge(zero)
	if !reflect.DeepEqual(got, a) {
		t.Fatalf("merging zero changed the record: %+v vs %+v", got, a)
	}
}

// clone returns a deep copy of r, so that merging into the copy leaves
// r's slices untouched.
func clone(r Record) Record {
	return Record{
		Ints:   append([]uint64(nil), r.Ints...),
		Floats: append([]float64(nil), r.Floats...),
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	r := Record{Ints: []uint64{7, 42, 100}, Floats: []float64{1.5, -2.25}}
	buf := r.Serialize()
	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Fatalf("round trip = %+v, want %+v", got, r)
	}
}

func TestParse_Truncated(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated buffer")
	}
}

func TestEmpty(t *testing.T) {
	if !New(3, 2).Empty() {
		t.Fatalf("zero record should be empty")
	}
	nonzero := Record{Ints: []uint64{0, 1}, Floats: []float64{0}}
	if nonzero.Empty() {
		t.Fatalf("record with a nonzero slot should not be empty")
	}
}
