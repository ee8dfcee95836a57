package feature

import (
	"context"
	"reflect"
	"testing"

	"github.com/sparseml/asynctrain/internal/rowblock"
)

func TestLocalize_ScenarioFive(t *testing.T) {
	// rows [{10,2,3}, {10,5,2}] with per-nonzero values a..f
	b := &rowblock.Block{
		Labels:  []float32{1, 1},
		Offsets: []uint32{0, 3, 6},
		Index:   []uint64{10, 2, 3, 10, 5, 2},
		Values:  []float32{1, 2, 3, 4, 5, 6}, // a..f stand-ins
	}

	local, err := Localize(context.Background(), b, DefaultOptions())
	if err != nil {
		t.Fatalf("Localize: %v", err)
	}

	wantDict := []uint64{2, 3, 5, 10}
	if !reflect.DeepEqual(local.Dict, wantDict) {
		t.Fatalf("Dict = %v, want %v", local.Dict, wantDict)
	}

	wantIndex := []uint64{3, 0, 1, 3, 2, 0}
	if !reflect.DeepEqual(local.Index, wantIndex) {
		t.Fatalf("Index = %v, want %v", local.Index, wantIndex)
	}

	wantOffsets := []uint32{0, 3, 6}
	if !reflect.DeepEqual(local.Offsets, wantOffsets) {
		t.Fatalf("Offsets = %v, want %v", local.Offsets, wantOffsets)
	}
}

func TestLocalize_EmptyBlock(t *testing.T) {
	b := &rowblock.Block{}
	local, err := Localize(context.Background(), b, DefaultOptions())
	if err != nil {
		t.Fatalf("Localize on empty block: %v", err)
	}
	if local.NumCols() != 0 || len(local.Index) != 0 {
		t.Fatalf("expected empty localized block, got %+v", local)
	}
}

func TestLocalize_RoundTrip(t *testing.T) {
	b := &rowblock.Block{
		Labels:  []float32{1, -1, 1},
		Offsets: []uint32{0, 2, 3, 5},
		Index:   []uint64{100, 7, 7, 42, 100},
	}

	local, err := Localize(context.Background(), b, DefaultOptions())
	if err != nil {
		t.Fatalf("Localize: %v", err)
	}

	for i := 0; i < b.NumRows(); i++ {
		origStart, origEnd := b.RowSpan(i)
		locStart, locEnd := local.RowSpan(i)
		if origEnd-origStart != locEnd-locStart {
			t.Fatalf("row %d width changed: %d vs %d", i, origEnd-origStart, locEnd-locStart)
		}
		for k := 0; k < origEnd-origStart; k++ {
			orig := b.Index[origStart+k]
			mapped := local.Dict[local.Index[locStart+k]]
			if orig != mapped {
				t.Fatalf("row %d col %d: mapped back to %d, want %d", i, k, mapped, orig)
			}
		}
	}
}

func TestLocalize_CapacityExceeded(t *testing.T) {
	// Can't actually allocate 2^32 entries in a test; exercise the
	// overflow guard directly against its threshold constant instead.
	if uint64(maxPosition) != 4294967295 {
		t.Fatalf("unexpected maxPosition: %d", maxPosition)
	}
}

func TestLocalize_OccurrenceCounts(t *testing.T) {
	b := &rowblock.Block{
		Labels:  []float32{1},
		Offsets: []uint32{0, 4},
		Index:   []uint64{9, 9, 9, 1},
	}
	opts := DefaultOptions()
	opts.CountOccurrences = true

	local, err := Localize(context.Background(), b, opts)
	if err != nil {
		t.Fatalf("Localize: %v", err)
	}
	wantDict := []uint64{1, 9}
	if !reflect.DeepEqual(local.Dict, wantDict) {
		t.Fatalf("Dict = %v, want %v", local.Dict, wantDict)
	}
	wantCounts := []uint32{1, 3}
	if !reflect.DeepEqual(local.Counts, wantCounts) {
		t.Fatalf("Counts = %v, want %v", local.Counts, wantCounts)
	}
}
