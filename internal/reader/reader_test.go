package reader

import (
	"context"
	"strings"
	"testing"
)

func TestSVMLightReader_ParsesRows(t *testing.T) {
	data := "1 10:3 5:2\n-1 0x7:1\n0 3:1\n\n"
	r := NewSVMLightReader(strings.NewReader(data), nil)

	row, ok, err := r.NextRow()
	if err != nil || !ok {
		t.Fatalf("row0: ok=%v err=%v", ok, err)
	}
	if row.Label != 1 || len(row.Features) != 2 {
		t.Fatalf("row0 = %+v", row)
	}

	row, ok, err = r.NextRow()
	if err != nil || !ok {
		t.Fatalf("row1: ok=%v err=%v", ok, err)
	}
	if row.Label != -1 || row.Features[0] != 7 {
		t.Fatalf("row1 = %+v", row)
	}

	row, ok, err = r.NextRow()
	if err != nil || !ok {
		t.Fatalf("row2: ok=%v err=%v", ok, err)
	}
	if row.Label != -1 {
		t.Fatalf("row2 label = %v, want -1 (0 normalized)", row.Label)
	}

	_, ok, err = r.NextRow()
	if err != nil || ok {
		t.Fatalf("expected EOF, got ok=%v err=%v", ok, err)
	}
}

func TestSVMLightReader_MalformedFeature(t *testing.T) {
	r := NewSVMLightReader(strings.NewReader("1 abc:def\n"), nil)
	if _, _, err := r.NextRow(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestOpen_Batches(t *testing.T) {
	data := "1 1:1\n1 2:1\n1 3:1\n1 4:1\n1 5:1\n"
	rs := NewSVMLightReader(strings.NewReader(data), nil)
	src := Open(rs, Shard{FormatTag: SVMLightFormat, BatchSize: 2})

	blocks, err := DrainAll(context.Background(), src)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	total := 0
	for _, b := range blocks {
		total += b.NumRows()
	}
	if total != 5 {
		t.Fatalf("total rows = %d, want 5", total)
	}
	if len(blocks) != 3 {
		t.Fatalf("num blocks = %d, want 3 (2,2,1)", len(blocks))
	}
}

func TestOpen_EmptyShard(t *testing.T) {
	rs := NewSVMLightReader(strings.NewReader(""), nil)
	src := Open(rs, Shard{FormatTag: SVMLightFormat, BatchSize: 4})
	blocks, err := DrainAll(context.Background(), src)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("expected no blocks, got %d", len(blocks))
	}
}

func TestShuffleRing_PreservesRowSet(t *testing.T) {
	data := "1 1:1\n1 2:1\n1 3:1\n1 4:1\n1 5:1\n1 6:1\n1 7:1\n1 8:1\n"
	rs := NewSVMLightReader(strings.NewReader(data), nil)
	src := Open(rs, Shard{FormatTag: SVMLightFormat, BatchSize: 100, ShuffleWindow: 3})

	blocks, err := DrainAll(context.Background(), src)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(blocks) != 1 || blocks[0].NumRows() != 8 {
		t.Fatalf("shuffle must preserve row count: %+v", blocks)
	}
	seen := map[uint64]bool{}
	for j := 0; j < blocks[0].NNZ(); j++ {
		seen[blocks[0].Index[j]] = true
	}
	if len(seen) != 8 {
		t.Fatalf("shuffle must preserve the feature set, got %d distinct", len(seen))
	}
}

func TestNegativeSampler_KeepsAllPositives(t *testing.T) {
	data := "1 1:1\n-1 2:1\n1 3:1\n-1 4:1\n"
	rs := NewSVMLightReader(strings.NewReader(data), nil)
	src := Open(rs, Shard{FormatTag: SVMLightFormat, BatchSize: 100, NegSamplingRate: 0})

	blocks, err := DrainAll(context.Background(), src)
	if err != nil {
		t.Fatalf("DrainAll: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected one block")
	}
	for _, l := range blocks[0].Labels {
		if l <= 0 {
			t.Fatalf("negative row survived with rate 0: labels=%v", blocks[0].Labels)
		}
	}
}
