package reader

import (
	"math/rand"

	"github.com/sparseml/asynctrain/internal/rowblock"
)

// shuffleRing holds up to window rows and releases one uniformly-chosen
// row from the ring each time it receives a fresh one, smoothing local
// ordering in the underlying file without buffering the whole shard.
type shuffleRing struct {
	src    rowIterator
	window int
	rng    *rand.Rand

	buf     []rowblock.Row
	draining bool
}

func newShuffleRing(src rowIterator, window int) *shuffleRing {
	return &shuffleRing{
		src:    src,
		window: window,
		rng:    rand.New(rand.NewSource(1)),
		buf:    make([]rowblock.Row, 0, window),
	}
}

func (s *shuffleRing) NextRow() (rowblock.Row, bool, error) {
	if !s.draining {
		for len(s.buf) < s.window {
			row, ok, err := s.src.NextRow()
			if err != nil {
				return rowblock.Row{}, false, err
			}
			if !ok {
				s.draining = true
				break
			}
			s.buf = append(s.buf, row)
		}
	}
	if len(s.buf) == 0 {
		return rowblock.Row{}, false, nil
	}
	i := s.rng.Intn(len(s.buf))
	out := s.buf[i]
	last := len(s.buf) - 1
	s.buf[i] = s.buf[last]
	s.buf = s.buf[:last]

	if !s.draining {
		row, ok, err := s.src.NextRow()
		if err != nil {
			return rowblock.Row{}, false, err
		}
		if !ok {
			s.draining = true
		} else {
			s.buf = append(s.buf, row)
		}
	}
	return out, true, nil
}

func (s *shuffleRing) Close() error {
	return s.src.Close()
}
