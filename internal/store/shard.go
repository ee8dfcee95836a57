package store

import "sync"

// Shard owns a disjoint key range of the model. All entries in a
// shard are guarded by one mutex, held only for the duration of a
// single push or pull — never across keys, never across RPCs.
type Shard struct {
	mu      sync.Mutex
	entries map[uint64]*Entry
	updater Updater
	params  Params

	newW int64
	newV int64
}

// NewShard creates an empty shard driven by the given updater.
func NewShard(updater Updater, params Params) *Shard {
	return &Shard{
		entries: make(map[uint64]*Entry),
		updater: updater,
		params:  params,
	}
}

func (s *Shard) getOrCreate(key uint64) *Entry {
	e, ok := s.entries[key]
	if !ok {
		e = &Entry{}
		s.entries[key] = e
	}
	return e
}

// PushCount applies a push-count message: it accumulates the observed
// occurrence count and may trigger expansion per §4.4.2. A pure
// push-count that does not trigger expansion never mutates weights.
func (s *Shard) PushCount(key uint64, count uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	s.newV += int64(s.updater.PushCount(e, count))
}

// PushGradient applies a gradient push. gV is ignored when the entry
// is not (yet) expanded.
func (s *Shard) PushGradient(key uint64, g float32, gV []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	s.newW += int64(s.updater.PushGradient(e, g, gV))
}

// Pull returns the entry's weight array per the §4.4.4 response
// format: a 1-element zero vector when the entry is scalar, the L1
// shrinkage gate is on, and w0 == 0; the verbatim weight array
// otherwise (length 1 absent a key).
func (s *Shard) Pull(key uint64) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return []float32{0}
	}
	if e.Size() == 1 && s.params.L1ShrinkGate && e.w0 == 0 {
		return []float32{0}
	}
	return e.Weights()
}

// Counters returns the current (new_w, new_V) sparsity counters.
func (s *Shard) Counters() (newW, newV int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newW, s.newV
}

// Len returns the number of live entries, for tests and reporting.
func (s *Shard) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot calls fn once per entry in undefined order, holding the
// shard lock for the whole traversal. Used by checkpoint writers.
func (s *Shard) Snapshot(fn func(key uint64, e *Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		fn(k, e)
	}
}

// Load installs an entry read back from a checkpoint, overwriting any
// existing entry for that key.
func (s *Shard) Load(key uint64, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}
