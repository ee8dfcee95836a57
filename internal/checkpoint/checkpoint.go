// Package checkpoint reads and writes per-shard parameter snapshots
// through the object storage abstraction, so a server process can
// resume serving weights after a restart without replaying every push.
package checkpoint

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	apperrors "github.com/sparseml/asynctrain/pkg/errors"

	"github.com/sparseml/asynctrain/internal/storage"
	"github.com/sparseml/asynctrain/internal/store"
)

// row is the on-disk layout of one entry: key:u64, num_weights:u32,
// feature_count:u64, weights[num_weights]:f32, little-endian throughout.
// A shard checkpoint is a sequence of rows with no separator; EOF ends
// the sequence.

// Save writes every entry of shard to key via backend, in the wire
// format Load expects back.
func Save(ctx context.Context, backend storage.Storage, key string, shard *store.Shard) error {
	pr, pw := io.Pipe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- backend.Upload(ctx, key, pr)
	}()

	w := bufio.NewWriter(pw)
	var writeErr error
	shard.Snapshot(func(k uint64, e *store.Entry) {
		if writeErr != nil {
			return
		}
		writeErr = writeRow(w, k, e)
	})
	if writeErr == nil {
		writeErr = w.Flush()
	}
	pw.CloseWithError(writeErr)

	if err := <-errCh; err != nil {
		return apperrors.Wrap(apperrors.CodeDataMalformed, "checkpoint upload failed", err)
	}
	return writeErr
}

func writeRow(w io.Writer, key uint64, e *store.Entry) error {
	weights := e.Weights()
	var hdr [12]byte
	binary.LittleEndian.PutUint64(hdr[0:8], key)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(weights)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	var cnt [8]byte
	binary.LittleEndian.PutUint64(cnt[:], e.FeatureCount)
	if _, err := w.Write(cnt[:]); err != nil {
		return err
	}

	buf := make([]byte, 4*len(weights))
	for i, f := range weights {
		binary.LittleEndian.PutUint32(buf[4*i:4*i+4], math.Float32bits(f))
	}
	_, err := w.Write(buf)
	return err
}

// Load replaces shard's contents with the rows stored at key.
func Load(ctx context.Context, backend storage.Storage, key string, shard *store.Shard) error {
	exists, err := backend.Exists(ctx, key)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTransportTransient, "checkpoint existence check failed", err)
	}
	if !exists {
		return nil
	}

	rc, err := backend.Download(ctx, key)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTransportTransient, "checkpoint download failed", err)
	}
	defer rc.Close()

	r := bufio.NewReader(rc)
	for {
		key, featureCount, weights, err := readRow(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeDataMalformed, "checkpoint row malformed", err)
		}
		shard.Load(key, store.NewEntryFromWeights(featureCount, weights))
	}
}

func readRow(r io.Reader) (key uint64, featureCount uint64, weights []float32, err error) {
	var hdr [12]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, nil, err
	}
	key = binary.LittleEndian.Uint64(hdr[0:8])
	n := binary.LittleEndian.Uint32(hdr[8:12])

	var cnt [8]byte
	if _, err = io.ReadFull(r, cnt[:]); err != nil {
		return 0, 0, nil, fmt.Errorf("reading feature count: %w", err)
	}
	featureCount = binary.LittleEndian.Uint64(cnt[:])

	buf := make([]byte, 4*n)
	if _, err = io.ReadFull(r, buf); err != nil {
		return 0, 0, nil, fmt.Errorf("reading weights: %w", err)
	}
	weights = make([]float32, n)
	for i := range weights {
		weights[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i : 4*i+4]))
	}
	return key, featureCount, weights, nil
}

// SaveAll checkpoints every shard under a numbered key derived from
// pathFor, stopping at the first error.
func SaveAll(ctx context.Context, backend storage.Storage, shards []*store.Shard, pathFor func(shardIdx int) string) error {
	for i, s := range shards {
		if err := Save(ctx, backend, pathFor(i), s); err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}
	return nil
}

// LoadAll restores every shard from its numbered key. Missing keys
// leave the corresponding shard empty rather than failing, so a fresh
// cluster with no prior checkpoint starts cleanly.
func LoadAll(ctx context.Context, backend storage.Storage, shards []*store.Shard, pathFor func(shardIdx int) string) error {
	for i, s := range shards {
		if err := Load(ctx, backend, pathFor(i), s); err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}
	return nil
}
