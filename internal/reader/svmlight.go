package reader

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/sparseml/asynctrain/internal/rowblock"
	pkgerrors "github.com/sparseml/asynctrain/pkg/errors"
)

// SVMLightFormat is the format_tag this reader answers to: one row per
// line, "label feat:val feat:val ...", label in {-1, 1} (or {0, 1},
// normalized to {-1, 1}), feat a decimal or hex ("0x...") uint64.
const SVMLightFormat = "svmlight"

// SVMLightReader parses a stream of svmlight-style lines into rows.
// It implements RowSource.
type SVMLightReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	lineNo  int
}

// NewSVMLightReader wraps r (and an optional Closer, may be nil) as a
// RowSource.
func NewSVMLightReader(r io.Reader, closer io.Closer) *SVMLightReader {
	return &SVMLightReader{scanner: bufio.NewScanner(r), closer: closer}
}

func parseFeatureID(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// NextRow reads and parses the next non-blank line.
func (s *SVMLightReader) NextRow() (rowblock.Row, bool, error) {
	for s.scanner.Scan() {
		s.lineNo++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		return parseSVMLightLine(line, s.lineNo)
	}
	if err := s.scanner.Err(); err != nil {
		return rowblock.Row{}, false, pkgerrors.Wrap(pkgerrors.CodeDataMalformed, "svmlight: scan error", err)
	}
	return rowblock.Row{}, false, nil
}

func parseSVMLightLine(line string, lineNo int) (rowblock.Row, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return rowblock.Row{}, false, nil
	}
	label64, err := strconv.ParseFloat(fields[0], 32)
	if err != nil {
		return rowblock.Row{}, false, pkgerrors.Wrap(pkgerrors.CodeDataMalformed,
			"svmlight: bad label at line "+strconv.Itoa(lineNo), err)
	}
	label := float32(label64)
	if label == 0 {
		label = -1
	}

	feats := make([]uint64, 0, len(fields)-1)
	vals := make([]float32, 0, len(fields)-1)
	for _, tok := range fields[1:] {
		if strings.HasPrefix(tok, "#") {
			break
		}
		parts := strings.SplitN(tok, ":", 2)
		key, err := parseFeatureID(parts[0])
		if err != nil {
			return rowblock.Row{}, false, pkgerrors.Wrap(pkgerrors.CodeDataMalformed,
				"svmlight: bad feature id at line "+strconv.Itoa(lineNo), err)
		}
		val := float32(1)
		if len(parts) == 2 {
			v64, err := strconv.ParseFloat(parts[1], 32)
			if err != nil {
				return rowblock.Row{}, false, pkgerrors.Wrap(pkgerrors.CodeDataMalformed,
					"svmlight: bad feature value at line "+strconv.Itoa(lineNo), err)
			}
			val = float32(v64)
		}
		feats = append(feats, key)
		vals = append(vals, val)
	}

	return rowblock.Row{Label: label, Weight: 1, Features: feats, Values: vals}, true, nil
}

// Close releases the underlying reader, if it was given a Closer.
func (s *SVMLightReader) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
