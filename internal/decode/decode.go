// Package decode turns compressed dataset payloads into typed records.
//
// Dataset files are flat-array JSON, usually gzip-compressed, but the
// static backend occasionally serves them plain or substitutes an HTML
// error page. The decoder sniffs the first two bytes to tell the cases
// apart rather than trusting content headers.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/klauspost/compress/gzip"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnknownFormat is returned when the payload signature is neither
// gzip, JSON, nor an HTML error page.
var ErrUnknownFormat = errors.New("decode: unrecognized payload signature")

// HTMLError indicates the server returned an HTML error page instead
// of a dataset. Callers use it to trigger the uncompressed-sibling
// fallback fetch.
type HTMLError struct {
	Snippet string
}

func (e *HTMLError) Error() string {
	return "decode: payload is an HTML error page: " + e.Snippet
}

// htmlSnippetLen bounds how much of an HTML error page is kept for
// diagnostics.
const htmlSnippetLen = 200

// PolygonRecord is the decoded form of a per-z-stack boundary or
// nuclei dataset: interleaved x,y coordinates with per-cell offsets
// expressed in point-pairs.
type PolygonRecord struct {
	Points      []float64 `json:"points"`
	CellOffsets []uint32  `json:"cellOffsets"`
	CellIDs     []uint32  `json:"cellIds"`
}

// PointRecord is the decoded form of a per-gene dataset: interleaved
// x,y transcript positions keyed by string-encoded z-stack index.
type PointRecord struct {
	Layers map[string][]float64 `json:"layers"`
}

// Payload sniffs and normalizes a raw payload into plain JSON bytes.
func Payload(buf []byte) ([]byte, error) {
	if len(buf) < 2 {
		return nil, ErrUnknownFormat
	}
	switch {
	case buf[0] == 0x1F && buf[1] == 0x8B:
		zr, err := gzip.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("decode: gzip header: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decode: gunzip: %w", err)
		}
		return out, nil
	case buf[0] == '{' && buf[1] == '"':
		// Server mislabeled an uncompressed body; use it directly.
		return buf, nil
	case buf[0] == '<' && buf[1] == '!':
		n := len(buf)
		if n > htmlSnippetLen {
			n = htmlSnippetLen
		}
		return nil, &HTMLError{Snippet: string(buf[:n])}
	default:
		return nil, ErrUnknownFormat
	}
}

// Polygons decodes a boundary/nuclei payload.
func Polygons(buf []byte) (*PolygonRecord, error) {
	data, err := Payload(buf)
	if err != nil {
		return nil, err
	}
	var rec PolygonRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode: polygon JSON: %w", err)
	}
	return &rec, nil
}

// Points decodes a gene point payload.
func Points(buf []byte) (*PointRecord, error) {
	data, err := Payload(buf)
	if err != nil {
		return nil, err
	}
	var rec PointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode: point JSON: %w", err)
	}
	return &rec, nil
}

// CellCount returns the number of cells described by the record.
func (r *PolygonRecord) CellCount() int {
	if len(r.CellOffsets) == 0 {
		return 0
	}
	return len(r.CellOffsets) - 1
}

// Cell returns the interleaved x,y coordinates of cell i. Offsets are
// point-pair counts, so the slice index is offset*2.
func (r *PolygonRecord) Cell(i int) []float64 {
	start := int(r.CellOffsets[i]) * 2
	end := int(r.CellOffsets[i+1]) * 2
	return r.Points[start:end]
}

// Sanitize drops structurally invalid cells in place and returns how
// many were removed. A cell is dropped when its offset range is
// non-monotone, out of bounds, or describes fewer than 3 points. A
// cellIds/cellOffsets length mismatch is reconciled by truncating to
// the shorter of the two.
func (r *PolygonRecord) Sanitize() (dropped int) {
	n := r.CellCount()
	if len(r.CellIDs) < n {
		dropped += n - len(r.CellIDs)
		n = len(r.CellIDs)
	}
	if len(r.CellIDs) > n {
		r.CellIDs = r.CellIDs[:n]
	}

	maxOffset := uint32(len(r.Points) / 2)
	offsets := make([]uint32, 1, n+1)
	offsets[0] = 0
	points := make([]float64, 0, len(r.Points))
	ids := make([]uint32, 0, n)

	for i := 0; i < n; i++ {
		start := r.CellOffsets[i]
		end := r.CellOffsets[i+1]
		if end < start || start > maxOffset || end > maxOffset || end-start < 3 {
			dropped++
			continue
		}
		points = append(points, r.Points[start*2:end*2]...)
		offsets = append(offsets, offsets[len(offsets)-1]+(end-start))
		ids = append(ids, r.CellIDs[i])
	}

	r.Points = points
	r.CellOffsets = offsets
	r.CellIDs = ids
	return dropped
}

// ZIndices returns the sorted integer z-stack indices present in the
// record. Layers whose key is not a valid integer are skipped.
func (r *PointRecord) ZIndices() []int {
	out := make([]int, 0, len(r.Layers))
	for k := range r.Layers {
		z, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out = append(out, z)
	}
	sort.Ints(out)
	return out
}

// Layer returns the interleaved x,y positions for z-stack z.
func (r *PointRecord) Layer(z int) []float64 {
	return r.Layers[strconv.Itoa(z)]
}
