// Package batch converts decoded flat-array datasets into merged,
// draw-ready geometry buffers.
//
// Merging is the dominant performance lever at this scale: tens of
// thousands of cell outlines collapse into a handful of buffers
// instead of one draw per polygon. Cells are processed in fixed-size
// chunks so a very large layer never occupies the caller for an
// unbounded stretch; an optional yield hook runs between chunks.
package batch

import (
	"image/color"
	"log"
	"math"

	"github.com/rclancey/earcut"

	"github.com/merfish-atlas/viewer/internal/decode"
	"github.com/merfish-atlas/viewer/internal/geom"
	"github.com/merfish-atlas/viewer/pkg/palette"
)

// Defaults for polygon batching.
const (
	DefaultChunkSize        = 100
	DefaultMaxPointsPerCell = 50
)

// CellMeta carries the picking attributes for one cell within a
// merged batch. Ring holds the full-resolution transformed polygon:
// display geometry may be decimated, but hit-testing always runs
// against the original outline.
type CellMeta struct {
	CellID   uint32
	Cluster  string
	Color    color.RGBA
	Centroid geom.Point
	Ring     []float64 // interleaved x,y, closed implicitly

	FirstSegment int // index into the chunk's outline buffer
	SegmentCount int
}

// PolygonBatch is one chunk of merged cell geometry.
type PolygonBatch struct {
	// Outline holds 4 floats (x0 y0 x1 y1) per closed-loop segment
	// for every cell in the chunk.
	Outline []float32

	// Fill holds 6 floats (3 vertices) per triangle, with parallel
	// per-vertex RGBA colors, when fill batching is enabled.
	Fill       []float32
	FillColors []float32
	// fillCell maps each fill triangle to its cell index in Cells, so
	// recoloring can rewrite the right vertex ranges in place.
	fillCell []int

	Cells  []CellMeta
	Bounds geom.Box
}

// PolygonOptions controls polygon batching.
type PolygonOptions struct {
	ChunkSize        int
	MaxPointsPerCell int
	Fill             bool
	Transform        geom.Affine // coordinate flip/swap, applied per point
	Yield            func()      // invoked between chunks when set
}

func (o *PolygonOptions) defaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxPointsPerCell <= 0 {
		o.MaxPointsPerCell = DefaultMaxPointsPerCell
	}
	zero := geom.Affine{}
	if o.Transform == zero {
		o.Transform = geom.Identity()
	}
}

// Polygons batches a sanitized polygon record into per-chunk merged
// buffers. Cells the record marks invalid should already have been
// dropped via Sanitize; anything degenerate that remains is skipped
// with a log line rather than crashing the build.
func Polygons(rec *decode.PolygonRecord, clusters map[uint32]string, pal *palette.Palette, opts PolygonOptions) []*PolygonBatch {
	opts.defaults()

	n := rec.CellCount()
	if n == 0 {
		return nil
	}

	batches := make([]*PolygonBatch, 0, (n+opts.ChunkSize-1)/opts.ChunkSize)
	for start := 0; start < n; start += opts.ChunkSize {
		end := start + opts.ChunkSize
		if end > n {
			end = n
		}
		b := buildChunk(rec, clusters, pal, opts, start, end)
		if b != nil {
			batches = append(batches, b)
		}
		if opts.Yield != nil && end < n {
			opts.Yield()
		}
	}
	return batches
}

func buildChunk(rec *decode.PolygonRecord, clusters map[uint32]string, pal *palette.Palette, opts PolygonOptions, start, end int) *PolygonBatch {
	b := &PolygonBatch{
		Cells: make([]CellMeta, 0, end-start),
	}

	for i := start; i < end; i++ {
		raw := rec.Cell(i)
		pointCount := len(raw) / 2
		if pointCount < 3 {
			log.Printf("batch: skipping degenerate cell %d (%d points)", rec.CellIDs[i], pointCount)
			continue
		}

		// Full-resolution ring with the coordinate transform applied;
		// retained for picking regardless of display decimation.
		ring := make([]float64, len(raw))
		for j := 0; j < pointCount; j++ {
			p := opts.Transform.MulPoint(geom.MakePoint(raw[j*2], raw[j*2+1]))
			ring[j*2] = p.X
			ring[j*2+1] = p.Y
		}

		display := decimate(ring, opts.MaxPointsPerCell)

		cellID := rec.CellIDs[i]
		cluster := clusters[cellID]
		cellColor := pal.Color(cluster)

		meta := CellMeta{
			CellID:       cellID,
			Cluster:      cluster,
			Color:        cellColor,
			Centroid:     centroid(ring),
			Ring:         ring,
			FirstSegment: len(b.Outline) / 4,
			SegmentCount: len(display) / 2,
		}

		appendOutline(&b.Outline, display)
		if opts.Fill {
			appendFill(b, display, cellColor, len(b.Cells), cellID)
		}

		b.Bounds = b.Bounds.Union(ringBounds(ring))
		b.Cells = append(b.Cells, meta)
	}

	if len(b.Cells) == 0 {
		return nil
	}
	return b
}

// decimate uniformly strides the ring down to at most maxPoints
// points. This is a lossy simplification for display only.
func decimate(ring []float64, maxPoints int) []float64 {
	count := len(ring) / 2
	if count <= maxPoints {
		return ring
	}
	stride := (count + maxPoints - 1) / maxPoints
	out := make([]float64, 0, (count/stride+1)*2)
	for i := 0; i < count; i += stride {
		out = append(out, ring[i*2], ring[i*2+1])
	}
	return out
}

// appendOutline adds a closed-loop segment list: N segments for N
// points, wrapping last→first.
func appendOutline(buf *[]float32, ring []float64) {
	count := len(ring) / 2
	for i := 0; i < count; i++ {
		j := (i + 1) % count
		*buf = append(*buf,
			float32(ring[i*2]), float32(ring[i*2+1]),
			float32(ring[j*2]), float32(ring[j*2+1]),
		)
	}
}

// appendFill triangulates the display ring and appends position and
// color vertices. Earcut handles concave simple polygons, which the
// naive fan approach silently corrupted.
func appendFill(b *PolygonBatch, ring []float64, c color.RGBA, cellIdx int, cellID uint32) {
	indices, err := earcut.Earcut(ring, nil, 2)
	if err != nil || len(indices)%3 != 0 {
		log.Printf("batch: triangulation failed for cell %d: %v", cellID, err)
		return
	}

	r := float32(c.R) / 255
	g := float32(c.G) / 255
	bl := float32(c.B) / 255

	for t := 0; t < len(indices); t += 3 {
		for v := 0; v < 3; v++ {
			idx := indices[t+v]
			b.Fill = append(b.Fill, float32(ring[idx*2]), float32(ring[idx*2+1]))
			b.FillColors = append(b.FillColors, r, g, bl, 1)
		}
		b.fillCell = append(b.fillCell, cellIdx)
	}
}

// RecolorCell rewrites the fill color of one cell's triangles in
// place. Vertex and index counts never change.
func (b *PolygonBatch) RecolorCell(cellIdx int, c color.RGBA) {
	r := float32(c.R) / 255
	g := float32(c.G) / 255
	bl := float32(c.B) / 255
	for t, ci := range b.fillCell {
		if ci != cellIdx {
			continue
		}
		for v := 0; v < 3; v++ {
			off := (t*3 + v) * 4
			b.FillColors[off] = r
			b.FillColors[off+1] = g
			b.FillColors[off+2] = bl
		}
	}
	if cellIdx >= 0 && cellIdx < len(b.Cells) {
		b.Cells[cellIdx].Color = c
	}
}

// SegmentCount returns the number of outline segments in the batch.
func (b *PolygonBatch) SegmentCount() int { return len(b.Outline) / 4 }

// TriangleCount returns the number of fill triangles in the batch.
func (b *PolygonBatch) TriangleCount() int { return len(b.Fill) / 6 }

// centroid computes the area centroid of a simple polygon ring,
// falling back to the vertex mean for near-zero areas.
func centroid(ring []float64) geom.Point {
	count := len(ring) / 2
	var cx, cy, area float64
	for i := 0; i < count; i++ {
		j := (i + 1) % count
		x0, y0 := ring[i*2], ring[i*2+1]
		x1, y1 := ring[j*2], ring[j*2+1]
		cross := x0*y1 - x1*y0
		area += cross
		cx += (x0 + x1) * cross
		cy += (y0 + y1) * cross
	}
	area /= 2
	if math.Abs(area) < 1e-12 {
		var sx, sy float64
		for i := 0; i < count; i++ {
			sx += ring[i*2]
			sy += ring[i*2+1]
		}
		return geom.MakePoint(sx/float64(count), sy/float64(count))
	}
	return geom.MakePoint(cx/(6*area), cy/(6*area))
}

func ringBounds(ring []float64) geom.Box {
	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for i := 0; i < len(ring); i += 2 {
		xmin = math.Min(xmin, ring[i])
		xmax = math.Max(xmax, ring[i])
		ymin = math.Min(ymin, ring[i+1])
		ymax = math.Max(ymax, ring[i+1])
	}
	return geom.MakeBox(xmin, ymin, xmax-xmin, ymax-ymin)
}
