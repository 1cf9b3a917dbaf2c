package batch

import (
	"image/color"
	"math"

	"github.com/merfish-atlas/viewer/internal/geom"
)

// PointBatch holds one gene layer's transcript positions as
// interleaved attribute arrays sized to the point count. This is the
// path exercised at multi-million-point scale: everything is built
// with direct index writes, no per-point allocation.
type PointBatch struct {
	Positions []float32 // 2 per point
	Colors    []float32 // 3 per point
	Sizes     []float32 // 1 per point
	Alphas    []float32 // 1 per point
	Bounds    geom.Box

	dirty bool
}

// Points builds a point batch from interleaved x,y coordinates.
func Points(coords []float64, c color.RGBA, size float32, tf geom.Affine) *PointBatch {
	zero := geom.Affine{}
	if tf == zero {
		tf = geom.Identity()
	}

	n := len(coords) / 2
	b := &PointBatch{
		Positions: make([]float32, n*2),
		Colors:    make([]float32, n*3),
		Sizes:     make([]float32, n),
		Alphas:    make([]float32, n),
	}

	r := float32(c.R) / 255
	g := float32(c.G) / 255
	bl := float32(c.B) / 255
	alpha := float32(c.A) / 255

	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for i := 0; i < n; i++ {
		p := tf.MulPoint(geom.MakePoint(coords[i*2], coords[i*2+1]))
		b.Positions[i*2] = float32(p.X)
		b.Positions[i*2+1] = float32(p.Y)
		b.Colors[i*3] = r
		b.Colors[i*3+1] = g
		b.Colors[i*3+2] = bl
		b.Sizes[i] = size
		b.Alphas[i] = alpha
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	if n > 0 {
		b.Bounds = geom.MakeBox(xmin, ymin, xmax-xmin, ymax-ymin)
	}
	return b
}

// Len returns the number of points in the batch.
func (b *PointBatch) Len() int { return len(b.Sizes) }

// Recolor rewrites the color attribute in place and marks the batch
// dirty. Buffer lengths never change.
func (b *PointBatch) Recolor(c color.RGBA) {
	r := float32(c.R) / 255
	g := float32(c.G) / 255
	bl := float32(c.B) / 255
	for i := 0; i < len(b.Sizes); i++ {
		b.Colors[i*3] = r
		b.Colors[i*3+1] = g
		b.Colors[i*3+2] = bl
	}
	b.dirty = true
}

// Rescale rewrites the size attribute in place and marks the batch
// dirty.
func (b *PointBatch) Rescale(size float32) {
	for i := range b.Sizes {
		b.Sizes[i] = size
	}
	b.dirty = true
}

// SetAlpha rewrites the alpha attribute in place and marks the batch
// dirty.
func (b *PointBatch) SetAlpha(alpha float32) {
	for i := range b.Alphas {
		b.Alphas[i] = alpha
	}
	b.dirty = true
}

// Dirty reports whether attributes changed since the last upload.
func (b *PointBatch) Dirty() bool { return b.dirty }

// ClearDirty marks the batch clean after an upload.
func (b *PointBatch) ClearDirty() { b.dirty = false }
