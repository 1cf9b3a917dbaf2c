// Package camera provides the orthographic 2D camera and pan/zoom
// controller for the viewer.
package camera

import (
	"math"

	"github.com/merfish-atlas/viewer/internal/geom"
)

// Zoom limits, as multipliers over the bounds-fitting scale.
const (
	MinZoom = 0.25
	MaxZoom = 64.0
)

// Rig is an orthographic camera over the dataset's world space. The
// frustum is sized to max(width, height) of the current data bounds,
// and all pan/zoom operates in screen pixels.
type Rig struct {
	viewportW int
	viewportH int

	center geom.Point // world-space look-at target
	zoom   float64    // multiplier over the fit scale

	dataBounds geom.Box
	dataTF     geom.Affine // current flip/swap transform
}

// New creates a camera for the given viewport size.
func New(viewportW, viewportH int) *Rig {
	return &Rig{
		viewportW:  viewportW,
		viewportH:  viewportH,
		zoom:       1,
		dataTF:     geom.Identity(),
		dataBounds: geom.MakeBox(0, 0, 1, 1),
	}
}

// SetViewport updates the viewport size, preserving the world center
// (fixed aspect correction on resize).
func (r *Rig) SetViewport(w, h int) {
	if w > 0 {
		r.viewportW = w
	}
	if h > 0 {
		r.viewportH = h
	}
}

// FitToBounds centers the camera on the given world bounds and resets
// zoom so the bounds fill the viewport.
func (r *Rig) FitToBounds(b geom.Box) {
	if b.W <= 0 && b.H <= 0 {
		return
	}
	r.dataBounds = b
	r.center = b.Center()
	r.zoom = 1
}

// SetDataTransform applies a new coordinate flip/swap. The same
// transform the batcher applies to data coordinates is applied to the
// camera target and bounds; without this symmetry pan/zoom drifts
// relative to the transformed data.
func (r *Rig) SetDataTransform(tf geom.Affine) {
	prevInv, err := r.dataTF.Inv()
	if err != nil {
		// Flip/swap transforms are always invertible; a zero-valued
		// transform means the rig was never initialized.
		prevInv = geom.Identity()
	}
	delta := tf.Mul(prevInv)
	r.center = delta.MulPoint(r.center)
	r.dataBounds = delta.MulBox(r.dataBounds)
	r.dataTF = tf
}

// DataTransform returns the current flip/swap transform.
func (r *Rig) DataTransform() geom.Affine { return r.dataTF }

// Pan shifts the camera by a screen-pixel delta.
func (r *Rig) Pan(dxPix, dyPix float64) {
	s := r.Scale()
	r.center.X -= dxPix / s
	r.center.Y -= dyPix / s
}

// ZoomAt multiplies the zoom by factor, keeping the world point under
// the given screen anchor fixed.
func (r *Rig) ZoomAt(factor float64, anchor geom.Point) {
	before, err := r.ScreenToWorld()
	if err != nil {
		return
	}
	worldAnchor := before.MulPoint(anchor)

	r.SetZoom(r.zoom * factor)

	after, err := r.ScreenToWorld()
	if err != nil {
		return
	}
	moved := after.MulPoint(anchor)
	r.center.X += worldAnchor.X - moved.X
	r.center.Y += worldAnchor.Y - moved.Y
}

// SetZoom sets the zoom multiplier, clamped to [MinZoom, MaxZoom].
func (r *Rig) SetZoom(z float64) {
	if z < MinZoom {
		z = MinZoom
	}
	if z > MaxZoom {
		z = MaxZoom
	}
	r.zoom = z
}

// Zoom returns the current zoom multiplier.
func (r *Rig) Zoom() float64 { return r.zoom }

// ZoomNorm returns the camera's position between max zoom-out (0) and
// max zoom-in (1) on a log scale. Picking uses this to adapt its hit
// threshold.
func (r *Rig) ZoomNorm() float64 {
	t := (math.Log(r.zoom) - math.Log(MinZoom)) / (math.Log(MaxZoom) - math.Log(MinZoom))
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Scale returns screen pixels per world unit at the current zoom.
func (r *Rig) Scale() float64 {
	side := math.Max(r.dataBounds.W, r.dataBounds.H)
	if side <= 0 {
		side = 1
	}
	fit := math.Min(float64(r.viewportW), float64(r.viewportH)) / side
	return fit * r.zoom
}

// Center returns the world-space look-at target.
func (r *Rig) Center() geom.Point { return r.center }

// Viewport returns the viewport size in pixels.
func (r *Rig) Viewport() (int, int) { return r.viewportW, r.viewportH }

// WorldToScreen returns the transform from world space to screen
// pixels (origin top-left).
func (r *Rig) WorldToScreen() geom.Affine {
	s := r.Scale()
	return geom.MakeAffine(
		s, 0, float64(r.viewportW)/2-s*r.center.X,
		0, s, float64(r.viewportH)/2-s*r.center.Y,
	)
}

// ScreenToWorld returns the inverse of WorldToScreen.
func (r *Rig) ScreenToWorld() (geom.Affine, error) {
	return r.WorldToScreen().Inv()
}
