package layer

import (
	"github.com/merfish-atlas/viewer/internal/batch"
	"github.com/merfish-atlas/viewer/internal/geom"
)

// State tracks a layer's load lifecycle. Failed loads return to
// StateIdle; the layer stays absent visually and is retried on the
// next EnsureLoaded.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	default:
		return "loaded"
	}
}

// Layer is the rendering unit owned by the Store: one polygon dataset
// or one gene z-slice plus its derived geometry batches.
type Layer struct {
	Key     Key
	State   State
	Visible bool
	Opacity float32

	// Mock marks synthetic fallback geometry substituted after a
	// decode failure so the viewer stays interactive.
	Mock bool

	Polygons []*batch.PolygonBatch
	Points   *batch.PointBatch

	ready chan struct{}
}

// Ready returns a channel closed once the load settles: geometry
// attached, load failed, or the layer evicted mid-flight. Consumers
// wait on it instead of polling load state, then re-check State.
func (l *Layer) Ready() <-chan struct{} { return l.ready }

// Bounds returns the union of the layer's batch bounds.
func (l *Layer) Bounds() geom.Box {
	var b geom.Box
	for _, pb := range l.Polygons {
		b = b.Union(pb.Bounds)
	}
	if l.Points != nil {
		b = b.Union(l.Points.Bounds)
	}
	return b
}

// dispose frees the layer's geometry.
func (l *Layer) dispose() {
	l.Polygons = nil
	l.Points = nil
	l.State = StateIdle
	l.Visible = false
}
