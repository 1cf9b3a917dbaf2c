// Package pick resolves a pointer position to the cell or transcript
// under it.
//
// Hit-testing runs only against the currently registered active
// geometry, which the view swaps as z-stack and visibility change, so
// each query touches a bounded set. Polygons are tested against their
// full-resolution rings kept in batch metadata, never the decimated
// display geometry.
package pick

import (
	"math"
	"sync"

	"github.com/merfish-atlas/viewer/internal/batch"
	"github.com/merfish-atlas/viewer/internal/camera"
	"github.com/merfish-atlas/viewer/internal/geom"
)

// Hit thresholds in screen pixels. The effective threshold is
// interpolated between these over the camera's zoom position: loose
// when zoomed out, tight when zoomed in, clamped at both ends.
const (
	MinThresholdPx = 4.0
	MaxThresholdPx = 14.0
)

// Result identifies the primitive under the pointer.
type Result struct {
	CellID  uint32
	Cluster string
	Gene    string // set when a transcript point was hit instead of a cell

	// Batch and Cell locate the hit cell inside the active geometry so
	// the view can recolor it in place for hover highlighting. Unset
	// for transcript hits.
	Batch *batch.PolygonBatch
	Cell  int
}

// Engine hit-tests pointer positions against active geometry.
type Engine struct {
	mu       sync.Mutex
	polygons []*batch.PolygonBatch
	points   map[string]*batch.PointBatch
}

// NewEngine creates an engine with no active geometry.
func NewEngine() *Engine {
	return &Engine{points: make(map[string]*batch.PointBatch)}
}

// SetActive replaces the set of polygon batches eligible for picking.
func (e *Engine) SetActive(batches []*batch.PolygonBatch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polygons = batches
}

// SetActivePoints registers a gene's point batch as pick-eligible. A
// nil batch deregisters the gene.
func (e *Engine) SetActivePoints(gene string, b *batch.PointBatch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b == nil {
		delete(e.points, gene)
		return
	}
	e.points[gene] = b
}

// Replace atomically swaps the full active geometry set, polygons
// and gene points together. The view calls this after every
// visibility projection.
func (e *Engine) Replace(polygons []*batch.PolygonBatch, points map[string]*batch.PointBatch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polygons = polygons
	if points == nil {
		points = make(map[string]*batch.PointBatch)
	}
	e.points = points
}

// Clear drops all active geometry.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polygons = nil
	e.points = make(map[string]*batch.PointBatch)
}

// Threshold returns the current hit threshold in screen pixels for
// the given camera.
func Threshold(cam *camera.Rig) float64 {
	return geom.Lerp(MaxThresholdPx, MinThresholdPx, cam.ZoomNorm())
}

// Pick resolves a screen-pixel pointer position. It returns nil when
// no active geometry is registered or nothing is within threshold;
// missing geometry is "nothing to pick", never an error.
func (e *Engine) Pick(screen geom.Point, cam *camera.Rig) *Result {
	e.mu.Lock()
	polygons := e.polygons
	points := e.points
	e.mu.Unlock()

	if len(polygons) == 0 && len(points) == 0 {
		return nil
	}

	toWorld, err := cam.ScreenToWorld()
	if err != nil {
		return nil
	}
	world := toWorld.MulPoint(screen)
	threshold := Threshold(cam) / cam.Scale() // world units

	// Interior hits win outright.
	for _, b := range polygons {
		if !expanded(b.Bounds, threshold).Contains(world) {
			continue
		}
		for i := range b.Cells {
			if pointInRing(world, b.Cells[i].Ring) {
				return &Result{CellID: b.Cells[i].CellID, Cluster: b.Cells[i].Cluster, Batch: b, Cell: i}
			}
		}
	}

	// Otherwise the nearest boundary edge within threshold.
	best := threshold
	var bestBatch *batch.PolygonBatch
	bestIdx := -1
	for _, b := range polygons {
		if !expanded(b.Bounds, threshold).Contains(world) {
			continue
		}
		for i := range b.Cells {
			if d := ringDistance(world, b.Cells[i].Ring); d < best {
				best = d
				bestBatch = b
				bestIdx = i
			}
		}
	}
	if bestBatch != nil {
		meta := &bestBatch.Cells[bestIdx]
		return &Result{CellID: meta.CellID, Cluster: meta.Cluster, Batch: bestBatch, Cell: bestIdx}
	}

	// Finally the nearest transcript point within threshold.
	bestDist := threshold
	bestGene := ""
	for gene, pb := range points {
		if !expanded(pb.Bounds, threshold).Contains(world) {
			continue
		}
		for i := 0; i < pb.Len(); i++ {
			p := geom.MakePoint(float64(pb.Positions[i*2]), float64(pb.Positions[i*2+1]))
			if d := geom.Dist(world, p); d < bestDist {
				bestDist = d
				bestGene = gene
			}
		}
	}
	if bestGene != "" {
		return &Result{Gene: bestGene}
	}
	return nil
}

func expanded(b geom.Box, margin float64) geom.Box {
	return geom.MakeBox(b.X-margin, b.Y-margin, b.W+2*margin, b.H+2*margin)
}

// pointInRing is a standard even-odd ray cast over the interleaved
// x,y ring.
func pointInRing(p geom.Point, ring []float64) bool {
	n := len(ring) / 2
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i*2], ring[i*2+1]
		xj, yj := ring[j*2], ring[j*2+1]
		if (yi > p.Y) != (yj > p.Y) &&
			p.X < (xj-xi)*(p.Y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// ringDistance returns the minimum distance from p to any edge of the
// closed ring.
func ringDistance(p geom.Point, ring []float64) float64 {
	n := len(ring) / 2
	best := math.MaxFloat64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a := geom.MakePoint(ring[i*2], ring[i*2+1])
		b := geom.MakePoint(ring[j*2], ring[j*2+1])
		if d := segmentDistance(p, a, b); d < best {
			best = d
		}
	}
	return best
}

func segmentDistance(p, a, b geom.Point) float64 {
	ab := b.Sub(a)
	lenSq := geom.Dot(ab, ab)
	if lenSq == 0 {
		return geom.Dist(p, a)
	}
	t := geom.Dot(p.Sub(a), ab) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return geom.Dist(p, a.Add(ab.Scale(t)))
}
