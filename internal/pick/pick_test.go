package pick

import (
	"image/color"
	"testing"

	"github.com/merfish-atlas/viewer/internal/batch"
	"github.com/merfish-atlas/viewer/internal/camera"
	"github.com/merfish-atlas/viewer/internal/decode"
	"github.com/merfish-atlas/viewer/internal/geom"
	"github.com/merfish-atlas/viewer/pkg/palette"
)

// squareBatch builds one 100x100 square cell at the origin.
func squareBatch(t *testing.T) *batch.PolygonBatch {
	t.Helper()
	rec := &decode.PolygonRecord{
		Points:      []float64{0, 0, 100, 0, 100, 100, 0, 100},
		CellOffsets: []uint32{0, 4},
		CellIDs:     []uint32{42},
	}
	batches := batch.Polygons(rec, map[uint32]string{42: "TypeA"}, palette.Empty(), batch.PolygonOptions{})
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	return batches[0]
}

// testCamera fits a 400x400 viewport to a 400-unit region around the
// cell, so at zoom 1 a screen pixel is one world unit and the cell
// covers a quarter of the viewport.
func testCamera() *camera.Rig {
	cam := camera.New(400, 400)
	cam.FitToBounds(geom.MakeBox(-150, -150, 400, 400))
	return cam
}

func TestPickNoGeometry(t *testing.T) {
	e := NewEngine()
	if res := e.Pick(geom.MakePoint(200, 200), testCamera()); res != nil {
		t.Fatalf("expected nil with no geometry, got %+v", res)
	}
}

func TestPickInterior(t *testing.T) {
	e := NewEngine()
	b := squareBatch(t)
	e.SetActive([]*batch.PolygonBatch{b})
	cam := testCamera()

	// Viewport middle maps to world (50, 50), inside the cell.
	res := e.Pick(geom.MakePoint(200, 200), cam)
	if res == nil {
		t.Fatal("expected interior hit")
	}
	if res.CellID != 42 || res.Cluster != "TypeA" {
		t.Fatalf("wrong hit: %+v", res)
	}
	if res.Gene != "" {
		t.Fatalf("polygon hit carries gene: %+v", res)
	}
	if res.Batch != b || res.Cell != 0 {
		t.Fatalf("hit does not locate the cell in its batch: %+v", res)
	}
}

func TestPickEmptySpace(t *testing.T) {
	e := NewEngine()
	e.SetActive([]*batch.PolygonBatch{squareBatch(t)})
	cam := testCamera()

	// Far corner of the viewport is well outside the cell and any
	// threshold.
	if res := e.Pick(geom.MakePoint(2, 2), cam); res != nil {
		t.Fatalf("expected miss in empty space, got %+v", res)
	}
}

func TestPickNearEdgeWithinThreshold(t *testing.T) {
	e := NewEngine()
	b := squareBatch(t)
	e.SetActive([]*batch.PolygonBatch{b})
	cam := testCamera()

	// Two pixels outside the left edge, well within the default
	// threshold.
	toScreen := cam.WorldToScreen()
	edge := toScreen.MulPoint(geom.MakePoint(0, 50))

	res := e.Pick(geom.MakePoint(edge.X-2, edge.Y), cam)
	if res == nil || res.CellID != 42 {
		t.Fatalf("expected edge hit within threshold, got %+v", res)
	}
	if res.Batch != b || res.Cell != 0 {
		t.Fatalf("edge hit does not locate the cell in its batch: %+v", res)
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	e := NewEngine()
	e.SetActive([]*batch.PolygonBatch{squareBatch(t)})
	cam := testCamera()

	// The same screen-pixel offset from the cell edge hits when zoomed
	// out and misses when zoomed in, because the threshold tightens
	// with zoom.
	offsetPx := 10.0

	cam.SetZoom(camera.MinZoom)
	if Threshold(cam) != MaxThresholdPx {
		t.Fatalf("expected max threshold at min zoom, got %v", Threshold(cam))
	}
	toScreen := cam.WorldToScreen()
	edge := toScreen.MulPoint(geom.MakePoint(0, 50))
	if res := e.Pick(geom.MakePoint(edge.X-offsetPx, edge.Y), cam); res == nil {
		t.Fatal("expected hit at 10px offset when zoomed out")
	}

	cam.SetZoom(camera.MaxZoom)
	if Threshold(cam) != MinThresholdPx {
		t.Fatalf("expected min threshold at max zoom, got %v", Threshold(cam))
	}
	toScreen = cam.WorldToScreen()
	edge = toScreen.MulPoint(geom.MakePoint(0, 50))
	if res := e.Pick(geom.MakePoint(edge.X-offsetPx, edge.Y), cam); res != nil {
		t.Fatalf("expected miss at 10px offset when zoomed in, got %+v", res)
	}
}

func TestPickGenePoint(t *testing.T) {
	e := NewEngine()
	cam := testCamera()

	pb := batch.Points([]float64{50, 50}, color.RGBA{R: 255, A: 255}, 2, geom.Identity())
	e.SetActivePoints("Gad1", pb)

	res := e.Pick(geom.MakePoint(200, 200), cam)
	if res == nil {
		t.Fatal("expected gene point hit")
	}
	if res.Gene != "Gad1" {
		t.Fatalf("wrong gene: %+v", res)
	}

	// Deregistering removes it from picking.
	e.SetActivePoints("Gad1", nil)
	if res := e.Pick(geom.MakePoint(200, 200), cam); res != nil {
		t.Fatalf("expected miss after deregistration, got %+v", res)
	}
}

func TestPolygonWinsOverPoint(t *testing.T) {
	e := NewEngine()
	cam := testCamera()

	pb := batch.Points([]float64{50, 50}, color.RGBA{R: 255, A: 255}, 2, geom.Identity())
	e.Replace([]*batch.PolygonBatch{squareBatch(t)}, map[string]*batch.PointBatch{"Gad1": pb})

	res := e.Pick(geom.MakePoint(200, 200), cam)
	if res == nil || res.CellID != 42 || res.Gene != "" {
		t.Fatalf("expected polygon to shadow the point, got %+v", res)
	}
}

func TestClear(t *testing.T) {
	e := NewEngine()
	e.SetActive([]*batch.PolygonBatch{squareBatch(t)})
	e.Clear()
	if res := e.Pick(geom.MakePoint(200, 200), testCamera()); res != nil {
		t.Fatalf("expected nil after Clear, got %+v", res)
	}
}
