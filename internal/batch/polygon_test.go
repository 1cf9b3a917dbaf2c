package batch

import (
	"image/color"
	"math"
	"testing"

	"github.com/merfish-atlas/viewer/internal/decode"
	"github.com/merfish-atlas/viewer/internal/geom"
	"github.com/merfish-atlas/viewer/pkg/palette"
)

// twoSquares is a record with two 10x10 square cells: cell 7 at the
// origin and cell 8 offset to (20, 0).
func twoSquares() *decode.PolygonRecord {
	return &decode.PolygonRecord{
		Points: []float64{
			0, 0, 10, 0, 10, 10, 0, 10,
			20, 0, 30, 0, 30, 10, 20, 10,
		},
		CellOffsets: []uint32{0, 4, 8},
		CellIDs:     []uint32{7, 8},
	}
}

func squarePalette(t *testing.T) *palette.Palette {
	t.Helper()
	p, err := palette.FromHex(map[string]string{
		"TypeA": "#ff0000",
		"TypeB": "#0000ff",
	})
	if err != nil {
		t.Fatalf("palette: %v", err)
	}
	return p
}

var squareClusters = map[uint32]string{7: "TypeA", 8: "TypeB"}

func TestPolygonsTwoSquares(t *testing.T) {
	batches := Polygons(twoSquares(), squareClusters, squarePalette(t), PolygonOptions{Fill: true})
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	b := batches[0]

	if len(b.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(b.Cells))
	}

	// Closed loops: N segments for N points per cell.
	if got := b.SegmentCount(); got != 8 {
		t.Fatalf("expected 8 outline segments, got %d", got)
	}

	// A square triangulates into exactly 2 triangles.
	if got := b.TriangleCount(); got != 4 {
		t.Fatalf("expected 4 fill triangles, got %d", got)
	}
	if len(b.FillColors) != b.TriangleCount()*3*4 {
		t.Fatalf("fill color array out of step: %d floats for %d triangles", len(b.FillColors), b.TriangleCount())
	}

	wantBounds := geom.MakeBox(0, 0, 30, 10)
	if b.Bounds != wantBounds {
		t.Fatalf("expected bounds %+v, got %+v", wantBounds, b.Bounds)
	}

	c0 := b.Cells[0]
	if c0.CellID != 7 || c0.Cluster != "TypeA" {
		t.Fatalf("cell 0 metadata wrong: %+v", c0)
	}
	if math.Abs(c0.Centroid.X-5) > 1e-9 || math.Abs(c0.Centroid.Y-5) > 1e-9 {
		t.Fatalf("expected centroid (5,5), got %+v", c0.Centroid)
	}
	if (c0.Color != color.RGBA{R: 255, A: 255}) {
		t.Fatalf("cell 0 color wrong: %+v", c0.Color)
	}
}

func TestPolygonsDeterministic(t *testing.T) {
	opts := PolygonOptions{Fill: true}
	a := Polygons(twoSquares(), squareClusters, squarePalette(t), opts)
	b := Polygons(twoSquares(), squareClusters, squarePalette(t), opts)

	if len(a) != len(b) {
		t.Fatalf("batch counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if len(a[i].Outline) != len(b[i].Outline) {
			t.Fatal("outline buffers differ between identical builds")
		}
		for j := range a[i].Outline {
			if a[i].Outline[j] != b[i].Outline[j] {
				t.Fatal("outline content differs between identical builds")
			}
		}
	}
}

func TestPolygonsChunking(t *testing.T) {
	// 5 cells with chunk size 2 should produce 3 batches and 2 yields.
	rec := &decode.PolygonRecord{CellOffsets: []uint32{0}}
	for i := 0; i < 5; i++ {
		base := float64(i * 20)
		rec.Points = append(rec.Points, base, 0, base+10, 0, base+10, 10, base, 10)
		rec.CellOffsets = append(rec.CellOffsets, rec.CellOffsets[len(rec.CellOffsets)-1]+4)
		rec.CellIDs = append(rec.CellIDs, uint32(i+1))
	}

	yields := 0
	batches := Polygons(rec, nil, palette.Empty(), PolygonOptions{
		ChunkSize: 2,
		Yield:     func() { yields++ },
	})

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if got := len(batches[0].Cells) + len(batches[1].Cells) + len(batches[2].Cells); got != 5 {
		t.Fatalf("expected 5 cells across batches, got %d", got)
	}
	if yields != 2 {
		t.Fatalf("expected 2 yields between 3 chunks, got %d", yields)
	}
}

func TestDecimationKeepsFullResRing(t *testing.T) {
	// A 100-point circle decimated to at most 10 display points must
	// keep the original 100 points in the pick ring.
	rec := &decode.PolygonRecord{CellOffsets: []uint32{0, 100}, CellIDs: []uint32{1}}
	for i := 0; i < 100; i++ {
		a := 2 * math.Pi * float64(i) / 100
		rec.Points = append(rec.Points, 50+40*math.Cos(a), 50+40*math.Sin(a))
	}

	batches := Polygons(rec, nil, palette.Empty(), PolygonOptions{MaxPointsPerCell: 10})
	if len(batches) != 1 || len(batches[0].Cells) != 1 {
		t.Fatal("expected one batch with one cell")
	}
	cell := batches[0].Cells[0]

	if len(cell.Ring) != 200 {
		t.Fatalf("pick ring decimated: %d floats, want 200", len(cell.Ring))
	}
	if cell.SegmentCount > 10 {
		t.Fatalf("display geometry not decimated: %d segments", cell.SegmentCount)
	}
}

func TestTransformApplied(t *testing.T) {
	tf := geom.FlipSwap(true, false, false)
	batches := Polygons(twoSquares(), squareClusters, squarePalette(t), PolygonOptions{Transform: tf})
	b := batches[0]

	wantBounds := geom.MakeBox(-30, 0, 30, 10)
	if b.Bounds != wantBounds {
		t.Fatalf("expected flipped bounds %+v, got %+v", wantBounds, b.Bounds)
	}
	if b.Cells[0].Centroid.X > 0 {
		t.Fatalf("centroid not flipped: %+v", b.Cells[0].Centroid)
	}
}

func TestRecolorCellInPlace(t *testing.T) {
	batches := Polygons(twoSquares(), squareClusters, squarePalette(t), PolygonOptions{Fill: true})
	b := batches[0]

	fillLen := len(b.Fill)
	colorLen := len(b.FillColors)
	outlineLen := len(b.Outline)

	green := color.RGBA{G: 255, A: 255}
	for i := 0; i < 100; i++ {
		b.RecolorCell(0, green)
	}

	if len(b.Fill) != fillLen || len(b.FillColors) != colorLen || len(b.Outline) != outlineLen {
		t.Fatal("restyle changed buffer lengths")
	}
	if b.Cells[0].Color != green {
		t.Fatalf("cell color not updated: %+v", b.Cells[0].Color)
	}

	// Cell 0's vertices are green, cell 1's untouched.
	sawGreen := false
	for tri, ci := range b.fillCell {
		off := tri * 3 * 4
		g := b.FillColors[off+1]
		if ci == 0 {
			if g != 1 {
				t.Fatalf("triangle %d of cell 0 not recolored", tri)
			}
			sawGreen = true
		} else if g != 0 {
			t.Fatalf("triangle %d of cell 1 recolored unexpectedly", tri)
		}
	}
	if !sawGreen {
		t.Fatal("no triangles belong to cell 0")
	}
}
