package layer

import (
	"math"
	"strconv"

	"github.com/merfish-atlas/viewer/internal/decode"
)

// Synthetic fallback data keeps the viewer interactive for manual
// testing when a dataset cannot be decoded. The geometry is a small
// deterministic grid of near-hexagonal cells, offset per z-stack so
// adjacent slices are visually distinct.

const (
	mockGridSide = 8
	mockCellSize = 100.0
)

func mockPolygons(z int) *decode.PolygonRecord {
	rec := &decode.PolygonRecord{
		CellOffsets: []uint32{0},
	}
	offset := float64(z%3) * mockCellSize * 0.25

	id := uint32(1)
	for gy := 0; gy < mockGridSide; gy++ {
		for gx := 0; gx < mockGridSide; gx++ {
			cx := float64(gx)*mockCellSize + offset
			cy := float64(gy)*mockCellSize + offset
			r := mockCellSize * 0.42

			const sides = 6
			for i := 0; i < sides; i++ {
				a := 2 * math.Pi * float64(i) / sides
				rec.Points = append(rec.Points, cx+r*math.Cos(a), cy+r*math.Sin(a))
			}
			rec.CellOffsets = append(rec.CellOffsets, rec.CellOffsets[len(rec.CellOffsets)-1]+sides)
			rec.CellIDs = append(rec.CellIDs, id)
			id++
		}
	}
	return rec
}

func mockPoints(gene string) *decode.PointRecord {
	// Seed positions off the gene name so different genes don't
	// overlap exactly.
	var seed float64
	for _, c := range gene {
		seed += float64(c)
	}

	rec := &decode.PointRecord{Layers: make(map[string][]float64)}
	for z := 0; z < 3; z++ {
		coords := make([]float64, 0, 2*200)
		for i := 0; i < 200; i++ {
			t := float64(i) + seed
			x := math.Mod(t*37.7+float64(z)*13, mockGridSide*mockCellSize)
			y := math.Mod(t*61.3+seed, mockGridSide*mockCellSize)
			coords = append(coords, x, y)
		}
		rec.Layers[strconv.Itoa(z)] = coords
	}
	return rec
}
