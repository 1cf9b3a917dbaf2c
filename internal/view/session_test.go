package view

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/merfish-atlas/viewer/internal/layer"
	"github.com/merfish-atlas/viewer/internal/store"
	"github.com/merfish-atlas/viewer/internal/visibility"
	"github.com/merfish-atlas/viewer/pkg/palette"
)

// Two 10x10 square cells, 101 at the origin and 102 at x=20.
const testPolygonJSON = `{"points":[0,0,10,0,10,10,0,10,20,0,30,0,30,10,20,10],"cellOffsets":[0,4,8],"cellIds":[101,102]}`

const testGeneJSON = `{"layers":{"0":[5,5],"1":[25,5]}}`

type fakeSource struct {
	contourFetches int64
	geneFetches    int64
	contourPayload []byte
	genePayload    []byte
}

func (f *fakeSource) Contours(ctx context.Context, kind layer.Kind, z int, compressed bool) ([]byte, error) {
	atomic.AddInt64(&f.contourFetches, 1)
	return f.contourPayload, nil
}

func (f *fakeSource) GenePoints(ctx context.Context, gene string, compressed bool) ([]byte, error) {
	atomic.AddInt64(&f.geneFetches, 1)
	return f.genePayload, nil
}

func gzipString(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// newTestSession opens a session over a 200x150 viewport. With data
// bounds (0,0,30,10) the camera fits at scale 5, center (15,5), so
// world (5,5) lands at screen (50,75).
func newTestSession(t *testing.T) (*Session, *fakeSource) {
	t.Helper()
	src := &fakeSource{
		contourPayload: gzipString(t, testPolygonJSON),
		genePayload:    gzipString(t, testGeneJSON),
	}
	pal, err := palette.FromHex(map[string]string{"TypeA": "#ff0000"})
	if err != nil {
		t.Fatalf("palette: %v", err)
	}
	s, err := NewSession(SessionConfig{
		Source:   src,
		Clusters: map[uint32]string{101: "TypeA", 102: "TypeB"},
		Palette:  pal,
		Width:    200,
		Height:   150,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s, src
}

func TestSessionLoadsDefaultProjection(t *testing.T) {
	s, src := newTestSession(t)

	key := layer.Key{Kind: layer.KindBoundary, ZStack: 0}
	l, ok := s.Layers().Get(key)
	if !ok || l.State != layer.StateLoaded || !l.Visible {
		t.Fatal("default projection did not load boundaries at z=0")
	}
	if n := atomic.LoadInt64(&src.contourFetches); n == 0 {
		t.Fatal("no fetch recorded")
	}

	// First load fits the camera to the data bounds.
	c := s.Camera().Center()
	if c.X != 15 || c.Y != 5 {
		t.Fatalf("camera not fitted: center %+v", c)
	}
}

func TestSessionPick(t *testing.T) {
	s, _ := newTestSession(t)

	res := s.Pick(50, 75)
	if res == nil || res.CellID != 101 || res.Cluster != "TypeA" {
		t.Fatalf("expected cell 101/TypeA, got %+v", res)
	}

	if res := s.Pick(1, 149); res != nil {
		t.Fatalf("expected miss in empty space, got %+v", res)
	}
}

func TestSessionHoverHighlight(t *testing.T) {
	s, _ := newTestSession(t)

	l, ok := s.Layers().Get(layer.Key{Kind: layer.KindBoundary, ZStack: 0})
	if !ok || len(l.Polygons) == 0 {
		t.Fatal("boundary layer not loaded")
	}
	b := l.Polygons[0]
	base := b.Cells[0].Color

	if res := s.Pick(50, 75); res == nil || res.CellID != 101 {
		t.Fatalf("expected cell 101, got %+v", res)
	}
	if b.Cells[0].Color == base {
		t.Fatal("hovered cell not recolored")
	}
	if b.FillColors[1] == 0 {
		t.Fatal("fill attributes not rewritten in place")
	}

	// A miss restores the hovered cell's original color.
	if res := s.Pick(1, 149); res != nil {
		t.Fatalf("expected miss, got %+v", res)
	}
	if b.Cells[0].Color != base {
		t.Fatal("highlight not restored after miss")
	}
}

func TestSessionRenderPNG(t *testing.T) {
	s, _ := newTestSession(t)

	data, err := s.Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatal("render output is not a PNG")
	}
}

func TestSessionGenePick(t *testing.T) {
	s, _ := newTestSession(t)

	s.SelectGenes([]string{"Gad1"})
	s.SetFlag(store.KeyShowBoundaries, false)

	// With boundaries hidden, the transcript at world (5,5) is the
	// nearest pickable primitive.
	res := s.Pick(50, 75)
	if res == nil || res.Gene != "Gad1" {
		t.Fatalf("expected gene hit, got %+v", res)
	}
}

func TestSessionGeneStyleFlowsToNewLayers(t *testing.T) {
	s, _ := newTestSession(t)

	s.SetGeneStyle("Gad1", visibility.GeneStyle{Color: "#00ff00", Scale: 4})
	s.SelectGenes([]string{"Gad1"})

	key := layer.Key{Kind: layer.KindGenePoints, ZStack: 0, Gene: "Gad1"}
	l, ok := s.Layers().Get(key)
	if !ok || l.Points == nil {
		t.Fatal("gene layer not loaded")
	}
	if l.Points.Colors[1] != 1 {
		t.Fatal("configured style not applied at build time")
	}
	if l.Points.Sizes[0] != 4 {
		t.Fatalf("configured size not applied: %v", l.Points.Sizes[0])
	}
}

func TestSessionZStackSwitch(t *testing.T) {
	s, _ := newTestSession(t)

	s.SetZStack(1)

	k0 := layer.Key{Kind: layer.KindBoundary, ZStack: 0}
	k1 := layer.Key{Kind: layer.KindBoundary, ZStack: 1}
	if l, ok := s.Layers().Get(k0); !ok || l.Visible {
		t.Fatal("old slice should stay cached but hidden")
	}
	if l, ok := s.Layers().Get(k1); !ok || !l.Visible {
		t.Fatal("new slice should be visible")
	}
}

func TestSessionPanZoomAffectPicking(t *testing.T) {
	s, _ := newTestSession(t)

	// Pan the content 50px to the right; the old hit point now misses
	// cell 101's interior region... shift the probe accordingly.
	s.Pan(50, 0)
	if res := s.Pick(100, 75); res == nil || res.CellID != 101 {
		t.Fatalf("expected cell 101 at shifted probe, got %+v", res)
	}
}

func TestSessionFlipMirrorsContent(t *testing.T) {
	s, _ := newTestSession(t)

	// Before the flip the left probe hits cell 101.
	if res := s.Pick(50, 75); res == nil || res.CellID != 101 {
		t.Fatalf("precondition failed: %+v", res)
	}

	s.SetFlag(store.KeyFlipX, true)

	// The flip mirrors geometry and camera together, so the content
	// swaps sides: the left probe now hits the cell that was on the
	// right.
	res := s.Pick(50, 75)
	if res == nil || res.CellID != 102 {
		t.Fatalf("expected mirrored cell 102 under probe, got %+v", res)
	}
}

func TestSessionSetVariantResets(t *testing.T) {
	s, src := newTestSession(t)

	s.SetVariant("alt", src, nil, nil)

	if got := s.Store().String(store.KeyVariant, ""); got != "alt" {
		t.Fatalf("variant key not updated: %q", got)
	}
	// Projection re-ran against the new source: boundary z0 reloaded.
	key := layer.Key{Kind: layer.KindBoundary, ZStack: 0}
	if l, ok := s.Layers().Get(key); !ok || l.State != layer.StateLoaded {
		t.Fatal("variant switch did not reload the projection")
	}
}

func TestEmptyViewportFallback(t *testing.T) {
	s, _ := newTestSession(t)
	data, err := s.EmptyViewport()
	if err != nil {
		t.Fatalf("EmptyViewport failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatal("fallback is not a PNG")
	}
}
