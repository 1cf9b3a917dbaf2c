package view

import (
	"image/color"
	"sync"

	"github.com/merfish-atlas/viewer/internal/batch"
	"github.com/merfish-atlas/viewer/internal/camera"
	"github.com/merfish-atlas/viewer/internal/geom"
	"github.com/merfish-atlas/viewer/internal/layer"
	"github.com/merfish-atlas/viewer/internal/pick"
	"github.com/merfish-atlas/viewer/internal/store"
	"github.com/merfish-atlas/viewer/internal/visibility"
	"github.com/merfish-atlas/viewer/pkg/palette"
)

// SessionConfig configures a view session.
type SessionConfig struct {
	Source   layer.Source
	Clusters map[uint32]string
	Palette  *palette.Palette

	Width            int
	Height           int
	ChunkSize        int
	MaxPointsPerCell int
	PointSize        float32
	LayerCapacity    int
}

// Session is one interactive view over a dataset variant. All
// visualization state lives in the reactive store and is rebuilt from
// fetched snapshots; nothing is persisted.
type Session struct {
	st       *store.Store
	layers   *layer.Store
	vis      *visibility.Controller
	picker   *pick.Engine
	renderer *Renderer

	camMu  sync.Mutex
	cam    *camera.Rig
	fitted bool

	geneMu  sync.Mutex
	geneIdx map[string]int
	pointSz float32

	// Hover highlight: the last picked cell, recolored in place, with
	// its original color kept for restore.
	hlMu    sync.Mutex
	hlBatch *batch.PolygonBatch
	hlCell  int
	hlColor color.RGBA
}

// highlightTint is blended into the hovered cell's cluster color.
var highlightTint = color.RGBA{R: 255, G: 255, A: 255}

// NewSession wires up a session and applies the default projection
// (boundaries on, z-stack 0).
func NewSession(cfg SessionConfig) (*Session, error) {
	s := &Session{
		st:       store.New(),
		picker:   pick.NewEngine(),
		renderer: NewRenderer(RenderConfig{Width: cfg.Width, Height: cfg.Height}),
		cam:      camera.New(cfg.Width, cfg.Height),
		geneIdx:  make(map[string]int),
		pointSz:  cfg.PointSize,
	}

	layers, err := layer.NewStore(layer.Config{
		Source:           cfg.Source,
		Clusters:         cfg.Clusters,
		Palette:          cfg.Palette,
		Capacity:         cfg.LayerCapacity,
		ChunkSize:        cfg.ChunkSize,
		MaxPointsPerCell: cfg.MaxPointsPerCell,
		PointSize:        cfg.PointSize,
		GeneStyle:        s.geneStyle,
	})
	if err != nil {
		return nil, err
	}
	s.layers = layers

	s.vis = visibility.NewController(s.st, layers)
	s.vis.OnApplied = s.refresh

	// Defaults; the last Set kicks the first projection.
	s.st.Set(store.KeyShowBoundaries, true)
	s.st.Set(store.KeyZStack, 0)
	return s, nil
}

// Close releases store subscriptions and cached geometry.
func (s *Session) Close() {
	s.vis.Close()
	s.layers.DisposeAll()
	s.picker.Clear()
}

// Store exposes the session's reactive store.
func (s *Session) Store() *store.Store { return s.st }

// Layers exposes the session's layer cache.
func (s *Session) Layers() *layer.Store { return s.layers }

// geneStyle resolves a gene's display color and point size at batch
// build time: explicit customization first, then a stable categorical
// assignment.
func (s *Session) geneStyle(gene string) (color.RGBA, float32) {
	if v, ok := s.st.Get(store.KeyGeneStyles); ok {
		if styles, ok := v.(map[string]visibility.GeneStyle); ok {
			if gs, ok := styles[gene]; ok {
				if c, err := palette.ParseHex(gs.Color); err == nil {
					size := gs.Scale
					if size <= 0 {
						size = s.pointSz
					}
					return c, size
				}
			}
		}
	}

	s.geneMu.Lock()
	defer s.geneMu.Unlock()
	i, ok := s.geneIdx[gene]
	if !ok {
		i = len(s.geneIdx)
		s.geneIdx[gene] = i
	}
	return palette.Categorical(i), s.pointSz
}

// refresh swaps the active picking geometry and handles one-time
// bounds fitting after the first load. Runs after every visibility
// projection.
func (s *Session) refresh() {
	// Geometry may be rebuilt below; drop the highlight rather than
	// restore into a batch that is being replaced.
	s.hlMu.Lock()
	s.hlBatch = nil
	s.hlMu.Unlock()

	var polys []*batch.PolygonBatch
	points := make(map[string]*batch.PointBatch)
	for _, l := range s.layers.VisibleLayers() {
		switch l.Key.Kind {
		case layer.KindGenePoints:
			if l.Points != nil {
				points[l.Key.Gene] = l.Points
			}
		default:
			polys = append(polys, l.Polygons...)
		}
	}
	s.picker.Replace(polys, points)

	s.camMu.Lock()
	defer s.camMu.Unlock()
	s.cam.SetDataTransform(s.layers.Transform())
	if !s.fitted {
		if b := s.layers.Bounds(); b.W > 0 || b.H > 0 {
			s.cam.FitToBounds(b)
			s.fitted = true
		}
	}
}

// SetZStack switches the active z-stack.
func (s *Session) SetZStack(z int) {
	s.st.Set(store.KeyZStack, z)
}

// SetFlag sets a boolean store key (toggles and flip/swap settings).
func (s *Session) SetFlag(key store.Key, v bool) {
	s.st.Set(key, v)
}

// SetOpacity sets an opacity store key.
func (s *Session) SetOpacity(key store.Key, v float64) {
	s.st.Set(key, v)
}

// SelectGenes replaces the selected-gene set.
func (s *Session) SelectGenes(genes []string) {
	s.st.Set(store.KeySelectedGenes, genes)
}

// SetGeneVisibility replaces the per-gene visibility map.
func (s *Session) SetGeneVisibility(vis map[string]bool) {
	s.st.Set(store.KeyGeneVisibility, vis)
}

// SetGeneStyle updates one gene's color/scale customization. Loaded
// layers are mutated in place by the visibility controller.
func (s *Session) SetGeneStyle(gene string, gs visibility.GeneStyle) {
	styles := make(map[string]visibility.GeneStyle)
	if v, ok := s.st.Get(store.KeyGeneStyles); ok {
		if prev, ok := v.(map[string]visibility.GeneStyle); ok {
			for g, p := range prev {
				styles[g] = p
			}
		}
	}
	styles[gene] = gs
	s.st.Set(store.KeyGeneStyles, styles)
}

// SetVariant swaps the session to a new dataset variant.
func (s *Session) SetVariant(name string, src layer.Source, clusters map[uint32]string, pal *palette.Palette) {
	s.layers.SetVariant(src, clusters, pal)
	s.camMu.Lock()
	s.fitted = false
	s.camMu.Unlock()
	s.st.Set(store.KeyVariant, name)
	s.vis.Apply()
}

// Pan shifts the camera by a screen-pixel delta.
func (s *Session) Pan(dx, dy float64) {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	s.cam.Pan(dx, dy)
}

// ZoomAt zooms about a screen anchor.
func (s *Session) ZoomAt(factor, x, y float64) {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	s.cam.ZoomAt(factor, geom.MakePoint(x, y))
}

// Fit recenters on the loaded data bounds.
func (s *Session) Fit() {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	if b := s.layers.Bounds(); b.W > 0 || b.H > 0 {
		s.cam.FitToBounds(b)
		s.fitted = true
	}
}

// Camera returns the session camera. Callers must not mutate it
// concurrently with Render or Pick.
func (s *Session) Camera() *camera.Rig { return s.cam }

// Render rasterizes the current viewport to PNG.
func (s *Session) Render() ([]byte, error) {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	return s.renderer.Render(s.layers.VisibleLayers(), s.cam, DrawOptions{
		InnerColoring: s.st.Bool(store.KeyInnerColoring, false),
		InnerOpacity:  float32(s.st.Float(store.KeyInnerOpacity, 0.5)),
	})
}

// EmptyViewport returns the fallback PNG served on render failure.
func (s *Session) EmptyViewport() ([]byte, error) {
	return s.renderer.EmptyViewport()
}

// Pick resolves a viewport pixel to the cell or transcript under it
// and moves the hover highlight there. Returns nil when nothing is
// hit.
func (s *Session) Pick(x, y float64) *pick.Result {
	s.camMu.Lock()
	res := s.picker.Pick(geom.MakePoint(x, y), s.cam)
	s.camMu.Unlock()
	s.setHighlight(res)
	return res
}

// setHighlight recolors the hit cell's fill in place, restoring the
// previously highlighted one first. A miss just clears the highlight.
func (s *Session) setHighlight(res *pick.Result) {
	s.hlMu.Lock()
	defer s.hlMu.Unlock()
	if s.hlBatch != nil {
		s.hlBatch.RecolorCell(s.hlCell, s.hlColor)
		s.hlBatch = nil
	}
	if res == nil || res.Batch == nil {
		return
	}
	base := res.Batch.Cells[res.Cell].Color
	s.hlBatch = res.Batch
	s.hlCell = res.Cell
	s.hlColor = base
	res.Batch.RecolorCell(res.Cell, palette.Blend(base, highlightTint, 0.5))
}
