// Package view ties the engine together the way the interactive
// client does: one session owns a reactive store, camera, layer
// cache, visibility controller and picking engine, and can rasterize
// the current viewport.
package view

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"

	"github.com/merfish-atlas/viewer/internal/camera"
	"github.com/merfish-atlas/viewer/internal/geom"
	"github.com/merfish-atlas/viewer/internal/layer"
)

// Outline colors per layer kind.
var (
	boundaryOutline = color.RGBA{60, 60, 60, 255}
	nucleiOutline   = color.RGBA{52, 86, 164, 255}
)

// RenderConfig contains renderer configuration.
type RenderConfig struct {
	Width  int
	Height int
}

// Renderer rasterizes batched layer geometry for a camera to PNG.
type Renderer struct {
	config      RenderConfig
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// DrawOptions selects which optional passes run.
type DrawOptions struct {
	InnerColoring bool
	InnerOpacity  float32
}

// NewRenderer creates a renderer for a fixed viewport size.
func NewRenderer(cfg RenderConfig) *Renderer {
	return &Renderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Width, cfg.Height)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Render draws the visible layers under the camera transform. Fill
// passes run before outlines so cluster coloring never obscures cell
// borders; gene points draw last.
func (r *Renderer) Render(layers []*layer.Layer, cam *camera.Rig, opts DrawOptions) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()

	toScreen := cam.WorldToScreen()

	if opts.InnerColoring {
		for _, l := range layers {
			if l.Key.Kind == layer.KindBoundary {
				r.drawFills(dc, l, toScreen, opts.InnerOpacity)
			}
		}
	}
	for _, l := range layers {
		switch l.Key.Kind {
		case layer.KindBoundary:
			r.drawOutlines(dc, l, toScreen, boundaryOutline)
		case layer.KindNuclei:
			r.drawOutlines(dc, l, toScreen, nucleiOutline)
		}
	}
	for _, l := range layers {
		if l.Key.Kind == layer.KindGenePoints {
			r.drawPoints(dc, l, toScreen)
		}
	}

	return r.encodeContext(dc)
}

func (r *Renderer) drawOutlines(dc *gg.Context, l *layer.Layer, toScreen geom.Affine, c color.RGBA) {
	alpha := float64(l.Opacity)
	dc.SetRGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, alpha)
	dc.SetLineWidth(1)
	for _, b := range l.Polygons {
		for i := 0; i < b.SegmentCount(); i++ {
			x0, y0 := float64(b.Outline[i*4]), float64(b.Outline[i*4+1])
			x1, y1 := float64(b.Outline[i*4+2]), float64(b.Outline[i*4+3])
			p0 := toScreen.MulPoint(geom.MakePoint(x0, y0))
			p1 := toScreen.MulPoint(geom.MakePoint(x1, y1))
			dc.DrawLine(p0.X, p0.Y, p1.X, p1.Y)
		}
		dc.Stroke()
	}
}

func (r *Renderer) drawFills(dc *gg.Context, l *layer.Layer, toScreen geom.Affine, opacity float32) {
	alpha := float64(opacity) * float64(l.Opacity)
	for _, b := range l.Polygons {
		for t := 0; t < b.TriangleCount(); t++ {
			base := t * 6
			colorBase := t * 12
			dc.SetRGBA(
				float64(b.FillColors[colorBase]),
				float64(b.FillColors[colorBase+1]),
				float64(b.FillColors[colorBase+2]),
				alpha,
			)
			p0 := toScreen.MulPoint(geom.MakePoint(float64(b.Fill[base]), float64(b.Fill[base+1])))
			p1 := toScreen.MulPoint(geom.MakePoint(float64(b.Fill[base+2]), float64(b.Fill[base+3])))
			p2 := toScreen.MulPoint(geom.MakePoint(float64(b.Fill[base+4]), float64(b.Fill[base+5])))
			dc.MoveTo(p0.X, p0.Y)
			dc.LineTo(p1.X, p1.Y)
			dc.LineTo(p2.X, p2.Y)
			dc.ClosePath()
			dc.Fill()
		}
	}
}

func (r *Renderer) drawPoints(dc *gg.Context, l *layer.Layer, toScreen geom.Affine) {
	b := l.Points
	if b == nil {
		return
	}
	layerAlpha := float64(l.Opacity)
	for i := 0; i < b.Len(); i++ {
		p := toScreen.MulPoint(geom.MakePoint(
			float64(b.Positions[i*2]),
			float64(b.Positions[i*2+1]),
		))
		dc.SetRGBA(
			float64(b.Colors[i*3]),
			float64(b.Colors[i*3+1]),
			float64(b.Colors[i*3+2]),
			float64(b.Alphas[i])*layerAlpha,
		)
		dc.DrawPoint(p.X, p.Y, float64(b.Sizes[i]))
		dc.Fill()
	}
	b.ClearDirty()
}

func (r *Renderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// EmptyViewport encodes a transparent viewport-sized PNG, served when
// rendering fails.
func (r *Renderer) EmptyViewport() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255   // R
		img.Pix[i+1] = 255 // G
		img.Pix[i+2] = 255 // B
		img.Pix[i+3] = 0   // A (transparent)
	}

	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
