// Package visibility projects reactive store state onto the layer
// cache: which layers should exist, which should be shown, and at
// what opacity. It never reloads data to change what is visible.
package visibility

import (
	"context"
	"log"
	"sync"

	"github.com/merfish-atlas/viewer/internal/geom"
	"github.com/merfish-atlas/viewer/internal/layer"
	"github.com/merfish-atlas/viewer/internal/store"
	"github.com/merfish-atlas/viewer/pkg/palette"
)

// GeneStyle is the per-gene customization stored under
// store.KeyGeneStyles as a map[string]GeneStyle.
type GeneStyle struct {
	Color string  // "#rrggbb"
	Scale float32 // point size multiplier
}

// Controller recomputes layer visibility whenever one of its
// dependency keys changes. Toggling a layer off hides it without
// disposing; geometry is freed only on gene deselection or a full
// variant switch.
type Controller struct {
	st     *store.Store
	layers *layer.Store

	mu         sync.Mutex
	prevGenes  map[string]bool
	prevStyles map[string]GeneStyle

	// OnApplied runs after each projection, letting the view refresh
	// its active picking geometry.
	OnApplied func()

	unsubs []func()
}

var dependencyKeys = []store.Key{
	store.KeyZStack,
	store.KeyShowBoundaries,
	store.KeyShowNuclei,
	store.KeyBoundaryOpacity,
	store.KeyNucleiOpacity,
	store.KeyInnerColoring,
	store.KeyInnerOpacity,
	store.KeySelectedGenes,
	store.KeyGeneVisibility,
	store.KeyGeneStyles,
	store.KeyFlipX,
	store.KeyFlipY,
	store.KeySwapXY,
}

// NewController wires the controller to its dependency keys. Call
// Close to unsubscribe.
func NewController(st *store.Store, layers *layer.Store) *Controller {
	c := &Controller{
		st:         st,
		layers:     layers,
		prevGenes:  make(map[string]bool),
		prevStyles: make(map[string]GeneStyle),
	}
	for _, key := range dependencyKeys {
		c.unsubs = append(c.unsubs, st.Subscribe(key, func(store.Key, any) {
			c.Apply()
		}))
	}
	return c
}

// Close removes all store subscriptions.
func (c *Controller) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// Apply reads current store state and reconciles the layer cache
// against it. Each run reads state at the moment it executes; the
// projection is idempotent.
func (c *Controller) Apply() {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	z := c.st.Int(store.KeyZStack, 0)

	type target struct {
		visible bool
		opacity float32
	}
	desired := make(map[layer.Key]target)

	if c.st.Bool(store.KeyShowBoundaries, true) {
		desired[layer.Key{Kind: layer.KindBoundary, ZStack: z}] = target{
			visible: true,
			opacity: float32(c.st.Float(store.KeyBoundaryOpacity, 1)),
		}
	}
	if c.st.Bool(store.KeyShowNuclei, false) {
		desired[layer.Key{Kind: layer.KindNuclei, ZStack: z}] = target{
			visible: true,
			opacity: float32(c.st.Float(store.KeyNucleiOpacity, 1)),
		}
	}

	selected := c.st.Strings(store.KeySelectedGenes)
	selectedSet := make(map[string]bool, len(selected))
	geneVis := c.geneVisibility()
	for _, gene := range selected {
		selectedSet[gene] = true
		if vis, ok := geneVis[gene]; ok && !vis {
			continue
		}
		desired[layer.Key{Kind: layer.KindGenePoints, ZStack: z, Gene: gene}] = target{
			visible: true,
			opacity: 1,
		}
	}

	// Deselected genes lose their geometry and decoded dataset.
	for gene := range c.prevGenes {
		if !selectedSet[gene] {
			c.layers.DisposeGene(gene)
		}
	}
	c.prevGenes = selectedSet

	// Hide every cached layer the projection doesn't want; the cache
	// is retained for fast re-toggle and z-stack revisits. Exactly
	// one z-slice per gene stays visible.
	for _, key := range c.layers.Keys() {
		if _, ok := desired[key]; !ok {
			c.layers.SetVisible(key, false)
		}
	}

	// Per-gene style changes use the in-place mutation path, never a
	// rebuild.
	c.applyStyles()

	// Coordinate transform: applied identically to batched data and
	// the camera target (the camera side is wired by the view).
	c.layers.SetTransform(geom.FlipSwap(
		c.st.Bool(store.KeyFlipX, false),
		c.st.Bool(store.KeyFlipY, false),
		c.st.Bool(store.KeySwapXY, false),
	))

	for key, t := range desired {
		if err := c.layers.EnsureLoaded(ctx, key); err != nil {
			// Fail soft: the layer stays absent until something
			// triggers another projection.
			continue
		}
		c.layers.SetVisible(key, t.visible)
		c.layers.SetOpacity(key, t.opacity)
	}

	if c.OnApplied != nil {
		c.OnApplied()
	}
}

func (c *Controller) geneVisibility() map[string]bool {
	if v, ok := c.st.Get(store.KeyGeneVisibility); ok {
		if m, ok := v.(map[string]bool); ok {
			return m
		}
	}
	return nil
}

func (c *Controller) applyStyles() {
	v, ok := c.st.Get(store.KeyGeneStyles)
	if !ok {
		return
	}
	styles, ok := v.(map[string]GeneStyle)
	if !ok {
		return
	}
	for gene, gs := range styles {
		if gs == c.prevStyles[gene] {
			continue
		}
		col, err := palette.ParseHex(gs.Color)
		if err != nil {
			log.Printf("visibility: gene %s: bad color %q: %v", gene, gs.Color, err)
			continue
		}
		scale := gs.Scale
		if scale <= 0 {
			scale = 1
		}
		c.layers.SetStyle(gene, col, scale)
		c.prevStyles[gene] = gs
	}
}
