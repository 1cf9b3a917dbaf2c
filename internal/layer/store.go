// Package layer manages the keyed cache of boundary, nuclei and gene
// point layers: lazy load-on-demand, idempotent re-entrancy, LRU
// eviction with geometry disposal.
package layer

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/merfish-atlas/viewer/internal/batch"
	"github.com/merfish-atlas/viewer/internal/decode"
	"github.com/merfish-atlas/viewer/internal/geom"
	"github.com/merfish-atlas/viewer/pkg/palette"
)

// DefaultCapacity bounds how many layers stay cached before LRU
// eviction frees the oldest geometry.
const DefaultCapacity = 64

// Config configures a layer store.
type Config struct {
	Source   Source
	Clusters map[uint32]string
	Palette  *palette.Palette
	Capacity int

	ChunkSize        int
	MaxPointsPerCell int
	PointSize        float32

	// GeneStyle resolves the display color and point size for a gene
	// layer at build time. Optional; a categorical default applies.
	GeneStyle func(gene string) (color.RGBA, float32)

	// Yield is passed through to the batcher's chunk loop.
	Yield func()
}

// Store owns all layers. All state transitions happen under one
// mutex; the check-then-set in EnsureLoaded is what deduplicates
// overlapping requests for the same key.
type Store struct {
	mu  sync.Mutex
	cfg Config

	layers *lru.Cache[Key, *Layer]

	// Decoded records are kept alongside the batched geometry so a
	// coordinate transform change can re-batch without refetching.
	polyRecords map[Key]*decode.PolygonRecord
	geneRecords map[string]*decode.PointRecord

	transform geom.Affine
	geneOrder map[string]int // stable categorical color assignment
}

// NewStore creates a layer store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Source == nil {
		return nil, errors.New("layer: source is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Palette == nil {
		cfg.Palette = palette.Empty()
	}
	if cfg.PointSize <= 0 {
		cfg.PointSize = 2
	}

	s := &Store{
		cfg:         cfg,
		polyRecords: make(map[Key]*decode.PolygonRecord),
		geneRecords: make(map[string]*decode.PointRecord),
		transform:   geom.Identity(),
		geneOrder:   make(map[string]int),
	}

	// The eviction callback runs inside cache mutations, which all
	// happen under s.mu, so it may touch store maps directly.
	cache, err := lru.NewWithEvict(cfg.Capacity, func(key Key, l *Layer) {
		l.dispose()
		delete(s.polyRecords, key)
	})
	if err != nil {
		return nil, err
	}
	s.layers = cache
	return s, nil
}

// Get returns the layer cached under key, if any.
func (s *Store) Get(key Key) (*Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Get(key)
}

// EnsureLoaded loads the layer for key unless it is already loading
// or loaded. The first caller performs the fetch synchronously;
// concurrent callers for the same key return immediately.
func (s *Store) EnsureLoaded(ctx context.Context, key Key) error {
	s.mu.Lock()
	if l, ok := s.layers.Get(key); ok && l.State != StateIdle {
		s.mu.Unlock()
		return nil
	}
	l := &Layer{
		Key:     key,
		State:   StateLoading,
		Opacity: 1,
		ready:   make(chan struct{}),
	}
	s.layers.Add(key, l)
	s.mu.Unlock()

	var err error
	if key.Kind == KindGenePoints {
		err = s.loadGeneLayer(ctx, key, l)
	} else {
		err = s.loadPolygonLayer(ctx, key, l)
	}
	if err != nil {
		// Fetch failures are soft: the layer is dropped and retried on
		// the next EnsureLoaded (e.g. a z-stack revisit). The ready
		// channel still closes so waiters wake up and re-check state.
		log.Printf("layer: load %s failed: %v", key, err)
		s.mu.Lock()
		if cur, ok := s.layers.Peek(key); ok && cur == l {
			s.layers.Remove(key)
		}
		close(l.ready)
		s.mu.Unlock()
		return err
	}
	return nil
}

// loadPolygonLayer fetches, decodes and batches a boundary or nuclei
// dataset. Decode failures fall back to the uncompressed sibling path
// once, then to synthetic mock geometry.
func (s *Store) loadPolygonLayer(ctx context.Context, key Key, l *Layer) error {
	rec, mock := s.fetchPolygonRecord(ctx, key)
	if rec == nil {
		return fmt.Errorf("no payload for %s", key)
	}
	if dropped := rec.Sanitize(); dropped > 0 {
		log.Printf("layer: %s: dropped %d invalid cells", key, dropped)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(l.ready)
	if cur, ok := s.layers.Peek(key); !ok || cur != l {
		// Evicted while the fetch was in flight; storing the record
		// would orphan it until the next variant switch.
		return nil
	}
	l.Polygons = batch.Polygons(rec, s.cfg.Clusters, s.cfg.Palette, s.polygonOptions())
	l.Mock = mock
	l.State = StateLoaded
	s.polyRecords[key] = rec
	return nil
}

// fetchPolygonRecord returns the decoded record and whether it is
// synthetic mock data. A nil record means even the mock path was
// skipped because the network fetch itself failed.
func (s *Store) fetchPolygonRecord(ctx context.Context, key Key) (*decode.PolygonRecord, bool) {
	buf, err := s.cfg.Source.Contours(ctx, key.Kind, key.ZStack, true)
	if err != nil {
		return nil, false
	}

	rec, err := decode.Polygons(buf)
	if err == nil {
		return rec, false
	}

	var htmlErr *decode.HTMLError
	if errors.As(err, &htmlErr) {
		log.Printf("layer: %s: got HTML error page (%.60s...), trying uncompressed sibling", key, htmlErr.Snippet)
	} else {
		log.Printf("layer: %s: decode failed: %v, trying uncompressed sibling", key, err)
	}

	if plain, ferr := s.cfg.Source.Contours(ctx, key.Kind, key.ZStack, false); ferr == nil {
		if rec, derr := decode.Polygons(plain); derr == nil {
			return rec, false
		}
	}

	log.Printf("layer: %s: falling back to mock geometry", key)
	return mockPolygons(key.ZStack), true
}

// loadGeneLayer ensures the gene's point dataset is decoded (one
// fetch covers every z-stack) and builds the batch for this z-slice.
func (s *Store) loadGeneLayer(ctx context.Context, key Key, l *Layer) error {
	rec, mock, err := s.ensureGeneRecord(ctx, key.Gene)
	if err != nil {
		return err
	}

	coords := rec.Layer(key.ZStack)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(l.ready)
	if cur, ok := s.layers.Peek(key); !ok || cur != l {
		return nil
	}
	c, size := s.geneStyleLocked(key.Gene)
	l.Points = batch.Points(coords, c, size, s.transform)
	l.Mock = mock
	l.State = StateLoaded
	return nil
}

func (s *Store) ensureGeneRecord(ctx context.Context, gene string) (*decode.PointRecord, bool, error) {
	s.mu.Lock()
	if rec, ok := s.geneRecords[gene]; ok {
		s.mu.Unlock()
		return rec, false, nil
	}
	s.mu.Unlock()

	buf, err := s.cfg.Source.GenePoints(ctx, gene, true)
	if err != nil {
		return nil, false, err
	}

	mock := false
	rec, derr := decode.Points(buf)
	if derr != nil {
		log.Printf("layer: gene %s: decode failed: %v, trying uncompressed sibling", gene, derr)
		if plain, ferr := s.cfg.Source.GenePoints(ctx, gene, false); ferr == nil {
			rec, derr = decode.Points(plain)
		}
		if derr != nil || rec == nil {
			log.Printf("layer: gene %s: falling back to mock points", gene)
			rec = mockPoints(gene)
			mock = true
		}
	}

	s.mu.Lock()
	s.geneRecords[gene] = rec
	s.mu.Unlock()
	return rec, mock, nil
}

func (s *Store) geneStyleLocked(gene string) (color.RGBA, float32) {
	if s.cfg.GeneStyle != nil {
		return s.cfg.GeneStyle(gene)
	}
	i, ok := s.geneOrder[gene]
	if !ok {
		i = len(s.geneOrder)
		s.geneOrder[gene] = i
	}
	return palette.Categorical(i), s.cfg.PointSize
}

func (s *Store) polygonOptions() batch.PolygonOptions {
	return batch.PolygonOptions{
		ChunkSize:        s.cfg.ChunkSize,
		MaxPointsPerCell: s.cfg.MaxPointsPerCell,
		Fill:             true,
		Transform:        s.transform,
		Yield:            s.cfg.Yield,
	}
}

// SetVisible flips a cached layer's visibility without touching its
// geometry. Unknown keys are ignored.
func (s *Store) SetVisible(key Key, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers.Get(key); ok {
		l.Visible = visible
	}
}

// SetOpacity sets a cached layer's opacity.
func (s *Store) SetOpacity(key Key, opacity float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers.Get(key); ok {
		l.Opacity = opacity
	}
}

// SetStyle recolors and rescales every loaded layer of the gene in
// place. No geometry is rebuilt; buffer lengths are unchanged.
func (s *Store) SetStyle(gene string, c color.RGBA, size float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.layers.Keys() {
		if key.Kind != KindGenePoints || key.Gene != gene {
			continue
		}
		if l, ok := s.layers.Peek(key); ok && l.Points != nil {
			l.Points.Recolor(c)
			l.Points.Rescale(size)
		}
	}
}

// SetTransform applies a new coordinate flip/swap and re-batches all
// loaded layers from their cached decoded records. No refetch occurs.
func (s *Store) SetTransform(tf geom.Affine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tf == s.transform {
		return
	}
	s.transform = tf

	for _, key := range s.layers.Keys() {
		l, ok := s.layers.Peek(key)
		if !ok || l.State != StateLoaded {
			continue
		}
		if key.Kind == KindGenePoints {
			if rec, ok := s.geneRecords[key.Gene]; ok {
				c, size := s.geneStyleLocked(key.Gene)
				l.Points = batch.Points(rec.Layer(key.ZStack), c, size, s.transform)
			}
		} else if rec, ok := s.polyRecords[key]; ok {
			l.Polygons = batch.Polygons(rec, s.cfg.Clusters, s.cfg.Palette, s.polygonOptions())
		}
	}
}

// Transform returns the current coordinate transform.
func (s *Store) Transform() geom.Affine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transform
}

// SetVariant swaps the store to a new dataset variant: new source,
// cluster table and palette, with all cached layers disposed.
func (s *Store) SetVariant(src Source, clusters map[uint32]string, pal *palette.Palette) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Source = src
	s.cfg.Clusters = clusters
	if pal == nil {
		pal = palette.Empty()
	}
	s.cfg.Palette = pal
	s.layers.Purge()
	s.polyRecords = make(map[Key]*decode.PolygonRecord)
	s.geneRecords = make(map[string]*decode.PointRecord)
}

// Dispose frees one layer.
func (s *Store) Dispose(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers.Remove(key)
}

// DisposeGene frees every layer of a gene plus its decoded dataset.
// Called on gene deselection.
func (s *Store) DisposeGene(gene string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.layers.Keys() {
		if key.Kind == KindGenePoints && key.Gene == gene {
			s.layers.Remove(key)
		}
	}
	delete(s.geneRecords, gene)
}

// DisposeAll frees everything. Called on dataset-variant switch.
func (s *Store) DisposeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers.Purge()
	s.polyRecords = make(map[Key]*decode.PolygonRecord)
	s.geneRecords = make(map[string]*decode.PointRecord)
}

// Keys returns the keys of all cached layers, oldest first.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Keys()
}

// VisibleLayers returns the loaded, visible layers in key order of
// the underlying cache (oldest first).
func (s *Store) VisibleLayers() []*Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Layer
	for _, key := range s.layers.Keys() {
		if l, ok := s.layers.Peek(key); ok && l.State == StateLoaded && l.Visible {
			out = append(out, l)
		}
	}
	return out
}

// Bounds returns the union of all loaded layer bounds, used for
// camera bounds-fitting on data load.
func (s *Store) Bounds() geom.Box {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b geom.Box
	for _, key := range s.layers.Keys() {
		if l, ok := s.layers.Peek(key); ok && l.State == StateLoaded {
			b = b.Union(l.Bounds())
		}
	}
	return b
}
