// Package dataset resolves dataset variants on disk and loads their
// per-variant cluster tables and palettes.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/merfish-atlas/viewer/internal/layer"
	"github.com/merfish-atlas/viewer/pkg/palette"
)

// Catalog knows which variants exist under the data root. Variant
// names form a fixed enum from configuration; anything else is
// rejected before touching the filesystem.
type Catalog struct {
	root           string
	defaultVariant string
	variants       map[string]bool

	mu       sync.Mutex
	clusters map[string]map[uint32]string
	palettes map[string]*palette.Palette
}

// NewCatalog creates a catalog for the configured variants.
func NewCatalog(root, defaultVariant string, variants []string) *Catalog {
	set := make(map[string]bool, len(variants))
	for _, v := range variants {
		set[v] = true
	}
	return &Catalog{
		root:           root,
		defaultVariant: defaultVariant,
		variants:       set,
		clusters:       make(map[string]map[uint32]string),
		palettes:       make(map[string]*palette.Palette),
	}
}

// Default returns the default variant name.
func (c *Catalog) Default() string { return c.defaultVariant }

// Valid reports whether the variant is in the configured enum.
func (c *Catalog) Valid(variant string) bool { return c.variants[variant] }

// Variants returns the configured variant names, sorted.
func (c *Catalog) Variants() []string {
	out := make([]string, 0, len(c.variants))
	for v := range c.variants {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Source returns a file-backed layer source for the variant.
func (c *Catalog) Source(variant string) *layer.FileSource {
	return &layer.FileSource{Root: c.root, Variant: variant}
}

// Genes lists the gene names available for the variant.
func (c *Catalog) Genes(variant string) ([]string, error) {
	genes, err := c.Source(variant).Genes()
	if err != nil {
		return nil, err
	}
	sort.Strings(genes)
	return genes, nil
}

// PalettePath returns the palette JSON path for the variant.
func (c *Catalog) PalettePath(variant string) string {
	return filepath.Join(c.root, variant, "palette.json")
}

// ClustersPath returns the cluster table JSON path for the variant.
func (c *Catalog) ClustersPath(variant string) string {
	return filepath.Join(c.root, variant, "clusters.json")
}

// Clusters loads the variant's cellId→clusterLabel table, cached
// after the first read. A missing file yields an empty table; the
// viewer degrades to uncolored cells rather than failing.
func (c *Catalog) Clusters(variant string) (map[uint32]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.clusters[variant]; ok {
		return m, nil
	}

	out := make(map[uint32]string)
	data, err := os.ReadFile(c.ClustersPath(variant))
	if err != nil {
		if os.IsNotExist(err) {
			c.clusters[variant] = out
			return out, nil
		}
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("dataset: clusters for %s: %w", variant, err)
	}
	for idStr, label := range raw {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		out[uint32(id)] = label
	}
	c.clusters[variant] = out
	return out, nil
}

// Palette loads the variant's cluster palette, cached after the
// first read. A missing file yields the categorical fallback.
func (c *Catalog) Palette(variant string) (*palette.Palette, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.palettes[variant]; ok {
		return p, nil
	}

	data, err := os.ReadFile(c.PalettePath(variant))
	if err != nil {
		if os.IsNotExist(err) {
			p := palette.Empty()
			c.palettes[variant] = p
			return p, nil
		}
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("dataset: palette for %s: %w", variant, err)
	}
	p, err := palette.FromHex(raw)
	if err != nil {
		return nil, err
	}
	c.palettes[variant] = p
	return p, nil
}
