// Package palette provides cluster color tables for visualization.
package palette

import (
	"fmt"
	"image/color"
	"sort"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Palette maps cluster labels to display colors. Labels absent from
// the table fall back to a categorical color chosen by stable label
// order, so unlabeled clusters still render distinctly. A palette is
// shared across consumers; Color is safe for concurrent use.
type Palette struct {
	colors map[string]color.RGBA

	mu    sync.Mutex
	index map[string]int
}

// FromHex builds a palette from a label→"#rrggbb" table, the format
// the palette JSON files use.
func FromHex(table map[string]string) (*Palette, error) {
	p := &Palette{
		colors: make(map[string]color.RGBA, len(table)),
		index:  make(map[string]int, len(table)),
	}

	labels := make([]string, 0, len(table))
	for label := range table {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for i, label := range labels {
		c, err := colorful.Hex(table[label])
		if err != nil {
			return nil, fmt.Errorf("palette: label %q: %w", label, err)
		}
		r, g, b := c.RGB255()
		p.colors[label] = color.RGBA{R: r, G: g, B: b, A: 255}
		p.index[label] = i
	}
	return p, nil
}

// Empty returns a palette with no explicit entries; every label maps
// to a categorical fallback color.
func Empty() *Palette {
	return &Palette{
		colors: make(map[string]color.RGBA),
		index:  make(map[string]int),
	}
}

// Color returns the display color for a cluster label.
func (p *Palette) Color(label string) color.RGBA {
	if c, ok := p.colors[label]; ok {
		return c
	}
	// Unknown label: assign the next fallback slot so repeat lookups
	// stay stable within this palette.
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.index[label]
	if !ok {
		i = len(p.index)
		p.index[label] = i
	}
	return Categorical(i)
}

// Len returns the number of explicit palette entries.
func (p *Palette) Len() int { return len(p.colors) }

// ParseHex parses a "#rrggbb" color string.
func ParseHex(s string) (color.RGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Blend interpolates between two colors in L*a*b* space, which keeps
// midpoints perceptually reasonable for intensity shading.
func Blend(c1, c2 color.RGBA, t float64) color.RGBA {
	a := colorful.Color{R: float64(c1.R) / 255, G: float64(c1.G) / 255, B: float64(c1.B) / 255}
	b := colorful.Color{R: float64(c2.R) / 255, G: float64(c2.G) / 255, B: float64(c2.B) / 255}
	m := a.BlendLab(b, t).Clamped()
	r, g, bl := m.RGB255()
	return color.RGBA{R: r, G: g, B: bl, A: 255}
}

// Categorical returns one of 20 distinct colors, wrapping around.
func Categorical(i int) color.RGBA {
	return categorical[((i%len(categorical))+len(categorical))%len(categorical)]
}

var categorical = []color.RGBA{
	{31, 119, 180, 255},  // Blue
	{255, 127, 14, 255},  // Orange
	{44, 160, 44, 255},   // Green
	{214, 39, 40, 255},   // Red
	{148, 103, 189, 255}, // Purple
	{140, 86, 75, 255},   // Brown
	{227, 119, 194, 255}, // Pink
	{127, 127, 127, 255}, // Gray
	{188, 189, 34, 255},  // Olive
	{23, 190, 207, 255},  // Cyan
	{174, 199, 232, 255}, // Light blue
	{255, 187, 120, 255}, // Light orange
	{152, 223, 138, 255}, // Light green
	{255, 152, 150, 255}, // Light red
	{197, 176, 213, 255}, // Light purple
	{196, 156, 148, 255}, // Light brown
	{247, 182, 210, 255}, // Light pink
	{199, 199, 199, 255}, // Light gray
	{219, 219, 141, 255}, // Light olive
	{158, 218, 229, 255}, // Light cyan
}
