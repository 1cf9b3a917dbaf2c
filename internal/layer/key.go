package layer

import "fmt"

// Kind tags what a layer holds. Boundary and nuclei layers wrap one
// polygon dataset per z-stack; gene layers wrap one z-slice of a
// gene's point dataset.
type Kind int

const (
	KindBoundary Kind = iota
	KindNuclei
	KindGenePoints
)

func (k Kind) String() string {
	switch k {
	case KindBoundary:
		return "boundary"
	case KindNuclei:
		return "nuclei"
	case KindGenePoints:
		return "gene"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Key identifies one layer in the store. Gene is empty except for
// KindGenePoints.
type Key struct {
	Kind   Kind
	ZStack int
	Gene   string
}

func (k Key) String() string {
	if k.Kind == KindGenePoints {
		return fmt.Sprintf("%s/%s/z%d", k.Kind, k.Gene, k.ZStack)
	}
	return fmt.Sprintf("%s/z%d", k.Kind, k.ZStack)
}
