// Package geom provides the 2D primitives used by the batching, camera
// and picking code: points, axis-aligned boxes and affine transforms.
package geom

import (
	"fmt"
	"math"
)

// Point represents a 2D point or vector in the shared global
// coordinate space of a dataset.
type Point struct {
	X float64
	Y float64
}

// Box represents an axis-aligned rectangle.
type Box struct {
	X float64
	Y float64
	W float64
	H float64
}

// Affine represents a 2D affine transform in row-major form:
//
//	[ a b c ]
//	[ d e f ]
//
// where (x', y') = (a*x + b*y + c, d*x + e*y + f)
type Affine struct {
	A float64
	B float64
	C float64
	D float64
	E float64
	F float64
}

func MakePoint(x, y float64) Point               { return Point{X: x, Y: y} }
func MakeBox(x, y, w, h float64) Box             { return Box{X: x, Y: y, W: w, H: h} }
func MakeAffine(a, b, c, d, e, f float64) Affine { return Affine{A: a, B: b, C: c, D: d, E: e, F: f} }

// Identity returns the identity transform.
func Identity() Affine { return MakeAffine(1, 0, 0, 0, 1, 0) }

func (p Point) Add(q Point) Point     { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point     { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

func Dot(p, q Point) float64 { return p.X*q.X + p.Y*q.Y }

func Dist(p, q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Center returns the center point of the box.
func (b Box) Center() Point { return Point{b.X + 0.5*b.W, b.Y + 0.5*b.H} }

// Contains reports whether p lies inside the box (inclusive edges).
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.W && p.Y >= b.Y && p.Y <= b.Y+b.H
}

// Union returns the smallest box containing both b and o. A zero-size
// box is treated as empty.
func (b Box) Union(o Box) Box {
	if b.W <= 0 && b.H <= 0 {
		return o
	}
	if o.W <= 0 && o.H <= 0 {
		return b
	}
	x0 := math.Min(b.X, o.X)
	y0 := math.Min(b.Y, o.Y)
	x1 := math.Max(b.X+b.W, o.X+o.W)
	y1 := math.Max(b.Y+b.H, o.Y+o.H)
	return MakeBox(x0, y0, x1-x0, y1-y0)
}

// MulPoint applies the affine transform to a point.
func (t Affine) MulPoint(p Point) Point {
	return Point{
		X: t.A*p.X + t.B*p.Y + t.C,
		Y: t.D*p.X + t.E*p.Y + t.F,
	}
}

// MulBox applies the transform to a box and returns the axis-aligned
// bounds of the result.
func (t Affine) MulBox(b Box) Box {
	corners := [4]Point{
		{b.X, b.Y},
		{b.X + b.W, b.Y},
		{b.X, b.Y + b.H},
		{b.X + b.W, b.Y + b.H},
	}
	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for _, c := range corners {
		q := t.MulPoint(c)
		xmin = math.Min(xmin, q.X)
		xmax = math.Max(xmax, q.X)
		ymin = math.Min(ymin, q.Y)
		ymax = math.Max(ymax, q.Y)
	}
	return MakeBox(xmin, ymin, xmax-xmin, ymax-ymin)
}

// Mul composes two affine transforms (applies u then t).
func (t Affine) Mul(u Affine) Affine {
	return MakeAffine(
		t.A*u.A+t.B*u.D,
		t.A*u.B+t.B*u.E,
		t.A*u.C+t.B*u.F+t.C,
		t.D*u.A+t.E*u.D,
		t.D*u.B+t.E*u.E,
		t.D*u.C+t.E*u.F+t.F,
	)
}

// Inv returns the inverse of the affine transform. Returns an error if
// the transform is not invertible (determinant is zero).
func (t Affine) Inv() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if math.Abs(det) < 1e-10 {
		return Affine{}, fmt.Errorf("affine transform is not invertible (determinant ≈ 0)")
	}
	return MakeAffine(
		t.E/det, -t.B/det, (t.B*t.F-t.C*t.E)/det,
		-t.D/det, t.A/det, (t.C*t.D-t.A*t.F)/det,
	), nil
}

// FlipSwap builds the coordinate transform for the given flip/swap
// settings. Swap is applied before the flips, matching the order the
// batcher applies to raw dataset coordinates. The transform is its own
// class of involution-composites and is always invertible.
func FlipSwap(flipX, flipY, swapXY bool) Affine {
	t := Identity()
	if swapXY {
		t = MakeAffine(0, 1, 0, 1, 0, 0)
	}
	if flipX {
		t = MakeAffine(-1, 0, 0, 0, 1, 0).Mul(t)
	}
	if flipY {
		t = MakeAffine(1, 0, 0, 0, -1, 0).Mul(t)
	}
	return t
}

// Lerp linearly interpolates between a and b, clamping t to [0, 1].
func Lerp(a, b, t float64) float64 {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return a + t*(b-a)
}
