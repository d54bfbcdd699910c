// Package geometry provides the rectangle and transform math used by the
// detection pipeline. All rectangles live in top-left-origin page space:
// x grows right, y grows down, so Y0 is the top edge and Y1 the bottom edge.
package geometry

import "math"

// Point represents a 2D point in page space.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle described by its upper-left corner
// (X0, Y0) and lower-right corner (X1, Y1).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// NewRect creates a normalized rectangle from two opposite corners.
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}.Normalize()
}

// Normalize returns the rectangle with its corners reordered so that
// X0 <= X1 and Y0 <= Y1.
func (r Rect) Normalize() Rect {
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 {
	return r.X1 - r.X0
}

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 {
	return r.Y1 - r.Y0
}

// Area returns the area of the rectangle, 0 for degenerate rectangles.
func (r Rect) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.Width() * r.Height()
}

// IsEmpty reports whether the rectangle has no interior.
func (r Rect) IsEmpty() bool {
	return r.X1 <= r.X0 || r.Y1 <= r.Y0
}

// Intersects reports whether r and other share any area.
func (r Rect) Intersects(other Rect) bool {
	return !r.Intersect(other).IsEmpty()
}

// Intersect returns the intersection of r and other. The result is empty
// (IsEmpty() == true) when the rectangles do not overlap.
func (r Rect) Intersect(other Rect) Rect {
	return Rect{
		X0: math.Max(r.X0, other.X0),
		Y0: math.Max(r.Y0, other.Y0),
		X1: math.Min(r.X1, other.X1),
		Y1: math.Min(r.Y1, other.Y1),
	}
}

// Union returns the smallest rectangle containing both r and other.
func (r Rect) Union(other Rect) Rect {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, other.X0),
		Y0: math.Min(r.Y0, other.Y0),
		X1: math.Max(r.X1, other.X1),
		Y1: math.Max(r.Y1, other.Y1),
	}
}

// ContainmentFraction returns the fraction of r's area that lies inside
// cover, between 0 and 1. A zero-area receiver yields 0.
func (r Rect) ContainmentFraction(cover Rect) float64 {
	area := r.Area()
	if area == 0 {
		return 0
	}
	return r.Intersect(cover).Area() / area
}

// ExpandY grows the rectangle vertically by margin on both the top and
// bottom edges.
func (r Rect) ExpandY(margin float64) Rect {
	return Rect{X0: r.X0, Y0: r.Y0 - margin, X1: r.X1, Y1: r.Y1 + margin}
}

// Contains reports whether the point lies inside or on the edge of r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X0 && p.X <= r.X1 && p.Y >= r.Y0 && p.Y <= r.Y1
}

// Matrix is a PDF affine transformation matrix [a b c d e f], mapping
// (x, y) to (a*x + c*y + e, b*x + d*y + f).
type Matrix [6]float64

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{1, 0, 0, 1, 0, 0}
}

// Apply transforms a point by the matrix.
func (m Matrix) Apply(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// Multiply returns m * other, the matrix that applies m first and then other.
func (m Matrix) Multiply(other Matrix) Matrix {
	return Matrix{
		m[0]*other[0] + m[1]*other[2],
		m[0]*other[1] + m[1]*other[3],
		m[2]*other[0] + m[3]*other[2],
		m[2]*other[1] + m[3]*other[3],
		m[4]*other[0] + m[5]*other[2] + other[4],
		m[4]*other[1] + m[5]*other[3] + other[5],
	}
}

// TransformRect maps a rectangle through the matrix and returns the
// axis-aligned bounding box of the transformed corners.
func (m Matrix) TransformRect(r Rect) Rect {
	corners := [4]Point{
		{r.X0, r.Y0},
		{r.X1, r.Y0},
		{r.X0, r.Y1},
		{r.X1, r.Y1},
	}
	out := Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	for _, c := range corners {
		p := m.Apply(c)
		out.X0 = math.Min(out.X0, p.X)
		out.Y0 = math.Min(out.Y0, p.Y)
		out.X1 = math.Max(out.X1, p.X)
		out.Y1 = math.Max(out.Y1, p.Y)
	}
	return out
}
