// Package geom holds the planar primitives shared by the landmark predictor:
// points, rectangles and 2D affine transforms, together with the least-squares
// estimators used to align landmark sets.
package geom

import "fmt"

// Vector2 is a point or offset in the plane.
type Vector2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Add returns v+o.
func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v-o.
func (v Vector2) Sub(o Vector2) Vector2 {
	return Vector2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale multiplies both components by s.
func (v Vector2) Scale(s float32) Vector2 {
	return Vector2{X: v.X * s, Y: v.Y * s}
}

// LengthSquared returns the squared euclidean norm.
func (v Vector2) LengthSquared() float32 {
	return v.X*v.X + v.Y*v.Y
}

func (v Vector2) String() string {
	return fmt.Sprintf("(%g, %g)", v.X, v.Y)
}

// Rectangle is a region of interest in image pixel coordinates.
type Rectangle struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// NewRectangle creates a new rectangle.
func NewRectangle(x, y, width, height float32) Rectangle {
	return Rectangle{X: x, Y: y, Width: width, Height: height}
}

// TopLeft returns the top left corner.
func (r Rectangle) TopLeft() Vector2 { return Vector2{X: r.X, Y: r.Y} }

// TopRight returns the top right corner.
func (r Rectangle) TopRight() Vector2 { return Vector2{X: r.X + r.Width, Y: r.Y} }

// BottomLeft returns the bottom left corner.
func (r Rectangle) BottomLeft() Vector2 { return Vector2{X: r.X, Y: r.Y + r.Height} }

// BottomRight returns the bottom right corner.
func (r Rectangle) BottomRight() Vector2 {
	return Vector2{X: r.X + r.Width, Y: r.Y + r.Height}
}

// Contains reports whether the point lies inside the closed rectangle.
func (r Rectangle) Contains(p Vector2) bool {
	return p.X >= r.X && p.Y >= r.Y &&
		p.X <= r.X+r.Width && p.Y <= r.Y+r.Height
}

// Empty reports whether the rectangle has no area.
func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Affine is a 2D affine transform: p' = M*p + B.
type Affine struct {
	M [2][2]float32
	B Vector2
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{M: [2][2]float32{{1, 0}, {0, 1}}}
}

// Apply maps p through the transform.
func (a Affine) Apply(p Vector2) Vector2 {
	return a.Linear(p).Add(a.B)
}

// Linear applies only the linear part of the transform.
func (a Affine) Linear(p Vector2) Vector2 {
	return Vector2{
		X: a.M[0][0]*p.X + a.M[0][1]*p.Y,
		Y: a.M[1][0]*p.X + a.M[1][1]*p.Y,
	}
}

// Unnormalizing returns the transform mapping the unit square onto the
// rectangle, fitted on the (0,0), (1,0), (1,1) corners.
func Unnormalizing(r Rectangle) Affine {
	from := []Vector2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	to := []Vector2{r.TopLeft(), r.TopRight(), r.BottomRight()}

	// The unit triangle is never degenerate, so the fit cannot fail.
	tr, err := FindAffine(from, to)
	if err != nil {
		return Identity()
	}
	return tr
}
