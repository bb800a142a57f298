package overlay

import (
	"image"
	"image/color"

	"github.com/esimov/shapeloc/utils"
)

// Layer is a transparent drawing surface having the size of the annotated image.
type Layer struct {
	Img *image.NRGBA
}

// NewLayer creates a fully transparent layer.
func NewLayer(rect image.Rectangle) *Layer {
	return &Layer{Img: image.NewNRGBA(rect)}
}

// set paints a single pixel, ignoring the ones outside of the layer.
func (l *Layer) set(x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(l.Img.Rect) {
		return
	}
	l.Img.SetNRGBA(x, y, c)
}

// Point paints a filled disc of the given radius centered on p.
// A radius of zero paints a single pixel.
func (l *Layer) Point(p image.Point, radius int, c color.NRGBA) {
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= r2 {
				l.set(p.X+dx, p.Y+dy, c)
			}
		}
	}
}

// Line paints the segment between p0 and p1 using Bresenham's algorithm.
func (l *Layer) Line(p0, p1 image.Point, c color.NRGBA) {
	dx := utils.Abs(p1.X - p0.X)
	dy := -utils.Abs(p1.Y - p0.Y)
	sx, sy := 1, 1
	if p0.X > p1.X {
		sx = -1
	}
	if p0.Y > p1.Y {
		sy = -1
	}

	x, y := p0.X, p0.Y
	err := dx + dy
	for {
		l.set(x, y, c)
		if x == p1.X && y == p1.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// Polyline connects the consecutive points. A closed polyline also joins the
// last point with the first one.
func (l *Layer) Polyline(pts []image.Point, closed bool, c color.NRGBA) {
	for i := 1; i < len(pts); i++ {
		l.Line(pts[i-1], pts[i], c)
	}
	if closed && len(pts) > 2 {
		l.Line(pts[len(pts)-1], pts[0], c)
	}
}

// Rect paints the outline of r.
func (l *Layer) Rect(r image.Rectangle, c color.NRGBA) {
	if r.Empty() {
		return
	}
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1
	l.Polyline([]image.Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}, true, c)
}
