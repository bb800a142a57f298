package shapeloc

import (
	"image"
	"image/color"
	"math"

	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/overlay"
	"github.com/esimov/shapeloc/utils"
)

// Face holds the landmarks located inside a single region.
type Face struct {
	Region    geom.Rectangle `json:"region"`
	Landmarks []geom.Vector2 `json:"landmarks"`
}

// facePart is a run of consecutive landmarks of the 68-point iBUG markup.
type facePart struct {
	from, to int
	closed   bool
}

// ibugParts lists the contours of the 68-point markup: the jaw, the eyebrows,
// the nose bridge and base, the eyes and the outer and inner lips.
var ibugParts = []facePart{
	{0, 17, false},
	{17, 22, false},
	{22, 27, false},
	{27, 31, false},
	{31, 36, false},
	{36, 42, true},
	{42, 48, true},
	{48, 60, true},
	{60, 68, true},
}

// Default annotation colors.
var (
	DefaultPointColor = color.NRGBA{R: 0xff, G: 0x33, B: 0x33, A: 0xff}
	DefaultLineColor  = color.NRGBA{R: 0x33, G: 0xcc, B: 0xff, A: 0xc0}
	DefaultRectColor  = color.NRGBA{R: 0xff, G: 0xff, B: 0x00, A: 0xff}
)

// Drawer annotates an image with the located faces.
type Drawer struct {
	PointColor  color.NRGBA
	LineColor   color.NRGBA
	RectColor   color.NRGBA
	PointRadius int
	DrawRect    bool
	Op          overlay.Op
	Blend       overlay.BlendMode
}

// NewDrawer returns a drawer using the default colors.
func NewDrawer() *Drawer {
	return &Drawer{
		PointColor:  DefaultPointColor,
		LineColor:   DefaultLineColor,
		RectColor:   DefaultRectColor,
		PointRadius: 2,
		DrawRect:    true,
	}
}

// Draw paints the faces onto a transparent layer and composites it over img.
// The contours are only drawn for 68-point faces.
func (d *Drawer) Draw(img *image.NRGBA, faces []Face) error {
	if len(faces) == 0 {
		return nil
	}
	b := img.Bounds()
	layer := overlay.NewLayer(b)
	// Lines are rasterized pixel by pixel, so segments reaching far outside
	// of the image are skipped.
	limit := b.Inset(-utils.Max(b.Dx(), b.Dy()))

	for _, f := range faces {
		if d.DrawRect {
			r := toImageRect(f.Region)
			if r.In(limit) {
				layer.Rect(r, d.RectColor)
			}
		}
		pts := make([]image.Point, len(f.Landmarks))
		for i, lm := range f.Landmarks {
			pts[i] = toImagePoint(lm)
		}

		if len(pts) == 68 {
			for _, part := range ibugParts {
				d.polyline(layer, limit, pts[part.from:part.to], part.closed)
			}
			// Join the nose bridge with the base of the nose.
			d.line(layer, limit, pts[30], pts[33])
		}
		for _, p := range pts {
			if p.In(limit) {
				layer.Point(p, d.PointRadius, d.PointColor)
			}
		}
	}
	return overlay.Composite(img, layer, d.Op, d.Blend)
}

func (d *Drawer) polyline(layer *overlay.Layer, limit image.Rectangle, pts []image.Point, closed bool) {
	for i := 1; i < len(pts); i++ {
		d.line(layer, limit, pts[i-1], pts[i])
	}
	if closed && len(pts) > 2 {
		d.line(layer, limit, pts[len(pts)-1], pts[0])
	}
}

func (d *Drawer) line(layer *overlay.Layer, limit image.Rectangle, p0, p1 image.Point) {
	if p0.In(limit) && p1.In(limit) {
		layer.Line(p0, p1, d.LineColor)
	}
}

func toImagePoint(v geom.Vector2) image.Point {
	return image.Pt(round(v.X), round(v.Y))
}

func toImageRect(r geom.Rectangle) image.Rectangle {
	return image.Rect(round(r.X), round(r.Y), round(r.X+r.Width), round(r.Y+r.Height))
}

// round converts a coordinate to the nearest pixel. Non-finite values map to
// a pixel far outside of any image.
func round(v float32) int {
	f := float64(v)
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Round(f))
}
