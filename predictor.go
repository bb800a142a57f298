package shapeloc

import (
	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/shape"
)

// ImageQuery is the image capability needed by the predictor.
type ImageQuery interface {
	Width() int
	Height() int
	// LumaIntensity returns the brightness of the pixel at (x, y).
	// It is only called with 0 <= x < Width() and 0 <= y < Height().
	LumaIntensity(x, y int) float32
}

// Predictor localizes the landmarks of a model inside an image region.
type Predictor struct {
	model   *shape.Model
	initial []geom.Vector2
}

// NewPredictor creates a predictor for the model. The model is not copied and
// must not be modified afterwards.
func NewPredictor(m *shape.Model) *Predictor {
	return &Predictor{
		model:   m,
		initial: shape.Points(m.InitialShape.Data),
	}
}

// Model returns the underlying model.
func (p *Predictor) Model() *shape.Model {
	return p.model
}

// NumLandmarks returns the number of points returned by Run.
func (p *Predictor) NumLandmarks() int {
	return len(p.initial)
}

// Run estimates the landmark positions inside region and returns them in
// image coordinates, in model order.
func (p *Predictor) Run(img ImageQuery, region geom.Rectangle) []geom.Vector2 {
	toImage := geom.Unnormalizing(region)
	current := p.model.InitialShape.Clone().Data

	var features []float32
	for s := range p.model.Stages {
		stage := &p.model.Stages[s]

		align := geom.Identity()
		if len(p.initial) > 1 {
			align = geom.FindSimilarity(p.initial, shape.Points(current))
		}
		features = p.sample(features[:0], img, stage, current, align, toImage)

		for t := range stage.Forest {
			_, leaf := stage.Forest[t].Find(features)
			leaf.AddTo(current)
		}
	}

	points := make([]geom.Vector2, len(p.initial))
	for i := range points {
		points[i] = toImage.Apply(shape.Point(current, i))
	}
	return points
}

// sample reads the feature pixel values of a stage. Sample points falling
// outside of the image read as zero.
func (p *Predictor) sample(
	dst []float32,
	img ImageQuery,
	stage *shape.Stage,
	current []float32,
	align, toImage geom.Affine,
) []float32 {
	width, height := float32(img.Width()), float32(img.Height())

	for i, anchor := range stage.Anchors {
		pt := align.Linear(stage.Deltas[i]).Add(shape.Point(current, anchor))
		pt = toImage.Apply(pt)

		var v float32
		if pt.X >= 0 && pt.X < width && pt.Y >= 0 && pt.Y < height {
			v = img.LumaIntensity(int(pt.X), int(pt.Y))
		}
		dst = append(dst, v)
	}
	return dst
}
