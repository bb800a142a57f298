// Package shape defines the in-memory representation of a cascaded shape
// regression model: the mean initial shape and the ordered stages of
// regression forests refining it. A Model is built once by a decoder and is
// read-only afterwards, so it can be shared by any number of goroutines.
package shape

import (
	"math/bits"

	"github.com/esimov/shapeloc/geom"
)

// Stage is a single cascade level: the forest of regression trees together
// with the feature sample points, each one given as an offset (delta) from
// an anchor landmark.
type Stage struct {
	Forest  []RegressionTree
	Anchors []int
	Deltas  []geom.Vector2
}

// Model is a decoded shape predictor.
type Model struct {
	// InitialShape holds the flattened (x, y) mean shape in the normalized frame.
	InitialShape Matrix
	Stages       []Stage
}

// NumLandmarks returns the number of landmarks the model predicts.
func (m *Model) NumLandmarks() int {
	return m.InitialShape.Len() / 2
}

// NumTrees returns the total number of regression trees over all stages.
func (m *Model) NumTrees() int {
	var n int
	for i := range m.Stages {
		n += len(m.Stages[i].Forest)
	}
	return n
}

// Validate checks the structural invariants the predictor relies on.
// A model passing Validate can be evaluated without any index going out of range.
func (m *Model) Validate() error {
	size := m.InitialShape.Len()
	if size == 0 || size%2 != 0 {
		return Malformed("initial shape must hold a non-zero even number of values, got %d", size)
	}
	if m.InitialShape.Rows*m.InitialShape.Cols != size {
		return Malformed("initial shape is %dx%d but holds %d values",
			m.InitialShape.Rows, m.InitialShape.Cols, size)
	}
	landmarks := size / 2

	for s := range m.Stages {
		stage := &m.Stages[s]
		if len(stage.Anchors) != len(stage.Deltas) {
			return Malformed("stage %d: %d anchors but %d deltas", s, len(stage.Anchors), len(stage.Deltas))
		}
		for i, a := range stage.Anchors {
			if a < 0 || a >= landmarks {
				return Malformed("stage %d: anchor %d references landmark %d of %d", s, i, a, landmarks)
			}
		}
		features := len(stage.Anchors)

		for t := range stage.Forest {
			if err := stage.Forest[t].validate(features, size); err != nil {
				return Malformed("stage %d, tree %d: %s", s, t, err.(*MalformedEncodingError).Detail)
			}
		}
	}
	return nil
}

func (t *RegressionTree) validate(features, shapeSize int) error {
	leaves := len(t.Leaves)
	if leaves != len(t.Splits)+1 {
		return Malformed("%d leaves for %d splits", leaves, len(t.Splits))
	}
	if bits.OnesCount(uint(leaves)) != 1 {
		return Malformed("leaf count %d is not a power of two", leaves)
	}
	for i, sp := range t.Splits {
		if sp.Idx1 < 0 || sp.Idx1 >= features || sp.Idx2 < 0 || sp.Idx2 >= features {
			return Malformed("split %d compares features %d and %d of %d", i, sp.Idx1, sp.Idx2, features)
		}
	}
	for i := range t.Leaves {
		if n := t.Leaves[i].Len(); n != shapeSize {
			return Malformed("leaf %d holds %d values, shape holds %d", i, n, shapeSize)
		}
	}
	return nil
}
