package shape

import (
	"errors"
	"testing"

	"github.com/esimov/shapeloc/geom"
	"github.com/stretchr/testify/assert"
)

func newTestModel() *Model {
	initial := NewMatrix(6, 1)
	copy(initial.Data, []float32{0.2, 0.3, 0.8, 0.3, 0.5, 0.7})

	tree := newTestTree()
	for i := range tree.Leaves {
		tree.Leaves[i] = NewMatrix(6, 1)
	}

	return &Model{
		InitialShape: initial,
		Stages: []Stage{{
			Forest:  []RegressionTree{tree},
			Anchors: []int{0, 1, 2, 0, 1, 2},
			Deltas:  make([]geom.Vector2, 6),
		}},
	}
}

func TestModel_Validate(t *testing.T) {
	m := newTestModel()
	assert.NoError(t, m.Validate())
	assert.Equal(t, 3, m.NumLandmarks())
	assert.Equal(t, 1, m.NumTrees())
}

func TestModel_ValidateRejects(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(m *Model)
	}{
		{"odd initial shape", func(m *Model) {
			m.InitialShape = NewMatrix(5, 1)
		}},
		{"empty initial shape", func(m *Model) {
			m.InitialShape = Matrix{}
		}},
		{"anchor/delta mismatch", func(m *Model) {
			m.Stages[0].Deltas = m.Stages[0].Deltas[:5]
		}},
		{"anchor out of range", func(m *Model) {
			m.Stages[0].Anchors[2] = 3
		}},
		{"split out of range", func(m *Model) {
			m.Stages[0].Forest[0].Splits[1].Idx2 = 6
		}},
		{"leaf count", func(m *Model) {
			tree := &m.Stages[0].Forest[0]
			tree.Leaves = tree.Leaves[:3]
		}},
		{"leaf count not a power of two", func(m *Model) {
			tree := &m.Stages[0].Forest[0]
			tree.Splits = tree.Splits[:2]
			tree.Leaves = tree.Leaves[:3]
		}},
		{"leaf size", func(m *Model) {
			m.Stages[0].Forest[0].Leaves[2] = NewMatrix(4, 1)
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel()
			tc.mutate(m)

			err := m.Validate()
			assert.ErrorIs(t, err, ErrMalformedEncoding)

			var merr *MalformedEncodingError
			assert.True(t, errors.As(err, &merr))
		})
	}
}

func TestErrors_Is(t *testing.T) {
	assert := assert.New(t)

	assert.ErrorIs(&TruncatedInputError{Needed: 3}, ErrTruncatedInput)
	assert.ErrorIs(&UnsupportedVersionError{Found: 7}, ErrUnsupportedVersion)

	cause := errors.New("disk on fire")
	ioErr := &IOError{Op: "open", Path: "model.dat", Err: cause}
	assert.ErrorIs(ioErr, ErrIO)
	assert.ErrorIs(ioErr, cause)
	assert.Equal("open model.dat: disk on fire", ioErr.Error())

	serErr := &SerializationError{Err: cause}
	assert.ErrorIs(serErr, ErrSerialization)
	assert.ErrorIs(serErr, cause)
	assert.Equal("truncated input: 3 more byte(s) needed", (&TruncatedInputError{Needed: 3}).Error())
}
