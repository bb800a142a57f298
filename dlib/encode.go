package dlib

import (
	"math"

	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/shape"
)

// floatDigits is the number of mantissa bits written for a float32.
const floatDigits = 24

// AppendInt appends the variable length encoding of v to dst.
func AppendInt(dst []byte, v int64) []byte {
	var ctrl byte
	mag := uint64(v)
	if v < 0 {
		ctrl = signBit
		mag = uint64(-v) // -MinInt64 wraps to 1<<63, which is the magnitude we want
	}

	var buf [maxIntBytes]byte
	n := 0
	for mag != 0 {
		buf[n] = byte(mag)
		mag >>= 8
		n++
	}
	dst = append(dst, ctrl|byte(n))
	return append(dst, buf[:n]...)
}

// AppendFloat appends f as a (mantissa, exponent) pair.
func AppendFloat(dst []byte, f float32) []byte {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return AppendInt(AppendInt(dst, 0), expNaN)
	case math.IsInf(v, 1):
		return AppendInt(AppendInt(dst, 0), expInf)
	case math.IsInf(v, -1):
		return AppendInt(AppendInt(dst, 0), expNegInf)
	}
	frac, exp := math.Frexp(v)
	mantissa := int64(math.Ldexp(frac, floatDigits))
	return AppendInt(AppendInt(dst, mantissa), int64(exp-floatDigits))
}

// AppendVector2 appends an (x, y) pair.
func AppendVector2(dst []byte, v geom.Vector2) []byte {
	return AppendFloat(AppendFloat(dst, v.X), v.Y)
}

// AppendMatrix appends a matrix using the negated dimension convention.
func AppendMatrix(dst []byte, m *shape.Matrix) []byte {
	dst = AppendInt(dst, -int64(m.Rows))
	dst = AppendInt(dst, -int64(m.Cols))
	for _, v := range m.Data {
		dst = AppendFloat(dst, v)
	}
	return dst
}

// AppendRegressionTree appends the splits and leaves of a tree.
func AppendRegressionTree(dst []byte, t *shape.RegressionTree) []byte {
	dst = AppendInt(dst, int64(len(t.Splits)))
	for _, sp := range t.Splits {
		dst = AppendInt(dst, int64(sp.Idx1))
		dst = AppendInt(dst, int64(sp.Idx2))
		dst = AppendFloat(dst, sp.Thresh)
	}
	dst = AppendInt(dst, int64(len(t.Leaves)))
	for i := range t.Leaves {
		dst = AppendMatrix(dst, &t.Leaves[i])
	}
	return dst
}

// EncodeModel serializes a model in the layout read by DecodeModel.
func EncodeModel(m *shape.Model) []byte {
	dst := AppendInt(nil, Version)
	dst = AppendMatrix(dst, &m.InitialShape)

	dst = AppendInt(dst, int64(len(m.Stages)))
	for s := range m.Stages {
		forest := m.Stages[s].Forest
		dst = AppendInt(dst, int64(len(forest)))
		for t := range forest {
			dst = AppendRegressionTree(dst, &forest[t])
		}
	}

	dst = AppendInt(dst, int64(len(m.Stages)))
	for s := range m.Stages {
		dst = AppendInt(dst, int64(len(m.Stages[s].Anchors)))
		for _, a := range m.Stages[s].Anchors {
			dst = AppendInt(dst, int64(a))
		}
	}

	dst = AppendInt(dst, int64(len(m.Stages)))
	for s := range m.Stages {
		dst = AppendInt(dst, int64(len(m.Stages[s].Deltas)))
		for _, d := range m.Stages[s].Deltas {
			dst = AppendVector2(dst, d)
		}
	}
	return dst
}
