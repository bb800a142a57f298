// Package dlib decodes shape predictor models serialized by the dlib C++ library.
//
// Every decoder is a pure function taking a byte slice and returning the
// decoded value together with the unread remainder. On failure the input is
// returned untouched as the remainder and nothing is read past the declared
// byte counts.
package dlib

import (
	"math"

	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/shape"
)

// Version is the only shape predictor serialization version understood by DecodeModel.
const Version = 1

const (
	signBit     = 0x80
	sizeMask    = 0x0F
	maxIntBytes = 8
)

// Reserved float exponents marking the non-finite values.
const (
	expInf    = 32000
	expNegInf = 32001
	expNaN    = 32002
)

// Int decodes a variable length integer: a control byte whose low nibble
// holds the number of magnitude bytes and whose high bit holds the sign.
// The magnitude is stored least significant byte first, as dlib's
// serialize.h writes it (pack_int / unpack_int).
func Int(b []byte) (int64, []byte, error) {
	if len(b) < 1 {
		return 0, b, &shape.TruncatedInputError{Needed: 1}
	}
	ctrl := b[0]
	size := int(ctrl & sizeMask)
	if size > maxIntBytes {
		return 0, b, shape.Malformed("integer declares %d bytes, at most %d allowed", size, maxIntBytes)
	}
	if len(b)-1 < size {
		return 0, b, &shape.TruncatedInputError{Needed: size - (len(b) - 1)}
	}

	var mag uint64
	for i := size; i >= 1; i-- {
		mag = mag<<8 | uint64(b[i])
	}

	negative := ctrl&signBit != 0
	switch {
	case mag <= math.MaxInt64:
	case negative && mag == 1<<63:
		return math.MinInt64, b[1+size:], nil
	default:
		return 0, b, shape.Malformed("integer magnitude %d overflows int64", mag)
	}

	v := int64(mag)
	if negative {
		v = -v
	}
	return v, b[1+size:], nil
}

// Float decodes a (mantissa, exponent) pair into mantissa * 2^exponent.
func Float(b []byte) (float32, []byte, error) {
	mantissa, rest, err := Int(b)
	if err != nil {
		return 0, b, err
	}
	exp, rest, err := Int(rest)
	if err != nil {
		return 0, b, err
	}

	switch exp {
	case expInf:
		return float32(math.Inf(1)), rest, nil
	case expNegInf:
		return float32(math.Inf(-1)), rest, nil
	case expNaN:
		return float32(math.NaN()), rest, nil
	}
	if exp < math.MinInt32 || exp > math.MaxInt32 {
		return 0, b, shape.Malformed("float exponent %d out of range", exp)
	}
	return float32(math.Ldexp(float64(mantissa), int(exp))), rest, nil
}

// Vector2 decodes an (x, y) pair of floats.
func Vector2(b []byte) (geom.Vector2, []byte, error) {
	x, rest, err := Float(b)
	if err != nil {
		return geom.Vector2{}, b, err
	}
	y, rest, err := Float(rest)
	if err != nil {
		return geom.Vector2{}, b, err
	}
	return geom.Vector2{X: x, Y: y}, rest, nil
}

// MatrixDims decodes a (rows, cols) pair. dlib writes both dimensions
// negated; a pair where both are negative is folded back to positive.
func MatrixDims(b []byte) (int, int, []byte, error) {
	rows, rest, err := Int(b)
	if err != nil {
		return 0, 0, b, err
	}
	cols, rest, err := Int(rest)
	if err != nil {
		return 0, 0, b, err
	}

	if rows < 0 && cols < 0 {
		rows, cols = -rows, -cols
	} else if rows < 0 || cols < 0 {
		return 0, 0, b, shape.Malformed("matrix dimensions %dx%d mix signs", rows, cols)
	}
	if rows > math.MaxInt32 || cols > math.MaxInt32 || (cols != 0 && rows > math.MaxInt32/cols) {
		return 0, 0, b, shape.Malformed("matrix dimensions %dx%d too large", rows, cols)
	}
	return int(rows), int(cols), rest, nil
}

// Matrix decodes the dimensions followed by rows*cols floats in row-major order.
func Matrix(b []byte) (shape.Matrix, []byte, error) {
	rows, cols, rest, err := MatrixDims(b)
	if err != nil {
		return shape.Matrix{}, b, err
	}
	n := rows * cols
	// Each float takes at least two bytes.
	data := make([]float32, 0, min(n, len(rest)/2))
	for i := 0; i < n; i++ {
		var v float32
		v, rest, err = Float(rest)
		if err != nil {
			return shape.Matrix{}, b, err
		}
		data = append(data, v)
	}
	return shape.Matrix{Rows: rows, Cols: cols, Data: data}, rest, nil
}

// SplitFeature decodes a decision node (idx1, idx2, thresh).
func SplitFeature(b []byte) (shape.SplitFeature, []byte, error) {
	idx1, rest, err := index(b)
	if err != nil {
		return shape.SplitFeature{}, b, err
	}
	idx2, rest, err := index(rest)
	if err != nil {
		return shape.SplitFeature{}, b, err
	}
	thresh, rest, err := Float(rest)
	if err != nil {
		return shape.SplitFeature{}, b, err
	}
	return shape.SplitFeature{Idx1: idx1, Idx2: idx2, Thresh: thresh}, rest, nil
}

// RegressionTree decodes the split nodes followed by the leaf matrices.
func RegressionTree(b []byte) (shape.RegressionTree, []byte, error) {
	splits, rest, err := sequence(b, 3, SplitFeature)
	if err != nil {
		return shape.RegressionTree{}, b, err
	}
	leaves, rest, err := sequence(rest, 2, Matrix)
	if err != nil {
		return shape.RegressionTree{}, b, err
	}
	return shape.RegressionTree{Splits: splits, Leaves: leaves}, rest, nil
}

// Forest decodes the regression trees of a single cascade stage.
func Forest(b []byte) ([]shape.RegressionTree, []byte, error) {
	return sequence(b, 2, RegressionTree)
}

// Anchors decodes the anchor landmark indexes of a single cascade stage.
func Anchors(b []byte) ([]int, []byte, error) {
	return sequence(b, 1, index)
}

// Deltas decodes the sample point offsets of a single cascade stage.
func Deltas(b []byte) ([]geom.Vector2, []byte, error) {
	return sequence(b, 4, Vector2)
}

// DecodeModel decodes a complete shape predictor. Bytes following the model
// are ignored. The decoded model must pass shape.Model.Validate.
func DecodeModel(b []byte) (*shape.Model, error) {
	version, rest, err := Int(b)
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, &shape.UnsupportedVersionError{Found: version}
	}

	initial, rest, err := Matrix(rest)
	if err != nil {
		return nil, err
	}
	forests, rest, err := sequence(rest, 1, Forest)
	if err != nil {
		return nil, err
	}
	anchors, rest, err := sequence(rest, 1, Anchors)
	if err != nil {
		return nil, err
	}
	deltas, _, err := sequence(rest, 1, Deltas)
	if err != nil {
		return nil, err
	}

	if len(forests) != len(anchors) || len(forests) != len(deltas) {
		return nil, shape.Malformed("stage counts disagree: %d forests, %d anchor sets, %d delta sets",
			len(forests), len(anchors), len(deltas))
	}

	model := &shape.Model{
		InitialShape: initial,
		Stages:       make([]shape.Stage, len(forests)),
	}
	for i := range forests {
		model.Stages[i] = shape.Stage{
			Forest:  forests[i],
			Anchors: anchors[i],
			Deltas:  deltas[i],
		}
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}

// index decodes a non-negative integer used as an element index.
func index(b []byte) (int, []byte, error) {
	v, rest, err := Int(b)
	if err != nil {
		return 0, b, err
	}
	if v < 0 || v > math.MaxInt32 {
		return 0, b, shape.Malformed("index %d out of range", v)
	}
	return int(v), rest, nil
}

// sequence decodes a count followed by that many elements. minSize is the
// smallest encoded size of an element, used to bound the preallocation.
func sequence[T any](b []byte, minSize int, elem func([]byte) (T, []byte, error)) ([]T, []byte, error) {
	count, rest, err := Int(b)
	if err != nil {
		return nil, b, err
	}
	if count < 0 {
		return nil, b, shape.Malformed("negative element count %d", count)
	}

	out := make([]T, 0, min(count, int64(len(rest)/minSize)))
	for i := int64(0); i < count; i++ {
		var v T
		v, rest, err = elem(rest)
		if err != nil {
			return nil, b, err
		}
		out = append(out, v)
	}
	return out, rest, nil
}
