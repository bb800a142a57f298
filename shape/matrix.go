package shape

import "github.com/esimov/shapeloc/geom"

// Matrix is a dense rows x cols matrix of float32 values stored in row-major order.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix allocates a zero filled matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the element at row r and column c.
func (m *Matrix) At(r, c int) float32 {
	return m.Data[r*m.Cols+c]
}

// Len returns the number of elements.
func (m *Matrix) Len() int {
	return len(m.Data)
}

// Clone returns a deep copy of the matrix.
func (m *Matrix) Clone() Matrix {
	data := make([]float32, len(m.Data))
	copy(data, m.Data)
	return Matrix{Rows: m.Rows, Cols: m.Cols, Data: data}
}

// AddTo adds the matrix element-wise onto dst. Both must have the same length.
func (m *Matrix) AddTo(dst []float32) {
	for i, v := range m.Data {
		dst[i] += v
	}
}

// Point reads the idx-th landmark out of a flattened (x, y) shape vector.
func Point(shape []float32, idx int) geom.Vector2 {
	return geom.Vector2{X: shape[2*idx], Y: shape[2*idx+1]}
}

// Points splits a flattened (x, y) shape vector into landmarks.
func Points(shape []float32) []geom.Vector2 {
	pts := make([]geom.Vector2, len(shape)/2)
	for i := range pts {
		pts[i] = Point(shape, i)
	}
	return pts
}
