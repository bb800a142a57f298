package geom

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrTooFewPoints is returned when an affine fit gets less than three point pairs.
var ErrTooFewPoints = errors.New("at least three point pairs are required")

// FindAffine computes the least-squares affine transform mapping the from
// points onto the to points. The points are arranged column-wise into the
// homogeneous matrix P (x, y, 1) and the target matrix Q (x, y), and the
// transform is read out of Q * pinv(P).
func FindAffine(from, to []Vector2) (Affine, error) {
	if len(from) != len(to) {
		return Affine{}, fmt.Errorf("point count mismatch: %d != %d", len(from), len(to))
	}
	if len(from) < 3 {
		return Affine{}, ErrTooFewPoints
	}

	n := len(from)
	p := mat.NewDense(3, n, nil)
	q := mat.NewDense(2, n, nil)

	for i := 0; i < n; i++ {
		p.Set(0, i, float64(from[i].X))
		p.Set(1, i, float64(from[i].Y))
		p.Set(2, i, 1)

		q.Set(0, i, float64(to[i].X))
		q.Set(1, i, float64(to[i].Y))
	}

	pinv, err := pseudoInverse(p)
	if err != nil {
		return Affine{}, err
	}

	var m mat.Dense
	m.Mul(q, pinv)

	return Affine{
		M: [2][2]float32{
			{float32(m.At(0, 0)), float32(m.At(0, 1))},
			{float32(m.At(1, 0)), float32(m.At(1, 1))},
		},
		B: Vector2{X: float32(m.At(0, 2)), Y: float32(m.At(1, 2))},
	}, nil
}

// FindSimilarity computes the least-squares similarity transform (rotation,
// uniform scale and translation, without reflection) mapping the from points
// onto the to points.
func FindSimilarity(from, to []Vector2) Affine {
	n := len(from)
	if n == 0 || n != len(to) {
		return Identity()
	}

	var meanFromX, meanFromY, meanToX, meanToY float64
	for i := 0; i < n; i++ {
		meanFromX += float64(from[i].X)
		meanFromY += float64(from[i].Y)
		meanToX += float64(to[i].X)
		meanToY += float64(to[i].Y)
	}
	meanFromX /= float64(n)
	meanFromY /= float64(n)
	meanToX /= float64(n)
	meanToY /= float64(n)

	var sigmaFrom float64
	cov := mat.NewDense(2, 2, nil)
	for i := 0; i < n; i++ {
		fx, fy := float64(from[i].X)-meanFromX, float64(from[i].Y)-meanFromY
		tx, ty := float64(to[i].X)-meanToX, float64(to[i].Y)-meanToY

		sigmaFrom += fx*fx + fy*fy

		// outer(to-meanTo, from-meanFrom)
		cov.Set(0, 0, cov.At(0, 0)+tx*fx)
		cov.Set(0, 1, cov.At(0, 1)+tx*fy)
		cov.Set(1, 0, cov.At(1, 0)+ty*fx)
		cov.Set(1, 1, cov.At(1, 1)+ty*fy)
	}
	sigmaFrom /= float64(n)
	cov.Scale(1/float64(n), cov)

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return Identity()
	}
	d := svd.Values(nil)

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	detCov := mat.Det(cov)
	reflected := detCov < 0 || (detCov == 0 && mat.Det(&u)*mat.Det(&v) < 0)
	s0, s1 := reflectionSigns(d[0], d[1], reflected)
	s := mat.NewDense(2, 2, []float64{s0, 0, 0, s1})

	var r mat.Dense
	r.Product(&u, s, v.T())

	c := 1.0
	if sigmaFrom != 0 {
		c = (d[0]*s.At(0, 0) + d[1]*s.At(1, 1)) / sigmaFrom
	}

	tx := meanToX - c*(r.At(0, 0)*meanFromX+r.At(0, 1)*meanFromY)
	ty := meanToY - c*(r.At(1, 0)*meanFromX+r.At(1, 1)*meanFromY)

	return Affine{
		M: [2][2]float32{
			{float32(c * r.At(0, 0)), float32(c * r.At(0, 1))},
			{float32(c * r.At(1, 0)), float32(c * r.At(1, 1))},
		},
		B: Vector2{X: float32(tx), Y: float32(ty)},
	}
}

// reflectionSigns returns the diagonal of the correction matrix applied
// between U and V^T. A reflected fit flips the sign paired with the larger
// singular value; equal values flip the second one.
func reflectionSigns(d0, d1 float64, reflected bool) (float64, float64) {
	switch {
	case !reflected:
		return 1, 1
	case d1 < d0:
		return -1, 1
	default:
		return 1, -1
	}
}

// pseudoInverse returns the Moore-Penrose pseudo-inverse of a,
// computed from its thin singular value decomposition.
func pseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition failed")
	}
	values := svd.Values(nil)

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	rows, cols := a.Dims()
	tol := 0.0
	if len(values) > 0 {
		tol = 1e-12 * float64(max(rows, cols)) * values[0]
	}

	inv := mat.NewDense(len(values), len(values), nil)
	for i, sv := range values {
		if sv > tol {
			inv.Set(i, i, 1/sv)
		}
	}

	// pinv(A) = V * inv(Sigma) * U^T
	var pinv mat.Dense
	pinv.Product(&v, inv, u.T())

	return &pinv, nil
}
